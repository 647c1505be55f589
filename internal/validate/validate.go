package validate

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/tanq16/parcel/internal/utils"
)

const (
	MaxFilenameLength = 255
	MaxPathLength     = 4096
)

var (
	filenameReplacer = strings.NewReplacer(
		"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_",
		`\`, "_", "|", "_", "?", "_", "*", "_",
	)
	reservedNames = map[string]bool{
		"CON": true, "PRN": true, "AUX": true, "NUL": true,
	}
)

func init() {
	for i := 1; i <= 9; i++ {
		reservedNames[fmt.Sprintf("COM%d", i)] = true
		reservedNames[fmt.Sprintf("LPT%d", i)] = true
	}
}

// IsValidURL accepts absolute http and https URLs that name a host.
func IsValidURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Hostname() != ""
}

// NormalizeURL trims user input and assumes https when no scheme is given.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") && !strings.Contains(raw, "://") {
		return "https://" + raw
	}
	return raw
}

// SanitizeFilename replaces characters that are invalid on common filesystems
// and rejects names that cannot be used as a single path element.
func SanitizeFilename(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: filename cannot be empty", utils.ErrInvalidInput)
	}
	clean := strings.TrimSpace(filenameReplacer.Replace(name))
	if len(clean) > MaxFilenameLength {
		return "", fmt.Errorf("%w: filename too long (max %d characters)", utils.ErrInvalidInput, MaxFilenameLength)
	}
	if clean == "" || clean == "." || clean == ".." {
		return "", fmt.Errorf("%w: invalid filename %q", utils.ErrInvalidInput, name)
	}
	stem := strings.ToUpper(strings.TrimSuffix(clean, path.Ext(clean)))
	if reservedNames[stem] {
		return "", fmt.Errorf("%w: filename %q is reserved", utils.ErrInvalidInput, name)
	}
	return clean, nil
}

// SanitizePath normalizes a destination relative to the storage root.
// Absolute paths and paths climbing out of the root are rejected.
func SanitizePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: path cannot be empty", utils.ErrInvalidInput)
	}
	slashed := strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	if strings.HasPrefix(slashed, "/") || (len(slashed) > 1 && slashed[1] == ':') {
		return "", fmt.Errorf("%w: path %q must be relative to the storage root", utils.ErrInvalidInput, p)
	}
	normalized := path.Clean(slashed)
	if len(normalized) > MaxPathLength {
		return "", fmt.Errorf("%w: path too long (max %d characters)", utils.ErrInvalidInput, MaxPathLength)
	}
	if normalized == "." {
		return "", fmt.Errorf("%w: path %q names no file", utils.ErrInvalidInput, p)
	}
	if normalized == ".." || strings.HasPrefix(normalized, "../") {
		return "", fmt.Errorf("%w: path %q escapes the storage root", utils.ErrInvalidInput, p)
	}
	for _, component := range strings.Split(normalized, "/") {
		if strings.ContainsAny(component, `<>:"|?*`) {
			return "", fmt.Errorf("%w: invalid characters in path component %q", utils.ErrInvalidInput, component)
		}
	}
	return normalized, nil
}

// Destination validates a full destination: a sanitized directory plus a sanitized file name.
func Destination(p string) (string, error) {
	normalized, err := SanitizePath(p)
	if err != nil {
		return "", err
	}
	base, err := SanitizeFilename(path.Base(normalized))
	if err != nil {
		return "", err
	}
	dir := path.Dir(normalized)
	if dir == "." {
		return base, nil
	}
	return path.Join(dir, base), nil
}

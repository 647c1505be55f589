package parcelhttp

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/parcel/internal/utils"
)

var (
	dispositionExtended = regexp.MustCompile(`(?i)filename\*=UTF-8''([^;\s]+)`)
	dispositionFilename = regexp.MustCompile(`filename\*?=["']?([^"';\s]+)`)
)

// Probe sends a HEAD request, following redirects, bounded by the client's probe timeout.
func Probe(ctx context.Context, client *utils.Client, link string) (RemoteFileInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, client.ProbeTimeout())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return RemoteFileInfo{}, fmt.Errorf("%w: creating HEAD request: %v", utils.ErrInvalidInput, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return RemoteFileInfo{}, fmt.Errorf("%w: probing %s: %v", utils.ErrNetwork, link, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RemoteFileInfo{}, fmt.Errorf("%w: probe of %s returned status %d", utils.ErrNetwork, link, resp.StatusCode)
	}

	info := RemoteFileInfo{
		URL:          resp.Request.URL.String(),
		Size:         -1,
		ContentType:  resp.Header.Get("Content-Type"),
		Filename:     parseDisposition(resp.Header.Get("Content-Disposition")),
		AcceptRanges: strings.EqualFold(strings.TrimSpace(resp.Header.Get("Accept-Ranges")), "bytes"),
	}
	if contentLength := resp.Header.Get("Content-Length"); contentLength != "" {
		if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil && size >= 0 {
			info.Size = size
		}
	}
	log.Debug().Str("op", "http/probe").Str("url", info.URL).Int64("size", info.Size).Bool("ranges", info.AcceptRanges).Str("filename", info.Filename).Msg("Probe complete")
	return info, nil
}

func parseDisposition(header string) string {
	if header == "" {
		return ""
	}
	// mime decodes RFC 2231/5987 extended values into the plain key
	if _, params, err := mime.ParseMediaType(header); err == nil {
		if fn := params["filename"]; fn != "" {
			return fn
		}
	}
	if match := dispositionExtended.FindStringSubmatch(header); match != nil {
		if unescaped, err := url.PathUnescape(match[1]); err == nil {
			return unescaped
		}
		return match[1]
	}
	if match := dispositionFilename.FindStringSubmatch(header); match != nil {
		return match[1]
	}
	return ""
}

// deriveFilename takes the last URL path element, or synthesizes a name when
// that element is empty or has no extension.
func deriveFilename(link string, now time.Time) string {
	fallback := fmt.Sprintf("download_%d.file", now.Unix())
	parsed, err := url.Parse(link)
	if err != nil {
		return fallback
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
		return fallback
	}
	return name
}

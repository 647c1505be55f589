package ghrelease

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tanq16/parcel/internal/utils"
)

var repoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+)/?.*$`),
	regexp.MustCompile(`^github\.com/([^/]+)/([^/]+)/?.*$`),
	regexp.MustCompile(`^([^/.:]+)/([^/]+)$`),
}

// IsRepoReference reports whether link names a GitHub repository or its
// releases page rather than a file.
func IsRepoReference(link string) bool {
	link = strings.TrimSuffix(strings.TrimSpace(link), "/")
	for _, prefix := range []string{"https://github.com/", "http://github.com/", "github.com/"} {
		if rest, ok := strings.CutPrefix(link, prefix); ok {
			parts := strings.Split(rest, "/")
			switch {
			case len(parts) == 2:
				return true
			case len(parts) == 3 && parts[2] == "releases":
				return true
			case len(parts) == 4 && parts[2] == "releases" && parts[3] == "latest":
				return true
			}
			return false
		}
	}
	return false
}

func ParseRepo(link string) (owner, repo string, err error) {
	link = strings.TrimSuffix(strings.TrimSpace(link), "/")
	for _, pattern := range repoPatterns {
		if matches := pattern.FindStringSubmatch(link); len(matches) >= 3 {
			return matches[1], strings.TrimSuffix(matches[2], ".git"), nil
		}
	}
	return "", "", fmt.Errorf("%w: invalid GitHub repository format: %s", utils.ErrInvalidInput, link)
}

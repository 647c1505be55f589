package ghrelease

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tanq16/parcel/internal/utils"
)

var assetSelectMap = map[string][]string{
	"linuxamd64":   {"linux-amd64", "linux_amd64", "linux-x86_64", "linux-x86-64", "linux_x86_64", "linux_x86-64", "amd64-linux", "x86_64-linux", "x86-64-linux", "amd64_linux", "x86_64_linux", "x86-64_linux"},
	"linuxarm64":   {"linux-arm64", "linux_arm64", "linux-aarch64", "linux_aarch64", "arm64-linux", "aarch64-linux", "arm64_linux", "aarch64_linux"},
	"windowsamd64": {"windows-amd64", "windows_amd64", "windows-x86_64", "windows-x86-64", "windows_x86_64", "windows_x86-64", "amd64-windows", "x86_64-windows", "x86-64-windows", "amd64_windows", "x86_64_windows", "x86-64_windows"},
	"windowsarm64": {"windows-arm64", "windows_arm64", "windows-aarch64", "windows_aarch64", "arm64-windows", "aarch64-windows", "arm64_windows", "aarch64_windows"},
	"darwinamd64":  {"darwin-amd64", "darwin_amd64", "darwin-x86_64", "darwin-x86-64", "darwin_x86_64", "darwin_x86-64", "amd64-darwin", "x86_64-darwin", "x86-64-darwin", "amd64_darwin", "x86_64_darwin", "x86-64_darwin"},
	"darwinarm64":  {"darwin-arm64", "darwin_arm64", "darwin-aarch64", "darwin_aarch64", "arm64-darwin", "aarch64-darwin", "arm64_darwin", "aarch64_darwin"},
}

var ignoredAssets = []string{
	"license", "readme", "changelog", "checksums", "sha256checksum", ".sha256", ".sig", ".sbom",
}

type asset struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"browser_download_url"`
}

type release struct {
	TagName string  `json:"tag_name"`
	Assets  []asset `json:"assets"`
}

func (r *Resolver) latestRelease(ctx context.Context, owner, repo string) (release, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/%s/releases/latest", r.apiBase, owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return release{}, fmt.Errorf("%w: creating API request: %v", utils.ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := r.client.Do(req)
	if err != nil {
		return release{}, fmt.Errorf("%w: GitHub API request: %v", utils.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return release{}, fmt.Errorf("%w: GitHub API returned status %d for %s/%s", utils.ErrNetwork, resp.StatusCode, owner, repo)
	}
	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return release{}, fmt.Errorf("%w: decoding GitHub API response: %v", utils.ErrNetwork, err)
	}
	if len(rel.Assets) == 0 {
		return release{}, fmt.Errorf("%w: no assets found in release %s of %s/%s", utils.ErrInvalidInput, rel.TagName, owner, repo)
	}
	return rel, nil
}

// selectAsset picks the first asset built for platform (GOOS followed by
// GOARCH), skipping checksums and docs.
func selectAsset(assets []asset, platform string) (asset, bool) {
	for _, a := range assets {
		name := strings.ToLower(a.Name)
		ignored := false
		for _, skip := range ignoredAssets {
			if strings.Contains(name, skip) {
				ignored = true
				break
			}
		}
		if ignored {
			continue
		}
		for _, key := range assetSelectMap[platform] {
			if strings.Contains(name, key) {
				return a, true
			}
		}
	}
	return asset{}, false
}

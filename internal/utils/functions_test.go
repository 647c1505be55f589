package utils

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampSegments(t *testing.T) {
	tests := []struct{ in, want int }{
		{-3, DefaultSegments},
		{0, DefaultSegments},
		{1, 1},
		{2, 2},
		{16, 16},
		{17, MaxSegments},
		{100, MaxSegments},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampSegments(tt.in), "ClampSegments(%d)", tt.in)
	}
}

func TestClampWorkers(t *testing.T) {
	assert.Equal(t, 1, ClampWorkers(0))
	assert.Equal(t, 1, ClampWorkers(-5))
	assert.Equal(t, 7, ClampWorkers(7))
	assert.Equal(t, MaxWorkers, ClampWorkers(50))
}

func TestSegmentsPerLink(t *testing.T) {
	assert.Equal(t, 4, SegmentsPerLink(4, 5))
	assert.Equal(t, 4, SegmentsPerLink(16, 16))
	assert.Equal(t, 3, SegmentsPerLink(16, 20))
}

func TestTempPartPath(t *testing.T) {
	assert.Equal(t, ".parcel-temp/file.iso.part0", TempPartPath("file.iso", 0))
	assert.Equal(t, "dl/x/.parcel-temp/a.bin.part12", TempPartPath("dl/x/a.bin", 12))
}

func TestParseHeaderArgs(t *testing.T) {
	headers := ParseHeaderArgs([]string{"Authorization: Basic abc", "X-Trace:1", "broken", "Cookie: a=b: c"})
	assert.Equal(t, map[string]string{
		"Authorization": "Basic abc",
		"X-Trace":       "1",
		"Cookie":        "a=b: c",
	}, headers)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.50 KB", FormatBytes(1536))
	assert.Equal(t, "50.00 MB", FormatBytes(52428800))
	assert.Equal(t, "0 B/s", FormatSpeed(0))
	assert.Equal(t, "2.00 MB/s", FormatSpeed(2*1024*1024))
	assert.Equal(t, "45s", FormatETA(45))
	assert.Equal(t, "3m 12s", FormatETA(192))
	assert.Equal(t, "1h 4m", FormatETA(3840))
	assert.Equal(t, "calculating...", FormatETA(-1))
}

func TestErrorTaxonomy(t *testing.T) {
	assert.True(t, errors.Is(ErrUnsupportedOperation, ErrNetwork))
	assert.True(t, errors.Is(ErrAlreadyExists, ErrIO))
	assert.False(t, errors.Is(ErrAlreadyExists, ErrNetwork))
}

func TestClientHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer server.Close()

	client := NewClient(HTTPClientConfig{
		Headers:     map[string]string{"X-Custom": "yes"},
		BearerToken: "secret-token",
	})
	defer client.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, ToolUserAgent, got.Get("User-Agent"))
	assert.Equal(t, "yes", got.Get("X-Custom"))
	assert.Equal(t, "Bearer secret-token", got.Get("Authorization"))
	assert.Equal(t, DefaultProbeTimeout, client.ProbeTimeout())
}

func TestClientUserAgentOverride(t *testing.T) {
	var ua string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.UserAgent()
	}))
	defer server.Close()

	client := NewClient(HTTPClientConfig{UserAgent: "custom/2.0"})
	defer client.Close()
	req, _ := http.NewRequest(http.MethodHead, server.URL, nil)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "custom/2.0", ua)
}

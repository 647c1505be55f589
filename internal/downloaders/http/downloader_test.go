package parcelhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/parcel/internal/metrics"
	"github.com/tanq16/parcel/internal/progress"
	"github.com/tanq16/parcel/internal/storage"
	"github.com/tanq16/parcel/internal/utils"
)

// fileServer serves one in-memory resource and counts what it was asked for.
type fileServer struct {
	data         []byte
	noRanges     bool // never advertise or honour ranges
	ignoreRanges bool // advertise ranges, answer every GET with the full body
	disposition  string
	failRange    func(rangeHeader string) bool
	failFull     bool
	// cutRange returns how many bytes of a range to send before the
	// connection is dropped; 0 serves the range normally.
	cutRange func(rangeHeader string) int

	heads     atomic.Int32
	gets      atomic.Int32
	rangeGets atomic.Int32
	mu        sync.Mutex
	ranges    []string
}

func (fs *fileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		fs.heads.Add(1)
	} else {
		fs.gets.Add(1)
	}
	if fs.disposition != "" {
		w.Header().Set("Content-Disposition", fs.disposition)
	}
	rangeHeader := r.Header.Get("Range")
	if rangeHeader != "" && r.Method == http.MethodGet {
		fs.rangeGets.Add(1)
		fs.mu.Lock()
		fs.ranges = append(fs.ranges, rangeHeader)
		fs.mu.Unlock()
		if fs.failRange != nil && fs.failRange(rangeHeader) {
			http.Error(w, "segment refused", http.StatusInternalServerError)
			return
		}
		if fs.cutRange != nil {
			if n := fs.cutRange(rangeHeader); n > 0 {
				fs.serveCut(w, rangeHeader, n)
				return
			}
		}
	}
	if rangeHeader == "" && r.Method == http.MethodGet && fs.failFull {
		http.Error(w, "full download refused", http.StatusServiceUnavailable)
		return
	}
	if fs.noRanges || fs.ignoreRanges {
		if fs.ignoreRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(fs.data)))
		w.Header().Set("Content-Type", "application/octet-stream")
		if r.Method == http.MethodHead {
			return
		}
		w.Write(fs.data)
		return
	}
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(fs.data))
}

// serveCut answers a range with valid headers, sends n bytes of the body and
// then closes the connection underneath the client.
func (fs *fileServer) serveCut(w http.ResponseWriter, rangeHeader string, n int) {
	var start, end int
	if _, err := fmt.Sscanf(rangeHeader, "bytes=%d-%d", &start, &end); err != nil {
		http.Error(w, "bad range", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(fs.data)))
	w.Header().Set("Content-Length", strconv.Itoa(end-start+1))
	w.WriteHeader(http.StatusPartialContent)
	w.Write(fs.data[start : start+n])
	w.(http.Flusher).Flush()
	if conn, _, err := w.(http.Hijacker).Hijack(); err == nil {
		conn.Close()
	}
}

func (fs *fileServer) requests() int32 {
	return fs.heads.Load() + fs.gets.Load()
}

func randomData(size int) []byte {
	data := make([]byte, size)
	rand.New(rand.NewSource(int64(size))).Read(data)
	return data
}

func newTestDownloader(t *testing.T, root *storage.Root, cfg Config) (*Downloader, *metrics.Recorder) {
	t.Helper()
	client := utils.NewClient(utils.HTTPClientConfig{})
	t.Cleanup(client.Close)
	recorder := metrics.New()
	return NewDownloader(client, root, cfg, recorder), recorder
}

func readRootFile(t *testing.T, root *storage.Root, name string) []byte {
	t.Helper()
	data, err := util.ReadFile(root.FS(), name)
	require.NoError(t, err)
	return data
}

func assertNoTempUnits(t *testing.T, root *storage.Root, dir string) {
	t.Helper()
	exists, err := root.Exists(filepath.ToSlash(filepath.Join(dir, utils.TempDirName)))
	require.NoError(t, err)
	assert.False(t, exists, "temp directory should be gone")
}

func TestSegmentedDownload(t *testing.T) {
	src := &fileServer{data: randomData(256*1024 + 13)}
	server := httptest.NewServer(src)
	defer server.Close()

	root := storage.NewMemory()
	d, _ := newTestDownloader(t, root, Config{Segments: 4, Threshold: 1024, ChunkSize: 4096})
	res := d.Download(context.Background(), Request{URL: server.URL + "/blob.bin", Output: "out/blob.bin"})

	require.True(t, res.Success, res.Reason)
	assert.Equal(t, ModeSegmented, res.Mode)
	assert.Equal(t, "out/blob.bin", res.Path)
	assert.Equal(t, int64(len(src.data)), res.Bytes)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, int32(4), src.rangeGets.Load())
	assert.Equal(t, src.data, readRootFile(t, root, "out/blob.bin"))
	assertNoTempUnits(t, root, "out")
}

func TestSegmentedMatchesSingleStream(t *testing.T) {
	src := &fileServer{data: randomData(300_001)}
	server := httptest.NewServer(src)
	defer server.Close()

	root := storage.NewMemory()
	segmented, _ := newTestDownloader(t, root, Config{Segments: 7, Threshold: 1})
	single, _ := newTestDownloader(t, root, Config{Segments: 1, Threshold: 1})

	a := segmented.Download(context.Background(), Request{URL: server.URL, Output: "a.bin"})
	b := single.Download(context.Background(), Request{URL: server.URL, Output: "b.bin"})
	require.True(t, a.Success, a.Reason)
	require.True(t, b.Success, b.Reason)
	assert.Equal(t, ModeSegmented, a.Mode)
	assert.Equal(t, ModeSingle, b.Mode)
	assert.Equal(t, readRootFile(t, root, "b.bin"), readRootFile(t, root, "a.bin"))
}

func TestFiftyMegabyteScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("large transfer")
	}
	src := &fileServer{data: randomData(52428800)}
	server := httptest.NewServer(src)
	defer server.Close()

	dir := t.TempDir()
	root, err := storage.NewOS(dir)
	require.NoError(t, err)
	d, _ := newTestDownloader(t, root, Config{Segments: 4})

	res := d.Download(context.Background(), Request{URL: server.URL + "/big.bin", Output: "big.bin"})
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, ModeSegmented, res.Mode)
	assert.ElementsMatch(t, []string{
		"bytes=0-13107199",
		"bytes=13107200-26214399",
		"bytes=26214400-39321599",
		"bytes=39321600-52428799",
	}, src.ranges)

	got, err := os.ReadFile(filepath.Join(dir, "big.bin"))
	require.NoError(t, err)
	assert.Len(t, got, 52428800)
	assert.True(t, bytes.Equal(src.data, got))
	_, err = os.Stat(filepath.Join(dir, utils.TempDirName))
	assert.True(t, os.IsNotExist(err))
}

func TestSmallResourceAlwaysSingleStream(t *testing.T) {
	src := &fileServer{data: randomData(1024)}
	server := httptest.NewServer(src)
	defer server.Close()

	root := storage.NewMemory()
	d, _ := newTestDownloader(t, root, Config{Segments: 8})
	res := d.Download(context.Background(), Request{URL: server.URL + "/tiny.txt"})

	require.True(t, res.Success, res.Reason)
	assert.Equal(t, ModeSingle, res.Mode)
	assert.Equal(t, "tiny.txt", res.Path)
	assert.Zero(t, src.rangeGets.Load())
	assert.Equal(t, src.data, readRootFile(t, root, "tiny.txt"))
}

func TestNoAcceptRangesNeverSegments(t *testing.T) {
	src := &fileServer{data: randomData(64 * 1024), noRanges: true}
	server := httptest.NewServer(src)
	defer server.Close()

	root := storage.NewMemory()
	d, _ := newTestDownloader(t, root, Config{Segments: 16, Threshold: 1})
	res := d.Download(context.Background(), Request{URL: server.URL + "/data.bin", Output: "data.bin"})

	require.True(t, res.Success, res.Reason)
	assert.Equal(t, ModeSingle, res.Mode)
	assert.Zero(t, src.rangeGets.Load())
	assert.Equal(t, src.data, readRootFile(t, root, "data.bin"))
}

func TestExistingDestinationMakesNoRequests(t *testing.T) {
	src := &fileServer{data: randomData(4096)}
	server := httptest.NewServer(src)
	defer server.Close()

	root := storage.NewMemory()
	require.NoError(t, util.WriteFile(root.FS(), "keep.bin", []byte("original"), 0644))
	d, _ := newTestDownloader(t, root, Config{})

	res := d.Download(context.Background(), Request{URL: server.URL + "/keep.bin", Output: "keep.bin"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "already exists")
	assert.True(t, errors.Is(res.Err, utils.ErrAlreadyExists))
	assert.Zero(t, res.Bytes)
	assert.Equal(t, ModeNone, res.Mode)
	assert.Zero(t, src.requests())
	assert.Equal(t, []byte("original"), readRootFile(t, root, "keep.bin"))
}

func TestExistingDerivedDestination(t *testing.T) {
	src := &fileServer{data: randomData(4096), disposition: `attachment; filename="named.bin"`}
	server := httptest.NewServer(src)
	defer server.Close()

	root := storage.NewMemory()
	require.NoError(t, util.WriteFile(root.FS(), "named.bin", []byte("x"), 0644))
	d, _ := newTestDownloader(t, root, Config{})

	res := d.Download(context.Background(), Request{URL: server.URL + "/whatever"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "already exists")
	assert.Equal(t, int32(1), src.heads.Load())
	assert.Zero(t, src.gets.Load())
}

func TestSegmentFailureFallsBack(t *testing.T) {
	src := &fileServer{data: randomData(200_000)}
	src.failRange = func(rangeHeader string) bool {
		return strings.HasPrefix(rangeHeader, "bytes=50000-")
	}
	server := httptest.NewServer(src)
	defer server.Close()

	root := storage.NewMemory()
	d, recorder := newTestDownloader(t, root, Config{Segments: 4, Threshold: 1})
	res := d.Download(context.Background(), Request{URL: server.URL, Output: "dl/fallback.bin"})

	require.True(t, res.Success, res.Reason)
	assert.Equal(t, ModeFallback, res.Mode)
	assert.Equal(t, int64(len(src.data)), res.Bytes, "discarded segment bytes must be rolled back")
	assert.Equal(t, src.data, readRootFile(t, root, "dl/fallback.bin"))
	assertNoTempUnits(t, root, "dl")

	expected := `
# HELP parcel_fallbacks_total Segmented downloads retried as a single stream.
# TYPE parcel_fallbacks_total counter
parcel_fallbacks_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(expected), "parcel_fallbacks_total"))
}

func TestSegmentCutMidBodyFallsBack(t *testing.T) {
	src := &fileServer{data: randomData(100_000)}
	src.cutRange = func(rangeHeader string) int {
		if strings.HasPrefix(rangeHeader, "bytes=25000-") {
			return 10_000
		}
		return 0
	}
	server := httptest.NewServer(src)
	defer server.Close()

	root := storage.NewMemory()
	d, _ := newTestDownloader(t, root, Config{Segments: 4, Threshold: 1})
	res := d.Download(context.Background(), Request{URL: server.URL, Output: "dl/cut.bin"})

	require.True(t, res.Success, res.Reason)
	assert.Equal(t, ModeFallback, res.Mode)
	assert.Equal(t, int64(len(src.data)), res.Bytes, "partial segment bytes must be rolled back")
	assert.Equal(t, src.data, readRootFile(t, root, "dl/cut.bin"))
	assertNoTempUnits(t, root, "dl")
}

func TestSameDestinationIsNeverShared(t *testing.T) {
	first := &fileServer{data: bytes.Repeat([]byte("A"), 1<<20)}
	second := &fileServer{data: bytes.Repeat([]byte("B"), 1<<20)}
	servers := []*httptest.Server{httptest.NewServer(first), httptest.NewServer(second)}
	defer servers[0].Close()
	defer servers[1].Close()
	sources := []*fileServer{first, second}

	root, err := storage.NewOS(t.TempDir())
	require.NoError(t, err)
	d, _ := newTestDownloader(t, root, Config{Segments: 4, Threshold: 1})

	start := make(chan struct{})
	results := make([]Result, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = d.Download(context.Background(), Request{URL: servers[i].URL + "/tool.bin", Output: "tool.bin"})
		}(i)
	}
	close(start)
	wg.Wait()

	winner := -1
	for i, res := range results {
		if res.Success {
			require.Equal(t, -1, winner, "only one download may own tool.bin")
			winner = i
			continue
		}
		assert.True(t, errors.Is(res.Err, utils.ErrAlreadyExists), res.Reason)
	}
	require.NotEqual(t, -1, winner, "one download must succeed")
	assert.Equal(t, sources[winner].data, readRootFile(t, root, "tool.bin"))
	assertNoTempUnits(t, root, "")
}

func TestReservationReleasedAfterFailure(t *testing.T) {
	broken := &fileServer{data: randomData(4096), failFull: true, noRanges: true}
	brokenServer := httptest.NewServer(broken)
	defer brokenServer.Close()
	healthy := &fileServer{data: randomData(4096)}
	healthyServer := httptest.NewServer(healthy)
	defer healthyServer.Close()

	root := storage.NewMemory()
	d, _ := newTestDownloader(t, root, Config{})
	res := d.Download(context.Background(), Request{URL: brokenServer.URL, Output: "retry.bin"})
	require.False(t, res.Success)

	res = d.Download(context.Background(), Request{URL: healthyServer.URL, Output: "retry.bin"})
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, healthy.data, readRootFile(t, root, "retry.bin"))
}

func TestIgnoredRangeFallsBack(t *testing.T) {
	src := &fileServer{data: randomData(100_000), ignoreRanges: true}
	server := httptest.NewServer(src)
	defer server.Close()

	root := storage.NewMemory()
	d, _ := newTestDownloader(t, root, Config{Segments: 3, Threshold: 1})
	res := d.Download(context.Background(), Request{URL: server.URL, Output: "full.bin"})

	require.True(t, res.Success, res.Reason)
	assert.Equal(t, ModeFallback, res.Mode)
	assert.Equal(t, src.data, readRootFile(t, root, "full.bin"))
	assertNoTempUnits(t, root, "")
}

func TestFallbackFailureIsTerminal(t *testing.T) {
	src := &fileServer{data: randomData(100_000), failFull: true}
	src.failRange = func(rangeHeader string) bool { return strings.HasPrefix(rangeHeader, "bytes=0-") }
	server := httptest.NewServer(src)
	defer server.Close()

	root := storage.NewMemory()
	d, _ := newTestDownloader(t, root, Config{Segments: 2, Threshold: 1})
	res := d.Download(context.Background(), Request{URL: server.URL, Output: "broken.bin"})

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Reason)
	assert.Equal(t, ModeFallback, res.Mode)
	assert.True(t, errors.Is(res.Err, utils.ErrNetwork))
	exists, err := root.Exists("broken.bin")
	require.NoError(t, err)
	assert.False(t, exists, "no partial destination may remain")
	assertNoTempUnits(t, root, "")
	assert.Equal(t, int32(1), src.heads.Load())
	assert.Equal(t, int32(1), src.gets.Load()-src.rangeGets.Load(), "exactly one single-stream attempt")
}

func TestSingleStreamFailureRemovesPartialFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		if r.Method == http.MethodHead {
			return
		}
		w.Write(make([]byte, 100))
	}))
	defer server.Close()

	root := storage.NewMemory()
	d, _ := newTestDownloader(t, root, Config{})
	res := d.Download(context.Background(), Request{URL: server.URL, Output: "short.bin"})

	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, utils.ErrNetwork))
	exists, err := root.Exists("short.bin")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInvalidInputMakesNoRequests(t *testing.T) {
	src := &fileServer{data: randomData(10)}
	server := httptest.NewServer(src)
	defer server.Close()

	root := storage.NewMemory()
	d, _ := newTestDownloader(t, root, Config{})

	tests := []struct {
		name   string
		url    string
		output string
	}{
		{"bad scheme", "ftp://example.com/file", "x.bin"},
		{"empty url", "   ", "x.bin"},
		{"escaping path", server.URL, "../escape.bin"},
		{"absolute path", server.URL, "/etc/escape.bin"},
		{"reserved name", server.URL, "dir/CON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Download(context.Background(), Request{URL: tt.url, Output: tt.output})
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Reason)
			assert.True(t, errors.Is(res.Err, utils.ErrInvalidInput), res.Reason)
		})
	}
	assert.Zero(t, src.requests())
}

func TestDerivedFilenames(t *testing.T) {
	src := &fileServer{data: randomData(512), disposition: `attachment; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`}
	server := httptest.NewServer(src)
	defer server.Close()

	root := storage.NewMemory()
	d, _ := newTestDownloader(t, root, Config{})

	res := d.Download(context.Background(), Request{URL: server.URL + "/ignored", Output: "docs/"})
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, "docs/résumé.pdf", res.Path)

	plain := &fileServer{data: randomData(512)}
	plainServer := httptest.NewServer(plain)
	defer plainServer.Close()
	res = d.Download(context.Background(), Request{URL: plainServer.URL + "/latest"})
	require.True(t, res.Success, res.Reason)
	assert.True(t, strings.HasPrefix(res.Path, "download_"), res.Path)
	assert.True(t, strings.HasSuffix(res.Path, ".file"), res.Path)
}

func TestProgressSinkReceivesFinalSnapshot(t *testing.T) {
	src := &fileServer{data: randomData(128 * 1024)}
	server := httptest.NewServer(src)
	defer server.Close()

	var mu sync.Mutex
	var last progress.Snapshot
	sink := progress.SinkFunc(func(s progress.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		last = s
	})

	root := storage.NewMemory()
	d, _ := newTestDownloader(t, root, Config{Segments: 4, Threshold: 1, ProgressInterval: time.Millisecond})
	res := d.Download(context.Background(), Request{URL: server.URL, Output: "p.bin", Sink: sink})
	require.True(t, res.Success, res.Reason)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(len(src.data)), last.Downloaded)
	assert.Equal(t, int64(len(src.data)), last.Total)
	assert.Equal(t, 100.0, last.Percent)
}

func TestConcurrentDownloadsShareDownloader(t *testing.T) {
	src := &fileServer{data: randomData(90_000)}
	server := httptest.NewServer(src)
	defer server.Close()

	root := storage.NewMemory()
	d, _ := newTestDownloader(t, root, Config{Segments: 3, Threshold: 1})

	var wg sync.WaitGroup
	results := make([]Result, 6)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.Download(context.Background(), Request{URL: server.URL, Output: "many/f" + strconv.Itoa(i) + ".bin"})
		}(i)
	}
	wg.Wait()
	for i, res := range results {
		require.True(t, res.Success, res.Reason)
		assert.Equal(t, src.data, readRootFile(t, root, "many/f"+strconv.Itoa(i)+".bin"))
	}
	assertNoTempUnits(t, root, "many")
}

func TestCheckContentRange(t *testing.T) {
	want := ByteRange{Start: 10, End: 19}
	assert.NoError(t, checkContentRange("bytes 10-19/100", want))
	assert.NoError(t, checkContentRange("bytes 10-19/*", want))
	for _, header := range []string{"", "items 10-19/100", "bytes 0-19/100", "bytes x-y/100"} {
		err := checkContentRange(header, want)
		require.Error(t, err, header)
		assert.True(t, errors.Is(err, utils.ErrUnsupportedOperation))
		assert.True(t, errors.Is(err, utils.ErrNetwork))
	}
}

func TestKnownInfoSkipsProbe(t *testing.T) {
	src := &fileServer{data: randomData(64 * 1024)}
	server := httptest.NewServer(src)
	defer server.Close()

	root := storage.NewMemory()
	d, _ := newTestDownloader(t, root, Config{Segments: 2, Threshold: 1024})
	res := d.Download(context.Background(), Request{
		URL:    server.URL + "/object",
		Output: "known/",
		Info:   &RemoteFileInfo{Size: int64(len(src.data)), Filename: "object.dat", AcceptRanges: true},
	})

	require.True(t, res.Success, res.Reason)
	assert.Equal(t, ModeSegmented, res.Mode)
	assert.Equal(t, "known/object.dat", res.Path)
	assert.Equal(t, int32(0), src.heads.Load())
	assert.Equal(t, src.data, readRootFile(t, root, "known/object.dat"))
}

package parcelhttp

import (
	"time"

	"github.com/tanq16/parcel/internal/progress"
)

type Mode string

const (
	ModeNone      Mode = "none"
	ModeSingle    Mode = "single"
	ModeSegmented Mode = "segmented"
	ModeFallback  Mode = "segmented->single"
)

// RemoteFileInfo is what a probe learned about a resource. Size is -1 when unknown.
type RemoteFileInfo struct {
	URL          string
	Size         int64
	Filename     string
	ContentType  string
	AcceptRanges bool
}

type SegmentTask struct {
	Index      int
	Range      ByteRange
	TempPath   string
	Downloaded int64 // written only by the fetcher that owns the task
	Completed  bool
	Err        error
}

// Session is the state of one Download call. Tasks is empty for single-stream transfers.
type Session struct {
	ID        string
	URL       string
	Path      string
	Size      int64
	Tasks     []*SegmentTask
	StartTime time.Time
	progress  *progress.Aggregator
}

// Request names what to fetch and where. An empty Output, or one ending in a
// slash, lets the name come from the server or the URL. Info skips the probe
// when the caller already knows the resource, as with presigned object URLs
// that only accept GET.
type Request struct {
	URL    string
	Output string
	Sink   progress.Sink
	Info   *RemoteFileInfo
}

// Result is the terminal outcome of one download. Reason is set whenever Success is false.
type Result struct {
	ID       string
	URL      string
	Path     string
	Success  bool
	Reason   string
	Mode     Mode
	Bytes    int64
	Err      error
	Duration time.Duration
}

package parcelhttp

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/parcel/internal/metrics"
	"github.com/tanq16/parcel/internal/progress"
	"github.com/tanq16/parcel/internal/storage"
	"github.com/tanq16/parcel/internal/utils"
	"github.com/tanq16/parcel/internal/validate"
)

const defaultProgressInterval = 100 * time.Millisecond

type Config struct {
	Segments         int   // requested connections per file; see utils.ClampSegments
	Threshold        int64 // minimum size for segmentation
	ChunkSize        int
	ProgressInterval time.Duration
}

// Downloader is the coordinator of single and segmented transfers. It is safe
// for concurrent use; every Download call owns its own Session and holds its
// destination until it returns.
type Downloader struct {
	client  *utils.Client
	root    *storage.Root
	config  Config
	metrics *metrics.Recorder

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewDownloader(client *utils.Client, root *storage.Root, cfg Config, recorder *metrics.Recorder) *Downloader {
	cfg.Segments = utils.ClampSegments(cfg.Segments)
	if cfg.Threshold <= 0 {
		cfg.Threshold = utils.DefaultThreshold
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = utils.DefaultChunkSize
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}
	return &Downloader{
		client:  client,
		root:    root,
		config:   cfg,
		metrics:  recorder,
		inFlight: make(map[string]struct{}),
	}
}

// Download never returns an error directly; failures are described by the Result.
func (d *Downloader) Download(ctx context.Context, req Request) Result {
	s := &Session{
		ID:        uuid.NewString(),
		URL:       strings.TrimSpace(req.URL),
		Size:      -1,
		StartTime: time.Now(),
	}
	d.metrics.Started()
	mode, err := d.run(ctx, s, req)

	result := Result{
		ID:       s.ID,
		URL:      s.URL,
		Path:     s.Path,
		Mode:     mode,
		Success:  err == nil,
		Duration: time.Since(s.StartTime),
	}
	if s.progress != nil {
		result.Bytes = s.progress.Downloaded()
	}
	if err != nil {
		result.Err = err
		result.Reason = err.Error()
		log.Error().Str("op", "http/downloader").Str("session", s.ID).Str("url", s.URL).Err(err).Msg("Download failed")
	} else {
		log.Info().Str("op", "http/downloader").Str("session", s.ID).Str("mode", string(mode)).Int64("bytes", result.Bytes).Msgf("Downloaded %s", s.Path)
	}
	d.metrics.Finished(string(mode), result.Success, result.Bytes, result.Duration)
	return result
}

func (d *Downloader) run(ctx context.Context, s *Session, req Request) (Mode, error) {
	if !validate.IsValidURL(s.URL) {
		return ModeNone, fmt.Errorf("%w: malformed URL %q", utils.ErrInvalidInput, s.URL)
	}
	dir, name, err := splitOutput(req.Output)
	if err != nil {
		return ModeNone, err
	}
	if name != "" {
		s.Path = path.Join(dir, name)
		if err := d.preflight(s.Path); err != nil {
			return ModeNone, err
		}
		defer d.release(s.Path)
	}

	var info RemoteFileInfo
	if req.Info != nil {
		info = *req.Info
		if info.URL == "" {
			info.URL = s.URL
		}
	} else if info, err = Probe(ctx, d.client, s.URL); err != nil {
		return ModeNone, err
	}
	s.Size = info.Size

	if name == "" {
		suggested := info.Filename
		if suggested == "" {
			suggested = deriveFilename(info.URL, time.Now())
		}
		if name, err = validate.SanitizeFilename(suggested); err != nil {
			return ModeNone, err
		}
		s.Path = path.Join(dir, name)
		if err := d.preflight(s.Path); err != nil {
			return ModeNone, err
		}
		defer d.release(s.Path)
	}
	if s.Size > 0 {
		if free, ok := d.root.Available(); ok && uint64(s.Size) > free {
			return ModeNone, fmt.Errorf("%w: insufficient disk space: need %s, have %s", utils.ErrIO, utils.FormatBytes(uint64(s.Size)), utils.FormatBytes(free))
		}
	}

	segments := d.segmentCount(info)
	s.progress = progress.NewAggregator(s.Size, segments)
	s.progress.Start(d.config.ProgressInterval, req.Sink)
	defer s.progress.Stop()

	if segments < 2 {
		log.Debug().Str("op", "http/downloader").Str("session", s.ID).Int64("size", s.Size).Bool("ranges", info.AcceptRanges).Msg("Using single-stream download")
		return ModeSingle, d.fetchSingle(ctx, s, info.URL, s.progress)
	}

	log.Debug().Str("op", "http/downloader").Str("session", s.ID).Int("segments", segments).Int64("size", s.Size).Msg("Using segmented download")
	segErr := d.downloadSegmented(ctx, s, info.URL, segments)
	if segErr == nil {
		return ModeSegmented, nil
	}
	if !errors.Is(segErr, utils.ErrNetwork) || ctx.Err() != nil {
		return ModeSegmented, segErr
	}

	d.metrics.Fallback()
	log.Warn().Str("op", "http/downloader").Str("session", s.ID).Err(segErr).Msg("Segmented download failed, retrying as single stream")
	s.Tasks = nil
	if err := d.fetchSingle(ctx, s, info.URL, s.progress); err != nil {
		return ModeFallback, fmt.Errorf("single-stream fallback failed (%v): %w", segErr, err)
	}
	return ModeFallback, nil
}

func (d *Downloader) segmentCount(info RemoteFileInfo) int {
	n := d.config.Segments
	if n < 2 || !info.AcceptRanges || info.Size < 0 || info.Size < d.config.Threshold || info.Size < int64(n) {
		return 1
	}
	return n
}

// preflight reserves dest for the calling session, refuses to overwrite and
// makes sure the destination directory exists. On success the caller must
// release dest once the download is over.
func (d *Downloader) preflight(dest string) error {
	if !d.reserve(dest) {
		return fmt.Errorf("%w: download already in progress: %s", utils.ErrAlreadyExists, dest)
	}
	exists, err := d.root.Exists(dest)
	if err == nil && exists {
		err = fmt.Errorf("%w: %s", utils.ErrAlreadyExists, dest)
	}
	if err == nil {
		err = d.root.MkdirAll(path.Dir(dest))
	}
	if err != nil {
		d.release(dest)
		return err
	}
	return nil
}

// reserve claims dest and its temp units; two sessions never share them.
func (d *Downloader) reserve(dest string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[dest]; busy {
		return false
	}
	d.inFlight[dest] = struct{}{}
	return true
}

func (d *Downloader) release(dest string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, dest)
}

// splitOutput validates the requested destination. name is empty when the
// file name has to come from the probe.
func splitOutput(output string) (dir, name string, err error) {
	output = strings.TrimSpace(output)
	if output == "" || output == "." || output == "./" {
		return "", "", nil
	}
	if strings.HasSuffix(output, "/") || strings.HasSuffix(output, `\`) {
		dir, err = validate.SanitizePath(output)
		return dir, "", err
	}
	dest, err := validate.Destination(output)
	if err != nil {
		return "", "", err
	}
	dir = path.Dir(dest)
	if dir == "." {
		dir = ""
	}
	return dir, path.Base(dest), nil
}

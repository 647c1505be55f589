package parcelhttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tanq16/parcel/internal/progress"
	"github.com/tanq16/parcel/internal/utils"
)

// fetchSegment streams one range into its temp unit. A partial unit is left
// behind on failure; the coordinator owns cleanup.
func (d *Downloader) fetchSegment(ctx context.Context, link string, task *SegmentTask, reporter progress.Reporter) error {
	log := utils.GetLogger("segment").With().Int("segment", task.Index).Logger()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fmt.Errorf("%w: creating GET request: %v", utils.ErrNetwork, err)
	}
	req.Header.Set("Range", task.Range.String())
	req.Header.Set("Connection", "keep-alive")
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("%w: %s answered with status %d", utils.ErrUnsupportedOperation, task.Range, resp.StatusCode)
	}
	if err := checkContentRange(resp.Header.Get("Content-Range"), task.Range); err != nil {
		return err
	}

	tempFile, err := d.root.CreateTemp(task.TempPath)
	if err != nil {
		return err
	}
	defer tempFile.Close()

	buffer := make([]byte, d.config.ChunkSize)
	for {
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			if _, err := tempFile.Write(buffer[:bytesRead]); err != nil {
				return fmt.Errorf("%w: writing %s: %w", utils.ErrIO, task.TempPath, err)
			}
			task.Downloaded += int64(bytesRead)
			reporter.Report(task.Index, int64(bytesRead))
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fmt.Errorf("%w: reading segment body: %v", utils.ErrNetwork, readErr)
		}
	}
	if task.Downloaded != task.Range.Length() {
		return fmt.Errorf("%w: size mismatch: expected %d bytes, got %d", utils.ErrNetwork, task.Range.Length(), task.Downloaded)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", utils.ErrIO, task.TempPath, err)
	}
	log.Debug().Int64("bytes", task.Downloaded).Str("path", task.TempPath).Msg("Segment complete")
	return nil
}

// checkContentRange requires "bytes <start>-<end>/<total>" matching the requested range.
func checkContentRange(header string, want ByteRange) error {
	if header == "" {
		return fmt.Errorf("%w: missing Content-Range header", utils.ErrUnsupportedOperation)
	}
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return fmt.Errorf("%w: unexpected Content-Range %q", utils.ErrUnsupportedOperation, header)
	}
	span, _, _ := strings.Cut(spec, "/")
	var start, end int64
	if _, err := fmt.Sscanf(span, "%d-%d", &start, &end); err != nil {
		return fmt.Errorf("%w: unparseable Content-Range %q", utils.ErrUnsupportedOperation, header)
	}
	if start != want.Start || end != want.End {
		return fmt.Errorf("%w: server sent %d-%d for %s", utils.ErrUnsupportedOperation, start, end, want)
	}
	return nil
}

package parcelhttp

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/parcel/internal/progress"
	"github.com/tanq16/parcel/internal/utils"
)

// fetchSingle writes the whole body straight to the final destination. The
// destination is created exclusively and removed again if the transfer fails.
func (d *Downloader) fetchSingle(ctx context.Context, s *Session, link string, reporter progress.Reporter) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fmt.Errorf("%w: creating GET request: %v", utils.ErrNetwork, err)
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status code: %d", utils.ErrNetwork, resp.StatusCode)
	}

	outFile, err := d.root.CreateExclusive(s.Path)
	if err != nil {
		return err
	}
	written, err := copyBody(outFile, resp.Body, d.config.ChunkSize, reporter)
	if err == nil && s.Size >= 0 && written != s.Size {
		err = fmt.Errorf("%w: size mismatch: expected %d bytes, got %d", utils.ErrNetwork, s.Size, written)
	}
	if closeErr := outFile.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: closing %s: %w", utils.ErrIO, s.Path, closeErr)
	}
	if err != nil {
		if rmErr := d.root.RemoveIfExists(s.Path); rmErr != nil {
			log.Error().Str("op", "http/simple-downloader").Err(rmErr).Str("session", s.ID).Msg("Failed to remove partial destination")
		}
		return err
	}
	log.Debug().Str("op", "http/simple-downloader").Str("session", s.ID).Int64("bytes", written).Msgf("Single-stream download complete for %s", s.Path)
	return nil
}

func copyBody(dst io.Writer, body io.Reader, chunkSize int, reporter progress.Reporter) (int64, error) {
	buffer := make([]byte, chunkSize)
	var written int64
	for {
		bytesRead, readErr := body.Read(buffer)
		if bytesRead > 0 {
			if _, err := dst.Write(buffer[:bytesRead]); err != nil {
				return written, fmt.Errorf("%w: writing output file: %w", utils.ErrIO, err)
			}
			written += int64(bytesRead)
			reporter.Report(0, int64(bytesRead))
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, fmt.Errorf("%w: reading response body: %v", utils.ErrNetwork, readErr)
		}
	}
}

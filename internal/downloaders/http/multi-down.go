package parcelhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/parcel/internal/utils"
	"golang.org/x/sync/errgroup"
)

// downloadSegmented runs one fetcher per range and reassembles on full success.
// On any segment failure every temp unit is removed and the error returned.
func (d *Downloader) downloadSegmented(ctx context.Context, s *Session, link string, segments int) error {
	ranges, err := Plan(s.Size, segments)
	if err != nil {
		return err
	}
	s.Tasks = make([]*SegmentTask, len(ranges))
	for i, r := range ranges {
		s.Tasks[i] = &SegmentTask{
			Index:    i,
			Range:    r,
			TempPath: utils.TempPartPath(s.Path, i),
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(s.Tasks))
	for _, task := range s.Tasks {
		g.Go(func() error {
			if err := d.fetchSegment(gctx, link, task, s.progress); err != nil {
				task.Err = err
				d.metrics.SegmentFailed()
				log.Debug().Str("op", "http/multi-down").Str("session", s.ID).Int("segment", task.Index).Err(err).Msg("Segment failed")
				return fmt.Errorf("segment %d: %w", task.Index, err)
			}
			task.Completed = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if cleanupErr := d.discardSegments(s); cleanupErr != nil {
			log.Error().Str("op", "http/multi-down").Str("session", s.ID).Err(err).Msg("Segment failure followed by failed cleanup")
			return cleanupErr
		}
		return err
	}
	return d.assembleFile(s)
}

// discardSegments removes every temp unit of the session and rolls the
// aggregator back by the bytes those units held.
func (d *Downloader) discardSegments(s *Session) error {
	var errs []error
	for _, task := range s.Tasks {
		if err := d.root.RemoveIfExists(task.TempPath); err != nil {
			errs = append(errs, err)
			continue
		}
		if task.Downloaded > 0 {
			s.progress.Report(task.Index, -task.Downloaded)
			task.Downloaded = 0
		}
		task.Completed = false
	}
	if err := d.root.PruneTempDir(s.Path); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// assembleFile concatenates temp units in index order into the final
// destination, deleting each unit once it has been copied.
func (d *Downloader) assembleFile(s *Session) error {
	sort.Slice(s.Tasks, func(i, j int) bool {
		return s.Tasks[i].Index < s.Tasks[j].Index
	})
	destFile, err := d.root.CreateExclusive(s.Path)
	if err != nil {
		if cleanupErr := d.discardSegments(s); cleanupErr != nil {
			return errors.Join(err, cleanupErr)
		}
		return err
	}

	fail := func(cause error) error {
		destFile.Close()
		errs := []error{fmt.Errorf("%w: reassembling %s: %w", utils.ErrIO, s.Path, cause)}
		if err := d.root.RemoveIfExists(s.Path); err != nil {
			errs = append(errs, err)
		}
		if err := d.discardSegments(s); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	buffer := make([]byte, d.config.ChunkSize)
	for _, task := range s.Tasks {
		copied, err := d.copyUnit(destFile, task.TempPath, buffer)
		if err != nil {
			return fail(err)
		}
		if copied != task.Range.Length() {
			return fail(fmt.Errorf("segment %d holds %d bytes, expected %d", task.Index, copied, task.Range.Length()))
		}
		if err := d.root.RemoveIfExists(task.TempPath); err != nil {
			return fail(err)
		}
	}
	if err := destFile.Close(); err != nil {
		return fail(err)
	}
	if err := d.root.PruneTempDir(s.Path); err != nil {
		log.Warn().Str("op", "http/multi-down").Str("session", s.ID).Err(err).Msg("Could not remove temp directory")
	}
	log.Debug().Str("op", "http/multi-down").Str("session", s.ID).Int("segments", len(s.Tasks)).Msgf("Reassembled %s", s.Path)
	return nil
}

func (d *Downloader) copyUnit(dst io.Writer, name string, buffer []byte) (int64, error) {
	src, err := d.root.Open(name)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return io.CopyBuffer(dst, src, buffer)
}

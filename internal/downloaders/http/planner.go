package parcelhttp

import (
	"fmt"

	"github.com/tanq16/parcel/internal/utils"
)

// ByteRange is inclusive on both ends.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

func (r ByteRange) String() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// Plan splits totalSize bytes into segmentCount contiguous ranges. The last
// range absorbs the remainder of the integer division.
func Plan(totalSize int64, segmentCount int) ([]ByteRange, error) {
	if segmentCount < 2 {
		return nil, fmt.Errorf("%w: segment count %d is below 2", utils.ErrInvalidInput, segmentCount)
	}
	if totalSize <= 0 {
		return nil, fmt.Errorf("%w: cannot segment a resource of %d bytes", utils.ErrInvalidInput, totalSize)
	}
	base := totalSize / int64(segmentCount)
	if base == 0 {
		return nil, fmt.Errorf("%w: %d bytes cannot fill %d segments", utils.ErrInvalidInput, totalSize, segmentCount)
	}
	ranges := make([]ByteRange, segmentCount)
	for i := range segmentCount {
		start := int64(i) * base
		end := start + base - 1
		if i == segmentCount-1 {
			end = totalSize - 1
		}
		ranges[i] = ByteRange{Start: start, End: end}
	}
	return ranges, nil
}

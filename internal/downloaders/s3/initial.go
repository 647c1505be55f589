package s3

import (
	"fmt"
	"strings"

	"github.com/tanq16/parcel/internal/utils"
)

// Location is a parsed s3://bucket/key reference. A key ending in a slash, or
// an empty key, names a prefix rather than one object.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) IsPrefix() bool {
	return l.Key == "" || strings.HasSuffix(l.Key, "/")
}

func (l Location) String() string {
	return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Key)
}

func ParseURL(raw string) (Location, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 1 || parts[0] == "" {
		return Location{}, fmt.Errorf("%w: invalid S3 URL format %q", utils.ErrInvalidInput, raw)
	}
	loc := Location{Bucket: parts[0]}
	if len(parts) > 1 {
		loc.Key = parts[1]
	}
	return loc, nil
}

// objectOutput places an object below output. Objects listed under a prefix
// keep their path relative to that prefix.
func objectOutput(output, prefix, key string) string {
	rel := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
	if output == "" {
		return rel
	}
	return strings.TrimSuffix(output, "/") + "/" + rel
}

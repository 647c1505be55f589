package s3

import (
	"context"
	"fmt"
	"path"

	"github.com/rs/zerolog/log"
	parcelhttp "github.com/tanq16/parcel/internal/downloaders/http"
	"github.com/tanq16/parcel/internal/utils"
)

// Requests resolves an S3 location into one download request per object.
// A single object keeps its key's base name unless output names the file.
// Presigned URLs are GET only, so each request carries the object metadata
// in place of a probe.
func (c *Client) Requests(ctx context.Context, loc Location, output string) ([]parcelhttp.Request, error) {
	if !loc.IsPrefix() {
		obj, err := c.headObject(ctx, loc.Bucket, loc.Key)
		if err != nil {
			return nil, err
		}
		if output == "" || output[len(output)-1] == '/' {
			output += path.Base(loc.Key)
		}
		req, err := c.request(ctx, loc.Bucket, obj, output)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("op", "s3/download").Int64("size", obj.Size).Msgf("Presigned %s", loc)
		return []parcelhttp.Request{req}, nil
	}

	objects, err := c.listObjects(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: no objects found in %s", utils.ErrInvalidInput, loc)
	}
	var totalSize int64
	requests := make([]parcelhttp.Request, 0, len(objects))
	for _, obj := range objects {
		req, err := c.request(ctx, loc.Bucket, obj, objectOutput(output, loc.Key, obj.Key))
		if err != nil {
			return nil, err
		}
		totalSize += obj.Size
		requests = append(requests, req)
	}
	log.Debug().Str("op", "s3/download").Int("objects", len(objects)).Int64("bytes", totalSize).Msgf("Resolved prefix %s", loc)
	return requests, nil
}

func (c *Client) request(ctx context.Context, bucket string, obj object, output string) (parcelhttp.Request, error) {
	link, err := c.presignGet(ctx, bucket, obj.Key)
	if err != nil {
		return parcelhttp.Request{}, err
	}
	return parcelhttp.Request{
		URL:    link,
		Output: output,
		Info: &parcelhttp.RemoteFileInfo{
			URL:          link,
			Size:         obj.Size,
			Filename:     path.Base(obj.Key),
			AcceptRanges: true,
		},
	}, nil
}

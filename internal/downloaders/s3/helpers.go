package s3

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tanq16/parcel/internal/utils"
)

const DefaultPresignExpiry = 1 * time.Hour

type Options struct {
	Profile   string
	Region    string
	Endpoint  string // custom endpoint for S3 compatible stores
	PathStyle bool
	AccessKey string // static credentials instead of the default chain
	SecretKey string
	Expiry    time.Duration
}

// Client turns bucket objects into presigned HTTPS URLs that the regular
// range downloader can fetch.
type Client struct {
	client  *s3.Client
	presign *s3.PresignClient
	expiry  time.Duration
}

type object struct {
	Key  string
	Size int64
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRetryMode(aws.RetryModeAdaptive),
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: loading AWS config: %v", utils.ErrInvalidInput, err)
	}
	return newClient(s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	}), opts.Expiry), nil
}

func newClient(client *s3.Client, expiry time.Duration) *Client {
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	return &Client{
		client:  client,
		presign: s3.NewPresignClient(client),
		expiry:  expiry,
	}
}

func (c *Client) presignGet(ctx context.Context, bucket, key string) (string, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.expiry))
	if err != nil {
		return "", fmt.Errorf("%w: presigning s3://%s/%s: %v", utils.ErrNetwork, bucket, key, err)
	}
	return req.URL, nil
}

func (c *Client) headObject(ctx context.Context, bucket, key string) (object, error) {
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return object{}, fmt.Errorf("%w: head s3://%s/%s: %v", utils.ErrNetwork, bucket, key, err)
	}
	obj := object{Key: key, Size: -1}
	if out.ContentLength != nil {
		obj.Size = *out.ContentLength
	}
	return obj, nil
}

func (c *Client) listObjects(ctx context.Context, bucket, prefix string) ([]object, error) {
	var objects []object
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: listing s3://%s/%s: %v", utils.ErrNetwork, bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || obj.Size == nil {
				continue
			}
			// zero byte keys ending in a slash are folder markers
			if *obj.Size == 0 && strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			objects = append(objects, object{Key: *obj.Key, Size: *obj.Size})
		}
	}
	return objects, nil
}

package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/parcel/internal/downloaders/s3"
	"github.com/tanq16/parcel/internal/output"
	"github.com/tanq16/parcel/internal/scheduler"
)

type s3Flags struct {
	profile   string
	region    string
	endpoint  string
	pathStyle bool
}

func newS3Cmd() *cobra.Command {
	var outputPath string
	var flags s3Flags

	cmd := &cobra.Command{
		Use:   "s3 [BUCKET/KEY or s3://BUCKET/KEY]",
		Short: "Download files from AWS S3",
		Long: `Download files or folders from AWS S3. Objects are presigned and fetched
with the same segmented downloader as plain HTTP links.

Examples:
  parcel s3 mybucket/path/to/file.zip
  parcel s3 s3://mybucket/path/to/folder/ -o backups/
  parcel s3 mybucket/file.zip --profile myprofile`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			jobs, err := s3Jobs(cmd.Context(), args[0], outputPath, flags)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if err := runJobs(cmd.Context(), jobs); err != nil {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output path")
	cmd.Flags().StringVar(&flags.profile, "profile", "", "AWS profile to use")
	cmd.Flags().StringVar(&flags.region, "region", "", "AWS region")
	cmd.Flags().StringVar(&flags.endpoint, "endpoint", "", "Custom endpoint for S3 compatible stores")
	cmd.Flags().BoolVar(&flags.pathStyle, "path-style", false, "Use path-style bucket addressing")
	return cmd
}

// s3Jobs presigns every object behind link. Empty flags fall back to the
// s3 section of the configuration.
func s3Jobs(ctx context.Context, link, outputPath string, flags s3Flags) ([]scheduler.Job, error) {
	loc, err := s3.ParseURL(link)
	if err != nil {
		return nil, err
	}
	opts := s3.Options{
		Profile:   cfg.S3.Profile,
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		PathStyle: cfg.S3.PathStyle || flags.pathStyle,
	}
	if flags.profile != "" {
		opts.Profile = flags.profile
	}
	if flags.region != "" {
		opts.Region = flags.region
	}
	if flags.endpoint != "" {
		opts.Endpoint = flags.endpoint
	}
	client, err := s3.NewClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	requests, err := client.Requests(ctx, loc, outputPath)
	if err != nil {
		return nil, err
	}
	jobs := make([]scheduler.Job, 0, len(requests))
	for _, req := range requests {
		jobs = append(jobs, scheduler.Job{Name: req.Output, Request: req})
	}
	return jobs, nil
}

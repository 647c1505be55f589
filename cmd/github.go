package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/parcel/internal/downloaders/ghrelease"
	"github.com/tanq16/parcel/internal/output"
	"github.com/tanq16/parcel/internal/scheduler"
	"github.com/tanq16/parcel/internal/utils"
)

func newGitHubCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:     "github [OWNER/REPO or URL] [--output OUTPUT_PATH]",
		Aliases: []string{"ghr"},
		Short:   "Download the latest release asset for this platform",
		Long: `Look up the latest release of a GitHub repository and download the asset
built for the current OS and architecture.

Examples:
  parcel github tanq16/parcel
  parcel github https://github.com/tanq16/parcel -o bin/`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			job, err := githubJob(cmd.Context(), args[0], outputPath)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if err := runJobs(cmd.Context(), []scheduler.Job{job}); err != nil {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output path")
	return cmd
}

func githubJob(ctx context.Context, link, outputPath string) (scheduler.Job, error) {
	client := utils.NewClient(cfg.HTTPClientConfig())
	defer client.Close()
	req, err := ghrelease.NewResolver(client).Request(ctx, link, outputPath)
	if err != nil {
		return scheduler.Job{}, err
	}
	return scheduler.Job{Name: req.Output, Request: req}, nil
}

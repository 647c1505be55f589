package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/parcel/internal/downloaders/ghrelease"
	parcelhttp "github.com/tanq16/parcel/internal/downloaders/http"
	"github.com/tanq16/parcel/internal/output"
	"github.com/tanq16/parcel/internal/scheduler"
	"github.com/tanq16/parcel/internal/utils"
	"github.com/tanq16/parcel/internal/validate"
	"gopkg.in/yaml.v3"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Process multiple downloads from a YAML file",
		Long: `Download every entry of a YAML list in parallel. Each entry has a link and an
optional output path (op):

  - link: https://example.com/a.iso
    op: images/a.iso
  - link: s3://bucket/reports/
  - link: github.com/owner/repo`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := readDownloadList(args[0])
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			var jobs []scheduler.Job
			for _, entry := range entries {
				resolved, err := resolveLink(cmd.Context(), entry.URL, entry.OutputPath)
				if err != nil {
					output.PrintWarning(fmt.Sprintf("Skipping %s: %v", entry.URL, err))
					continue
				}
				jobs = append(jobs, resolved...)
			}
			if len(jobs) == 0 {
				output.PrintError("No valid jobs found in the batch file")
				os.Exit(1)
			}
			if err := runJobs(cmd.Context(), jobs); err != nil {
				os.Exit(1)
			}
		},
	}
	return cmd
}

// resolveLink expands S3 locations and GitHub repositories into plain HTTP jobs.
func resolveLink(ctx context.Context, link, outputPath string) ([]scheduler.Job, error) {
	link = strings.TrimSpace(link)
	switch {
	case strings.HasPrefix(link, "s3://"):
		return s3Jobs(ctx, link, outputPath, s3Flags{})
	case ghrelease.IsRepoReference(link):
		job, err := githubJob(ctx, link, outputPath)
		if err != nil {
			return nil, err
		}
		return []scheduler.Job{job}, nil
	}
	link = validate.NormalizeURL(link)
	return []scheduler.Job{{Name: link, Request: parcelhttp.Request{URL: link, Output: outputPath}}}, nil
}

func readDownloadList(filePath string) ([]utils.DownloadEntry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading batch file: %v", utils.ErrInvalidInput, err)
	}
	var entries []utils.DownloadEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: parsing batch file: %v", utils.ErrInvalidInput, err)
	}
	valid := entries[:0]
	for _, entry := range entries {
		if strings.TrimSpace(entry.URL) == "" {
			output.PrintWarning("Skipping entry with empty link")
			continue
		}
		valid = append(valid, entry)
	}
	return valid, nil
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	parcelhttp "github.com/tanq16/parcel/internal/downloaders/http"
	"github.com/tanq16/parcel/internal/output"
	"github.com/tanq16/parcel/internal/utils"
)

// Downloader is the single-file engine each worker drives.
type Downloader interface {
	Download(ctx context.Context, req parcelhttp.Request) parcelhttp.Result
}

// Job is one whole download. Name is what the display shows for it.
type Job struct {
	Name    string
	Request parcelhttp.Request
}

// DownloadMany fetches every URL into destDir with at most maxWorkers
// downloads in flight. Results arrive in completion order; one failure never
// affects the others.
func DownloadMany(ctx context.Context, d Downloader, urls []string, destDir string, maxWorkers int) []parcelhttp.Result {
	jobs := make([]Job, 0, len(urls))
	for _, link := range urls {
		jobs = append(jobs, Job{Name: link, Request: parcelhttp.Request{URL: link, Output: dirOutput(destDir)}})
	}
	return Run(ctx, d, jobs, maxWorkers, nil)
}

// Run executes jobs on a pool of workers. display may be nil; otherwise each
// job is registered with it and reports progress through it.
func Run(ctx context.Context, d Downloader, jobs []Job, numWorkers int, display *output.Manager) []parcelhttp.Result {
	numWorkers = min(utils.ClampWorkers(numWorkers), max(len(jobs), 1))
	log.Debug().Str("op", "scheduler/run").Int("jobs", len(jobs)).Int("workers", numWorkers).Msg("Starting batch")

	jobCh := make(chan Job, len(jobs))
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)

	resultCh := make(chan parcelhttp.Result, len(jobs))
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processJobs(ctx, d, jobCh, resultCh, display)
		}()
	}
	wg.Wait()
	close(resultCh)

	results := make([]parcelhttp.Result, 0, len(jobs))
	for res := range resultCh {
		results = append(results, res)
	}
	return results
}

func processJobs(ctx context.Context, d Downloader, jobCh <-chan Job, resultCh chan<- parcelhttp.Result, display *output.Manager) {
	for job := range jobCh {
		var funcID int
		if display != nil {
			funcID = display.RegisterFunction(job.Name)
			display.SetMessage(funcID, fmt.Sprintf("Downloading %s", job.Name))
			job.Request.Sink = display.Sink(funcID)
		}
		res := d.Download(ctx, job.Request)
		if res.Success {
			if display != nil {
				display.Complete(funcID, fmt.Sprintf("Downloaded %s (%s, %s)", res.Path, utils.FormatBytes(uint64(res.Bytes)), res.Mode))
			}
		} else {
			if display != nil {
				display.SetMessage(funcID, fmt.Sprintf("Failed %s", job.Name))
				display.ReportError(funcID, errors.New(res.Reason))
			}
			log.Debug().Str("op", "scheduler/worker").Str("url", res.URL).Str("reason", res.Reason).Msg("Job failed")
		}
		resultCh <- res
	}
}

func dirOutput(destDir string) string {
	destDir = strings.TrimSpace(destDir)
	if destDir == "" || destDir == "." {
		return ""
	}
	return path.Clean(destDir) + "/"
}

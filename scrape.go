package nsc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
)

type Options struct {
	Root   string
	Years  []int
	Grades []int
	DryRun bool

	// Workers is accepted for compatibility with older invocations. Downloads
	// always run one at a time.
	Workers int

	// Sessions replaces the built-in registry when non-empty.
	Sessions []Session

	SessionDelay    time.Duration
	DownloadDelay   time.Duration
	DownloadTimeout time.Duration
	UserAgent       string

	// Progress receives human readable status lines. Nil discards them.
	Progress io.Writer
}

type Summary struct {
	Sessions   int
	Discovered int
	Downloaded int
	Failed     int
}

// newPacer returns a limiter that lets one call through immediately and then
// one per interval. A non-positive interval disables pacing.
func newPacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// ScrapeAll fetches the selected sessions in registry order, downloads every
// paper found one at a time and writes the JSON index into opts.Root. Failed
// sessions and files are logged and counted, never returned; the papers
// slice always holds everything discovered. The error is reserved for setup
// and index write failures.
func ScrapeAll(ctx context.Context, src *Source, downloads *http.Client, opts Options) ([]ExamPaper, Summary, error) {
	out := opts.Progress
	if out == nil {
		out = io.Discard
	}

	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, Summary{}, fmt.Errorf("failed to create output directory %s: %w", opts.Root, err)
	}

	registry := opts.Sessions
	if len(registry) == 0 {
		registry = Sessions
	}

	fmt.Fprintln(out, "South African NSC Exam Papers Scraper")
	fmt.Fprintf(out, "Source: %s\n", src.BaseURL)
	fmt.Fprintf(out, "Output: %s\n", opts.Root)
	if len(opts.Years) > 0 {
		fmt.Fprintf(out, "Years: %s\n", formatInts(opts.Years))
	}
	if len(opts.Grades) > 0 {
		fmt.Fprintf(out, "Grades: %s\n", formatInts(opts.Grades))
	}
	if opts.DryRun {
		fmt.Fprintln(out, "Mode: DRY RUN (no downloads)")
	}

	if opts.Workers > 1 {
		slog.Info("workers setting ignored, downloads are sequential", "workers", opts.Workers)
	}

	selected := SelectSessions(registry, opts.Years, opts.Grades)
	summary := Summary{Sessions: len(selected)}

	fmt.Fprintf(out, "\nProcessing %d exam sessions...\n\n", len(selected))

	papers := []ExamPaper{}

	sessionPacer := newPacer(opts.SessionDelay)
	for _, session := range selected {
		if err := sessionPacer.Wait(ctx); err != nil {
			return papers, summary, fmt.Errorf("interrupted before session %s: %w", session.Key, err)
		}

		fmt.Fprintln(out, session.Key)
		found := src.FetchSessionPapers(ctx, session)
		fmt.Fprintf(out, "   Found %d files\n", len(found))

		papers = append(papers, found...)
	}

	summary.Discovered = len(papers)
	fmt.Fprintf(out, "\nTotal files found: %d\n", len(papers))

	if len(papers) == 0 {
		fmt.Fprintln(out, "No papers found to download.")
	} else {
		fmt.Fprintln(out, "\nDownloading files...")
	}

	downloadOpts := DownloadOptions{
		Root:      opts.Root,
		DryRun:    opts.DryRun,
		Timeout:   opts.DownloadTimeout,
		UserAgent: opts.UserAgent,
	}

	downloadPacer := newPacer(opts.DownloadDelay)
	if opts.DryRun {
		downloadPacer = newPacer(0)
	}

	for i, paper := range papers {
		if err := downloadPacer.Wait(ctx); err != nil {
			return papers, summary, fmt.Errorf("interrupted before %s: %w", paper.FileName, err)
		}

		updated, err := DownloadPaper(ctx, downloads, paper, downloadOpts)
		papers[i] = updated

		prefix := fmt.Sprintf("  [%d/%d] %s", i+1, len(papers), paper.FileName)

		if err != nil {
			slog.Error("download failed", "file", paper.FileName, "url", paper.FileURL, "error", err)
			summary.Failed++
			fmt.Fprintf(out, "%s FAILED\n", prefix)
			continue
		}

		summary.Downloaded++
		if updated.FileSize != nil {
			fmt.Fprintf(out, "%s ok (%.1f KB)\n", prefix, float64(*updated.FileSize)/1024)
		} else {
			fmt.Fprintf(out, "%s ok\n", prefix)
		}
	}

	fmt.Fprintf(out, "\nDownloaded: %d\n", summary.Downloaded)
	fmt.Fprintf(out, "Failed: %d\n", summary.Failed)

	indexPath, err := WriteIndex(opts.Root, papers)
	if err != nil {
		return papers, summary, err
	}
	fmt.Fprintf(out, "\nIndex saved to: %s\n", indexPath)

	return papers, summary, nil
}

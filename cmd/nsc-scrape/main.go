package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	nsc "github.com/carlohamalainen/nsc-exam-papers-go"
	"github.com/carlohamalainen/nsc-exam-papers-go/cache"
	"github.com/carlohamalainen/nsc-exam-papers-go/config"
)

type Args struct {
	Output      string
	Years       []int
	Grades      []int
	DryRun      bool
	Workers     int
	HttpCache   string
	CacheMaxAge time.Duration
	Catalog     string
	Parquet     string
	Snapshots   string
	ConfigFile  string
	LogLevel    slog.Level
}

func parseArgs() (Args, error) {
	var (
		output  string
		years   string
		grades  string
		workers int
		args    Args
	)

	flag.StringVar(&output, "output", "./sa_exam_papers", "Output directory")
	flag.StringVar(&output, "o", "./sa_exam_papers", "Output directory (shorthand)")
	flag.StringVar(&years, "years", "", "Comma separated years to download, e.g. 2024,2023")
	flag.StringVar(&years, "y", "", "Years (shorthand)")
	flag.StringVar(&grades, "grades", "", "Comma separated grades to download, e.g. 12")
	flag.StringVar(&grades, "g", "", "Grades (shorthand)")
	flag.IntVar(&workers, "workers", 4, "Number of parallel downloads (ignored, downloads are sequential)")
	flag.IntVar(&workers, "w", 4, "Workers (shorthand)")
	flag.BoolVar(&args.DryRun, "dry-run", false, "List files without downloading")
	flag.StringVar(&args.HttpCache, "http-cache", "", "Absolute path to sqlite http cache for index pages")
	flag.DurationVar(&args.CacheMaxAge, "cache-max-age", 0, "Refetch cached index pages older than this (0 keeps them forever)")
	flag.StringVar(&args.Catalog, "catalog", "", "Path to sqlite catalog of scrape runs")
	flag.StringVar(&args.Parquet, "parquet", "", "Also write the index as a parquet file")
	flag.StringVar(&args.Snapshots, "snapshots", "", "Directory for formatted copies of each index page")
	flag.StringVar(&args.ConfigFile, "config", "", "YAML config file")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")

	flag.Parse()

	args.Output = output
	args.Workers = workers

	var err error
	if args.Years, err = config.ParseIntList(years); err != nil {
		return args, fmt.Errorf("bad -years: %w", err)
	}
	if args.Grades, err = config.ParseIntList(grades); err != nil {
		return args, fmt.Errorf("bad -grades: %w", err)
	}

	if err := args.LogLevel.UnmarshalText([]byte(strings.ToUpper(*logLevel))); err != nil {
		return args, fmt.Errorf("bad -log-level %q: %w", *logLevel, err)
	}

	if args.Output == "" {
		return args, fmt.Errorf("need -output")
	}

	return args, nil
}

func setupLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}))
	slog.SetDefault(logger)
	return logger
}

func run(ctx context.Context, args Args) error {
	cfg, err := config.Load(args.ConfigFile)
	if err != nil {
		return err
	}

	var dbFile *string
	if args.HttpCache != "" {
		dbFile = &args.HttpCache
	}

	pages, err := cache.NewHTTPClient(dbFile, args.CacheMaxAge)
	if err != nil {
		return fmt.Errorf("failed to setup HTTP client: %w", err)
	}
	defer func() {
		if err := cache.Close(pages); err != nil {
			slog.Error("failed to close sqlite", "error", err)
		}
	}()

	src := nsc.NewSource(cfg, pages)
	src.SnapshotDir = args.Snapshots

	runInfo := nsc.NewRun(args.DryRun)

	papers, summary, err := nsc.ScrapeAll(ctx, src, &http.Client{}, nsc.Options{
		Root:            args.Output,
		Years:           args.Years,
		Grades:          args.Grades,
		DryRun:          args.DryRun,
		Workers:         args.Workers,
		Sessions:        nsc.SessionsFromConfig(cfg),
		SessionDelay:    cfg.SessionDelay,
		DownloadDelay:   cfg.DownloadDelay,
		DownloadTimeout: cfg.DownloadTimeout,
		UserAgent:       cfg.UserAgent,
		Progress:        os.Stdout,
	})
	if err != nil {
		return err
	}

	runInfo.FinishedAt = time.Now().UTC()
	runInfo.Summary = summary

	slog.Info("scrape finished",
		"run_id", runInfo.ID,
		"sessions", summary.Sessions,
		"discovered", summary.Discovered,
		"downloaded", summary.Downloaded,
		"failed", summary.Failed)

	if args.Parquet != "" {
		if err := os.MkdirAll(filepath.Dir(args.Parquet), 0755); err != nil {
			return err
		}
		if err := nsc.WriteParquet(args.Parquet, papers); err != nil {
			return err
		}
		slog.Info("wrote parquet index", "filename", args.Parquet, "rows", len(papers))
	}

	if args.Catalog != "" {
		catalog, err := nsc.OpenCatalog(args.Catalog)
		if err != nil {
			return err
		}
		defer catalog.Close()

		if err := catalog.RecordRun(runInfo, papers); err != nil {
			return err
		}
		slog.Info("recorded run", "catalog", args.Catalog, "run_id", runInfo.ID)
	}

	return nil
}

func main() {
	args, err := parseArgs()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	setupLogger(args.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting")

	if err := run(ctx, args); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	slog.Info("completed successfully")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	nsc "github.com/carlohamalainen/nsc-exam-papers-go"
	"github.com/carlohamalainen/nsc-exam-papers-go/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	outputArg := flag.String("output", "./sa_exam_papers", "Output directory holding exam_papers_index.json")
	checkLinksArg := flag.Bool("check-links", false, "Also send a HEAD request for every paper not yet downloaded")
	timeoutArg := flag.Duration("timeout", 10*time.Second, "Timeout per link check")
	parquetArg := flag.String("parquet", "", "Write the index as a parquet file")
	configArg := flag.String("config", "", "YAML config file")
	catalogArg := flag.String("catalog", "", "Compare the index with the latest run in this sqlite catalog")

	flag.Parse()

	cfg, err := config.Load(*configArg)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	indexPath := filepath.Join(*outputArg, nsc.IndexFileName)

	papers, err := nsc.ReadIndex(indexPath)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	slog.Info("sanity checks", "index", indexPath)
	problems := nsc.Sanity(papers)

	if *catalogArg != "" {
		drift, err := compareCatalog(*catalogArg, papers)
		if err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
		problems = append(problems, drift...)
	}

	if *checkLinksArg {
		dead, err := nsc.CheckLinks(context.Background(), &http.Client{}, papers, cfg.DownloadDelay, *timeoutArg, cfg.UserAgent)
		if err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
		problems = append(problems, dead...)
	}

	if *parquetArg != "" {
		if err := nsc.WriteParquet(*parquetArg, papers); err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
	}

	for _, p := range problems {
		fmt.Println(p)
	}

	slog.Info("verified", "papers", len(papers), "problems", len(problems))

	if len(problems) > 0 {
		os.Exit(1)
	}
}

func compareCatalog(dbPath string, papers []nsc.ExamPaper) ([]nsc.Problem, error) {
	catalog, err := nsc.OpenCatalog(dbPath)
	if err != nil {
		return nil, err
	}
	defer catalog.Close()

	run, err := catalog.LatestRun()
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("no runs recorded in %s", dbPath)
	}

	recorded, err := catalog.Papers(run.ID)
	if err != nil {
		return nil, err
	}

	slog.Info("catalog comparison", "run", run.ID, "started", run.StartedAt, "recorded", len(recorded))

	return nsc.CompareRun(papers, recorded), nil
}

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	nsc "github.com/carlohamalainen/nsc-exam-papers-go"
	"github.com/carlohamalainen/nsc-exam-papers-go/config"
)

func main() {
	years := flag.String("years", "", "Comma separated years")
	grades := flag.String("grades", "", "Comma separated grades")
	configFile := flag.String("config", "", "YAML config file")

	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	ys, err := config.ParseIntList(*years)
	if err != nil {
		slog.Error("bad -years", "error", err)
		os.Exit(1)
	}

	gs, err := config.ParseIntList(*grades)
	if err != nil {
		slog.Error("bad -grades", "error", err)
		os.Exit(1)
	}

	for _, s := range nsc.SelectSessions(nsc.SessionsFromConfig(cfg), ys, gs) {
		u, err := nsc.SessionURL(cfg.BaseURL, s)
		if err != nil {
			slog.Error("bad session path", "session", s.Key, "error", err)
			continue
		}
		fmt.Printf("%s\t%s\n", s.Key, u)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/carlohamalainen/nsc-exam-papers-go/cache"
)

type Config struct {
	Addr      string
	HttpCache string
	MaxAge    time.Duration
	Hosts     []string
	List      bool
	Purge     string
}

func parseArgs() (Config, error) {
	addrArg := flag.String("addr", "127.0.0.1:8080", "Listen address")
	httpCacheArg := flag.String("http-cache", "", "Absolute path to sqlite http cache")
	maxAgeArg := flag.Duration("max-age", 0, "Refetch cached responses older than this (0 keeps them forever)")
	hostsArg := flag.String("hosts", "www.ecexams.co.za,ecexams.co.za", "Comma separated hosts to cache")
	listArg := flag.Bool("list", false, "Print the cached entries, newest first, and exit")
	purgeArg := flag.String("purge", "", "Drop the cached GET response for this URL and exit")

	flag.Parse()

	config := Config{
		Addr:      *addrArg,
		HttpCache: *httpCacheArg,
		MaxAge:    *maxAgeArg,
		List:      *listArg,
		Purge:     *purgeArg,
	}

	for h := range strings.SplitSeq(*hostsArg, ",") {
		if h = strings.TrimSpace(h); h != "" {
			config.Hosts = append(config.Hosts, h)
		}
	}

	if config.HttpCache == "" {
		return config, fmt.Errorf("need -http-cache")
	}

	if len(config.Hosts) == 0 {
		return config, fmt.Errorf("need -hosts")
	}

	return config, nil
}

func setupLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelDebug,
	}))
	slog.SetDefault(logger)
	return logger
}

func serve(ctx context.Context, config Config) error {
	client, err := cache.NewHTTPClient(&config.HttpCache, config.MaxAge)
	if err != nil {
		return fmt.Errorf("failed to setup HTTP cache: %w", err)
	}
	defer func() {
		if err := cache.Close(client); err != nil {
			slog.Error("failed to close sqlite", "error", err.Error())
		}
	}()

	handler, err := cache.NewCachedProxyHandler(client.Transport.(*cache.Cache), config.Hosts)
	if err != nil {
		return err
	}

	slog.Info("caching hosts", "hosts", config.Hosts)

	return cache.RunServer(ctx, config.Addr, handler)
}

// maintain runs the -list and -purge modes against the cache file without
// starting the proxy.
func maintain(w io.Writer, config Config) error {
	c, err := cache.NewCache(config.HttpCache)
	if err != nil {
		return fmt.Errorf("failed to open HTTP cache: %w", err)
	}
	defer c.SqliteCache.Close()

	if config.Purge != "" {
		if err := c.Delete(cache.RequestKey{Method: http.MethodGet, URL: config.Purge}); err != nil {
			return err
		}
		slog.Info("purged", "url", config.Purge)
	}

	if config.List {
		return listEntries(w, c)
	}

	return nil
}

func listEntries(w io.Writer, c *cache.Cache) error {
	rows, err := c.SqliteCache.GetAll()
	if err != nil {
		return err
	}

	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s %s\t%d\t%d bytes\n",
			row.Timestamp.UTC().Format(time.RFC3339), row.Method, row.URL, row.StatusCode, len(row.Body))
	}

	return nil
}

func main() {
	setupLogger()

	config, err := parseArgs()
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	if config.List || config.Purge != "" {
		if err := maintain(os.Stdout, config); err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, config); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SessionEntry is one index page of the source site, as listed in a config file.
type SessionEntry struct {
	Key  string `yaml:"key"`
	Path string `yaml:"path"`
}

// Config holds the scraper settings. Zero values in a loaded file fall back to Default.
type Config struct {
	BaseURL         string         `yaml:"base_url"`
	UserAgent       string         `yaml:"user_agent"`
	Extensions      []string       `yaml:"extensions"`
	FetchTimeout    time.Duration  `yaml:"fetch_timeout"`
	DownloadTimeout time.Duration  `yaml:"download_timeout"`
	SessionDelay    time.Duration  `yaml:"session_delay"`
	DownloadDelay   time.Duration  `yaml:"download_delay"`
	Sessions        []SessionEntry `yaml:"sessions"`
}

const (
	DefaultBaseURL   = "http://www.ecexams.co.za/"
	DefaultUserAgent = "nsc-exam-papers/1.0 (+past paper archiver)"
)

func Default() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		UserAgent:       DefaultUserAgent,
		Extensions:      []string{".zip", ".pdf", ".exe"},
		FetchTimeout:    30 * time.Second,
		DownloadTimeout: 120 * time.Second,
		SessionDelay:    500 * time.Millisecond,
		DownloadDelay:   200 * time.Millisecond,
	}
}

// Load reads a YAML config file and merges it over Default. An empty path or a
// missing file is not an error and yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return merge(cfg, file), nil
}

func merge(base, file Config) Config {
	if file.BaseURL != "" {
		base.BaseURL = file.BaseURL
	}
	if file.UserAgent != "" {
		base.UserAgent = file.UserAgent
	}
	if len(file.Extensions) > 0 {
		exts := make([]string, 0, len(file.Extensions))
		for _, e := range file.Extensions {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			exts = append(exts, e)
		}
		base.Extensions = exts
	}
	if file.FetchTimeout > 0 {
		base.FetchTimeout = file.FetchTimeout
	}
	if file.DownloadTimeout > 0 {
		base.DownloadTimeout = file.DownloadTimeout
	}
	if file.SessionDelay > 0 {
		base.SessionDelay = file.SessionDelay
	}
	if file.DownloadDelay > 0 {
		base.DownloadDelay = file.DownloadDelay
	}
	if len(file.Sessions) > 0 {
		base.Sessions = file.Sessions
	}
	return base
}

// ParseIntList parses a comma separated list such as "2024, 2023". An empty
// string gives a nil slice.
func ParseIntList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var xs []int
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", part, err)
		}
		xs = append(xs, n)
	}
	return xs, nil
}

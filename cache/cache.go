package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"
)

// CachedHeader is set on responses served from the cache and holds the time
// the response was originally stored.
const CachedHeader = "X-Cache-Timestamp"

type RequestKey struct {
	Method string
	URL    string
}

type CacheRow struct {
	StatusCode int
	Status     string
	Headers    string
	Method     string
	URL        string
	Body       []byte
	Timestamp  time.Time
}

// HeadersToJSON converts http.Header to a JSON string for storage in sqlite.
func HeadersToJSON(headers http.Header) (string, error) {
	jsonBytes, err := json.Marshal(headers)
	if err != nil {
		return "", err
	}
	return string(jsonBytes), nil
}

func HeadersFromJSON(jsonStr string) (http.Header, error) {
	headers := make(http.Header)
	err := json.Unmarshal([]byte(jsonStr), &headers)
	if err != nil {
		return nil, err
	}
	return headers, nil
}

// Cache is an http.RoundTripper that answers GET requests from sqlite and
// stores successful responses it had to fetch. Index pages go through it;
// paper downloads do not, since they are streamed straight to disk.
type Cache struct {
	SqliteCache *SQLiteCache
	Transport   http.RoundTripper

	// MaxAge limits how old a stored response may be before it is fetched
	// again. Zero means stored responses never expire.
	MaxAge time.Duration
}

func (c *Cache) Get(key RequestKey) (*http.Response, error) {
	row, err := c.SqliteCache.Get(key)
	if err != nil {
		return nil, err
	}

	if row == nil {
		return nil, nil // did not find, not an error
	}

	if c.MaxAge > 0 && time.Since(row.Timestamp) > c.MaxAge {
		slog.Debug("cache entry expired", "url", key.URL, "stored", row.Timestamp)
		return nil, nil
	}

	headers, err := HeadersFromJSON(row.Headers)
	if err != nil {
		return nil, err
	}

	resp := &http.Response{
		Status:        row.Status,
		StatusCode:    row.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          io.NopCloser(bytes.NewReader(row.Body)),
		ContentLength: int64(len(row.Body)),
		Header:        headers,
	}

	resp.Header.Set(CachedHeader, row.Timestamp.Format(time.RFC3339))

	return resp, nil
}

// Set stores resp under key and hands back a response whose body can still be
// read by the caller.
func (c *Cache) Set(key RequestKey, resp *http.Response) (*http.Response, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	headers, err := HeadersToJSON(resp.Header)
	if err != nil {
		return nil, err
	}

	row := CacheRow{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    headers,
		Method:     key.Method,
		URL:        key.URL,
		Body:       body,
		Timestamp:  time.Now(),
	}

	if err := c.SqliteCache.Set(row); err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Cache) Delete(key RequestKey) error {
	return c.SqliteCache.Delete(key)
}

func (c *Cache) transport() http.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}
	return http.DefaultTransport
}

func (c *Cache) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return c.transport().RoundTrip(req)
	}

	key := RequestKey{Method: req.Method, URL: req.URL.String()}

	resp, err := c.Get(key)
	if err != nil {
		return nil, err
	}
	if resp != nil {
		slog.Debug("cache hit", "url", key.URL)
		resp.Request = req
		return resp, nil
	}

	resp, err = c.transport().RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if !shouldCache(resp) {
		return resp, nil
	}

	slog.Debug("caching", "url", key.URL)

	return c.Set(key, resp)
}

func shouldCache(resp *http.Response) bool {
	return resp.StatusCode == http.StatusOK
}

func NewCache(dbPath string) (*Cache, error) {
	sqliteCache, err := NewSQLiteCache(dbPath)
	if err != nil {
		return nil, err
	}

	return &Cache{SqliteCache: sqliteCache}, nil
}

// NewHTTPClient creates an HTTP client with optional sqlite caching.
//
// If dbFile is nil, it returns a standard HTTP client without caching.
// Otherwise, it creates a client that caches successful GET responses in the
// specified sqlite file, which must be given as an absolute path. maxAge is
// passed to Cache.MaxAge.
func NewHTTPClient(dbFile *string, maxAge time.Duration) (*http.Client, error) {
	if dbFile == nil {
		slog.Info("created fallback http client without caching")
		return &http.Client{}, nil
	}

	if !filepath.IsAbs(*dbFile) {
		err := fmt.Errorf("need absolute path for file, got: %s", *dbFile)
		slog.Error(err.Error())
		return &http.Client{}, err
	}

	c, err := NewCache(*dbFile)
	if err != nil {
		return nil, err
	}
	c.MaxAge = maxAge

	slog.Info("created http client with caching", "filename", *dbFile, "max_age", maxAge)

	return &http.Client{Transport: c}, nil
}

// Close releases the sqlite handle behind a client made by NewHTTPClient. It is
// a no-op for uncached clients.
func Close(client *http.Client) error {
	if c, ok := client.Transport.(*Cache); ok {
		return c.SqliteCache.Close()
	}
	return nil
}

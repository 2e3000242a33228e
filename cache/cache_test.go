package cache

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	cache, err := NewCache(filepath.Join(t.TempDir(), "cache-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.SqliteCache.Close() })

	return cache
}

// countingServer answers every request with body and status and counts hits.
func countingServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server, &hits
}

func get(t *testing.T, client *http.Client, u string) (int, string, http.Header) {
	t.Helper()

	resp, err := client.Get(u)
	require.NoError(t, err, "request to %s", u)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body), resp.Header
}

func TestHeadersJSONConversion(t *testing.T) {
	headers := make(http.Header)
	headers.Add("Content-Type", "text/html; charset=windows-1252")
	headers.Add("X-Test", "Value1")
	headers.Add("X-Test", "Value2")

	json, err := HeadersToJSON(headers)
	require.NoError(t, err)

	restored, err := HeadersFromJSON(json)
	require.NoError(t, err)

	assert.Equal(t, headers, restored)
	assert.Equal(t, []string{"Value1", "Value2"}, restored.Values("X-Test"))
}

func TestCacheSetGet(t *testing.T) {
	cache := newTestCache(t)

	key := RequestKey{Method: http.MethodGet, URL: "http://www.ecexams.co.za/2024_November_Gr_12_NSC_DBE_Exams.htm"}
	body := []byte("<html><a href='Maths P1.pdf'>P1</a></html>")

	resp := &http.Response{
		Status:     "200 OK",
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"text/html"}},
	}

	returned, err := cache.Set(key, resp)
	require.NoError(t, err)

	// The caller must still be able to read the body after caching.
	returnedBody, _ := io.ReadAll(returned.Body)
	assert.Equal(t, body, returnedBody)

	cachedResp, err := cache.Get(key)
	require.NoError(t, err)
	require.NotNil(t, cachedResp)

	assert.Equal(t, http.StatusOK, cachedResp.StatusCode)
	assert.Equal(t, "text/html", cachedResp.Header.Get("Content-Type"))

	cachedBody, _ := io.ReadAll(cachedResp.Body)
	assert.Equal(t, body, cachedBody)

	_, err = time.Parse(time.RFC3339, cachedResp.Header.Get(CachedHeader))
	assert.NoError(t, err)

	require.NoError(t, cache.Delete(key))

	gone, err := cache.Get(key)
	require.NoError(t, err)
	assert.Nil(t, gone)

	// Deleting a missing entry is not an error.
	assert.NoError(t, cache.Delete(key))
}

func TestRoundTripCachesSuccessfulGets(t *testing.T) {
	cache := newTestCache(t)
	server, hits := countingServer(t, http.StatusOK, "index page")

	client := &http.Client{Transport: cache}

	for i := range 3 {
		status, body, _ := get(t, client, server.URL+"/index.htm")
		require.Equal(t, http.StatusOK, status, "request %d", i)
		require.Equal(t, "index page", body, "request %d", i)
	}

	assert.EqualValues(t, 1, hits.Load())

	_, _, headers := get(t, client, server.URL+"/index.htm")
	assert.NotEmpty(t, headers.Get(CachedHeader))
}

func TestRoundTripDoesNotCacheFailures(t *testing.T) {
	cache := newTestCache(t)
	server, hits := countingServer(t, http.StatusServiceUnavailable, "try later")

	client := &http.Client{Transport: cache}

	for range 2 {
		status, _, _ := get(t, client, server.URL+"/index.htm")
		require.Equal(t, http.StatusServiceUnavailable, status)
	}

	assert.EqualValues(t, 2, hits.Load(), "every failed request reaches the server")

	rows, err := cache.SqliteCache.GetAll()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRoundTripPassesThroughOtherMethods(t *testing.T) {
	cache := newTestCache(t)
	server, hits := countingServer(t, http.StatusOK, "ok")

	client := &http.Client{Transport: cache}

	for range 2 {
		resp, err := client.Head(server.URL + "/file.pdf")
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.EqualValues(t, 2, hits.Load())
}

func TestMaxAgeExpiresEntries(t *testing.T) {
	cache := newTestCache(t)
	cache.MaxAge = time.Hour

	key := RequestKey{Method: http.MethodGet, URL: "http://www.ecexams.co.za/old.htm"}
	headers, _ := HeadersToJSON(http.Header{})

	err := cache.SqliteCache.Set(CacheRow{
		Method:     key.Method,
		URL:        key.URL,
		StatusCode: 200,
		Status:     "200 OK",
		Headers:    headers,
		Body:       []byte("stale"),
		Timestamp:  time.Now().Add(-2 * time.Hour),
	})
	require.NoError(t, err)

	resp, err := cache.Get(key)
	require.NoError(t, err)
	assert.Nil(t, resp, "expired entry is ignored")

	cache.MaxAge = 0
	resp, err = cache.Get(key)
	require.NoError(t, err)
	assert.NotNil(t, resp)
}

func TestHTTPClient(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "client-cache.db")

	client, err := NewHTTPClient(&dbPath, 0)
	require.NoError(t, err)
	defer Close(client)

	server, hits := countingServer(t, http.StatusOK, "test http client response")

	for range 2 {
		_, body, _ := get(t, client, server.URL+"/test")
		assert.Equal(t, "test http client response", body)
	}

	assert.EqualValues(t, 1, hits.Load())
}

func TestHTTPClientWithoutCache(t *testing.T) {
	client, err := NewHTTPClient(nil, 0)
	require.NoError(t, err)

	assert.Nil(t, client.Transport)
	assert.NoError(t, Close(client))
}

func TestHTTPClientNeedsAbsolutePath(t *testing.T) {
	relative := "cache.db"
	_, err := NewHTTPClient(&relative, 0)
	assert.Error(t, err)
}

func TestSQLiteCacheReplacesEntries(t *testing.T) {
	cache, err := NewSQLiteCache(filepath.Join(t.TempDir(), "sqlitecache-test.db"))
	require.NoError(t, err)
	defer cache.Close()

	key := RequestKey{Method: "GET", URL: "https://example.com/test"}
	headers, _ := HeadersToJSON(http.Header{"Content-Type": []string{"text/plain"}})

	for _, body := range []string{"first", "second"} {
		err := cache.Set(CacheRow{
			Method:     key.Method,
			URL:        key.URL,
			StatusCode: 200,
			Status:     "200 OK",
			Headers:    headers,
			Body:       []byte(body),
			Timestamp:  time.Now(),
		})
		require.NoError(t, err)
	}

	row, err := cache.Get(key)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "second", string(row.Body))
	assert.Equal(t, key.URL, row.URL)
	assert.Equal(t, key.Method, row.Method)

	rows, err := cache.GetAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSQLiteCacheGetAllNewestFirst(t *testing.T) {
	cache, err := NewSQLiteCache(filepath.Join(t.TempDir(), "sqlitecache-test.db"))
	require.NoError(t, err)
	defer cache.Close()

	headers, _ := HeadersToJSON(http.Header{})
	now := time.Now()

	for i, u := range []string{"http://a/old.htm", "http://a/new.htm", "http://a/mid.htm"} {
		age := []time.Duration{3 * time.Hour, time.Hour, 2 * time.Hour}[i]
		require.NoError(t, cache.Set(CacheRow{
			Method:     http.MethodGet,
			URL:        u,
			StatusCode: 200,
			Status:     "200 OK",
			Headers:    headers,
			Timestamp:  now.Add(-age),
		}))
	}

	rows, err := cache.GetAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "http://a/new.htm", rows[0].URL)
	assert.Equal(t, "http://a/mid.htm", rows[1].URL)
	assert.Equal(t, "http://a/old.htm", rows[2].URL)
}

func TestCachedProxy(t *testing.T) {
	cache := newTestCache(t)
	server, hits := countingServer(t, http.StatusOK, "proxied page")

	target, err := url.Parse(server.URL)
	require.NoError(t, err)

	handler, err := NewCachedProxyHandler(cache, []string{target.Hostname()})
	require.NoError(t, err)

	proxy := httptest.NewServer(handler)
	defer proxy.Close()

	proxyURL, _ := url.Parse(proxy.URL)
	client := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}

	for i := range 3 {
		status, body, _ := get(t, client, server.URL+"/index.htm")
		require.Equal(t, http.StatusOK, status, "request %d", i)
		require.Equal(t, "proxied page", body, "request %d", i)
	}

	assert.EqualValues(t, 1, hits.Load(), "one upstream request through the proxy")
}

func TestMatchHost(t *testing.T) {
	hosts := []string{"www.ecexams.co.za", "ecexams.co.za"}

	assert.True(t, matchHost("WWW.ECEXAMS.CO.ZA", hosts))
	assert.False(t, matchHost("example.com", hosts))
}

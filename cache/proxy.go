package cache

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
)

// NewCachedProxyHandler returns a forward proxy that serves GET requests for
// the given hosts from cache and fills the cache with their successful
// responses. Requests for other hosts are passed through untouched.
func NewCachedProxyHandler(cache *Cache, hosts []string) (http.Handler, error) {
	setCA, err := tls.X509KeyPair(goproxy.CA_CERT, goproxy.CA_KEY)
	if err != nil {
		return nil, fmt.Errorf("invalid certificate: %w", err)
	}

	goproxy.GoproxyCa = setCA

	proxy := goproxy.NewProxyHttpServer()

	proxy.CertStore = &CertStorage{}

	proxy.OnRequest().HandleConnect(goproxy.AlwaysMitm)

	proxy.Tr = &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
		},
		TLSHandshakeTimeout: 10 * time.Second,
		Proxy:               http.ProxyFromEnvironment,
	}

	cached := goproxy.ReqConditionFunc(func(req *http.Request, _ *goproxy.ProxyCtx) bool {
		return req.Method == http.MethodGet && matchHost(req.URL.Hostname(), hosts)
	})

	proxy.OnRequest(cached).DoFunc(func(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		key := RequestKey{URL: req.URL.String(), Method: req.Method}

		cachedResp, err := cache.Get(key)
		if err != nil {
			slog.Error("failed to retrieve from cache", "url", key.URL, "error", err)
			return req, nil
		}

		if cachedResp != nil {
			slog.Debug("proxy cache hit", "url", key.URL)
			cachedResp.Request = req // goproxy expects this linkage.
			return req, cachedResp
		}

		slog.Debug("proxy cache miss", "url", key.URL)
		ctx.UserData = key
		return req, nil
	})

	proxy.OnResponse().DoFunc(func(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
		if resp == nil || ctx.UserData == nil {
			return resp
		}

		key, ok := ctx.UserData.(RequestKey)
		if !ok || !shouldCache(resp) {
			return resp
		}

		clone, err := cloneResponse(resp)
		if err != nil {
			slog.Error("failed to clone response", "url", key.URL, "error", err)
			return resp
		}

		if _, err := cache.Set(key, clone); err != nil {
			slog.Error("failed to store response", "url", key.URL, "error", err)
		}

		return resp
	})

	return proxy, nil
}

func matchHost(host string, hosts []string) bool {
	host = strings.ToLower(host)
	for _, h := range hosts {
		if strings.EqualFold(host, h) {
			return true
		}
	}
	return false
}

func cloneResponse(resp *http.Response) (*http.Response, error) {
	bodyBytes, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	// Restore the original body for further use.
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	clone := &http.Response{
		Status:     resp.Status,
		StatusCode: resp.StatusCode,
		Proto:      resp.Proto,
		ProtoMajor: resp.ProtoMajor,
		ProtoMinor: resp.ProtoMinor,
		Header:     resp.Header.Clone(),
		Request:    resp.Request,
		Body:       io.NopCloser(bytes.NewReader(bodyBytes)),
	}

	return clone, nil
}

// RunServer serves handler on addr until ctx is cancelled, then shuts the
// server down, allowing ten seconds for open connections to finish.
func RunServer(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errs := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("starting http proxy server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("context canceled, shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	wg.Wait()
	slog.Info("server shutdown complete")

	return nil
}

type CertStorage struct {
	certs sync.Map
}

func (cs *CertStorage) Fetch(hostname string, gen func() (*tls.Certificate, error)) (*tls.Certificate, error) {
	if value, ok := cs.certs.Load(hostname); ok {
		return value.(*tls.Certificate), nil
	}

	cert, err := gen()
	if err != nil {
		return nil, err
	}

	actual, _ := cs.certs.LoadOrStore(hostname, cert)
	return actual.(*tls.Certificate), nil
}

package nsc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/yosssi/gohtml"
	"golang.org/x/net/publicsuffix"

	"github.com/carlohamalainen/nsc-exam-papers-go/cache"
	"github.com/carlohamalainen/nsc-exam-papers-go/config"
)

// Source fetches index pages from one origin and turns their links into
// classified papers.
type Source struct {
	BaseURL    string
	Client     *http.Client
	UserAgent  string
	Timeout    time.Duration
	Extensions []string

	// SnapshotDir, if set, receives a pretty printed copy of every index page.
	SnapshotDir string
}

func NewSource(cfg config.Config, client *http.Client) *Source {
	if client == nil {
		client = &http.Client{}
	}
	return &Source{
		BaseURL:    cfg.BaseURL,
		Client:     client,
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.FetchTimeout,
		Extensions: cfg.Extensions,
	}
}

// FetchSessionPapers retrieves a session's index page and returns one paper
// per downloadable link, in link order. Any failure is logged and gives an
// empty result so that the remaining sessions still run.
func (s *Source) FetchSessionPapers(ctx context.Context, session Session) []ExamPaper {
	papers := []ExamPaper{}

	pageURL, err := SessionURL(s.BaseURL, session)
	if err != nil {
		slog.Error("failed to build index url", "session", session.Key, "error", err)
		return papers
	}

	body, err := s.fetch(ctx, pageURL)
	if err != nil {
		slog.Error("failed to fetch index page", "session", session.Key, "url", pageURL, "error", err)
		return papers
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		slog.Error("failed to parse index page", "session", session.Key, "url", pageURL, "error", err)
		s.evict(pageURL)
		return papers
	}

	if s.SnapshotDir != "" {
		if err := s.snapshot(session, doc); err != nil {
			slog.Warn("failed to save index snapshot", "session", session.Key, "error", err)
		}
	}

	links := ExtractPaperLinks(doc, pageURL, s.Extensions)

	if len(links) == 0 {
		s.evict(pageURL)
	}

	for _, link := range links {
		paper := ParseFilename(link.RawName, session.Key)
		if !ValidFileName(paper.FileName) {
			slog.Warn("skipping link with unusable file name", "session", session.Key, "url", link.URL, "file", paper.FileName)
			continue
		}
		paper.FileURL = link.URL
		papers = append(papers, paper)
	}

	slog.Debug("fetched index page", "session", session.Key, "url", pageURL, "links", len(links))

	return papers
}

func (s *Source) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = config.Default().FetchTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: got %v", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return body, nil
}

// evict drops pageURL from the HTTP cache, if the client has one, so that an
// empty or broken index page is fetched again on the next run.
func (s *Source) evict(pageURL string) {
	c, ok := s.Client.Transport.(*cache.Cache)
	if !ok {
		return
	}
	if err := c.Delete(cache.RequestKey{Method: http.MethodGet, URL: pageURL}); err != nil {
		slog.Warn("failed to evict cached index page", "url", pageURL, "error", err)
		return
	}
	slog.Debug("evicted cached index page", "url", pageURL)
}

func (s *Source) snapshot(session Session, doc *goquery.Document) error {
	html, err := doc.Html()
	if err != nil {
		return fmt.Errorf("failed to render html: %w", err)
	}

	if err := os.MkdirAll(s.SnapshotDir, 0755); err != nil {
		return fmt.Errorf("failed to make directory %s: %w", s.SnapshotDir, err)
	}

	filePath := filepath.Join(s.SnapshotDir, session.Key+".html")
	if err := os.WriteFile(filePath, []byte(gohtml.Format(html)), 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", filePath, err)
	}

	return nil
}

// PaperLink is a downloadable link found on an index page. RawName is the
// last segment of the link's path as it appears in the URL, still percent
// encoded.
type PaperLink struct {
	URL     string
	RawName string
}

// ExtractPaperLinks returns the links of doc that point at files with one of
// the given extensions on the same site as pageURL, resolved to absolute URLs.
func ExtractPaperLinks(doc *goquery.Document, pageURL string, extensions []string) []PaperLink {
	links := []PaperLink{}

	page, err := url.Parse(pageURL)
	if err != nil {
		return links
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		href = strings.ReplaceAll(href, "\\", "/") // old pages use windows paths

		if href == "" {
			return
		}

		target, err := page.Parse(href)
		if err != nil {
			slog.Debug("skipping unparseable link", "href", href, "error", err)
			return
		}

		if !hasExtension(target.Path, extensions) {
			return
		}

		if target.Scheme != "http" && target.Scheme != "https" {
			return
		}

		if !sameSite(page, target) {
			slog.Debug("skipping external link", "href", href)
			return
		}

		links = append(links, PaperLink{
			URL:     target.String(),
			RawName: path.Base(target.EscapedPath()),
		})
	})

	return links
}

func hasExtension(p string, extensions []string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	for _, e := range extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// sameSite reports whether two URLs share a registrable domain, so that
// www.ecexams.co.za and ecexams.co.za count as the same origin.
func sameSite(a, b *url.URL) bool {
	ha := strings.ToLower(a.Hostname())
	hb := strings.ToLower(b.Hostname())

	if ha == hb {
		return true
	}

	da, err := publicsuffix.EffectiveTLDPlusOne(ha)
	if err != nil {
		return false
	}
	db, err := publicsuffix.EffectiveTLDPlusOne(hb)
	if err != nil {
		return false
	}
	return da == db
}

func resolve(base, ref string) (*url.URL, error) {
	b, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	return b.Parse(ref)
}

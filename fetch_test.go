package nsc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlohamalainen/nsc-exam-papers-go/cache"
	"github.com/carlohamalainen/nsc-exam-papers-go/config"
)

const indexPage = `<html><body>
<h1>2024 November Grade 12 NSC Exams</h1>
<table>
<tr><td><a href="papers/2024_November_Gr12_Mathematics_P1_Memo.pdf">Maths P1 memo</a></td></tr>
<tr><td><a href="papers/Physical%20Sciences%20P2%20Afr.PDF">Phys Sci P2</a></td></tr>
<tr><td><a href="papers\Accounting P1.zip">Accounting</a></td></tr>
<tr><td><a href="/setup/Viewer.exe">viewer</a></td></tr>
<tr><td><a href="http://example.com/mirror/History P1.pdf">external</a></td></tr>
<tr><td><a href="2023_November_Gr_12_Exams.htm">previous year</a></td></tr>
<tr><td><a href="mailto:exams@example.org">mail</a></td></tr>
<tr><td><a href="papers/readme.txt">notes</a></td></tr>
<tr><td><a>no href</a></td></tr>
</table>
</body></html>`

func testSource(t *testing.T, handler http.Handler) (*Source, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.BaseURL = server.URL + "/"
	cfg.FetchTimeout = 2 * time.Second

	return NewSource(cfg, server.Client()), server
}

func TestExtractPaperLinks(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(indexPage))
	require.NoError(t, err)

	links := ExtractPaperLinks(doc, "http://www.ecexams.co.za/2024_November_Gr_12_NSC_DBE_Exams.htm", config.Default().Extensions)

	assert.Equal(t, []PaperLink{
		{
			URL:     "http://www.ecexams.co.za/papers/2024_November_Gr12_Mathematics_P1_Memo.pdf",
			RawName: "2024_November_Gr12_Mathematics_P1_Memo.pdf",
		},
		{
			URL:     "http://www.ecexams.co.za/papers/Physical%20Sciences%20P2%20Afr.PDF",
			RawName: "Physical%20Sciences%20P2%20Afr.PDF",
		},
		{
			URL:     "http://www.ecexams.co.za/papers/Accounting%20P1.zip",
			RawName: "Accounting%20P1.zip",
		},
		{
			URL:     "http://www.ecexams.co.za/setup/Viewer.exe",
			RawName: "Viewer.exe",
		},
	}, links)
}

func TestExtractPaperLinks_SameSiteAbsolute(t *testing.T) {
	html := `<a href="http://ecexams.co.za/a/Maths P1.pdf">x</a>
<a href="https://www.ecexams.co.za/b/Maths P2.pdf">y</a>
<a href="http://ecexams.co.za.evil.example/c/Maths P3.pdf">z</a>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	links := ExtractPaperLinks(doc, "http://www.ecexams.co.za/index.htm", []string{".pdf"})

	require.Len(t, links, 2)
	assert.Equal(t, "Maths%20P1.pdf", links[0].RawName)
	assert.Equal(t, "Maths%20P2.pdf", links[1].RawName)
}

func TestFetchSessionPapers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/2024_November_Gr_12_NSC_DBE_Exams.htm", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, config.DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(indexPage))
	})

	src, server := testSource(t, mux)

	papers := src.FetchSessionPapers(context.Background(), Session{
		Key:  "2024_november_gr12_nsc",
		Path: "2024_November_Gr_12_NSC_DBE_Exams.htm",
	})

	require.Len(t, papers, 4)

	maths := papers[0]
	assert.Equal(t, server.URL+"/papers/2024_November_Gr12_Mathematics_P1_Memo.pdf", maths.FileURL)
	assert.Equal(t, "Mathematics", maths.Subject)
	assert.Equal(t, Memo, maths.PaperType)
	assert.Equal(t, 2024, maths.Year)
	assert.Equal(t, November, maths.Session)

	physics := papers[1]
	assert.Equal(t, "Physical Sciences P2 Afr.PDF", physics.FileName)
	assert.Equal(t, "Physical Sciences", physics.Subject)
	assert.Equal(t, Afrikaans, physics.Language)

	assert.Equal(t, "Accounting", papers[2].Subject)
	assert.Equal(t, "Viewer.exe", papers[3].FileName)
}

func TestFetchSessionPapers_HTTPError(t *testing.T) {
	src, _ := testSource(t, http.NotFoundHandler())

	papers := src.FetchSessionPapers(context.Background(), Session{Key: "2024_november_gr12_nsc", Path: "missing.htm"})

	assert.NotNil(t, papers)
	assert.Empty(t, papers)
}

func TestFetchSessionPapers_Timeout(t *testing.T) {
	src, _ := testSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	src.Timeout = 50 * time.Millisecond

	start := time.Now()
	papers := src.FetchSessionPapers(context.Background(), Session{Key: "2024_november_gr12_nsc", Path: "slow.htm"})

	assert.Empty(t, papers)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestFetchSessionPapers_Snapshot(t *testing.T) {
	src, _ := testSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(indexPage))
	}))
	src.SnapshotDir = filepath.Join(t.TempDir(), "snapshots")

	papers := src.FetchSessionPapers(context.Background(), Session{Key: "2023_june_gr12_common", Path: "index.htm"})
	require.Len(t, papers, 4)

	data, err := os.ReadFile(filepath.Join(src.SnapshotDir, "2023_june_gr12_common.html"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "2024 November Grade 12 NSC Exams")
	assert.Contains(t, string(data), "Mathematics_P1_Memo.pdf")
}

func TestFetchSessionPapers_DecodesNamesOnce(t *testing.T) {
	page := `<a href="papers/%252E%252E%252F%252E%252E%252Fescaped.pdf">double</a>
<a href="papers/..%2F..%2F..%2F..%2Fescaped.pdf">slashes</a>
<a href="papers/..%5C..%5Cescaped.pdf">backslashes</a>
<a href="papers/Maths%2520P1.pdf">literal percent</a>`

	src, _ := testSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))

	papers := src.FetchSessionPapers(context.Background(), Session{Key: "2024_november_gr12_nsc", Path: "index.htm"})

	var names []string
	for _, p := range papers {
		names = append(names, p.FileName)
		assert.True(t, ValidFileName(p.FileName), p.FileName)
		assert.True(t, ValidFileName(p.Subject), p.Subject)
	}

	assert.Equal(t, []string{"%2E%2E%2F%2E%2E%2Fescaped.pdf", "Maths%20P1.pdf"}, names)
}

func TestFetchSessionPapers_EvictsEmptyPages(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/empty.htm" {
			w.Write([]byte("<html><body>Under maintenance</body></html>"))
			return
		}
		w.Write([]byte(indexPage))
	}))
	t.Cleanup(server.Close)

	dbPath := filepath.Join(t.TempDir(), "cache.db")
	client, err := cache.NewHTTPClient(&dbPath, 0)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close(client) })

	cfg := config.Default()
	cfg.BaseURL = server.URL + "/"
	src := NewSource(cfg, client)

	full := Session{Key: "2024_november_gr12_nsc", Path: "index.htm"}
	empty := Session{Key: "2024_november_gr12_nsc", Path: "empty.htm"}

	for range 2 {
		assert.Len(t, src.FetchSessionPapers(context.Background(), full), 4)
	}
	assert.EqualValues(t, 1, hits.Load(), "pages with links are served from cache")

	for range 2 {
		assert.Empty(t, src.FetchSessionPapers(context.Background(), empty))
	}
	assert.EqualValues(t, 3, hits.Load(), "empty pages are fetched again")
}

func TestHasExtension(t *testing.T) {
	exts := []string{".zip", ".pdf", ".exe"}

	assert.True(t, hasExtension("/a/b/Maths.PDF", exts))
	assert.True(t, hasExtension("Maths.zip", exts))
	assert.False(t, hasExtension("/a/index.htm", exts))
	assert.False(t, hasExtension("/a/pdf", exts))
	assert.False(t, hasExtension("/a/file.pdf.txt", exts))
}

package nsc

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"
)

// Problem describes one index entry that does not match what is on disk or
// on the source site.
type Problem struct {
	FileName string
	FileURL  string
	Reason   string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s (%s): %s", p.FileName, p.FileURL, p.Reason)
}

// Sanity checks every downloaded paper against the local file it points at.
// Papers that were never downloaded are skipped.
func Sanity(papers []ExamPaper) []Problem {
	problems := []Problem{}

	for _, p := range papers {
		if !p.Downloaded {
			continue
		}

		problem := func(reason string) {
			problems = append(problems, Problem{FileName: p.FileName, FileURL: p.FileURL, Reason: reason})
		}

		if p.LocalPath == nil {
			problem("downloaded but no local path")
			continue
		}

		info, err := os.Stat(*p.LocalPath)
		if err != nil {
			problem(fmt.Sprintf("missing file %s", *p.LocalPath))
			continue
		}

		if !info.Mode().IsRegular() {
			problem(fmt.Sprintf("not a regular file: %s", *p.LocalPath))
			continue
		}

		if p.FileSize != nil && *p.FileSize != info.Size() {
			problem(fmt.Sprintf("size %d on disk, %d in index", info.Size(), *p.FileSize))
		}
	}

	return problems
}

// CompareRun matches the index against the papers a catalog run recorded,
// keyed by PaperID. It reports papers present on only one side and papers
// whose download state or size disagree.
func CompareRun(index, recorded []ExamPaper) []Problem {
	problems := []Problem{}

	byID := make(map[string]ExamPaper, len(recorded))
	for _, p := range recorded {
		byID[PaperID(p)] = p
	}

	matched := make(map[string]bool, len(index))

	for _, p := range index {
		id := PaperID(p)
		r, ok := byID[id]
		if !ok {
			problems = append(problems, Problem{FileName: p.FileName, FileURL: p.FileURL, Reason: "not in catalog run"})
			continue
		}
		matched[id] = true

		if p.Downloaded != r.Downloaded {
			problems = append(problems, Problem{
				FileName: p.FileName,
				FileURL:  p.FileURL,
				Reason:   fmt.Sprintf("downloaded %v in index, %v in catalog", p.Downloaded, r.Downloaded),
			})
			continue
		}

		if size, other := sizeOf(p), sizeOf(r); size != other {
			problems = append(problems, Problem{
				FileName: p.FileName,
				FileURL:  p.FileURL,
				Reason:   fmt.Sprintf("size %s in index, %s in catalog", size, other),
			})
		}
	}

	// Walk recorded again so leftovers come out in run order.
	for _, r := range recorded {
		if !matched[PaperID(r)] {
			problems = append(problems, Problem{FileName: r.FileName, FileURL: r.FileURL, Reason: "missing from index"})
		}
	}

	return problems
}

func sizeOf(p ExamPaper) string {
	if p.FileSize == nil {
		return "unknown"
	}
	return fmt.Sprint(*p.FileSize)
}

// ValidateLink sends a HEAD request for a paper's URL and reports whether the
// server answers 200 with something other than an HTML page.
//
// The function returns (false, nil) when the server is reachable but the link
// looks dead, e.g. a "page not found" document served with status 200.
func ValidateLink(ctx context.Context, client *http.Client, url string, timeout time.Duration, userAgent string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("error creating request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("link check", "url", url, "status", resp.StatusCode)
		return false, nil
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mediaType, "text/") {
		return false, nil
	}

	return true, nil
}

// CheckLinks runs ValidateLink over every paper in the index that has not
// been downloaded, one request per interval.
func CheckLinks(ctx context.Context, client *http.Client, papers []ExamPaper, interval, timeout time.Duration, userAgent string) ([]Problem, error) {
	problems := []Problem{}
	pacer := newPacer(interval)

	for _, p := range papers {
		if p.Downloaded {
			continue
		}

		if err := pacer.Wait(ctx); err != nil {
			return problems, err
		}

		ok, err := ValidateLink(ctx, client, p.FileURL, timeout, userAgent)
		switch {
		case err != nil:
			problems = append(problems, Problem{FileName: p.FileName, FileURL: p.FileURL, Reason: err.Error()})
		case !ok:
			problems = append(problems, Problem{FileName: p.FileName, FileURL: p.FileURL, Reason: "dead link"})
		}
	}

	return problems, nil
}

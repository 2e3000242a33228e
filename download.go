package nsc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/carlohamalainen/nsc-exam-papers-go/config"
)

// ErrUnsafePath is returned for papers whose subject or file name would place
// them outside their folder under the output root.
var ErrUnsafePath = errors.New("paper path escapes output directory")

// ValidFileName reports whether name can be used as a single path element.
func ValidFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

type DownloadOptions struct {
	Root      string
	DryRun    bool
	Timeout   time.Duration
	UserAgent string
}

// PaperDir is where a paper is filed: root/year/session/grade_N/subject.
func PaperDir(root string, paper ExamPaper) string {
	return filepath.Join(
		root,
		strconv.Itoa(paper.Year),
		string(paper.Session),
		fmt.Sprintf("grade_%d", paper.Grade),
		paper.Subject,
	)
}

// DownloadPaper fetches a paper into its place under opts.Root and returns an
// updated copy of the record; the argument is not modified. LocalPath is set
// unless the paper's subject or file name cannot be placed under opts.Root, in
// which case ErrUnsafePath is returned. A file that is already on disk is not
// fetched again. In a dry run nothing on disk is touched. On error the
// returned copy has Downloaded false.
func DownloadPaper(ctx context.Context, client *http.Client, paper ExamPaper, opts DownloadOptions) (ExamPaper, error) {
	folder := PaperDir(opts.Root, paper)
	localPath := filepath.Join(folder, paper.FileName)

	if !ValidFileName(paper.FileName) || !ValidFileName(paper.Subject) || !within(opts.Root, localPath) {
		return paper, fmt.Errorf("%w: subject %q, file %q", ErrUnsafePath, paper.Subject, paper.FileName)
	}

	paper.LocalPath = &localPath

	if opts.DryRun {
		slog.Info("dry run, would download", "url", paper.FileURL, "filepath", localPath)
		return paper, nil
	}

	if info, err := os.Stat(localPath); err == nil && info.Mode().IsRegular() {
		size := info.Size()
		paper.Downloaded = true
		paper.FileSize = &size
		slog.Debug("already downloaded", "filepath", localPath, "size", size)
		return paper, nil
	}

	if err := os.MkdirAll(folder, 0755); err != nil {
		return paper, fmt.Errorf("failed to make directory %s: %w", folder, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = config.Default().DownloadTimeout
	}

	t0 := time.Now()

	size, err := DownloadFile(ctx, client, paper.FileURL, localPath, timeout, opts.UserAgent)
	if err != nil {
		return paper, fmt.Errorf("failed to download %s: %w", paper.FileURL, err)
	}

	slog.Info("downloaded", "url", paper.FileURL, "size", size, "duration_ms", time.Since(t0).Milliseconds())

	paper.Downloaded = true
	paper.FileSize = &size

	return paper, nil
}

// within reports whether target lies strictly below root.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

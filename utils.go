package nsc

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrNotAFile is returned when the server answers a file request with an HTML
// page, which is how the site reports missing files.
var ErrNotAFile = errors.New("response is an html page, not a file")

// DownloadFile streams url into destPath and returns the number of bytes
// written. The body goes to a temporary file next to destPath that is renamed
// into place only once the transfer completes, so destPath either does not
// exist or holds a whole file.
func DownloadFile(ctx context.Context, client *http.Client, url string, destPath string, timeout time.Duration, userAgent string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: got %v", resp.StatusCode)
	}

	if isHTML(resp.Header.Get("Content-Type")) {
		return 0, ErrNotAFile
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to write %s: %w", destPath, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to move download into place: %w", err)
	}

	slog.Debug("saved", "url", url, "size", n, "filepath", destPath)

	return n, nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html"
}

func Sha256sum(x []byte) string {
	h := sha256.New()
	h.Write(x)

	return fmt.Sprintf("%x", h.Sum(nil))
}

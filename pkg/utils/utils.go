// Package utils provides HTTP fetching and on-disk storage helpers shared by
// the viewer and the report tooling.
package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("file not found on server")

// MaxBodySize bounds how much a single fetch may read.
const MaxBodySize = 16 << 20

type progressWriter struct {
	io.Writer
	total  uint64
	last   uint64
	label  string
	logger zerolog.Logger
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.total += uint64(n)
	if pw.total-pw.last > 5*1024*1024 { // Log every 5MB
		pw.logger.Info().Str("file", pw.label).Uint64("mb", pw.total/1024/1024).Msg("Downloading")
		pw.last = pw.total
	}
	return n, err
}

func closeBody(resp *http.Response, logger zerolog.Logger) {
	if err := resp.Body.Close(); err != nil {
		logger.Warn().Err(err).Msg("Error closing response body")
	}
}

func get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}
	return resp, nil
}

// FetchBytes GETs url and returns the body, capped at MaxBodySize.
func FetchBytes(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	resp, err := get(ctx, client, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxBodySize {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", url, MaxBodySize)
	}
	return data, nil
}

// DownloadFile downloads a file from a URL to a local path safely.
func DownloadFile(ctx context.Context, url, path string, logger zerolog.Logger) error {
	resp, err := get(ctx, nil, url)
	if err != nil {
		return err
	}
	defer closeBody(resp, logger)

	// Create a temp file in the same directory to ensure atomic move
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	defer func() {
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("file", tmpName).Msg("Error removing temp file")
		}
	}() // Clean up if we fail

	pw := &progressWriter{Writer: tmpFile, label: filepath.Base(path), logger: logger}
	if _, err := io.Copy(pw, resp.Body); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	// Atomic rename to final path
	return os.Rename(tmpName, path)
}

// IsURL reports whether src names a remote http(s) resource.
func IsURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// CacheFileName returns the local filename used to cache url.
func CacheFileName(url string) string {
	urlParts := strings.Split(strings.TrimRight(url, "/"), "/")
	fileName := urlParts[len(urlParts)-1]
	if i := strings.IndexAny(fileName, "?#"); i >= 0 {
		fileName = fileName[:i]
	}
	if fileName == "" {
		fileName = "index"
	}
	return fileName
}

// OpenSource opens a local path or a remote URL. Remote sources are cached
// under cacheDir when it is non-empty.
func OpenSource(ctx context.Context, src, cacheDir string, logger zerolog.Logger) (io.ReadCloser, error) {
	if !IsURL(src) {
		return os.Open(src)
	}
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
		localPath := filepath.Join(cacheDir, CacheFileName(src))

		if _, err := os.Stat(localPath); os.IsNotExist(err) {
			logger.Info().Str("url", src).Msg("Downloading")
			if err := DownloadFile(ctx, src, localPath, logger); err != nil {
				return nil, err // Return the error directly so caller can see ErrNotFound
			}
		} else {
			logger.Info().Str("path", localPath).Msg("Using cached file")
		}
		f, err := os.Open(localPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		return f, nil
	}

	logger.Info().Str("url", src).Msg("Streaming")
	resp, err := get(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Package artifact downloads remote model artifacts into a local cache.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/samcharles93/lmpeek/internal/logger"
)

// FetchError reports a failed or non-2xx download.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SaveError reports a failure writing an artifact into the cache.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string { return fmt.Sprintf("save %s: %v", e.Path, e.Err) }

func (e *SaveError) Unwrap() error { return e.Err }

// Store is a content cache keyed by source URL.
type Store struct {
	dir  string
	http *http.Client
	log  logger.Logger

	locks sync.Map // key -> *sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.http = c }
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// DefaultDir is $XDG_CACHE_HOME/lmpeek or its platform equivalent.
func DefaultDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "lmpeek")
}

// New returns a store caching under dir. Empty dir selects DefaultDir.
func New(dir string, opts ...Option) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	s := &Store{
		dir:  dir,
		http: &http.Client{Timeout: 30 * time.Minute},
		log:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir is the cache directory.
func (s *Store) Dir() string { return s.dir }

// Path is where url is cached, whether or not it has been fetched yet.
func (s *Store) Path(url string) string {
	sum := sha256.Sum256([]byte(url))
	name := hex.EncodeToString(sum[:])
	if ext := path.Ext(url); ext != "" && len(ext) <= 10 {
		name += ext
	}
	return filepath.Join(s.dir, name)
}

// FetchOrLoadCached returns the local path of url, downloading it first
// when it is not cached.
func (s *Store) FetchOrLoadCached(ctx context.Context, url string) (string, error) {
	dst := s.Path(url)
	mu, _ := s.locks.LoadOrStore(dst, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	if fi, err := os.Stat(dst); err == nil && fi.Mode().IsRegular() {
		s.log.Debug("artifact cache hit", "url", url, "path", dst)
		return dst, nil
	}

	start := time.Now()
	n, err := s.download(ctx, url, dst)
	if err != nil {
		return "", err
	}
	s.log.Info("artifact fetched", "url", url, "path", dst, "bytes", n, "duration_ms", time.Since(start).Milliseconds())
	return dst, nil
}

// Read returns the content of url through the cache.
func (s *Store) Read(ctx context.Context, url string) ([]byte, error) {
	p, err := s.FetchOrLoadCached(ctx, url)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, &SaveError{Path: p, Err: err}
	}
	return data, nil
}

func (s *Store) download(ctx context.Context, url, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &FetchError{URL: url, Err: err}
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return 0, &FetchError{URL: url, Status: resp.StatusCode}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, &SaveError{Path: s.dir, Err: err}
	}
	tmp, err := os.CreateTemp(s.dir, ".fetch-*")
	if err != nil {
		return 0, &SaveError{Path: dst, Err: err}
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		_ = tmp.Close()
		// A body cut short is a transport failure, not a disk one.
		if ctx.Err() != nil || !isWriteError(err) {
			return 0, &FetchError{URL: url, Err: err}
		}
		return 0, &SaveError{Path: dst, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return 0, &SaveError{Path: dst, Err: err}
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, &SaveError{Path: dst, Err: err}
	}
	return n, nil
}

func isWriteError(err error) bool {
	var pe *os.PathError
	return errors.As(err, &pe)
}

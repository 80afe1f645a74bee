package ld

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/felixgeelhaar/activityflow/internal/log"
)

// Fetcher retrieves the raw bytes behind a document reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, ref string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, ref string) ([]byte, error) {
	return f(ctx, ref)
}

// MuxFetcher routes references to a Fetcher by URL scheme.
type MuxFetcher struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

// NewMuxFetcher returns an empty MuxFetcher.
func NewMuxFetcher() *MuxFetcher {
	return &MuxFetcher{fetchers: make(map[string]Fetcher)}
}

// Handle registers f for scheme, replacing any earlier registration.
func (m *MuxFetcher) Handle(scheme string, f Fetcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchers[strings.ToLower(scheme)] = f
}

// Fetch dispatches ref to the fetcher registered for its scheme.
func (m *MuxFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	scheme := Scheme(ref)

	m.mu.RLock()
	f, ok := m.fetchers[scheme]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no fetcher registered for scheme %q", scheme)
	}
	return f.Fetch(ctx, ref)
}

// Scheme returns the lower-cased scheme of ref. Bare paths, including
// Windows drive paths, report "file".
func Scheme(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || len(u.Scheme) <= 1 {
		return "file"
	}
	return strings.ToLower(u.Scheme)
}

// NormalizeRef turns a bare filesystem path into an absolute file:// URL so
// that relative references inside the document resolve against it. Any other
// reference is returned unchanged.
func NormalizeRef(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty document reference")
	}
	u, err := url.Parse(ref)
	if err == nil && len(u.Scheme) > 1 {
		return ref, nil
	}
	abs, err := filepath.Abs(ref)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", ref, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// FileFetcher reads documents from the local filesystem.
type FileFetcher struct{}

// Fetch reads the file named by a file:// URL or bare path.
func (FileFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := ref
	if u, err := url.Parse(ref); err == nil && u.Scheme == "file" {
		path = filepath.FromSlash(u.Path)
	}
	return os.ReadFile(path)
}

// NewDefaultFetcher returns a MuxFetcher serving file, http, https and oci
// references.
func NewDefaultFetcher(httpCfg HTTPConfig, logger *log.Logger, ociOpts ...OCIOption) *MuxFetcher {
	mux := NewMuxFetcher()
	web := NewHTTPFetcher(httpCfg, logger)
	mux.Handle("file", FileFetcher{})
	mux.Handle("http", web)
	mux.Handle("https", web)
	mux.Handle("oci", NewOCIFetcher(ociOpts...))
	return mux
}

package ld

import (
	"context"
	"fmt"
	"sync"
)

// memFetcher serves documents from memory and counts fetches per ref.
type memFetcher struct {
	mu    sync.Mutex
	docs  map[string]string
	calls map[string]int
}

func newMemFetcher(docs map[string]string) *memFetcher {
	return &memFetcher{docs: docs, calls: make(map[string]int)}
}

func (m *memFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[ref]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, ok := m.docs[ref]
	if !ok {
		return nil, fmt.Errorf("404 %s", ref)
	}
	return []byte(doc), nil
}

func (m *memFetcher) count(ref string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[ref]
}

package ld

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/metrics"
)

// CachingResolver memoizes successful resolutions in an LRU keyed by ref.
// Concurrent misses for the same ref share one underlying resolution.
// Failures are never cached.
type CachingResolver struct {
	next    DocumentResolver
	cache   *lru.Cache[string, *Document]
	group   singleflight.Group
	metrics *metrics.Metrics
}

// NewCachingResolver wraps next with an LRU of the given size.
func NewCachingResolver(next DocumentResolver, size int, m *metrics.Metrics) (*CachingResolver, error) {
	cache, err := lru.New[string, *Document](size)
	if err != nil {
		return nil, fmt.Errorf("create resolver cache: %w", err)
	}
	return &CachingResolver{next: next, cache: cache, metrics: m}, nil
}

// Resolve returns the cached document for ref or resolves it.
//
// The shared resolution is detached from any single caller's cancellation;
// each caller stops waiting when its own ctx is done, and the others still
// receive the document.
func (c *CachingResolver) Resolve(ctx context.Context, ref string) (*Document, error) {
	if doc, ok := c.cache.Get(ref); ok {
		c.metrics.ObserveCache(true)
		return doc, nil
	}
	c.metrics.ObserveCache(false)

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(ref, func() (any, error) {
		doc, err := c.next.Resolve(shared, ref)
		if err != nil {
			return nil, err
		}
		c.cache.Add(ref, doc)
		return doc, nil
	})

	select {
	case <-ctx.Done():
		return nil, aferrors.NewFetchError(ref, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Document), nil
	}
}

// Purge drops every cached document.
func (c *CachingResolver) Purge() {
	c.cache.Purge()
}

// Len reports the number of cached documents.
func (c *CachingResolver) Len() int {
	return c.cache.Len()
}

package ld

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	jsonld "github.com/piprate/json-gold/ld"
	"go.opentelemetry.io/otel/attribute"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/log"
	"github.com/felixgeelhaar/activityflow/internal/metrics"
	"github.com/felixgeelhaar/activityflow/internal/telemetry"
)

// Document is one resolved linked-data document.
// Documents may be shared between callers and must be treated as read-only.
type Document struct {
	// Ref is the absolute reference the document was fetched from.
	Ref string
	// Node is the node whose @id matches Ref, or the first node.
	Node Node
	// Nodes holds every top-level node of the expansion.
	Nodes []Node
	// Digest is the blake3 digest of the raw bytes.
	Digest string
}

// DocumentResolver fetches and expands documents.
type DocumentResolver interface {
	Resolve(ctx context.Context, ref string) (*Document, error)
}

// Resolver fetches a document, expands it with JSON-LD expansion and picks
// its primary node. It never retries; that is left to the Fetcher.
type Resolver struct {
	fetcher  Fetcher
	contexts *lru.Cache[string, []byte]
	logger   *log.Logger
	metrics  *metrics.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) { r.logger = l.WithComponent("resolver") }
}

// WithMetrics records resolutions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithContextCacheSize sets how many remote @context documents are kept.
// Zero disables the context cache.
func WithContextCacheSize(n int) Option {
	return func(r *Resolver) {
		if n <= 0 {
			r.contexts = nil
			return
		}
		r.contexts, _ = lru.New[string, []byte](n)
	}
}

// NewResolver returns a Resolver reading documents through fetcher.
func NewResolver(fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher: fetcher,
		logger:  log.Discard(),
	}
	r.contexts, _ = lru.New[string, []byte](64)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches and expands ref. Every failure is a RESOLVE-00x error.
func (r *Resolver) Resolve(ctx context.Context, ref string) (doc *Document, err error) {
	start := time.Now()
	ctx, span := telemetry.StartResolveSpan(ctx, ref)
	defer func() {
		r.metrics.ObserveResolution(Scheme(ref), err, time.Since(start))
		telemetry.End(span, err, attribute.Int("ld.nodes", nodeCount(doc)))
	}()

	abs, err := NormalizeRef(ref)
	if err != nil {
		return nil, aferrors.NewFetchError(ref, err)
	}

	raw, err := r.fetcher.Fetch(ctx, abs)
	if err != nil {
		r.logger.DebugContext(ctx, "fetch failed", "ref", abs, "error", err)
		return nil, aferrors.NewFetchError(ref, err)
	}

	parsed, err := jsonld.DocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, aferrors.NewExpandError(ref, fmt.Errorf("not a JSON document: %w", err))
	}

	opts := jsonld.NewJsonLdOptions(abs)
	opts.DocumentLoader = &contextLoader{ctx: ctx, resolver: r}

	expanded, err := jsonld.NewJsonLdProcessor().Expand(parsed, opts)
	if err != nil {
		return nil, aferrors.NewExpandError(ref, err)
	}

	nodes := make([]Node, 0, len(expanded))
	for _, item := range expanded {
		if m, ok := item.(map[string]any); ok {
			nodes = append(nodes, Node(m))
		}
	}
	if len(nodes) == 0 {
		return nil, aferrors.NewExpandError(ref, errors.New("document expanded to no nodes"))
	}

	primary := nodes[0]
	for _, n := range nodes {
		if n.Self() == abs {
			primary = n
			break
		}
	}

	r.logger.DebugContext(ctx, "resolved document", "ref", abs, "nodes", len(nodes), "bytes", len(raw))

	return &Document{
		Ref:    abs,
		Node:   primary,
		Nodes:  nodes,
		Digest: Digest(raw),
	}, nil
}

func nodeCount(doc *Document) int {
	if doc == nil {
		return 0
	}
	return len(doc.Nodes)
}

// contextLoader serves remote @context documents through the resolver's
// fetcher for the duration of one expansion.
type contextLoader struct {
	ctx      context.Context
	resolver *Resolver
}

func (l *contextLoader) LoadDocument(u string) (*jsonld.RemoteDocument, error) {
	raw, err := l.load(u)
	if err != nil {
		return nil, jsonld.NewJsonLdError(jsonld.LoadingDocumentFailed, err)
	}
	doc, err := jsonld.DocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, jsonld.NewJsonLdError(jsonld.LoadingDocumentFailed, err)
	}
	return &jsonld.RemoteDocument{DocumentURL: u, Document: doc}, nil
}

func (l *contextLoader) load(u string) ([]byte, error) {
	cache := l.resolver.contexts
	if cache != nil {
		if raw, ok := cache.Get(u); ok {
			return raw, nil
		}
	}
	raw, err := l.resolver.fetcher.Fetch(l.ctx, u)
	if err != nil {
		return nil, fmt.Errorf("load context %s: %w", u, err)
	}
	if cache != nil {
		cache.Add(u, raw)
	}
	return raw, nil
}

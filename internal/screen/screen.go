// Package screen builds the model of one questionnaire screen from its
// linked-data document and the constraints document it references.
package screen

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/ld"
	"github.com/felixgeelhaar/activityflow/internal/log"
	"github.com/felixgeelhaar/activityflow/internal/metrics"
	"github.com/felixgeelhaar/activityflow/internal/telemetry"
)

// Property keys read from screen documents.
const (
	KeyQuestion         = "http://schema.org/question"
	KeyInputType        = "https://schema.repronim.org/inputType"
	KeyValueConstraints = "https://schema.repronim.org/valueconstraints"
)

// Model is everything a renderer needs to show one screen.
type Model struct {
	Ref       string
	Question  string
	InputType string

	// ConstraintsRef is empty when the screen has no constraints or embeds them.
	ConstraintsRef string
	// Constraints is nil when the screen carries no constraints.
	Constraints ld.Node
}

// HasConstraints reports whether constraints were found for the screen.
func (m *Model) HasConstraints() bool {
	return m != nil && m.Constraints != nil
}

// Builder turns screen references into Models. It never memoizes.
type Builder struct {
	resolver ld.DocumentResolver
	logger   *log.Logger
	metrics  *metrics.Metrics
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the builder logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Builder) { b.logger = l.WithComponent("screen") }
}

// WithMetrics records builds on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// NewBuilder returns a Builder resolving documents through resolver.
func NewBuilder(resolver ld.DocumentResolver, opts ...Option) *Builder {
	b := &Builder{resolver: resolver, logger: log.Discard()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build resolves the screen document at ref and then its constraints.
//
// A screen missing its question or input type fails with SCREEN-001 and no
// model. A constraints reference that cannot be resolved fails the build
// with the resolver's error.
func (b *Builder) Build(ctx context.Context, ref string) (model *Model, err error) {
	start := time.Now()
	ctx, span := telemetry.StartScreenSpan(ctx, ref)
	defer func() {
		inputType := ""
		if model != nil {
			inputType = model.InputType
		}
		b.metrics.ObserveScreenBuild(inputType, err, time.Since(start))
		telemetry.End(span, err, attribute.String("screen.input_type", inputType))
	}()

	doc, err := b.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	node := doc.Node

	question, ok := node.String(KeyQuestion)
	if !ok {
		return nil, aferrors.NewMalformedScreenError(ref, "question")
	}
	inputType, ok := node.String(KeyInputType)
	if !ok {
		return nil, aferrors.NewMalformedScreenError(ref, "inputType")
	}

	m := &Model{
		Ref:       ref,
		Question:  question,
		InputType: inputType,
	}

	if embedded, ok := node.Embedded(KeyValueConstraints); ok {
		m.Constraints = embedded
	} else if cref, ok := node.ID(KeyValueConstraints); ok {
		cdoc, err := b.resolver.Resolve(ctx, cref)
		if err != nil {
			b.logger.WarnContext(ctx, "constraints unavailable", "screen", ref, "constraints", cref, "error", err)
			return nil, err
		}
		m.ConstraintsRef = cref
		m.Constraints = cdoc.Node
	} else {
		b.logger.DebugContext(ctx, "screen has no constraints", "screen", ref, "input_type", inputType)
	}

	return m, nil
}

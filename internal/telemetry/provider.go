package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var current atomic.Pointer[trace.TracerProvider]

func setProvider(tp trace.TracerProvider) {
	if tp == nil {
		current.Store(nil)
		return
	}
	current.Store(&tp)
	otel.SetTracerProvider(tp)
}

// GetTracerProvider returns the provider installed by InitProvider, or a
// noop provider before that.
func GetTracerProvider() trace.TracerProvider {
	if tp := current.Load(); tp != nil {
		return *tp
	}
	return noop.NewTracerProvider()
}

// errExportPaused is returned while the exporter waits out a failing collector.
var errExportPaused = errors.New("span export paused after repeated failures")

// exportRetrier retries each batch with exponential backoff. After
// pauseAfter consecutive failed batches it drops batches until pauseFor
// has passed, so an absent collector does not stall every command.
type exportRetrier struct {
	next       sdktrace.SpanExporter
	maxTries   uint
	maxElapsed time.Duration
	pauseAfter int
	pauseFor   time.Duration
	now        func() time.Time

	mu          sync.Mutex
	failures    int
	pausedUntil time.Time
}

func newExportRetrier(next sdktrace.SpanExporter) *exportRetrier {
	return &exportRetrier{
		next:       next,
		maxTries:   5,
		maxElapsed: 10 * time.Second,
		pauseAfter: 5,
		pauseFor:   30 * time.Second,
		now:        time.Now,
	}
}

func (e *exportRetrier) paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now().Before(e.pausedUntil)
}

func (e *exportRetrier) record(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		e.failures = 0
		return
	}
	e.failures++
	if e.failures >= e.pauseAfter {
		e.pausedUntil = e.now().Add(e.pauseFor)
		e.failures = 0
	}
}

func (e *exportRetrier) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.paused() {
		return errExportPaused
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, e.next.ExportSpans(ctx, spans)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(e.maxTries),
		backoff.WithMaxElapsedTime(e.maxElapsed),
	)
	e.record(err)
	if err != nil {
		return fmt.Errorf("export %d spans: %w", len(spans), err)
	}
	return nil
}

func (e *exportRetrier) Shutdown(ctx context.Context) error {
	return e.next.Shutdown(ctx)
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
		resource.WithProcessRuntimeDescription(),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
}

func sampler(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// InitProvider installs the tracer provider described by cfg as the global
// provider and returns the function that flushes and stops it. A disabled
// config installs a noop provider. Without an endpoint spans are sampled
// and recorded but never leave the process.
func InitProvider(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		setProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	}

	if cfg.Endpoint != "" {
		exporterOpts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(newExportRetrier(exporter),
			sdktrace.WithBatchTimeout(5*time.Second),
		))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	setProvider(tp)
	return tp.Shutdown, nil
}

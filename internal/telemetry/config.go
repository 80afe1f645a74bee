package telemetry

// Config holds configuration for the tracer
type Config struct {
	// ServiceName is the name of the service
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, production)
	Environment string

	// Enabled determines whether tracing is enabled.
	// When false, a noop tracer is used.
	Enabled bool

	// Endpoint is the OTLP/HTTP collector endpoint (host:port).
	// If empty, spans are recorded but never exported.
	Endpoint string

	// Insecure disables TLS towards the collector
	Insecure bool

	// SampleRate is the fraction of traces to sample (0.0 to 1.0)
	SampleRate float64
}

// DefaultConfig returns the configuration used when nothing is set.
// Tracing is off for interactive use.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "activityflow",
		ServiceVersion: "dev",
		Environment:    "development",
		Enabled:        false,
		SampleRate:     1.0,
	}
}

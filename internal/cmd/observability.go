package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/activityflow/internal/config"
	"github.com/felixgeelhaar/activityflow/internal/log"
	"github.com/felixgeelhaar/activityflow/internal/metrics"
	"github.com/felixgeelhaar/activityflow/internal/telemetry"
	"github.com/felixgeelhaar/activityflow/internal/version"
)

// logsAnnotation marks commands that log to stderr instead of the log file.
const logsAnnotation = "activityflow/logs"

// setupObservability configures logging, metrics, and optional telemetry for
// cmd and opens its command span. The returned cleanup ends the span and
// flushes everything.
func setupObservability(ctx context.Context, cmd *cobra.Command, cc *CommandContext) (context.Context, func()) {
	logCleanup := setupLogging(cmd, cc)
	cc.Metrics = metrics.InitDefault()
	telemetryCleanup := setupTelemetry(ctx, cc)

	ctx, span := telemetry.StartCommandSpan(ctx, cmd.Name())

	return ctx, func() {
		span.End()
		telemetryCleanup()
		logCleanup()
	}
}

func setupLogging(cmd *cobra.Command, cc *CommandContext) func() {
	info := version.GetInfo()
	cfg := cc.Config

	// Validate has already rejected unknown names.
	level, _ := log.ParseLevel(cfg.Logging.Level)
	format, _ := log.ParseFormat(cfg.Logging.Format)

	output, closer := configureLogOutput(cmd, cfg)

	logger := log.New(log.Config{
		Level:          level,
		Format:         format,
		Output:         output,
		ServiceName:    "activityflow",
		ServiceVersion: info.Version,
	})

	log.SetDefaultLogger(logger)
	cc.Logger = logger

	return func() {
		if closer != nil {
			_ = closer.Close()
		}
	}
}

// configureLogOutput keeps records off the terminal: the server logs to
// stderr, every other command to logging.file, or nowhere when it is unset.
func configureLogOutput(cmd *cobra.Command, cfg *config.Config) (log.Output, io.Closer) {
	if cmd.Annotations[logsAnnotation] == "stderr" {
		return log.OutputStderr(), nil
	}

	if cfg.Logging.File == "" {
		return log.OutputDiscard(), nil
	}

	output, closer, err := log.OutputFile(config.ExpandHome(cfg.Logging.File))
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: logging disabled: %v\n", err)
		return log.OutputDiscard(), nil
	}
	return output, closer
}

func setupTelemetry(ctx context.Context, cc *CommandContext) func() {
	if !telemetryRequested(cc.Config) {
		return func() {}
	}

	info := version.GetInfo()
	telemCfg := cc.Config.TelemetryConfig(info.Version)
	telemCfg.Environment = telemetryEnvironment()

	shutdown, err := telemetry.InitProvider(ctx, telemCfg)
	if err != nil {
		cc.Logger.Warn("Failed to initialize telemetry", "error", err)
		return func() {}
	}

	cc.Logger.Info("Telemetry enabled",
		"endpoint", telemCfg.Endpoint,
		"sample_rate", telemCfg.SampleRate,
	)

	return func() {
		if shutdown == nil {
			return
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := shutdown(shutdownCtx); err != nil {
			cc.Logger.Warn("Failed to flush telemetry", "error", err)
		}
	}
}

func telemetryRequested(cfg *config.Config) bool {
	return cfg != nil && cfg.Telemetry.Enabled
}

func telemetryEnvironment() string {
	if env := os.Getenv(config.EnvPrefix + "ENV"); env != "" {
		return env
	}
	return "cli"
}

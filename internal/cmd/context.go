package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/activityflow/internal/config"
	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/log"
	"github.com/felixgeelhaar/activityflow/internal/metrics"
	"github.com/felixgeelhaar/activityflow/internal/ux"
)

// CommandContext holds the resolved flags and configuration of one command
// invocation, so commands do not read package-level state.
type CommandContext struct {
	// Output control
	Format  string
	NoColor bool

	// Configuration
	ConfigPath string
	Config     *config.Config

	// Set up by setupCommand
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// NewCommandContext loads the configuration and applies the persistent
// flags over it. Flags win over the file and the environment.
//
//	func runCommand(cmd *cobra.Command, args []string) error {
//		cc, err := commandContext(cmd)
//		if err != nil {
//			return err
//		}
//		// Use cc.Config, cc.Logger, etc.
//	}
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return nil, err
	}

	noColor, err := cmd.Flags().GetBool("no-color")
	if err != nil {
		return nil, err
	}

	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}

	logFormat, err := cmd.Flags().GetString("log-format")
	if err != nil {
		return nil, err
	}

	if configPath == "" {
		if configPath, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if format == "" {
		format = cfg.Defaults.Format
	}
	switch format {
	case "":
		format = "text"
	case "text", "json", "yaml":
	default:
		return nil, aferrors.New(aferrors.ErrCodeConfigInvalid, fmt.Sprintf("unknown format: %s (supported: text, json, yaml)", format))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &CommandContext{
		Format:     format,
		NoColor:    noColor || cfg.Defaults.NoColor,
		ConfigPath: configPath,
		Config:     cfg,
		Logger:     log.Discard(),
	}, nil
}

// Formatter returns the output formatter selected by --format.
func (c *CommandContext) Formatter(w io.Writer) (ux.Formatter, error) {
	return ux.NewFormatter(c.Format, &ux.FormatterOptions{
		Writer:  w,
		NoColor: c.NoColor,
	})
}

type commandContextKey struct{}

func withCommandContext(ctx context.Context, cc *CommandContext) context.Context {
	return context.WithValue(ctx, commandContextKey{}, cc)
}

// commandContext returns the context setupCommand stored on cmd, building a
// fresh one when the command runs without the root's pre-run hook.
func commandContext(cmd *cobra.Command) (*CommandContext, error) {
	if ctx := cmd.Context(); ctx != nil {
		if cc, ok := ctx.Value(commandContextKey{}).(*CommandContext); ok {
			return cc, nil
		}
	}
	return NewCommandContext(cmd)
}

// contextOf returns cmd's context, never nil.
func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

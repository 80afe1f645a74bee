package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "activityflow",
	Short: "Walk linked-data questionnaires screen by screen",
	Long: `activityflow resolves an activity document (a JSON-LD questionnaire) and walks
its screens one at a time. Screens, answer options and contexts are fetched
from files, http(s) URLs or OCI registries, and every answer is saved to a
resumable session.

Examples:
  # Take an activity in the terminal UI
  activityflow run https://example.org/activities/phq9.jsonld

  # Pick an activity from the configured catalog
  activityflow run

  # Answer with plain numbered prompts (screen readers, scripts)
  activityflow take ./phq9.jsonld

  # Serve the session API
  activityflow serve --address :8080
`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupCommand,
}

// observabilityCleanup flushes what setupCommand started. It is replaced on
// every execution.
var observabilityCleanup = func() {}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, flushing logs and traces
// before it returns.
func ExecuteContext(ctx context.Context) error {
	defer func() {
		observabilityCleanup()
		observabilityCleanup = func() {}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default is $HOME/.activityflow/config.yaml)")
	pf.String("format", "", "output format: text, json or yaml (default from config)")
	pf.Bool("no-color", false, "disable colored output")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-format", "", "log format: text or json")
}

// setupCommand loads the configuration for the command being run and starts
// logging, metrics and tracing for it.
func setupCommand(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cleanup := setupObservability(ctx, cmd, cc)
	observabilityCleanup = cleanup

	cmd.SetContext(withCommandContext(ctx, cc))
	return nil
}

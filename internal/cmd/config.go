package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/activityflow/internal/config"
	"github.com/felixgeelhaar/activityflow/internal/ux"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or edit activityflow configuration",
	Long: `Manage the global configuration stored at ~/.activityflow/config.yaml

Configuration includes:
  • The activity catalog
  • Resolver timeouts, retries and caching
  • The session store
  • Logging and tracing

ACTIVITYFLOW_* environment variables and a .env file in the working
directory override the file.

Examples:
  # View the effective configuration
  activityflow config view

  # Edit configuration in $EDITOR
  activityflow config edit

  # Get a specific value
  activityflow config get store.dsn

  # Set a specific value
  activityflow config set resolver.timeout 30s

  # Show configuration file path
  activityflow config path
`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Display current configuration",
	Long:  `Display the effective configuration (file, .env and environment) in the selected format.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigView,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration in $EDITOR",
	Long:  `Open the configuration file in your default editor (from $EDITOR environment variable).`,
	Args:  cobra.NoArgs,
	RunE:  runConfigEdit,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  `Retrieve the effective value of a configuration key using dot notation (e.g., resolver.timeout).`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a specific configuration value",
	Long:  `Set a configuration key using dot notation (e.g., store.dsn ~/.activityflow/sessions.db) and save the file.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the global configuration file.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)

	rootCmd.AddCommand(configCmd)
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}

	// Use formatter for JSON/YAML output
	if cc.Format == "json" || cc.Format == "yaml" {
		formatter, err := cc.Formatter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return formatter.Format(cc.Config)
	}

	// Text output
	data, err := yaml.Marshal(cc.Config)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration file: %s\n\n%s", cc.ConfigPath, data)
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}

	// Write the defaults first so the editor has something to show.
	if _, err := os.Stat(cc.ConfigPath); os.IsNotExist(err) {
		if err := config.Default().Save(cc.ConfigPath); err != nil {
			return ux.FormatError(err, "creating configuration")
		}
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	editorCmd := exec.CommandContext(contextOf(cmd), editor, cc.ConfigPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("failed to run editor: %w", err)
	}

	edited, err := config.ReadFile(cc.ConfigPath)
	if err == nil {
		err = edited.Validate()
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Configuration may contain errors: %v\n", err)
		fmt.Fprintf(cmd.ErrOrStderr(), "Please check and fix the configuration file.\n")
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration updated successfully")
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}

	value, err := cc.Config.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get value: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}

	// Edit the file alone so environment overrides are not persisted.
	cfg, err := config.ReadFile(cc.ConfigPath)
	if err != nil {
		return ux.FormatError(err, "loading configuration")
	}

	if err := cfg.Set(key, value); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := cfg.Save(cc.ConfigPath); err != nil {
		return ux.FormatError(err, "saving configuration")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s = %s\n", key, value)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), cc.ConfigPath)
	return nil
}

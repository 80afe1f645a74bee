package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/activityflow/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print version information including version number, git commit,
build date, Go version, and platform.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

var (
	versionVerbose bool
	versionJSON    bool
)

func init() {
	versionCmd.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "show detailed version information")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output version information as JSON (same as --format json)")

	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	info := version.GetInfo()

	format := cc.Format
	if versionJSON {
		format = "json"
	}

	// Structured output
	if format == "json" || format == "yaml" {
		cc.Format = format
		formatter, err := cc.Formatter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return formatter.Format(info)
	}

	out := cmd.OutOrStdout()
	if versionVerbose {
		fmt.Fprintln(out, info.String())
		return nil
	}

	// Default output (short version only)
	fmt.Fprintf(out, "activityflow %s\n", info.Short())
	return nil
}

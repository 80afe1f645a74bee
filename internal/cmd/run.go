package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/activityflow/internal/session"
	"github.com/felixgeelhaar/activityflow/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run [activity-ref]",
	Short: "Take an activity in the terminal UI",
	Long: `Open an activity in the full-screen terminal UI. The reference can be a file
path, an http(s) URL or an oci:// reference.

Without a reference the configured catalog is listed; with --session a saved
session is resumed at the screen it was left on.

Keys:
  ↑/↓ or k/j   move between options
  enter        answer with the highlighted option
  ctrl+n       next screen
  ctrl+b       previous screen
  r            retry a failed load
  esc          back to the catalog
  ctrl+c       quit

Examples:
  activityflow run ./phq9/activity.jsonld
  activityflow run --catalog ./catalog.yaml
  activityflow run --session 0b9c5f0e-2f4e-4a55-9a43-4c1c2f0d0a11
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var (
	runCatalog     string
	runSession     string
	runConcurrency int
)

func init() {
	runCmd.Flags().StringVar(&runCatalog, "catalog", "", "catalog file listing activities (default from config)")
	runCmd.Flags().StringVar(&runSession, "session", "", "resume a saved session by id")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "catalog activities resolved at once (default 4)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	ctx := contextOf(cmd)

	resolver, err := cc.newResolver()
	if err != nil {
		return err
	}

	store, err := cc.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := tui.Options{
		Controller:  cc.newController(resolver),
		Resolver:    resolver,
		Store:       store,
		Logger:      cc.Logger,
		Concurrency: runConcurrency,
	}

	switch {
	case runSession != "":
		sess, err := loadSession(ctx, store, runSession)
		if err != nil {
			return err
		}
		opts.Session = sess
	case len(args) == 1:
		opts.Ref = args[0]
	default:
		catalog, err := cc.loadCatalog(runCatalog)
		if err != nil {
			return err
		}
		opts.Catalog = catalog
	}

	sess, err := tui.Run(ctx, opts)
	if err != nil {
		return err
	}

	if sess != nil {
		printSessionFooter(cmd, sess)
	}
	return nil
}

func printSessionFooter(cmd *cobra.Command, sess *session.Session) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s: %d answered (%s)\n", sess.ID, sess.Answered(), sess.Status)
	if sess.Status != session.StatusCompleted {
		fmt.Fprintf(out, "Resume with: activityflow run --session %s\n", sess.ID)
	}
}

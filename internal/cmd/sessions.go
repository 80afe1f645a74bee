package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/session"
	"github.com/felixgeelhaar/activityflow/internal/tui"
	"github.com/felixgeelhaar/activityflow/internal/ux"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage saved sessions",
	Long: `List, inspect and delete the sessions saved in the session store (store.dsn).

Examples:
  activityflow sessions list
  activityflow sessions show 0b9c5f0e-2f4e-4a55-9a43-4c1c2f0d0a11 --format json
  activityflow sessions delete 0b9c5f0e-2f4e-4a55-9a43-4c1c2f0d0a11 --yes
`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a saved session and its responses",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsDeleteYes bool

func init() {
	sessionsDeleteCmd.Flags().BoolVarP(&sessionsDeleteYes, "yes", "y", false, "delete without asking for confirmation")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// loadSession validates id before asking the store, so malformed ids are
// SESSION-001 on every backend.
func loadSession(ctx context.Context, store session.Store, id string) (*session.Session, error) {
	if err := session.ValidateID(id); err != nil {
		return nil, err
	}
	return store.Load(ctx, id)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	ctx := contextOf(cmd)

	store, err := cc.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.List(ctx)
	if err != nil {
		return err
	}

	formatter, err := cc.Formatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return formatter.Format(sessionList(sessions))
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	ctx := contextOf(cmd)

	store, err := cc.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := loadSession(ctx, store, args[0])
	if err != nil {
		return err
	}

	formatter, err := cc.Formatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return formatter.Format(sessionDetail{*sess})
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	ctx := contextOf(cmd)

	store, err := cc.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := loadSession(ctx, store, args[0])
	if err != nil {
		return err
	}

	if !sessionsDeleteYes {
		if !tui.ShouldPrompt() {
			return aferrors.New(aferrors.ErrCodeRequestInvalid, "refusing to delete without confirmation").
				WithSuggestion("Pass --yes to delete non-interactively")
		}
		msg := fmt.Sprintf("Delete session %s (%d answered)?", sess.ID, sess.Answered())
		ok, err := tui.PromptForConfirmation(tui.FormIO{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}, msg, false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
			return nil
		}
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted session %s\n", sess.ID)
	return nil
}

type sessionList []*session.Session

func (l sessionList) WriteText(w io.Writer, s ux.Styles) error {
	if len(l) == 0 {
		fmt.Fprintln(w, s.Muted.Render("No saved sessions."))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tANSWERED\tUPDATED\tACTIVITY")
	for _, sess := range l {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			sess.ID, sess.Status, sess.Answered(), sess.UpdatedAt.Local().Format(time.DateTime), sess.ActivityRef)
	}
	return tw.Flush()
}

// sessionDetail renders one session; JSON and YAML see the session itself.
type sessionDetail struct {
	session.Session `yaml:",inline"`
}

func (d sessionDetail) WriteText(w io.Writer, s ux.Styles) error {
	fmt.Fprintf(w, "%s %s\n", s.Label.Render("Session:"), d.ID)
	fmt.Fprintf(w, "%s %s\n", s.Label.Render("Activity:"), d.ActivityRef)
	fmt.Fprintf(w, "%s %s\n", s.Label.Render("Status:"), d.Status)
	fmt.Fprintf(w, "%s %d\n", s.Label.Render("Screen:"), d.Index+1)
	fmt.Fprintf(w, "%s %s\n", s.Label.Render("Started:"), d.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "%s %s\n", s.Label.Render("Updated:"), d.UpdatedAt.Local().Format(time.DateTime))
	if d.Digest != "" {
		fmt.Fprintf(w, "%s %s\n", s.Label.Render("Digest:"), d.Digest)
	}

	fmt.Fprintf(w, "\n%s\n", s.Heading.Render(fmt.Sprintf("Responses (%d)", d.Answered())))
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	for _, ref := range slices.Sorted(maps.Keys(d.Responses)) {
		fmt.Fprintf(tw, "  %s\t%v\n", ref, d.Responses[ref])
	}
	return tw.Flush()
}

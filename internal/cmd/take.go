package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/activityflow/internal/activity"
	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/session"
	"github.com/felixgeelhaar/activityflow/internal/tui"
	"github.com/felixgeelhaar/activityflow/internal/ux"
)

var takeCmd = &cobra.Command{
	Use:   "take [activity-ref]",
	Short: "Answer an activity with line-by-line prompts",
	Long: `Walk an activity with numbered prompts read one line at a time. This works with
screen readers, over plain pipes and in scripts. Every answer is saved to the
session store as soon as it is given.

Each screen also offers "Skip" (move on without answering) and, after the first
screen, "Back". A screen that cannot be shown is reported in place and offers
"Retry" as well.

Examples:
  activityflow take ./phq9/activity.jsonld
  activityflow take --session 0b9c5f0e-2f4e-4a55-9a43-4c1c2f0d0a11
  printf '2\n1\n' | activityflow take ./phq9/activity.jsonld
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTake,
}

var (
	takeSession     string
	takeInteractive bool
)

func init() {
	takeCmd.Flags().StringVar(&takeSession, "session", "", "resume a saved session by id")
	takeCmd.Flags().BoolVar(&takeInteractive, "interactive", false, "use interactive select widgets instead of numbered prompts")

	rootCmd.AddCommand(takeCmd)
}

// Choice values outside the option indexes.
const (
	choiceBack  = -1
	choiceSkip  = -2
	choiceRetry = -3
)

func runTake(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	ctx := contextOf(cmd)

	if takeSession == "" && len(args) == 0 {
		return fmt.Errorf("an activity reference or --session is required")
	}

	resolver, err := cc.newResolver()
	if err != nil {
		return err
	}

	store, err := cc.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	ctrl := cc.newController(resolver)

	var sess *session.Session
	if takeSession != "" {
		if sess, err = loadSession(ctx, store, takeSession); err != nil {
			return err
		}
		err = ctrl.Restore(ctx, *sess)
	} else {
		sess = session.New(args[0])
		err = ctrl.LoadActivity(ctx, args[0])
	}
	if err != nil {
		return err
	}

	w := &walker{
		ctrl:  ctrl,
		store: store,
		sess:  sess,
		form: tui.FormIO{
			In:         cmd.InOrStdin(),
			Out:        cmd.OutOrStdout(),
			Accessible: !takeInteractive,
		},
		out:    cmd.OutOrStdout(),
		styles: ux.NewStyles(cc.NoColor),
	}
	return w.walk(ctx)
}

// walker drives a loaded controller from line prompts and saves the session
// after every step.
type walker struct {
	ctrl   *activity.Controller
	store  session.Store
	sess   *session.Session
	form   tui.FormIO
	out    io.Writer
	styles ux.Styles
}

func (w *walker) walk(ctx context.Context) error {
	def := w.ctrl.Definition()
	if def.Title != "" {
		fmt.Fprintln(w.out, w.styles.Heading.Render(def.Title))
	}
	if def.Description != "" {
		fmt.Fprintln(w.out, w.styles.Muted.Render(def.Description))
	}

	for {
		s, err := w.ctrl.CurrentScreenModel(ctx)
		if errors.Is(err, aferrors.ErrScreenSuperseded) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			done, err := w.unavailable(ctx, err)
			if err != nil {
				return err
			}
			if done {
				break
			}
			continue
		}

		if s.Index == 0 && def.Preamble != "" {
			fmt.Fprintf(w.out, "\n%s\n", def.Preamble)
		}

		choices, selected := screenChoices(s, w.ctrl.IsFirstScreen(), w.ctrl.IsLastScreen())
		title := fmt.Sprintf("[%d/%d] %s", s.Index+1, len(def.ScreenRefs), s.Prompt.Question)
		choice, err := tui.PromptForChoice(w.form, title, s.Prompt.Diagnostic, choices, selected)
		if err != nil {
			return err
		}

		done, err := w.apply(s, choice)
		if err != nil {
			return err
		}
		if err := w.save(ctx); err != nil {
			return err
		}
		if done {
			break
		}
	}

	snap := w.ctrl.Snapshot()
	fmt.Fprintf(w.out, "\n%s\n", w.styles.Success.Render(
		fmt.Sprintf("Answered %d of %d screens", snap.Answered(), len(def.ScreenRefs))))
	fmt.Fprintf(w.out, "Session %s (%s)\n", w.sess.ID, w.sess.Status)
	return nil
}

// unavailable reports a screen that failed to build and lets the user retry
// it or move past it. It reports whether the walk is over.
func (w *walker) unavailable(ctx context.Context, cause error) (bool, error) {
	index, total := w.ctrl.Index(), len(w.ctrl.ScreenRefs())
	last := w.ctrl.IsLastScreen()

	msg, _, _ := strings.Cut(cause.Error(), "\n")
	title := fmt.Sprintf("[%d/%d] This screen could not be shown", index+1, total)
	fmt.Fprintf(w.out, "\n%s\n", w.styles.Error.Render(msg))

	choices := []tui.Choice{{Label: "Retry", Value: choiceRetry}}
	skip := "Skip"
	if last {
		skip = "Finish"
	}
	choices = append(choices, tui.Choice{Label: skip, Value: choiceSkip})
	if !w.ctrl.IsFirstScreen() {
		choices = append(choices, tui.Choice{Label: "Back", Value: choiceBack})
	}

	choice, err := tui.PromptForChoice(w.form, title, "", choices, choiceRetry)
	if err != nil {
		return false, err
	}

	var done bool
	switch choice {
	case choiceRetry:
		return false, nil
	case choiceBack:
		err = w.ctrl.GoBack()
	case choiceSkip:
		if last {
			done = true
		} else {
			err = w.ctrl.GoNext()
		}
	default:
		return false, fmt.Errorf("choice %d is not available here", choice)
	}
	if err != nil {
		return false, err
	}
	return done, w.save(ctx)
}

// apply performs the step the user chose and reports whether the walk is over.
func (w *walker) apply(s *activity.Screen, choice int) (bool, error) {
	last := w.ctrl.IsLastScreen()

	switch choice {
	case choiceBack:
		return false, w.ctrl.GoBack()
	case choiceSkip:
	default:
		if choice < 0 || choice >= len(s.Prompt.Options) {
			return false, fmt.Errorf("choice %d is not an option of %s", choice, s.Ref)
		}
		if err := w.ctrl.SaveResponse(s.Prompt.Options[choice].Value); err != nil {
			return false, err
		}
	}

	if last {
		return true, nil
	}
	return false, w.ctrl.GoNext()
}

func (w *walker) save(ctx context.Context) error {
	w.ctrl.Snapshot().ApplyTo(w.sess)
	return w.store.Save(ctx, w.sess)
}

// screenChoices lists a screen's options followed by the navigation
// choices, and picks the prior answer as the default.
func screenChoices(s *activity.Screen, first, last bool) ([]tui.Choice, int) {
	choices := make([]tui.Choice, 0, len(s.Prompt.Options)+2)
	for i, opt := range s.Prompt.Options {
		choices = append(choices, tui.Choice{Label: opt.Label, Value: i})
	}

	skip := "Skip"
	if last {
		skip = "Finish"
	}
	choices = append(choices, tui.Choice{Label: skip, Value: choiceSkip})
	if !first {
		choices = append(choices, tui.Choice{Label: "Back", Value: choiceBack})
	}

	selected := s.Prompt.Selected
	if selected < 0 {
		selected = choices[0].Value
	}
	return choices, selected
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/activityflow/internal/activity"
	"github.com/felixgeelhaar/activityflow/internal/applet"
	"github.com/felixgeelhaar/activityflow/internal/input"
	"github.com/felixgeelhaar/activityflow/internal/ux"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Inspect activities without taking them",
	Long: `Inspect activity documents without starting a session.

Examples:
  # List the catalog with titles
  activityflow activity list

  # Show every screen of an activity with its answer options
  activityflow activity show ./phq9/activity.jsonld --format yaml
`,
}

var activityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the activities of the catalog",
	Long:  `Resolve every activity of the catalog and print its title. Activities that fail to resolve are listed with their error.`,
	Args:  cobra.NoArgs,
	RunE:  runActivityList,
}

var activityShowCmd = &cobra.Command{
	Use:   "show <activity-ref>",
	Short: "Show the screens of an activity",
	Long:  `Load an activity and build each of its screens in order, reporting screens that fail to build.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runActivityShow,
}

var (
	activityCatalog     string
	activityConcurrency int
)

func init() {
	activityListCmd.Flags().StringVar(&activityCatalog, "catalog", "", "catalog file listing activities (default from config)")
	activityListCmd.Flags().IntVar(&activityConcurrency, "concurrency", applet.DefaultConcurrency, "activities resolved at once")

	activityCmd.AddCommand(activityListCmd)
	activityCmd.AddCommand(activityShowCmd)
	rootCmd.AddCommand(activityCmd)
}

func runActivityList(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	ctx := contextOf(cmd)

	catalog, err := cc.loadCatalog(activityCatalog)
	if err != nil {
		return err
	}

	resolver, err := cc.newResolver()
	if err != nil {
		return err
	}

	summaries, err := applet.Summarize(ctx, resolver, catalog.Activities, activityConcurrency)
	if err != nil {
		return err
	}

	formatter, err := cc.Formatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return formatter.Format(catalogOutput{Name: catalog.Name, Activities: summaries})
}

func runActivityShow(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	ctx := contextOf(cmd)

	resolver, err := cc.newResolver()
	if err != nil {
		return err
	}

	ctrl := cc.newController(resolver)
	if err := ctrl.LoadActivity(ctx, args[0]); err != nil {
		return err
	}

	def := ctrl.Definition()
	out := activityOutput{
		Ref:         def.Ref,
		Title:       def.Title,
		Description: def.Description,
		Preamble:    def.Preamble,
		Digest:      def.Digest,
	}

	for {
		out.Screens = append(out.Screens, describeScreen(ctx, ctrl))
		if ctrl.IsLastScreen() {
			break
		}
		if err := ctrl.GoNext(); err != nil {
			return err
		}
	}

	formatter, err := cc.Formatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return formatter.Format(out)
}

// describeScreen builds the controller's current screen. A screen that fails
// to build is reported in place.
func describeScreen(ctx context.Context, ctrl *activity.Controller) screenOutput {
	refs := ctrl.ScreenRefs()
	idx := ctrl.Index()
	so := screenOutput{Index: idx, Ref: refs[idx]}

	s, err := ctrl.CurrentScreenModel(ctx)
	if err != nil {
		so.Error = firstLine(err)
		return so
	}

	so.Question = s.Prompt.Question
	so.InputType = s.Prompt.InputType
	so.Kind = s.Prompt.Kind
	so.Options = s.Prompt.Options
	so.Diagnostic = s.Prompt.Diagnostic
	return so
}

type catalogOutput struct {
	Name       string           `json:"name" yaml:"name"`
	Activities []applet.Summary `json:"activities" yaml:"activities"`
}

func (c catalogOutput) WriteText(w io.Writer, s ux.Styles) error {
	fmt.Fprintln(w, s.Heading.Render(c.Name))
	if len(c.Activities) == 0 {
		fmt.Fprintln(w, s.Muted.Render("No activities in the catalog."))
		return nil
	}
	for i, a := range c.Activities {
		fmt.Fprintf(w, "%2d. %s\n", i+1, s.Label.Render(a.Title))
		fmt.Fprintf(w, "    %s\n", s.Muted.Render(a.Ref))
		if a.Description != "" {
			fmt.Fprintf(w, "    %s\n", a.Description)
		}
		if a.Error != "" {
			fmt.Fprintf(w, "    %s\n", s.Error.Render("unavailable: "+a.Error))
		}
	}
	return nil
}

type activityOutput struct {
	Ref         string         `json:"ref" yaml:"ref"`
	Title       string         `json:"title,omitempty" yaml:"title,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Preamble    string         `json:"preamble,omitempty" yaml:"preamble,omitempty"`
	Digest      string         `json:"digest" yaml:"digest"`
	Screens     []screenOutput `json:"screens" yaml:"screens"`
}

type screenOutput struct {
	Index      int            `json:"index" yaml:"index"`
	Ref        string         `json:"ref" yaml:"ref"`
	Question   string         `json:"question,omitempty" yaml:"question,omitempty"`
	InputType  string         `json:"input_type,omitempty" yaml:"input_type,omitempty"`
	Kind       input.Kind     `json:"kind,omitempty" yaml:"kind,omitempty"`
	Options    []input.Option `json:"options,omitempty" yaml:"options,omitempty"`
	Diagnostic string         `json:"diagnostic,omitempty" yaml:"diagnostic,omitempty"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
}

func (a activityOutput) WriteText(w io.Writer, s ux.Styles) error {
	title := a.Title
	if title == "" {
		title = a.Ref
	}
	fmt.Fprintln(w, s.Heading.Render(title))
	if a.Description != "" {
		fmt.Fprintln(w, a.Description)
	}
	fmt.Fprintf(w, "%s %s\n", s.Label.Render("Ref:"), a.Ref)
	fmt.Fprintf(w, "%s %s\n", s.Label.Render("Digest:"), a.Digest)
	if a.Preamble != "" {
		fmt.Fprintf(w, "%s %s\n", s.Label.Render("Preamble:"), a.Preamble)
	}

	for _, sc := range a.Screens {
		fmt.Fprintf(w, "\n%d/%d %s\n", sc.Index+1, len(a.Screens), s.Muted.Render(sc.Ref))
		if sc.Error != "" {
			fmt.Fprintf(w, "  %s\n", s.Error.Render(sc.Error))
			continue
		}
		fmt.Fprintf(w, "  %s %s\n", s.Label.Render(sc.Question), s.Muted.Render("("+sc.InputType+")"))
		if sc.Diagnostic != "" {
			fmt.Fprintf(w, "  %s\n", s.Error.Render(sc.Diagnostic))
		}
		for _, opt := range sc.Options {
			fmt.Fprintf(w, "  - %s = %v\n", opt.Label, opt.Value)
		}
	}
	return nil
}

// firstLine drops the suggestion block coded errors append.
func firstLine(err error) string {
	msg, _, _ := strings.Cut(err.Error(), "\n")
	return msg
}

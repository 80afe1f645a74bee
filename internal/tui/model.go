package tui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/activityflow/internal/activity"
	"github.com/felixgeelhaar/activityflow/internal/applet"
	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/ld"
	"github.com/felixgeelhaar/activityflow/internal/log"
	"github.com/felixgeelhaar/activityflow/internal/session"
)

// mode is what the model is showing.
type mode int

const (
	// modeCatalog lists the catalog activities
	modeCatalog mode = iota
	// modeLoading waits for an activity to load
	modeLoading
	// modeActivity shows the current screen
	modeActivity
	// modeErrored shows a failed activity load
	modeErrored
)

// Options configures a Model.
type Options struct {
	Controller *activity.Controller
	Resolver   ld.DocumentResolver
	Store      session.Store
	Logger     *log.Logger

	// Ref opens an activity directly. Ignored when Session is set.
	Ref string
	// Session resumes a saved session.
	Session *session.Session
	// Catalog is listed when neither Ref nor Session is set.
	Catalog     *applet.Catalog
	Concurrency int
}

// Model is the terminal host for one controller.
type Model struct {
	ctx      context.Context
	ctrl     *activity.Controller
	resolver ld.DocumentResolver
	store    session.Store
	logger   *log.Logger

	catalog     *applet.Catalog
	concurrency int
	ref         string
	session     *session.Session

	mode mode
	// gen tags screen loads; a screenLoadedMsg with another gen is stale.
	gen       uint64
	screen    *activity.Screen
	screenErr error
	cursor    int
	err       error
	status    string

	list     list.Model
	spinner  spinner.Model
	progress progress.Model
	help     help.Model
	keys     keyMap

	width    int
	height   int
	quitting bool

	styles Styles
}

// Styles contains lipgloss styles for the TUI
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Question lipgloss.Style
	Error    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Muted    lipgloss.Style
	Border   lipgloss.Style
	Cursor   lipgloss.Style
	Chosen   lipgloss.Style
}

// DefaultStyles returns the default lipgloss styles
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")). // Purple
			MarginBottom(1),
		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")), // Gray
		Question: lipgloss.NewStyle().
			Bold(true).
			MarginBottom(1),
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")), // Red
		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("46")), // Green
		Warning: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("226")), // Yellow
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")), // Gray
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(1, 2),
		Cursor: lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")), // Cyan
		Chosen: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")),
	}
}

// NewModel creates the terminal host. ctx bounds every load it issues.
func NewModel(ctx context.Context, opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = applet.DefaultName
	if opts.Catalog != nil {
		l.Title = opts.Catalog.Name
	}
	l.SetStatusBarItemName("activity", "activities")

	m := Model{
		ctx:         ctx,
		ctrl:        opts.Controller,
		resolver:    opts.Resolver,
		store:       opts.Store,
		logger:      logger.WithComponent("tui"),
		catalog:     opts.Catalog,
		concurrency: opts.Concurrency,
		ref:         opts.Ref,
		session:     opts.Session,
		list:        l,
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot)),
		progress:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:        help.New(),
		keys:        defaultKeys(),
		styles:      DefaultStyles(),
	}

	switch {
	case opts.Session != nil:
		m.ref = opts.Session.ActivityRef
		m.mode = modeLoading
	case opts.Ref != "":
		m.mode = modeLoading
	default:
		m.mode = modeCatalog
	}
	return m
}

// Init starts the first load.
func (m Model) Init() tea.Cmd {
	if m.mode == modeCatalog {
		return m.summarize()
	}
	return tea.Batch(m.spinner.Tick, m.openActivity(m.ref, m.session))
}

// Update handles messages and updates the model state
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-1)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		if m.mode == modeCatalog {
			return m.updateCatalog(msg)
		}
		return m.handleKey(msg)

	case summariesMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		items := make([]list.Item, 0, len(msg.summaries))
		for _, s := range msg.summaries {
			items = append(items, activityItem{summary: s})
		}
		cmd := m.list.SetItems(items)
		return m, cmd

	case activityLoadedMsg:
		return m.activityLoaded(msg)

	case screenLoadedMsg:
		return m.screenLoaded(msg)

	case sessionSavedMsg:
		if msg.err != nil {
			m.logger.WithError(msg.err).Warn("session not saved")
			m.status = "Response not saved: " + firstLine(msg.err)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.loading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.mode == modeCatalog {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) loading() bool {
	return m.mode == modeLoading || (m.mode == modeActivity && m.screen == nil && m.screenErr == nil)
}

func (m Model) updateCatalog(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() != list.Filtering && msg.String() == "enter" {
		item, ok := m.list.SelectedItem().(activityItem)
		if !ok {
			return m, nil
		}
		if item.summary.Err != nil {
			m.status = item.summary.Error
			return m, nil
		}
		m.status = ""
		m.ref = item.summary.Ref
		m.session = nil
		m.mode = modeLoading
		return m, tea.Batch(m.spinner.Tick, m.openActivity(m.ref, nil))
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Close):
		return m.close()

	case key.Matches(msg, m.keys.Retry):
		return m.retry()

	case m.mode != modeActivity:
		return m, nil

	case key.Matches(msg, m.keys.Next):
		return m.navigate(m.ctrl.GoNext)

	case key.Matches(msg, m.keys.Back):
		return m.navigate(m.ctrl.GoBack)

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.screen != nil && m.cursor < len(m.screen.Prompt.Options)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Select):
		return m.answer()
	}
	return m, nil
}

func (m Model) activityLoaded(msg activityLoadedMsg) (tea.Model, tea.Cmd) {
	if errors.Is(msg.err, aferrors.ErrLoadSuperseded) {
		return m, nil
	}
	if msg.err != nil {
		m.err = msg.err
		m.mode = modeErrored
		m.keys.Retry.SetEnabled(true)
		m.logger.WithError(msg.err).Warn("activity failed to load", "ref", m.ref)
		return m, nil
	}

	m.err = nil
	m.mode = modeActivity
	m.keys.Retry.SetEnabled(false)
	if m.session == nil || m.session.ActivityRef != m.ctrl.Ref() {
		m.session = session.New(m.ctrl.Ref())
	}
	build := m.loadScreen()
	return m, tea.Batch(build, m.spinner.Tick, m.save())
}

func (m Model) screenLoaded(msg screenLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.gen || errors.Is(msg.err, aferrors.ErrScreenSuperseded) {
		m.logger.Debug("stale screen ignored", "gen", msg.gen, "current", m.gen)
		return m, nil
	}
	if msg.err != nil {
		m.screenErr = msg.err
		m.keys.Retry.SetEnabled(true)
		return m, nil
	}

	m.screen = msg.screen
	m.cursor = 0
	if p := msg.screen.Prompt; p != nil && p.Selected >= 0 {
		m.cursor = p.Selected
	}
	return m, nil
}

// loadScreen invalidates the shown screen and builds the current one.
func (m *Model) loadScreen() tea.Cmd {
	m.gen++
	m.screen = nil
	m.screenErr = nil
	return m.buildScreen(m.gen)
}

func (m Model) navigate(move func() error) (tea.Model, tea.Cmd) {
	before := m.ctrl.Index()
	if err := move(); err != nil {
		m.status = firstLine(err)
		return m, nil
	}
	if m.ctrl.Index() == before {
		return m, nil
	}
	m.status = ""
	build := m.loadScreen()
	return m, tea.Batch(build, m.spinner.Tick, m.save())
}

func (m Model) answer() (tea.Model, tea.Cmd) {
	if m.screen == nil || m.screen.Prompt == nil || len(m.screen.Prompt.Options) == 0 {
		return m, nil
	}
	opt := m.screen.Prompt.Options[m.cursor]
	if err := m.ctrl.SaveResponse(opt.Value); err != nil {
		m.status = firstLine(err)
		return m, nil
	}
	if s, ok := m.ctrl.CachedScreen(); ok {
		m.screen = s
	}
	m.status = ""
	return m, m.save()
}

func (m Model) retry() (tea.Model, tea.Cmd) {
	switch {
	case m.mode == modeErrored:
		m.mode = modeLoading
		m.err = nil
		m.keys.Retry.SetEnabled(false)
		return m, tea.Batch(m.spinner.Tick, m.openActivity(m.ref, m.session))
	case m.mode == modeActivity && m.screenErr != nil:
		m.keys.Retry.SetEnabled(false)
		build := m.loadScreen()
		return m, tea.Batch(build, m.spinner.Tick)
	}
	return m, nil
}

// close returns to the catalog, or quits when the activity was opened directly.
func (m Model) close() (tea.Model, tea.Cmd) {
	if m.catalog == nil {
		m.quitting = true
		return m, tea.Quit
	}
	m.ctrl.Reset()
	m.gen++
	m.mode = modeCatalog
	m.screen = nil
	m.screenErr = nil
	m.session = nil
	m.err = nil
	m.status = ""
	m.keys.Retry.SetEnabled(false)
	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	switch m.mode {
	case modeCatalog:
		return m.renderCatalog()
	case modeLoading:
		return m.renderLoading()
	case modeErrored:
		return m.renderErrored()
	default:
		return m.renderActivity()
	}
}

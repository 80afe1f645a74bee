package tui

import (
	"fmt"
	"maps"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/activityflow/internal/activity"
	"github.com/felixgeelhaar/activityflow/internal/applet"
	"github.com/felixgeelhaar/activityflow/internal/session"
)

type summariesMsg struct {
	summaries []applet.Summary
	err       error
}

type activityLoadedMsg struct {
	err error
}

type screenLoadedMsg struct {
	gen    uint64
	screen *activity.Screen
	err    error
}

type sessionSavedMsg struct {
	err error
}

// activityItem is one catalog entry in the list.
type activityItem struct {
	summary applet.Summary
}

func (i activityItem) Title() string { return i.summary.Title }

func (i activityItem) Description() string {
	if i.summary.Error != "" {
		return "unavailable: " + i.summary.Error
	}
	if i.summary.Description != "" {
		return i.summary.Description
	}
	return i.summary.Ref
}

func (i activityItem) FilterValue() string { return i.summary.Title + " " + i.summary.Ref }

func (m Model) summarize() tea.Cmd {
	if m.catalog == nil {
		return func() tea.Msg {
			return summariesMsg{err: fmt.Errorf("no activity given and no catalog configured")}
		}
	}
	ctx, resolver, refs, limit := m.ctx, m.resolver, m.catalog.Activities, m.concurrency
	return func() tea.Msg {
		s, err := applet.Summarize(ctx, resolver, refs, limit)
		return summariesMsg{summaries: s, err: err}
	}
}

// openActivity loads ref, or restores sess when it is set.
func (m Model) openActivity(ref string, sess *session.Session) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	var saved *session.Session
	if sess != nil {
		copied := *sess
		copied.Responses = maps.Clone(sess.Responses)
		saved = &copied
	}
	return func() tea.Msg {
		if saved != nil {
			return activityLoadedMsg{err: ctrl.Restore(ctx, *saved)}
		}
		return activityLoadedMsg{err: ctrl.LoadActivity(ctx, ref)}
	}
}

func (m Model) buildScreen(gen uint64) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		s, err := ctrl.CurrentScreenModel(ctx)
		return screenLoadedMsg{gen: gen, screen: s, err: err}
	}
}

// save copies the controller state into the session and writes a snapshot
// of it to the store.
func (m Model) save() tea.Cmd {
	if m.store == nil || m.session == nil {
		return nil
	}
	m.ctrl.Snapshot().ApplyTo(m.session)
	snapshot := *m.session
	snapshot.Responses = maps.Clone(m.session.Responses)

	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		return sessionSavedMsg{err: store.Save(ctx, &snapshot)}
	}
}

func firstLine(err error) string {
	s := err.Error()
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

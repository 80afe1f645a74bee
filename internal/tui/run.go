package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/activityflow/internal/session"
)

// Run shows the terminal host until the user quits and returns the session
// that was open at that point, if any.
func Run(ctx context.Context, opts Options, programOpts ...tea.ProgramOption) (*session.Session, error) {
	m := NewModel(ctx, opts)

	popts := append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, programOpts...)
	final, err := tea.NewProgram(m, popts...).Run()
	if err != nil {
		return nil, fmt.Errorf("run terminal UI: %w", err)
	}

	if fm, ok := final.(Model); ok {
		return fm.session, nil
	}
	return nil, nil
}

package tui

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/activityflow/internal/input"
)

func (m Model) renderCatalog() string {
	if m.err != nil {
		return m.styles.Error.Render("✗ "+firstLine(m.err)) + "\n\n" +
			m.styles.Muted.Render("ctrl+c quit") + "\n"
	}
	view := m.list.View()
	if m.status != "" {
		view += "\n" + m.styles.Warning.Render(m.status)
	}
	return view
}

func (m Model) renderLoading() string {
	return fmt.Sprintf("\n  %s Loading %s\n\n  %s\n", m.spinner.View(), m.ref, m.styles.Muted.Render("ctrl+c quit"))
}

func (m Model) renderErrored() string {
	var b strings.Builder

	b.WriteString(m.styles.Error.Render("✗ Activity failed to load"))
	b.WriteString("\n\n")
	b.WriteString(m.styles.Border.Render(m.err.Error()))
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderActivity() string {
	var b strings.Builder

	title := m.ref
	if def := m.ctrl.Definition(); def != nil && def.Title != "" {
		title = def.Title
	}
	b.WriteString(m.styles.Title.Render(title))
	b.WriteString("\n")

	count := len(m.ctrl.ScreenRefs())
	b.WriteString(m.progress.ViewAs(m.ctrl.ProgressFraction()))
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  %d/%d", m.ctrl.Index()+1, count)))
	b.WriteString("\n\n")

	if m.ctrl.IsFirstScreen() {
		if preamble := m.ctrl.PreambleText(); preamble != "" {
			b.WriteString(m.styles.Subtitle.Render(preamble))
			b.WriteString("\n\n")
		}
	}

	switch {
	case m.screenErr != nil:
		b.WriteString(m.styles.Error.Render("✗ Screen failed to load"))
		b.WriteString("\n")
		b.WriteString(m.styles.Muted.Render(firstLine(m.screenErr)))
		b.WriteString("\n")
	case m.screen == nil:
		b.WriteString(m.spinner.View() + " Loading screen...")
		b.WriteString("\n")
	default:
		b.WriteString(m.renderPrompt(m.screen.Prompt))
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Warning.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderPrompt(p *input.Prompt) string {
	var b strings.Builder

	b.WriteString(m.styles.Question.Render(p.Question))
	b.WriteString("\n")

	if p.Degraded() {
		b.WriteString(m.styles.Warning.Render("⚠ " + p.Diagnostic))
		b.WriteString("\n")
		return b.String()
	}

	for i, opt := range p.Options {
		pointer := "  "
		if i == m.cursor {
			pointer = m.styles.Cursor.Render("> ")
		}
		mark := "○ "
		label := opt.Label
		if i == p.Selected {
			mark = m.styles.Chosen.Render("● ")
			label = m.styles.Chosen.Render(label)
		}
		b.WriteString(pointer + mark + label + "\n")
	}
	return b.String()
}

package tui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
)

// FormIO is where line-oriented prompts read and write.
type FormIO struct {
	In  io.Reader
	Out io.Writer
	// Accessible replaces the interactive widgets with numbered prompts
	// read line by line from In.
	Accessible bool
}

func (f FormIO) run(form *huh.Form) error {
	if f.In != nil {
		form = form.WithInput(f.In)
	}
	if f.Out != nil {
		form = form.WithOutput(f.Out)
	}
	return form.WithAccessible(f.Accessible).Run()
}

// Choice is one entry of a selection prompt.
type Choice struct {
	Label string
	Value int
}

// PromptForChoice asks the user to pick one choice and returns its value.
// The choice whose value equals selected is preselected.
func PromptForChoice(f FormIO, title, description string, choices []Choice, selected int) (int, error) {
	if len(choices) == 0 {
		return 0, fmt.Errorf("no options provided")
	}

	opts := make([]huh.Option[int], len(choices))
	for i, c := range choices {
		opts[i] = huh.NewOption(c.Label, c.Value)
	}

	value := selected
	field := huh.NewSelect[int]().
		Title(title).
		Description(description).
		Options(opts...).
		Value(&value)

	if err := f.run(huh.NewForm(huh.NewGroup(field))); err != nil {
		return 0, fmt.Errorf("prompt failed: %w", err)
	}
	return value, nil
}

// PromptForConfirmation displays a yes/no confirmation prompt
func PromptForConfirmation(f FormIO, message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue

	confirm := huh.NewConfirm().
		Title(message).
		Value(&confirmed)

	if err := f.run(huh.NewForm(huh.NewGroup(confirm))); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return confirmed, nil
}

// ciEnvVars are set by the CI systems where nobody can answer a prompt.
var ciEnvVars = []string{
	"CI",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"JENKINS_URL",
	"TRAVIS",
	"CIRCLECI",
	"BUILDKITE",
}

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// ShouldPrompt reports whether a person can answer prompts: stdin is a
// terminal and no CI variable is set.
func ShouldPrompt() bool {
	for _, name := range ciEnvVars {
		if os.Getenv(name) != "" {
			return false
		}
	}
	return IsInteractive()
}

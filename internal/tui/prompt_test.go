package tui

import (
	"bytes"
	"strings"
	"testing"
	"testing/iotest"
)

func TestShouldPromptDisabledInCI(t *testing.T) {
	for _, name := range ciEnvVars {
		t.Run(name, func(t *testing.T) {
			for _, other := range ciEnvVars {
				t.Setenv(other, "")
			}
			t.Setenv(name, "true")

			if ShouldPrompt() {
				t.Errorf("ShouldPrompt() = true with %s set", name)
			}
		})
	}
}

func TestPromptForChoiceRequiresOptions(t *testing.T) {
	if _, err := PromptForChoice(FormIO{Accessible: true}, "Choose:", "", nil, 0); err == nil {
		t.Error("expected an error without options")
	}
}

func TestPromptForChoiceAccessible(t *testing.T) {
	var out bytes.Buffer
	f := FormIO{In: strings.NewReader("2\n"), Out: &out, Accessible: true}

	got, err := PromptForChoice(f, "Slept well?", "", []Choice{{"Yes", 10}, {"No", 20}}, 10)
	if err != nil {
		t.Fatalf("PromptForChoice() error = %v", err)
	}
	if got != 20 {
		t.Errorf("PromptForChoice() = %d, want 20", got)
	}
	if !strings.Contains(out.String(), "Slept well?") {
		t.Errorf("prompt output %q does not show the title", out.String())
	}
}

func TestPromptForConfirmationAccessible(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"n\n", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			f := FormIO{In: iotest.OneByteReader(strings.NewReader(tt.input)), Out: &bytes.Buffer{}, Accessible: true}

			got, err := PromptForConfirmation(f, "Delete session?", !tt.want)
			if err != nil {
				t.Fatalf("PromptForConfirmation() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("PromptForConfirmation(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// testEnv is an isolated configuration with a file session store.
type testEnv struct {
	configPath string
	storeDir   string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		configPath: filepath.Join(dir, "config.yaml"),
		storeDir:   filepath.Join(dir, "sessions"),
	}

	data := "store:\n  dsn: " + env.storeDir + "\nlogging:\n  level: info\n  format: text\n  file: \"\"\n"
	if err := os.WriteFile(env.configPath, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

// run executes the root command with --config pointing at the test
// configuration and returns everything written to stdout and stderr.
func (e testEnv) run(t *testing.T, in io.Reader, args ...string) (string, error) {
	t.Helper()
	return e.runContext(t, context.Background(), in, args...)
}

func (e testEnv) runContext(t *testing.T, ctx context.Context, in io.Reader, args ...string) (string, error) {
	t.Helper()
	resetCommand(ctx, rootCmd)

	if in == nil {
		in = strings.NewReader("")
	}
	var out bytes.Buffer
	rootCmd.SetIn(in)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--config", e.configPath, "--no-color"))

	err := ExecuteContext(ctx)
	return out.String(), err
}

// resetCommand restores flag defaults between executions of the shared
// command tree and hands every command ctx.
func resetCommand(ctx context.Context, c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	c.SetContext(ctx)
	for _, sub := range c.Commands() {
		resetCommand(ctx, sub)
	}
}

func testdataPath(t *testing.T, name string) string {
	t.Helper()
	p, err := filepath.Abs(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	expected := []string{"activity", "config", "run", "serve", "sessions", "take", "version"}

	commands := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		commands[c.Name()] = true
	}

	for _, name := range expected {
		if !commands[name] {
			t.Errorf("Expected subcommand %s not found", name)
		}
	}
}

func TestRootPersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "format", "no-color", "log-level", "log-format"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag --%s not registered", name)
		}
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		flags []string
	}{
		{runCmd, []string{"catalog", "session", "concurrency"}},
		{takeCmd, []string{"session", "interactive"}},
		{serveCmd, []string{"address", "catalog", "shutdown-timeout", "max-sessions"}},
		{activityListCmd, []string{"catalog", "concurrency"}},
		{sessionsDeleteCmd, []string{"yes"}},
		{versionCmd, []string{"verbose", "json"}},
	}

	for _, tt := range tests {
		for _, name := range tt.flags {
			if tt.cmd.Flags().Lookup(name) == nil {
				t.Errorf("%s: flag --%s not registered", tt.cmd.Name(), name)
			}
		}
	}
}

func TestServeLogsToStderr(t *testing.T) {
	if serveCmd.Annotations[logsAnnotation] != "stderr" {
		t.Error("serve should log to stderr")
	}
	if takeCmd.Annotations[logsAnnotation] == "stderr" {
		t.Error("take must not log to the terminal")
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, nil, "config", "get", "logging.level", "--log-level", "debug")
	if err != nil {
		t.Fatalf("config get: %v", err)
	}
	if strings.TrimSpace(out) != "debug" {
		t.Errorf("logging.level = %q, want debug", strings.TrimSpace(out))
	}
}

func TestInvalidLogLevelIsRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, nil, "version", "--log-level", "loud")
	if err == nil || !strings.Contains(err.Error(), "CONFIG-001") {
		t.Fatalf("expected CONFIG-001, got %v", err)
	}
}

func TestUnknownFormatIsRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, nil, "version", "--format", "xml")
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Fatalf("expected unknown format error, got %v", err)
	}
}

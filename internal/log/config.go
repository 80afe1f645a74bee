package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format represents the output format for logs
type Format int

const (
	// FormatJSON outputs logs in JSON format
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable text format
	FormatText
)

// String returns the string representation of the format
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatText:
		return "text"
	default:
		return "json"
	}
}

// ParseFormat parses a format name, case-insensitively. The empty string is JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "text", "console":
		return FormatText, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format %q (want json or text)", s)
	}
}

// Output is where records are written.
type Output struct {
	writer io.Writer
}

func (o Output) Writer() io.Writer {
	if o.writer == nil {
		return os.Stderr
	}
	return o.writer
}

// NewOutput writes records to w.
func NewOutput(w io.Writer) Output {
	return Output{writer: w}
}

// OutputStderr writes records to stderr, leaving stdout to command output.
func OutputStderr() Output {
	return Output{writer: os.Stderr}
}

// OutputDiscard drops every record.
func OutputDiscard() Output {
	return Output{writer: io.Discard}
}

// OutputFile appends records to path, creating its directory. The terminal
// hosts log here so records do not corrupt the screen.
func OutputFile(path string) (Output, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Output{}, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Output{}, nil, fmt.Errorf("open log file: %w", err)
	}
	return Output{writer: f}, f, nil
}

// Config describes a Logger.
type Config struct {
	Level     Level
	Format    Format
	Output    Output
	AddSource bool

	// ServiceName and ServiceVersion are attached to every record when
	// ServiceName is set.
	ServiceName    string
	ServiceVersion string
}

// DefaultConfig logs info and above as text to stderr.
func DefaultConfig() Config {
	return Config{
		Level:          LevelInfo,
		Format:         FormatText,
		Output:         OutputStderr(),
		ServiceName:    "activityflow",
		ServiceVersion: "dev",
	}
}

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// TestLogger is a trace-level JSON logger whose output is kept for
// assertions.
type TestLogger struct {
	*zerolog.Logger
	Buffer *bytes.Buffer
}

// NewTestLogger creates a TestLogger. The global level is lowered to trace
// for the duration of the test.
func NewTestLogger(t testing.TB) *TestLogger {
	t.Helper()

	previous := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(previous) })

	buf := &bytes.Buffer{}
	logger := zerolog.New(buf).Level(zerolog.TraceLevel).With().Timestamp().Logger()
	return &TestLogger{Logger: &logger, Buffer: buf}
}

func (tl *TestLogger) lines() []string {
	out := strings.TrimSpace(tl.Buffer.String())
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// EntriesWith returns the decoded entries whose field key equals value.
func (tl *TestLogger) EntriesWith(key string, value any) []map[string]any {
	var matched []map[string]any
	for _, line := range tl.lines() {
		entry := map[string]any{}
		if json.Unmarshal([]byte(line), &entry) == nil && entry[key] == value {
			matched = append(matched, entry)
		}
	}
	return matched
}

// Contains reports whether any entry contains substr.
func (tl *TestLogger) Contains(substr string) bool {
	return strings.Contains(tl.Buffer.String(), substr)
}

// ContainsAll reports whether the output contains every substr.
func (tl *TestLogger) ContainsAll(substrs ...string) bool {
	for _, s := range substrs {
		if !tl.Contains(s) {
			return false
		}
	}
	return true
}

// Count returns the number of entries.
func (tl *TestLogger) Count() int {
	return len(tl.lines())
}

// Clear drops the captured output.
func (tl *TestLogger) Clear() {
	tl.Buffer.Reset()
}

// AssertContains fails the test when the output lacks substr.
func (tl *TestLogger) AssertContains(t testing.TB, substr string) {
	t.Helper()
	if !tl.Contains(substr) {
		t.Errorf("log output does not contain %q\noutput:\n%s", substr, tl.Buffer.String())
	}
}

// AssertCount fails the test unless exactly expected entries were logged.
func (tl *TestLogger) AssertCount(t testing.TB, expected int) {
	t.Helper()
	if n := tl.Count(); n != expected {
		t.Errorf("expected %d log entries, got %d\noutput:\n%s", expected, n, tl.Buffer.String())
	}
}

// CaptureLoggingForTest makes a TestLogger the default logger until the
// test ends.
func CaptureLoggingForTest(t testing.TB) *TestLogger {
	t.Helper()
	original := *Default()
	tl := NewTestLogger(t)
	SetDefault(*tl.Logger)
	t.Cleanup(func() { SetDefault(original) })
	return tl
}

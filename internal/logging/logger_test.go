package logging

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(log.New(&buf, "", 0))
	return l, &buf
}

func TestLoggerLevelFiltering(t *testing.T) {
	t.Parallel()

	l, buf := newTestLogger()

	// The default level is warn.
	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"WARN: warn message", "ERROR: error message"}, lines)

	buf.Reset()
	l.SetLevel(LevelDebug)
	l.Debug("poll attempt")
	assert.Equal(t, "DEBUG: poll attempt\n", buf.String())
}

func TestLoggerKeyValues(t *testing.T) {
	t.Parallel()

	l, buf := newTestLogger()

	l.Warn("reconnecting", "attempt", 2, "identifier", "abcd")
	assert.Equal(t, "WARN: reconnecting attempt=2 identifier=abcd\n", buf.String())

	buf.Reset()
	l.Error("request failed", "error", errors.New("connection refused"))
	assert.Equal(t, "ERROR: request failed error=\"connection refused\"\n", buf.String())

	buf.Reset()
	l.Warn("odd message", "status", "In progress")
	assert.Equal(t, "WARN: odd message status=\"In progress\"\n", buf.String())
}

func TestLoggerSkipsMalformedKeyValues(t *testing.T) {
	t.Parallel()

	l, buf := newTestLogger()

	// A non-string key is dropped; a trailing key without a value is ignored.
	l.Warn("message", 42, "value", "dangling")
	assert.Equal(t, "WARN: message\n", buf.String())
}

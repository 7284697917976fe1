package notify

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var line map[string]any
		require.NoError(t, dec.Decode(&line))
		lines = append(lines, line)
	}
	return lines
}

func countLevel(lines []map[string]any, level string) int {
	n := 0
	for _, l := range lines {
		if l["level"] == level {
			n++
		}
	}
	return n
}

func TestLogger_PersistentNoticeLoggedOncePerShowing(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	degraded := Notice{ID: "connection-degraded", Kind: KindDegraded, Level: LevelError, Message: "Cannot reach the server.", Persistent: true}
	for i := 1; i <= 4; i++ {
		degraded.Count = i
		l.Notify(degraded)
	}

	lines := decodeLines(t, &buf)
	assert.Equal(t, 1, countLevel(lines, "ERROR"))
	assert.Equal(t, 3, countLevel(lines, "DEBUG"))

	// Shown again after a dismissal.
	l.Dismiss(degraded.ID)
	l.Notify(degraded)
	lines = decodeLines(t, &buf)
	assert.Equal(t, 1, countLevel(lines, "ERROR"))
}

func TestLogger_ToastsAlwaysLogged(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	l.Notify(Notice{ID: "retrying:sales", Kind: KindRetrying, Level: LevelWarning, Message: "Retrying"})
	l.Notify(Notice{ID: "retrying:sales", Kind: KindRetrying, Level: LevelWarning, Message: "Retrying"})

	lines := decodeLines(t, &buf)
	assert.Equal(t, 2, countLevel(lines, "WARN"))
}

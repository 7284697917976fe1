// Package notify carries user-facing notices out of the data-access layer.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Kind groups notices by the condition that raised them.
type Kind string

const (
	KindRetrying Kind = "retrying"
	KindDegraded Kind = "connection_degraded"
	KindRestored Kind = "connection_restored"
	KindStale    Kind = "stale_data"
	KindSession  Kind = "session_expired"
)

// Level is the severity shown to the user.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a single user-facing message. Publishing a notice whose ID is
// already active replaces it in place.
type Notice struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Level      Level     `json:"level"`
	Message    string    `json:"message"`
	Persistent bool      `json:"persistent"`
	Count      int       `json:"count,omitempty"`
	At         time.Time `json:"at"`
}

// Notifier receives notices.
type Notifier interface {
	Notify(n Notice)
	Dismiss(id string)
}

// Nop discards every notice.
type Nop struct{}

func (Nop) Notify(Notice)  {}
func (Nop) Dismiss(string) {}

// Logger writes notices as structured log lines. A persistent notice
// republished before it is dismissed is logged at debug level only.
type Logger struct {
	Log *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// NewLogger returns a Logger; a nil logger means slog.Default().
func NewLogger(log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{Log: log, active: make(map[string]struct{})}
}

func (l *Logger) Notify(n Notice) {
	attrs := []any{"id", n.ID, "kind", n.Kind}
	if n.Count > 0 {
		attrs = append(attrs, "count", n.Count)
	}

	if n.Persistent {
		l.mu.Lock()
		_, shown := l.active[n.ID]
		l.active[n.ID] = struct{}{}
		l.mu.Unlock()
		if shown {
			l.Log.Debug("Notice updated", append(attrs, "message", n.Message)...)
			return
		}
	}

	switch n.Level {
	case LevelError:
		l.Log.Error(n.Message, attrs...)
	case LevelWarning:
		l.Log.Warn(n.Message, attrs...)
	default:
		l.Log.Info(n.Message, attrs...)
	}
}

func (l *Logger) Dismiss(id string) {
	l.mu.Lock()
	delete(l.active, id)
	l.mu.Unlock()
	l.Log.Debug("Notice dismissed", "id", id)
}

// Multi fans notices out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(n Notice) {
	for _, t := range m {
		t.Notify(n)
	}
}

func (m Multi) Dismiss(id string) {
	for _, t := range m {
		t.Dismiss(id)
	}
}

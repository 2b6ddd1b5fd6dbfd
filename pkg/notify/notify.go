// Package notify carries transient user-facing notices (toasts in a UI,
// stderr lines in the CLI) away from the components that raise them.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

type Level int

const (
	Info Level = iota
	Success
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

type Notifier interface {
	Notify(level Level, message string)
}

// Func adapts a plain function to a Notifier.
type Func func(level Level, message string)

func (f Func) Notify(level Level, message string) { f(level, message) }

// Discard ignores every notice.
var Discard Notifier = Func(func(Level, string) {})

type slogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier routes notices to a structured logger.
func NewLogNotifier(logger *slog.Logger) Notifier {
	return &slogNotifier{logger: logger.With(slog.String("component", "notify"))}
}

func (n *slogNotifier) Notify(level Level, message string) {
	switch level {
	case Error:
		n.logger.Error(message)
	case Warning:
		n.logger.Warn(message)
	default:
		n.logger.Info(message, slog.String("level", level.String()))
	}
}

type writerNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier prints one line per notice, e.g. to the terminal.
func NewWriterNotifier(w io.Writer) Notifier {
	return &writerNotifier{w: w}
}

func (n *writerNotifier) Notify(level Level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "[%s] %s\n", level, message)
}

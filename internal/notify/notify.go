// Package notify delivers toasts, the single channel through which errors
// and confirmations reach the user.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"finsession/internal/log"
	"finsession/internal/metrics"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Toast struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

type Notifier interface {
	Notify(ctx context.Context, t Toast) error
}

// LogNotifier writes toasts to the structured log.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithComponent(log.ComponentNotify)}
}

func (n *LogNotifier) Notify(ctx context.Context, t Toast) error {
	if t.Level == LevelError {
		n.logger.WarnContext(ctx, "Toast", "level", t.Level, "message", t.Message)
		return nil
	}
	n.logger.InfoContext(ctx, "Toast", "level", t.Level, "message", t.Message)
	return nil
}

// DefaultRecorderSize bounds how many undrained toasts a Recorder keeps.
const DefaultRecorderSize = 100

// Recorder keeps toasts in memory until drained. When full, the oldest
// toast is dropped.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
	max    int
}

func NewRecorder(max int) *Recorder {
	if max <= 0 {
		max = DefaultRecorderSize
	}
	return &Recorder{max: max}
}

func (r *Recorder) Notify(_ context.Context, t Toast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == r.max {
		r.toasts = r.toasts[1:]
	}
	r.toasts = append(r.toasts, t)
	return nil
}

// Drain returns recorded toasts oldest first and forgets them.
func (r *Recorder) Drain() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.toasts
	r.toasts = nil
	if out == nil {
		return []Toast{}
	}
	return out
}

// Peek returns a copy of the recorded toasts without draining.
func (r *Recorder) Peek() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Toast, len(r.toasts))
	copy(out, r.toasts)
	return out
}

// Multi sends every toast to each notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, t Toast) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Instrumented counts toasts per level before passing them on.
type Instrumented struct {
	Next    Notifier
	Metrics *metrics.Metrics
}

func (i Instrumented) Notify(ctx context.Context, t Toast) error {
	i.Metrics.Toast(string(t.Level))
	return i.Next.Notify(ctx, t)
}

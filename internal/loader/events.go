package loader

import "log/slog"

// Stage is the progress stage of one role.
type Stage string

const (
	StageAttempt  Stage = "attempt"
	StageSuccess  Stage = "success"
	StageFallback Stage = "fallback"
	StageFailure  Stage = "failure"
)

// Event reports loader progress. Events are advisory.
type Event struct {
	Stage    Stage
	Role     Role
	Provider string
	Model    string
	Err      error
}

// Notifier receives loader progress events.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// SlogNotifier logs every event.
type SlogNotifier struct{}

func (SlogNotifier) Notify(e Event) {
	attrs := []any{"role", e.Role, "provider", e.Provider, "model", e.Model}
	switch e.Stage {
	case StageAttempt:
		slog.Info("Loading model", attrs...)
	case StageSuccess:
		slog.Info("Model loaded", attrs...)
	case StageFallback:
		slog.Warn("Falling back to processor and model pair", append(attrs, "err", e.Err)...)
	case StageFailure:
		slog.Error("Model failed to load", append(attrs, "err", e.Err)...)
	}
}

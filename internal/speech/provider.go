// Package speech manages interchangeable speech-to-text providers with
// bounded restart and transcript batching.
package speech

import "context"

// ErrorClass is the normalized taxonomy for provider failures. Providers
// report engine-specific codes; the orchestrator only acts on these classes.
type ErrorClass string

const (
	// ErrPermissionDenied means the microphone or credential was refused.
	// Never retried: backoff cannot fix a denied device.
	ErrPermissionDenied ErrorClass = "permission-denied"
	// ErrNetwork is a transient transport failure. Retryable.
	ErrNetwork ErrorClass = "network"
	// ErrNoInput means the engine timed out on silence. Retryable and not
	// counted against the restart budget.
	ErrNoInput ErrorClass = "no-input"
	// ErrUnknown is any other failure. Retryable, counted.
	ErrUnknown ErrorClass = "unknown"
)

// Retryable reports whether the class permits another restart attempt.
func (c ErrorClass) Retryable() bool {
	return c != ErrPermissionDenied
}

// CountsAgainstBudget reports whether the class consumes a restart attempt.
func (c ErrorClass) CountsAgainstBudget() bool {
	return c == ErrNetwork || c == ErrUnknown
}

// EventKind identifies what a provider is reporting.
type EventKind string

const (
	// EventStarted acknowledges a successful engine start.
	EventStarted EventKind = "started"
	// EventPartial carries interim text that may still change.
	EventPartial EventKind = "partial"
	// EventFinal carries a stable transcript fragment.
	EventFinal EventKind = "final"
	// EventEnded means the engine closed the session (silence timeout,
	// remote close). Not necessarily an error.
	EventEnded EventKind = "ended"
	// EventError carries a classified failure.
	EventError EventKind = "error"
)

// Fragment is one finalized piece of recognized speech.
type Fragment struct {
	Text        string
	Confidence  float64
	TimestampMs int64
}

// Event is one asynchronous report from a provider's engine.
type Event struct {
	Kind     EventKind
	Fragment Fragment
	Class    ErrorClass
	Err      error
}

// Provider is a speech-to-text engine adapter. Start and Stop return before
// the engine confirms; confirmation and results arrive on Events. A provider
// must close its Events channel from Close and never after.
type Provider interface {
	// Name identifies the provider for configuration and attribution.
	Name() string
	// Init prepares the engine (device access, token fetch). Must be called
	// before Start and may be called again after a session ends.
	Init(ctx context.Context) error
	// Start opens a listening session. Engine acknowledgement arrives as an
	// EventStarted on Events.
	Start(ctx context.Context) error
	// Stop closes the current session.
	Stop(ctx context.Context) error
	// Events is the provider's asynchronous event stream.
	Events() <-chan Event
	// Close releases the engine and closes Events.
	Close() error
}

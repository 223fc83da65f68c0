package speech

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the orchestrator's lifecycle state.
type State string

const (
	StateUninitialized     State = "uninitialized"
	StateInitialized       State = "initialized"
	StateListening         State = "listening"
	StateStopped           State = "stopped"
	StateFailedPermanently State = "failed-permanently"
)

// Options configures the orchestrator.
type Options struct {
	ProviderName       string
	FallbackProvider   string
	MaxRestartAttempts int
	Policy             ReconnectionPolicy
	// OnPermanentFailure is invoked once when the restart budget is exhausted
	// or a non-retryable error arrives. Optional.
	OnPermanentFailure func(class ErrorClass)
}

// Orchestrator drives one speech session: provider selection with a single
// fallback, bounded restart on unexpected session ends, and fragment routing
// into the batcher.
type Orchestrator struct {
	mu sync.Mutex

	providers map[string]Provider
	active    Provider
	batcher   *TranscriptBatcher
	opts      Options
	logger    *zap.Logger

	state             State
	enabled           bool
	consecutiveErrors int
	restartAttempts   int
	lastErrorClass    ErrorClass
	lastStart         time.Time
	failureNotified   bool

	// scheduleRestart defers a restart; replaced in tests to run inline.
	scheduleRestart func(d time.Duration, fn func())
}

// NewOrchestrator creates an orchestrator over the given providers.
func NewOrchestrator(providers map[string]Provider, batcher *TranscriptBatcher, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxRestartAttempts <= 0 {
		opts.MaxRestartAttempts = 3
	}
	if opts.Policy.BaseDelay == 0 {
		opts.Policy = NewReconnectionPolicy(0, 0)
	}
	o := &Orchestrator{
		providers: providers,
		batcher:   batcher,
		opts:      opts,
		logger:    logger,
		state:     StateUninitialized,
	}
	o.scheduleRestart = func(d time.Duration, fn func()) {
		time.AfterFunc(d, fn)
	}
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ActiveProvider returns the name of the selected provider, or "".
func (o *Orchestrator) ActiveProvider() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return ""
	}
	return o.active.Name()
}

// Initialize selects and initializes the configured provider. If its Init
// fails, falls back exactly once to the designated fallback provider; a
// second failure is returned to the caller.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateListening {
		return fmt.Errorf("cannot initialize while listening")
	}

	primary, ok := o.providers[o.opts.ProviderName]
	if !ok {
		return fmt.Errorf("speech provider %q not registered", o.opts.ProviderName)
	}
	if err := primary.Init(ctx); err == nil {
		o.active = primary
		o.state = StateInitialized
		o.logger.Info("speech provider initialized", zap.String("provider", primary.Name()))
		return nil
	} else {
		o.logger.Warn("primary speech provider failed to initialize, trying fallback",
			zap.String("provider", primary.Name()), zap.Error(err))
	}

	fallback, ok := o.providers[o.opts.FallbackProvider]
	if !ok || o.opts.FallbackProvider == o.opts.ProviderName {
		return fmt.Errorf("speech provider %q failed and no fallback is available", o.opts.ProviderName)
	}
	if err := fallback.Init(ctx); err != nil {
		return fmt.Errorf("fallback provider %q: %w", fallback.Name(), err)
	}
	o.active = fallback
	o.state = StateInitialized
	o.logger.Info("fallback speech provider initialized", zap.String("provider", fallback.Name()))
	return nil
}

// Start begins listening. Allowed from initialized, stopped, or
// failed-permanently (manual restart); the engine's acknowledgement arrives
// asynchronously as an EventStarted.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	switch o.state {
	case StateInitialized, StateStopped, StateFailedPermanently:
	default:
		o.mu.Unlock()
		return fmt.Errorf("cannot start from state %s", o.state)
	}
	active := o.active
	o.enabled = true
	o.failureNotified = false
	o.mu.Unlock()

	if err := active.Start(ctx); err != nil {
		return fmt.Errorf("start %s: %w", active.Name(), err)
	}
	return nil
}

// Stop ends the session and performs a final flush. The flush runs even when
// the provider's stop fails: speech captured before the stop request must not
// be dropped.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateListening {
		o.mu.Unlock()
		return fmt.Errorf("cannot stop from state %s", o.state)
	}
	o.enabled = false
	o.state = StateStopped
	active := o.active
	o.mu.Unlock()

	stopErr := active.Stop(ctx)
	if o.batcher != nil {
		o.batcher.Flush(ctx)
	}
	if stopErr != nil {
		return fmt.Errorf("stop %s: %w", active.Name(), stopErr)
	}
	return nil
}

// Run consumes the active provider's events until ctx is done or the event
// channel closes.
func (o *Orchestrator) Run(ctx context.Context) {
	o.mu.Lock()
	active := o.active
	o.mu.Unlock()
	if active == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-active.Events():
			if !ok {
				return
			}
			o.handleEvent(ctx, ev)
		}
	}
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventStarted:
		o.onStarted()
	case EventFinal:
		o.onFinal(ev.Fragment)
	case EventPartial:
		// Interim text may still change; only finals are batched.
	case EventError:
		o.onError(ev)
	case EventEnded:
		o.onEnded(ctx)
	}
}

func (o *Orchestrator) onStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = StateListening
	o.consecutiveErrors = 0
	o.restartAttempts = 0
	o.lastErrorClass = ""
	o.lastStart = time.Now()
	o.logger.Info("speech session listening", zap.String("provider", o.active.Name()))
}

func (o *Orchestrator) onFinal(f Fragment) {
	o.mu.Lock()
	// A successful result is evidence the transient condition cleared.
	o.consecutiveErrors = 0
	o.lastErrorClass = ""
	o.mu.Unlock()
	if o.batcher != nil {
		o.batcher.Append(f)
	}
}

func (o *Orchestrator) onError(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastErrorClass = ev.Class
	o.logger.Warn("speech provider error",
		zap.String("provider", o.active.Name()),
		zap.String("class", string(ev.Class)),
		zap.Error(ev.Err))

	if !ev.Class.Retryable() {
		o.enabled = false
		o.failPermanentlyLocked(ev.Class)
		return
	}
	if ev.Class.CountsAgainstBudget() {
		o.consecutiveErrors++
	}
}

// onEnded handles the engine closing the session. An end without a preceding
// classified error still consumes budget: the engine gave up for a reason it
// did not report.
func (o *Orchestrator) onEnded(ctx context.Context) {
	o.mu.Lock()
	if !o.enabled {
		if o.state == StateListening {
			o.state = StateStopped
		}
		o.mu.Unlock()
		return
	}
	if o.lastErrorClass == "" {
		o.consecutiveErrors++
	}
	o.lastErrorClass = ""

	if !o.opts.Policy.ShouldRetry(o.consecutiveErrors, o.opts.MaxRestartAttempts) {
		o.failPermanentlyLocked(ErrUnknown)
		o.mu.Unlock()
		return
	}

	o.restartAttempts++
	attempt := o.consecutiveErrors
	if attempt < 1 {
		attempt = 1
	}
	delay := o.opts.Policy.NextDelay(attempt)
	active := o.active
	o.logger.Info("speech session ended, scheduling restart",
		zap.String("provider", active.Name()),
		zap.Int("consecutive_errors", o.consecutiveErrors),
		zap.Duration("delay", delay))
	o.mu.Unlock()

	o.scheduleRestart(delay, func() {
		o.mu.Lock()
		if !o.enabled {
			o.mu.Unlock()
			return
		}
		o.mu.Unlock()
		if err := active.Start(ctx); err != nil {
			o.logger.Error("speech restart failed", zap.Error(err))
			o.mu.Lock()
			o.consecutiveErrors++
			o.mu.Unlock()
		}
	})
}

func (o *Orchestrator) failPermanentlyLocked(class ErrorClass) {
	o.state = StateFailedPermanently
	o.enabled = false
	if o.failureNotified {
		return
	}
	o.failureNotified = true
	o.logger.Error("speech capture stopped permanently",
		zap.String("class", string(class)),
		zap.Int("consecutive_errors", o.consecutiveErrors))
	if o.opts.OnPermanentFailure != nil {
		cb := o.opts.OnPermanentFailure
		go cb(class)
	}
}

// Close releases all registered providers.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var firstErr error
	for _, p := range o.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

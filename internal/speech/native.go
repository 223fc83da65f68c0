package speech

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Engine is a local recognition engine with asynchronous callbacks. The
// platform layer supplies the concrete engine; this package only normalizes
// its behavior.
type Engine interface {
	// SetHandler registers the callback sink. Must be called before Start.
	SetHandler(h EngineHandler)
	// Start opens a listening session; OnStart fires on acknowledgement.
	Start(ctx context.Context) error
	// Stop ends the session; OnEnd fires when the engine has closed.
	Stop() error
}

// EngineHandler receives engine callbacks.
type EngineHandler interface {
	OnStart()
	OnResult(text string, confidence float64, final bool)
	OnError(code string)
	OnEnd()
}

// NativeProvider adapts a local recognition engine to the Provider interface,
// normalizing its error codes into the orchestrator's taxonomy.
type NativeProvider struct {
	engine Engine
	events chan Event

	mu     sync.Mutex
	closed bool
}

// NewNativeProvider wraps the given engine. A nil engine is allowed and
// makes the provider report unavailable at Init.
func NewNativeProvider(engine Engine) *NativeProvider {
	p := &NativeProvider{
		engine: engine,
		events: make(chan Event, 32),
	}
	if engine != nil {
		engine.SetHandler(p)
	}
	return p
}

// Name implements Provider.
func (p *NativeProvider) Name() string { return "native" }

// Init implements Provider. The local engine needs no network setup; a nil
// engine means the platform offers no native recognition.
func (p *NativeProvider) Init(ctx context.Context) error {
	if p.engine == nil {
		return fmt.Errorf("native recognition engine unavailable")
	}
	return nil
}

// Start implements Provider.
func (p *NativeProvider) Start(ctx context.Context) error {
	return p.engine.Start(ctx)
}

// Stop implements Provider.
func (p *NativeProvider) Stop(ctx context.Context) error {
	return p.engine.Stop()
}

// Events implements Provider.
func (p *NativeProvider) Events() <-chan Event { return p.events }

// Close implements Provider.
func (p *NativeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.events)
	return nil
}

func (p *NativeProvider) emit(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		// A stalled consumer drops the oldest semantics; engines keep
		// emitting regardless, so blocking here would deadlock the engine
		// callback thread.
	}
}

// OnStart implements EngineHandler.
func (p *NativeProvider) OnStart() {
	p.emit(Event{Kind: EventStarted})
}

// OnResult implements EngineHandler.
func (p *NativeProvider) OnResult(text string, confidence float64, final bool) {
	kind := EventPartial
	if final {
		kind = EventFinal
	}
	p.emit(Event{Kind: kind, Fragment: Fragment{
		Text:        text,
		Confidence:  confidence,
		TimestampMs: time.Now().UnixMilli(),
	}})
}

// OnError implements EngineHandler. Engine codes follow the web speech
// convention.
func (p *NativeProvider) OnError(code string) {
	p.emit(Event{
		Kind:  EventError,
		Class: classifyEngineCode(code),
		Err:   fmt.Errorf("recognition engine error: %s", code),
	})
}

// OnEnd implements EngineHandler.
func (p *NativeProvider) OnEnd() {
	p.emit(Event{Kind: EventEnded})
}

func classifyEngineCode(code string) ErrorClass {
	switch code {
	case "not-allowed", "service-not-allowed":
		return ErrPermissionDenied
	case "network":
		return ErrNetwork
	case "no-speech", "aborted":
		return ErrNoInput
	default:
		return ErrUnknown
	}
}

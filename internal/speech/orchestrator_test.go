package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name       string
	initErr    error
	startErr   error
	initCalls  int
	startCalls int
	stopCalls  int
	events     chan Event
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, events: make(chan Event, 32)}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Init(context.Context) error {
	p.initCalls++
	return p.initErr
}

func (p *fakeProvider) Start(context.Context) error {
	p.startCalls++
	return p.startErr
}

func (p *fakeProvider) Stop(context.Context) error {
	p.stopCalls++
	return nil
}

func (p *fakeProvider) Events() <-chan Event { return p.events }

func (p *fakeProvider) Close() error {
	close(p.events)
	return nil
}

func newTestOrchestrator(t *testing.T, primary, fallback *fakeProvider, batcher *TranscriptBatcher) *Orchestrator {
	t.Helper()
	providers := map[string]Provider{}
	opts := Options{MaxRestartAttempts: 3, Policy: NewReconnectionPolicy(1, 10)}
	if primary != nil {
		providers[primary.name] = primary
		opts.ProviderName = primary.name
	}
	if fallback != nil {
		providers[fallback.name] = fallback
		opts.FallbackProvider = fallback.name
	}
	o := NewOrchestrator(providers, batcher, opts, nil)
	// Run deferred restarts inline so tests are deterministic.
	o.scheduleRestart = func(_ time.Duration, fn func()) { fn() }
	return o
}

func startListening(t *testing.T, o *Orchestrator) {
	t.Helper()
	require.NoError(t, o.Initialize(context.Background()))
	require.NoError(t, o.Start(context.Background()))
	o.handleEvent(context.Background(), Event{Kind: EventStarted})
	require.Equal(t, StateListening, o.State())
}

func TestInitializeFallsBackOnce(t *testing.T) {
	primary := newFakeProvider("cloud")
	primary.initErr = errors.New("token endpoint unreachable")
	fallback := newFakeProvider("native")

	o := newTestOrchestrator(t, primary, fallback, nil)
	require.NoError(t, o.Initialize(context.Background()))

	assert.Equal(t, "native", o.ActiveProvider())
	assert.Equal(t, StateInitialized, o.State())
	assert.Equal(t, 1, primary.initCalls)
	assert.Equal(t, 1, fallback.initCalls)
}

func TestInitializeFailsWhenFallbackFails(t *testing.T) {
	primary := newFakeProvider("cloud")
	primary.initErr = errors.New("no token")
	fallback := newFakeProvider("native")
	fallback.initErr = errors.New("no microphone")

	o := newTestOrchestrator(t, primary, fallback, nil)
	err := o.Initialize(context.Background())

	require.Error(t, err)
	assert.Equal(t, StateUninitialized, o.State())
}

func TestRestartBudgetExhaustion(t *testing.T) {
	provider := newFakeProvider("native")
	o := newTestOrchestrator(t, provider, nil, nil)
	startListening(t, o)
	require.Equal(t, 1, provider.startCalls)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		o.handleEvent(ctx, Event{Kind: EventError, Class: ErrNetwork, Err: errors.New("engine network error")})
		o.handleEvent(ctx, Event{Kind: EventEnded})
	}

	assert.Equal(t, StateFailedPermanently, o.State())
	// Initial start plus two restarts; the third end exhausts the budget.
	assert.Equal(t, 3, provider.startCalls)

	// Further ends must not schedule anything.
	o.handleEvent(ctx, Event{Kind: EventEnded})
	assert.Equal(t, 3, provider.startCalls)
}

func TestPermissionDeniedShortCircuits(t *testing.T) {
	provider := newFakeProvider("native")
	failed := make(chan ErrorClass, 1)

	o := newTestOrchestrator(t, provider, nil, nil)
	o.opts.OnPermanentFailure = func(class ErrorClass) { failed <- class }
	startListening(t, o)

	ctx := context.Background()
	o.handleEvent(ctx, Event{Kind: EventError, Class: ErrPermissionDenied, Err: errors.New("microphone denied")})
	o.handleEvent(ctx, Event{Kind: EventEnded})

	assert.Equal(t, StateFailedPermanently, o.State())
	assert.Equal(t, 1, provider.startCalls)

	select {
	case class := <-failed:
		assert.Equal(t, ErrPermissionDenied, class)
	case <-time.After(time.Second):
		t.Fatal("permanent failure callback not invoked")
	}
}

func TestNoInputDoesNotConsumeBudget(t *testing.T) {
	provider := newFakeProvider("native")
	o := newTestOrchestrator(t, provider, nil, nil)
	startListening(t, o)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		o.handleEvent(ctx, Event{Kind: EventError, Class: ErrNoInput, Err: errors.New("silence timeout")})
		o.handleEvent(ctx, Event{Kind: EventEnded})
	}

	assert.NotEqual(t, StateFailedPermanently, o.State())
	// Every idle end triggers a restart.
	assert.Equal(t, 6, provider.startCalls)
}

func TestManualStartAfterPermanentFailureResetsCounter(t *testing.T) {
	provider := newFakeProvider("native")
	o := newTestOrchestrator(t, provider, nil, nil)
	startListening(t, o)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		o.handleEvent(ctx, Event{Kind: EventError, Class: ErrNetwork, Err: errors.New("down")})
		o.handleEvent(ctx, Event{Kind: EventEnded})
	}
	require.Equal(t, StateFailedPermanently, o.State())

	// Explicit user restart succeeds and clears the error counter.
	require.NoError(t, o.Start(ctx))
	o.handleEvent(ctx, Event{Kind: EventStarted})

	assert.Equal(t, StateListening, o.State())
	o.mu.Lock()
	assert.Equal(t, 0, o.consecutiveErrors)
	o.mu.Unlock()
}

func TestFinalResultResetsErrorCounter(t *testing.T) {
	sink := &captureSink{}
	batcher := NewTranscriptBatcher(sink, "native", "", 10*time.Second, nil)
	provider := newFakeProvider("native")
	o := newTestOrchestrator(t, provider, nil, batcher)
	startListening(t, o)

	ctx := context.Background()
	o.handleEvent(ctx, Event{Kind: EventError, Class: ErrNetwork, Err: errors.New("blip")})
	o.handleEvent(ctx, Event{Kind: EventEnded})
	o.handleEvent(ctx, Event{Kind: EventStarted})

	o.handleEvent(ctx, Event{Kind: EventFinal, Fragment: Fragment{Text: "nat twenty", Confidence: 0.95, TimestampMs: 10}})

	o.mu.Lock()
	assert.Equal(t, 0, o.consecutiveErrors)
	o.mu.Unlock()
	assert.Equal(t, 1, batcher.Pending())
}

func TestPartialResultsAreNotBatched(t *testing.T) {
	sink := &captureSink{}
	batcher := NewTranscriptBatcher(sink, "native", "", 10*time.Second, nil)
	provider := newFakeProvider("native")
	o := newTestOrchestrator(t, provider, nil, batcher)
	startListening(t, o)

	o.handleEvent(context.Background(), Event{Kind: EventPartial, Fragment: Fragment{Text: "nat twen", Confidence: 0.4}})

	assert.Equal(t, 0, batcher.Pending())
}

func TestStopFlushesEvenWithPendingFragments(t *testing.T) {
	sink := &captureSink{}
	batcher := NewTranscriptBatcher(sink, "native", "", 10*time.Second, nil)
	provider := newFakeProvider("native")
	o := newTestOrchestrator(t, provider, nil, batcher)
	startListening(t, o)

	o.handleEvent(context.Background(), Event{Kind: EventFinal, Fragment: Fragment{Text: "session over", Confidence: 1, TimestampMs: 5}})
	require.NoError(t, o.Stop(context.Background()))

	assert.Equal(t, 1, provider.stopCalls)
	require.Len(t, sink.chunks, 1)
	assert.Equal(t, "session over", sink.chunks[0].Text)
	assert.Equal(t, StateStopped, o.State())
}

func TestStopRequiresListening(t *testing.T) {
	provider := newFakeProvider("native")
	o := newTestOrchestrator(t, provider, nil, nil)

	assert.Error(t, o.Stop(context.Background()))

	require.NoError(t, o.Initialize(context.Background()))
	assert.Error(t, o.Stop(context.Background()))
}

func TestEngineCodeClassification(t *testing.T) {
	assert.Equal(t, ErrPermissionDenied, classifyEngineCode("not-allowed"))
	assert.Equal(t, ErrPermissionDenied, classifyEngineCode("service-not-allowed"))
	assert.Equal(t, ErrNetwork, classifyEngineCode("network"))
	assert.Equal(t, ErrNoInput, classifyEngineCode("no-speech"))
	assert.Equal(t, ErrNoInput, classifyEngineCode("aborted"))
	assert.Equal(t, ErrUnknown, classifyEngineCode("audio-capture"))
}

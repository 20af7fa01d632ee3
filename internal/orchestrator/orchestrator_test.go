package orchestrator

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"layeredquery/internal/config"
	"layeredquery/internal/layer"
	"layeredquery/internal/services"
	"layeredquery/internal/types"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *services.SharedServices) {
	t.Helper()

	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Layers.L3.DBPath = filepath.Join(root, ".ontology", "ontology.db")

	svc, err := services.New(cfg, root)
	if err != nil {
		t.Fatalf("services.New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	return New(svc, cfg), svc
}

func TestHandleConceptQueryMissingConceptReturnsNoError(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	res, err := o.Handle(context.Background(), types.Request{
		Kind:      types.KindConceptQuery,
		ConceptID: "fn:doesNotExist",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.CacheHit {
		t.Fatal("expected the first call to miss the cache")
	}
}

func TestHandleCachesByFingerprint(t *testing.T) {
	o, svc := newTestOrchestrator(t)

	if err := svc.Graph.UpsertConcept(types.Concept{
		ID: "fn:foo", CanonicalName: "foo", Kind: types.ConceptFunction, Confidence: 0.9,
	}); err != nil {
		t.Fatalf("UpsertConcept: %v", err)
	}

	req := types.Request{Kind: types.KindConceptQuery, ConceptID: "fn:foo"}

	first, err := o.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle (first): %v", err)
	}
	if first.CacheHit {
		t.Fatal("expected first call to miss the cache")
	}

	second, err := o.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle (second): %v", err)
	}
	if !second.CacheHit {
		t.Fatal("expected second identical call to hit the cache")
	}
}

func TestLayerApplicableRestrictsPatternSuggestToPatternsLayer(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	for _, name := range []layer.Name{layer.Lexical, layer.AST, layer.Graph, layer.Patterns, layer.Propagation} {
		got := o.layerApplicable(types.KindPatternSuggest, name)
		want := name == layer.Patterns
		if got != want {
			t.Errorf("layerApplicable(patternSuggest, %s) = %v, want %v", name, got, want)
		}
	}
}

func TestForbidsShortcutTrueOnlyForFindDefinition(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	if !o.forbidsShortcut(types.KindFindDefinition) {
		t.Error("expected findDefinition to forbid an early shortcut")
	}
	if o.forbidsShortcut(types.KindCompletion) {
		t.Error("expected completion to permit an early shortcut")
	}
}

func TestHealthReportsEveryLayerClosed(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	health := o.Health()
	if len(health) != 5 {
		t.Fatalf("expected 5 layers reported, got %d", len(health))
	}
	for name, state := range health {
		if state != "closed" {
			t.Errorf("expected layer %s to start closed, got %s", name, state)
		}
	}
}

// sufficientMarkingLayer sets acc.Sufficient on its first call and
// never fails, simulating a stage that found strong enough evidence to
// justify an early return.
type sufficientMarkingLayer struct{ name layer.Name }

func (l *sufficientMarkingLayer) Name() layer.Name                  { return l.name }
func (l *sufficientMarkingLayer) Initialize(context.Context) error  { return nil }
func (l *sufficientMarkingLayer) Dispose() error                    { return nil }
func (l *sufficientMarkingLayer) IsHealthy() bool                   { return true }
func (l *sufficientMarkingLayer) GetMetrics() layer.Metrics         { return layer.Metrics{} }
func (l *sufficientMarkingLayer) Process(_ context.Context, _ types.Request, acc *layer.Result) (*layer.Result, error) {
	acc.Sufficient = true
	acc.AddSource(l.name)
	return acc, nil
}

// recordingLayer records whether it was ever invoked, so a test can
// assert a later stage was skipped by the Sufficient short-circuit.
type recordingLayer struct {
	name   layer.Name
	called bool
}

func (l *recordingLayer) Name() layer.Name                 { return l.name }
func (l *recordingLayer) Initialize(context.Context) error { return nil }
func (l *recordingLayer) Dispose() error                   { return nil }
func (l *recordingLayer) IsHealthy() bool                  { return true }
func (l *recordingLayer) GetMetrics() layer.Metrics        { return layer.Metrics{} }
func (l *recordingLayer) Process(_ context.Context, _ types.Request, acc *layer.Result) (*layer.Result, error) {
	l.called = true
	acc.AddSource(l.name)
	return acc, nil
}

func shortCircuitStages(second *recordingLayer) []stage {
	return []stage{
		{name: layer.Lexical, l: &sufficientMarkingLayer{name: layer.Lexical}, enabled: true, breaker: newCircuitBreaker("lexical", 5, time.Second)},
		{name: layer.AST, l: second, enabled: true, breaker: newCircuitBreaker("ast", 5, time.Second)},
	}
}

func TestHandleShortCircuitsForKindThatPermitsIt(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	second := &recordingLayer{name: layer.AST}
	o.stages = shortCircuitStages(second)

	if _, err := o.Handle(context.Background(), types.Request{Kind: types.KindHover, Identifier: "widget"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if second.called {
		t.Error("expected the AST stage to be skipped once Lexical marked the result sufficient")
	}
}

func TestHandleNeverShortCircuitsForFindDefinition(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	second := &recordingLayer{name: layer.AST}
	o.stages = shortCircuitStages(second)

	if _, err := o.Handle(context.Background(), types.Request{Kind: types.KindFindDefinition, Identifier: "widget"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !second.called {
		t.Error("expected findDefinition to run the AST stage even though Lexical marked the result sufficient")
	}
}

func TestAdmitRefusesOnceLimitReached(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.cfg.Performance.MaxConcurrentRequests = 2

	if !o.admit() {
		t.Fatal("expected first admit to succeed")
	}
	if !o.admit() {
		t.Fatal("expected second admit to succeed")
	}
	if o.admit() {
		t.Fatal("expected third admit to be refused once the limit is reached")
	}

	atomic.AddInt64(&o.inFlight, -1)
	if !o.admit() {
		t.Fatal("expected admit to succeed again after a slot freed up")
	}
}

func TestAdmitUnboundedWhenLimitNonPositive(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.cfg.Performance.MaxConcurrentRequests = 0

	for i := 0; i < 10; i++ {
		if !o.admit() {
			t.Fatalf("expected admit %d to succeed with no configured limit", i)
		}
	}
}

func TestHandleRefusesWithServiceUnavailableOverCapacity(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.cfg.Performance.MaxConcurrentRequests = 1
	atomic.AddInt64(&o.inFlight, 1)

	_, err := o.Handle(context.Background(), types.Request{
		Kind:      types.KindConceptQuery,
		ConceptID: "fn:doesNotExist",
	})
	if err == nil {
		t.Fatal("expected Handle to refuse while at capacity")
	}
	coreErr, ok := err.(*types.Error)
	if !ok {
		t.Fatalf("expected *types.Error, got %T", err)
	}
	if coreErr.Code != types.ErrServiceUnavailable {
		t.Fatalf("expected ErrServiceUnavailable, got %s", coreErr.Code)
	}
}

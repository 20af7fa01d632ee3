package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"layeredquery/internal/ast"
	"layeredquery/internal/graph"
	"layeredquery/internal/layer"
	"layeredquery/internal/types"
)

func newTestGraphStore(t *testing.T) *graph.Store {
	t.Helper()
	s, err := graph.Open(filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatalf("graph.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestASTLayer(t *testing.T, workers int, parseTimeout time.Duration) *astLayer {
	t.Helper()

	engine, err := ast.New(ast.Config{CacheSize: 32, CacheTTL: time.Minute, MaxFiles: 100})
	if err != nil {
		t.Fatalf("ast.New: %v", err)
	}
	t.Cleanup(engine.Dispose)

	l := newASTLayer(engine, 100, parseTimeout)
	if workers > 0 {
		l.workers = workers
	}
	return l
}

func writeJSFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestASTLayerParseAllFansOutAcrossWorkerPool(t *testing.T) {
	dir := t.TempDir()
	l := newTestASTLayer(t, 2, time.Second)

	paths := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		paths = append(paths, writeJSFile(t, dir, "f"+string(rune('a'+i))+".js",
			"function widget() { return 1; }"))
	}

	outcomes := l.parseAll(context.Background(), paths)
	if len(outcomes) != len(paths) {
		t.Fatalf("expected %d outcomes, got %d", len(paths), len(outcomes))
	}
	for i, o := range outcomes {
		if o.path != paths[i] {
			t.Errorf("outcome %d: expected path %s, got %s (merge order must stay deterministic)", i, paths[i], o.path)
		}
		if o.err != nil {
			t.Errorf("outcome %d (%s): unexpected error: %v", i, o.path, o.err)
		}
		if o.parsed == nil {
			t.Errorf("outcome %d (%s): expected a parsed AST", i, o.path)
		}
	}
}

func TestASTLayerParseAllSkipsDispatchWhenAlreadyCancelled(t *testing.T) {
	dir := t.TempDir()
	l := newTestASTLayer(t, 1, time.Second)
	path := writeJSFile(t, dir, "f.js", "function widget() {}")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := l.parseAll(ctx, []string{path})
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	coreErr, ok := outcomes[0].err.(*types.Error)
	if !ok {
		t.Fatalf("expected *types.Error, got %T", outcomes[0].err)
	}
	if coreErr.Code != types.ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %s", coreErr.Code)
	}
}

func TestASTLayerProcessMergesRepresentationsInFileOrder(t *testing.T) {
	dir := t.TempDir()
	l := newTestASTLayer(t, 3, time.Second)

	first := writeJSFile(t, dir, "a.js", "function widget() { return 1; }")
	second := writeJSFile(t, dir, "b.js", "function widget(x) { return x; }")

	acc := &layer.Result{CandidateFiles: []string{first, second}}
	result, err := l.Process(context.Background(), types.Request{
		Kind:       types.KindFindDefinition,
		Identifier: "widget",
	}, acc)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(result.Representations) == 0 {
		t.Fatal("expected at least one representation for widget across both files")
	}
}

func TestGraphLayerMarksSufficientOnExactHighConfidenceMatch(t *testing.T) {
	store := newTestGraphStore(t)
	if err := store.UpsertConcept(types.Concept{
		ID: "fn:widget", CanonicalName: "widget", Kind: types.ConceptFunction, Confidence: 1.0,
	}); err != nil {
		t.Fatalf("UpsertConcept: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.AddRepresentation(types.SymbolRepresentation{
			ConceptID: "fn:widget", Name: "widget",
			Location: types.Range{
				Start: types.Location{URI: "a.js", Line: i, Col: 0},
				End:   types.Location{URI: "a.js", Line: i, Col: 6},
			},
			Occurrences: 1,
		}); err != nil {
			t.Fatalf("AddRepresentation: %v", err)
		}
	}

	l := newGraphLayer(store)
	acc, err := l.Process(context.Background(), types.Request{
		Kind:       types.KindHover,
		Identifier: "widget",
	}, &layer.Result{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !acc.Sufficient {
		t.Error("expected an unambiguous, high-confidence exact match to mark the result sufficient")
	}
}

func TestGraphLayerLeavesAmbiguousMatchInsufficient(t *testing.T) {
	store := newTestGraphStore(t)
	if err := store.UpsertConcept(types.Concept{
		ID: "fn:widget", CanonicalName: "widget", Kind: types.ConceptFunction, Confidence: 0.95,
	}); err != nil {
		t.Fatalf("UpsertConcept: %v", err)
	}
	if err := store.UpsertConcept(types.Concept{
		ID: "fn:widgetFactory", CanonicalName: "widgetFactory", Kind: types.ConceptFunction, Confidence: 0.9,
	}); err != nil {
		t.Fatalf("UpsertConcept: %v", err)
	}

	l := newGraphLayer(store)
	acc, err := l.Process(context.Background(), types.Request{
		Kind:       types.KindHover,
		Identifier: "widget",
	}, &layer.Result{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if acc.Sufficient {
		t.Error("expected a fuzzy/ambiguous match not to mark the result sufficient")
	}
}

package orchestrator

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"layeredquery/internal/ast"
	"layeredquery/internal/graph"
	"layeredquery/internal/layer"
	"layeredquery/internal/lexical"
	"layeredquery/internal/logging"
	"layeredquery/internal/patterns"
	"layeredquery/internal/propagation"
	"layeredquery/internal/types"
)

// metricsTracker accumulates the counters layer.Metrics reports,
// shared by every adapter below so each wraps its engine calls in the
// same bookkeeping rather than reimplementing it five times.
type metricsTracker struct {
	mu sync.Mutex
	m  layer.Metrics
}

func (t *metricsTracker) record(elapsed time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.m.TotalRequests++
	if err != nil {
		t.m.FailedRequests++
		if e, ok := err.(*types.Error); ok {
			t.m.LastError = e.Error()
			if e.Code == types.ErrTimeout {
				t.m.TimeoutRequests++
			}
		} else {
			t.m.LastError = err.Error()
		}
	} else {
		t.m.SuccessfulRequests++
	}

	n := float64(t.m.TotalRequests)
	t.m.AverageLatencyMs = t.m.AverageLatencyMs*((n-1)/n) + float64(elapsed.Milliseconds())/n
}

func (t *metricsTracker) snapshot() layer.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m
}

// kindIn reports whether kind is one of kinds. Used by each adapter as
// a Go-side mirror of the stage gate's applicable/2 facts
// (internal/rules/stagegate.mg), so an adapter never does engine work
// for a kind it cannot serve even if the Mangle cross-check in
// Orchestrator.layerApplicable is ever bypassed by a caller.
func kindIn(kind types.RequestKind, kinds ...types.RequestKind) bool {
	for _, k := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// lexicalLayer adapts lexical.Engine to layer.Layer.
type lexicalLayer struct {
	engine  *lexical.Engine
	metrics metricsTracker
}

func newLexicalLayer(e *lexical.Engine) *lexicalLayer { return &lexicalLayer{engine: e} }

func (l *lexicalLayer) Name() layer.Name           { return layer.Lexical }
func (l *lexicalLayer) Initialize(context.Context) error { return nil }
func (l *lexicalLayer) Dispose() error             { return nil }
func (l *lexicalLayer) IsHealthy() bool            { return true }
func (l *lexicalLayer) GetMetrics() layer.Metrics  { return l.metrics.snapshot() }

func (l *lexicalLayer) Process(ctx context.Context, req types.Request, acc *layer.Result) (*layer.Result, error) {
	if !kindIn(req.Kind, types.KindFindDefinition, types.KindFindReferences, types.KindFindImplementations,
		types.KindHover, types.KindCompletion, types.KindDiagnostics, types.KindRenamePrepare) {
		return acc, nil
	}

	start := time.Now()
	term := req.Identifier
	if req.Kind == types.KindCompletion {
		term = req.Prefix
	}

	result, err := l.engine.Process(ctx, term)
	l.metrics.record(time.Since(start), err)
	if err != nil {
		return acc, err
	}

	seen := make(map[string]bool, len(acc.CandidateFiles))
	for _, f := range acc.CandidateFiles {
		seen[f] = true
	}
	for _, h := range append(append([]lexical.Hit{}, result.Exact...), result.Fuzzy...) {
		if !seen[h.File] {
			seen[h.File] = true
			acc.CandidateFiles = append(acc.CandidateFiles, h.File)
		}
	}
	acc.ToolsUsed = append(acc.ToolsUsed, result.ToolsUsed...)
	acc.AddSource(layer.Lexical)
	return acc, nil
}

// astLayer adapts ast.Engine to layer.Layer. It reads and parses only
// the files lexical.Engine surfaced as candidates, per the pipeline's
// "L2 parses only L1-produced candidates" contract.
type astLayer struct {
	engine       *ast.Engine
	metrics      metricsTracker
	maxFiles     int
	workers      int
	parseTimeout time.Duration
}

// l2WorkerCount sizes the parsing pool to CPU count minus one, floored
// at 1.
func l2WorkerCount() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

func newASTLayer(e *ast.Engine, maxFiles int, parseTimeout time.Duration) *astLayer {
	if maxFiles <= 0 {
		maxFiles = 100
	}
	if parseTimeout <= 0 {
		parseTimeout = 50 * time.Millisecond
	}
	return &astLayer{engine: e, maxFiles: maxFiles, workers: l2WorkerCount(), parseTimeout: parseTimeout}
}

func (l *astLayer) Name() layer.Name           { return layer.AST }
func (l *astLayer) Initialize(context.Context) error { return nil }
func (l *astLayer) Dispose() error             { l.engine.Dispose(); return nil }
func (l *astLayer) IsHealthy() bool            { return true }
func (l *astLayer) GetMetrics() layer.Metrics  { return l.metrics.snapshot() }

// parseOutcome is one file's parse result, gathered off the worker
// pool and merged into acc back on the calling goroutine so the merge
// order stays deterministic regardless of which worker finished first.
type parseOutcome struct {
	path   string
	parsed *types.ParsedAST
	err    error
}

func (l *astLayer) Process(ctx context.Context, req types.Request, acc *layer.Result) (*layer.Result, error) {
	if !kindIn(req.Kind, types.KindFindDefinition, types.KindFindReferences, types.KindFindImplementations,
		types.KindHover, types.KindDiagnostics, types.KindRenamePrepare) {
		return acc, nil
	}

	start := time.Now()
	files := acc.CandidateFiles
	if len(files) > l.maxFiles {
		files = files[:l.maxFiles]
	}

	outcomes := l.parseAll(ctx, files)

	var firstErr error
	for _, o := range outcomes {
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		parsed := o.parsed
		acc.AST = parsed
		if parsed.Degraded {
			acc.ToolsUsed = append(acc.ToolsUsed, "regexFallback")
		} else {
			acc.ToolsUsed = append(acc.ToolsUsed, "treeSitter")
		}

		if req.Identifier == "" {
			continue
		}
		for _, d := range l.engine.FindDefinition(parsed, req.Identifier) {
			acc.Representations = append(acc.Representations, types.SymbolRepresentation{
				Name:        d.Name,
				Location:    d.Location,
				Occurrences: 1,
			})
		}
		if req.Kind == types.KindFindReferences {
			for _, r := range l.engine.FindReferences(parsed, req.Identifier) {
				acc.Representations = append(acc.Representations, types.SymbolRepresentation{
					Name:        r.Name,
					Location:    r.Location,
					Occurrences: 1,
				})
			}
		}
	}

	l.metrics.record(time.Since(start), firstErr)
	acc.AddSource(layer.AST)
	return acc, firstErr
}

// parseAll fans the CPU-bound parse of each candidate file out across
// a worker pool sized l2WorkerCount(), each task bounded by its own
// parseTimeout so one slow file cannot stall the others. Results are
// returned in the same order as files so the caller's merge stays
// deterministic.
func (l *astLayer) parseAll(ctx context.Context, files []string) []parseOutcome {
	outcomes := make([]parseOutcome, len(files))
	sem := make(chan struct{}, l.workers)
	var wg sync.WaitGroup

	for i, path := range files {
		select {
		case <-ctx.Done():
			outcomes[i] = parseOutcome{path: path, err: types.NewError(types.ErrCancelled, "ast: parse cancelled before dispatch", ctx.Err())}
			continue
		default:
		}

		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = l.parseOne(ctx, path)
		}(i, path)
	}

	wg.Wait()
	return outcomes
}

func (l *astLayer) parseOne(ctx context.Context, path string) parseOutcome {
	content, err := os.ReadFile(path)
	if err != nil {
		return parseOutcome{path: path, err: err}
	}

	taskCtx, cancel := context.WithTimeout(ctx, l.parseTimeout)
	defer cancel()

	parsed, err := l.engine.ParseFile(taskCtx, path, content, false)
	if err != nil {
		if taskCtx.Err() == context.Canceled && ctx.Err() == context.Canceled {
			return parseOutcome{path: path, err: types.NewError(types.ErrCancelled, "ast: parse cancelled", err)}
		}
		return parseOutcome{path: path, err: err}
	}
	return parseOutcome{path: path, parsed: parsed}
}

// graphLayer adapts graph.Store to layer.Layer.
type graphLayer struct {
	store   *graph.Store
	metrics metricsTracker
}

func newGraphLayer(s *graph.Store) *graphLayer { return &graphLayer{store: s} }

// exactMatchConfidenceFloor is the rank score an unambiguous,
// name-exact graph match must clear before a layer can mark the
// accumulated result sufficient.
const exactMatchConfidenceFloor = 0.9

// isExactHighConfidenceMatch reports whether matches is a single,
// unambiguous hit whose canonical name equals name exactly and whose
// rank score clears exactMatchConfidenceFloor — strong enough evidence
// that later layers would only corroborate it, not correct it, so the
// pipeline can stop early for request kinds that permit a shortcut.
func isExactHighConfidenceMatch(matches []graph.DefinitionMatch, name string) bool {
	if len(matches) != 1 {
		return false
	}
	m := matches[0]
	return m.Concept.CanonicalName == name && m.Score >= exactMatchConfidenceFloor
}

func (l *graphLayer) Name() layer.Name           { return layer.Graph }
func (l *graphLayer) Initialize(context.Context) error { return nil }
func (l *graphLayer) Dispose() error             { return nil }
func (l *graphLayer) IsHealthy() bool            { return true }
func (l *graphLayer) GetMetrics() layer.Metrics  { return l.metrics.snapshot() }

func (l *graphLayer) Process(ctx context.Context, req types.Request, acc *layer.Result) (*layer.Result, error) {
	start := time.Now()
	var err error

	switch req.Kind {
	case types.KindFindDefinition, types.KindFindReferences, types.KindFindImplementations,
		types.KindHover, types.KindRenamePrepare:
		var matches []graph.DefinitionMatch
		matches, err = l.store.FindDefinition(req.Identifier, graph.FindOptions{})
		if err == nil {
			for _, m := range matches {
				acc.Definitions = append(acc.Definitions, m.Concept)
				acc.Representations = append(acc.Representations, m.Representations...)
			}
			acc.ToolsUsed = append(acc.ToolsUsed, "conceptGraph")
			if isExactHighConfidenceMatch(matches, req.Identifier) {
				acc.Sufficient = true
			}
		}

	case types.KindConceptQuery:
		var c types.Concept
		var ok bool
		c, ok, err = l.store.GetConcept(req.ConceptID)
		if err == nil && ok {
			acc.Definitions = append(acc.Definitions, c)
		}

	case types.KindConceptGraph:
		var steps []graph.TraversalStep
		steps, err = l.store.ReachableFrom(req.ConceptID, req.Depth)
		if err == nil {
			for _, s := range steps {
				acc.Relationships = append(acc.Relationships, s.Relationship)
			}
		}

	case types.KindRelationship:
		var rels []types.Relationship
		rels, err = l.store.RelationshipsFor(req.ConceptID, "both")
		if err == nil {
			for _, r := range rels {
				if req.RelType == "" || r.Type == req.RelType {
					acc.Relationships = append(acc.Relationships, r)
				}
			}
		}

	default:
		l.metrics.record(time.Since(start), nil)
		return acc, nil
	}

	l.metrics.record(time.Since(start), err)
	if err != nil {
		return acc, err
	}
	acc.AddSource(layer.Graph)
	return acc, nil
}

// patternsLayer adapts patterns.Engine to layer.Layer.
type patternsLayer struct {
	engine  *patterns.Engine
	metrics metricsTracker
}

func newPatternsLayer(e *patterns.Engine) *patternsLayer { return &patternsLayer{engine: e} }

func (l *patternsLayer) Name() layer.Name           { return layer.Patterns }
func (l *patternsLayer) Initialize(context.Context) error { return nil }
func (l *patternsLayer) Dispose() error             { return nil }
func (l *patternsLayer) IsHealthy() bool            { return true }
func (l *patternsLayer) GetMetrics() layer.Metrics  { return l.metrics.snapshot() }

func (l *patternsLayer) Process(ctx context.Context, req types.Request, acc *layer.Result) (*layer.Result, error) {
	start := time.Now()
	var err error

	switch req.Kind {
	case types.KindPatternLearn:
		_, err = l.engine.LearnFromRename(req.OldName, req.NewName, req.Context)

	case types.KindPatternDetect, types.KindFindDefinition, types.KindCompletion:
		var found []patterns.Prediction
		found, err = l.engine.PredictNextRename(req.Identifier, req.Context)
		if err == nil {
			for _, p := range found {
				acc.Patterns = append(acc.Patterns, types.Pattern{
					ID:         p.PatternID,
					Name:       p.Suggested,
					Confidence: p.Confidence,
				})
			}
		}

	case types.KindPatternSuggest, types.KindRenamePlan:
		var found []patterns.Prediction
		found, err = l.engine.PredictNextRename(req.Identifier, req.Context)
		if err == nil {
			for _, p := range found {
				acc.Suggestions = append(acc.Suggestions, types.Suggestion{
					Kind:       "patternPrediction",
					Target:     req.Identifier,
					Proposal:   p.Suggested,
					Confidence: p.Confidence,
					Reason:     p.Reason,
				})
			}
		}

	default:
		l.metrics.record(time.Since(start), nil)
		return acc, nil
	}

	l.metrics.record(time.Since(start), err)
	if err != nil {
		return acc, err
	}
	acc.AddSource(layer.Patterns)
	return acc, nil
}

// propagationLayer adapts propagation.Planner to layer.Layer.
type propagationLayer struct {
	planner *propagation.Planner
	metrics metricsTracker
}

func newPropagationLayer(p *propagation.Planner) *propagationLayer {
	return &propagationLayer{planner: p}
}

func (l *propagationLayer) Name() layer.Name           { return layer.Propagation }
func (l *propagationLayer) Initialize(context.Context) error { return nil }
func (l *propagationLayer) Dispose() error             { return nil }
func (l *propagationLayer) IsHealthy() bool            { return true }
func (l *propagationLayer) GetMetrics() layer.Metrics  { return l.metrics.snapshot() }

func (l *propagationLayer) Process(ctx context.Context, req types.Request, acc *layer.Result) (*layer.Result, error) {
	if !kindIn(req.Kind, types.KindRenamePlan, types.KindRenameApply) {
		return acc, nil
	}

	start := time.Now()
	change := types.Change{
		Type:            types.ChangeRename,
		Identifier:      req.Identifier,
		To:              req.NewName,
		SourceConceptID: req.ConceptID,
		Location:        req.Location,
	}

	suggestions, err := l.planner.Plan(change)
	l.metrics.record(time.Since(start), err)
	if err != nil {
		return acc, err
	}

	acc.Suggestions = append(acc.Suggestions, suggestions...)
	acc.AddSource(layer.Propagation)
	logging.PropagationDebug("propagation layer produced %d suggestions for %s -> %s", len(suggestions), req.Identifier, req.NewName)
	return acc, nil
}

// Package orchestrator implements the Layered Analysis Pipeline's
// control plane: it drives a request through L1 (Lexical) - L5
// (Propagation) in order, consulting a declarative stage-gate program
// to decide which layers apply to a request kind, guarding each layer
// behind its own circuit breaker, fusing per-layer confidence scores,
// and caching the final Result by request fingerprint.
package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"layeredquery/internal/config"
	"layeredquery/internal/layer"
	"layeredquery/internal/logging"
	"layeredquery/internal/rules"
	"layeredquery/internal/services"
	"layeredquery/internal/types"
)

// responseData is the shape of types.Result.Data for every request
// kind the pipeline serves: the union of evidence a layer may
// contribute, with only the fields a given kind populated left
// non-empty.
type responseData struct {
	Definitions     []types.Concept              `json:"definitions,omitempty"`
	Representations []types.SymbolRepresentation `json:"representations,omitempty"`
	Relationships   []types.Relationship         `json:"relationships,omitempty"`
	Patterns        []types.Pattern              `json:"patterns,omitempty"`
	Suggestions     []types.Suggestion           `json:"suggestions,omitempty"`
}

// stage pairs a pipeline layer with the config-driven timeout it must
// honor and the PerStageTimings field it reports into.
type stage struct {
	name    layer.Name
	l       layer.Layer
	enabled bool
	timeout time.Duration
	breaker *circuitBreaker
}

// Orchestrator is the single entry point the Core API and cmd/lq call
// into. One Orchestrator is built per workspace root, sharing the
// SharedServices bundle with whatever else needs it (watch, registry).
type Orchestrator struct {
	services *services.SharedServices
	cfg      *config.CoreConfig
	gate     *rules.Engine
	stages   []stage

	inFlight int64
}

// New wires the five layer adapters around services, each behind its
// own circuit breaker sized from cfg.Performance, and loads the
// embedded stage-gate program used to decide layer applicability and
// the findDefinition no-shortcut rule.
func New(svc *services.SharedServices, cfg *config.CoreConfig) *Orchestrator {
	threshold := cfg.Performance.CircuitBreakerThreshold
	cooldown := time.Duration(cfg.Performance.CircuitBreakerCooldown) * time.Second

	o := &Orchestrator{
		services: svc,
		cfg:      cfg,
		gate:     rules.NewStageGateEngine(),
	}

	o.stages = []stage{
		{
			name:    layer.Lexical,
			l:       newLexicalLayer(svc.Lexical),
			enabled: cfg.Layers.L1.Enabled,
			timeout: time.Duration(cfg.Layers.L1.Timeout) * time.Millisecond,
			breaker: newCircuitBreaker(string(layer.Lexical), threshold, cooldown),
		},
		{
			name:    layer.AST,
			l:       newASTLayer(svc.AST, cfg.Layers.L2.MaxFiles, time.Duration(cfg.Layers.L2.ParseTimeout)*time.Millisecond),
			enabled: cfg.Layers.L2.Enabled,
			timeout: time.Duration(cfg.Layers.L2.Timeout) * time.Millisecond,
			breaker: newCircuitBreaker(string(layer.AST), threshold, cooldown),
		},
		{
			name:    layer.Graph,
			l:       newGraphLayer(svc.Graph),
			enabled: cfg.Layers.L3.Enabled,
			timeout: time.Duration(cfg.Layers.L3.Timeout) * time.Millisecond,
			breaker: newCircuitBreaker(string(layer.Graph), threshold, cooldown),
		},
		{
			name:    layer.Patterns,
			l:       newPatternsLayer(svc.Patterns),
			enabled: cfg.Layers.L4.Enabled,
			timeout: time.Duration(cfg.Layers.L4.Timeout) * time.Millisecond,
			breaker: newCircuitBreaker(string(layer.Patterns), threshold, cooldown),
		},
		{
			name:    layer.Propagation,
			l:       newPropagationLayer(svc.Propagation),
			enabled: cfg.Layers.L5.Enabled,
			timeout: time.Duration(cfg.Layers.L5.Timeout) * time.Millisecond,
			breaker: newCircuitBreaker(string(layer.Propagation), threshold, cooldown),
		},
	}

	return o
}

// admit enforces the backpressure cap on concurrent in-flight
// requests: a non-positive MaxConcurrentRequests disables the cap,
// otherwise a request is admitted only while inFlight stays strictly
// below the limit. Every admitted call must be paired with a
// corresponding atomic.AddInt64(&o.inFlight, -1).
func (o *Orchestrator) admit() bool {
	limit := int64(o.cfg.Performance.MaxConcurrentRequests)
	if limit <= 0 {
		atomic.AddInt64(&o.inFlight, 1)
		return true
	}
	for {
		current := atomic.LoadInt64(&o.inFlight)
		if current >= limit {
			return false
		}
		if atomic.CompareAndSwapInt64(&o.inFlight, current, current+1) {
			return true
		}
	}
}

// layerApplicable asks the stage-gate program whether layer n applies
// to kind, via the applicable/2 static facts and layer_applicable/1
// rule in internal/rules/stagegate.mg.
func (o *Orchestrator) layerApplicable(kind types.RequestKind, n layer.Name) bool {
	results, err := o.gate.Evaluate(
		[]rules.Fact{{Predicate: "request_kind", Args: []interface{}{rules.MangleAtom("/" + string(kind))}}},
		"layer_applicable",
	)
	if err != nil {
		logging.OrchestratorWarn("stage gate evaluation failed for kind %s: %v, allowing layer %s", kind, err, n)
		return true
	}
	want := "/" + string(n)
	for _, f := range results {
		if len(f.Args) != 1 {
			continue
		}
		if f.Args[0] == rules.MangleAtom(want) || f.Args[0] == want {
			return true
		}
	}
	return false
}

// forbidsShortcut asks whether kind forbids an early Sufficient return
// before every applicable layer has run (true for findDefinition).
func (o *Orchestrator) forbidsShortcut(kind types.RequestKind) bool {
	results, err := o.gate.Evaluate(
		[]rules.Fact{{Predicate: "request_kind", Args: []interface{}{rules.MangleAtom("/" + string(kind))}}},
		"forbids_shortcut",
	)
	if err != nil {
		logging.OrchestratorWarn("stage gate shortcut check failed for kind %s: %v, forbidding shortcut", kind, err)
		return true
	}
	return len(results) > 0
}

// Handle drives req through every applicable layer in order, fuses
// confidence across the layers that actually contributed, and returns
// the uniform Result envelope. A cache hit short-circuits the whole
// pipeline.
func (o *Orchestrator) Handle(ctx context.Context, req types.Request) (*types.Result, error) {
	if !o.admit() {
		return nil, types.NewError(types.ErrServiceUnavailable,
			"too many concurrent requests in flight", nil)
	}
	defer atomic.AddInt64(&o.inFlight, -1)

	total := logging.StartTimer(logging.CategoryOrchestrator, "orchestrator.Handle")

	fp := req.Fingerprint()
	if cached, ok := o.services.ResponseCache.Get(fp); ok {
		cached.CacheHit = true
		return &cached, nil
	}

	noShortcut := o.forbidsShortcut(req.Kind)

	acc := &layer.Result{}
	timings := types.PerStageTimings{}
	failed := map[string]string{}

	for _, st := range o.stages {
		if !st.enabled || !o.layerApplicable(req.Kind, st.name) {
			continue
		}
		if acc.Sufficient && !noShortcut {
			break
		}

		if !st.breaker.Allow() {
			failed[string(st.name)] = "circuit breaker open"
			continue
		}

		stageCtx := ctx
		var cancel context.CancelFunc
		if st.timeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, st.timeout)
		}

		start := time.Now()
		result, err := st.l.Process(stageCtx, req, acc)
		elapsed := time.Since(start)
		if cancel != nil {
			cancel()
		}
		recordStageTiming(&timings, st.name, elapsed)

		if err != nil {
			st.breaker.RecordFailure()
			if stageCtx.Err() == context.DeadlineExceeded {
				acc.TimedOut = true
				failed[string(st.name)] = "timed out"
			} else {
				failed[string(st.name)] = err.Error()
			}
			continue
		}

		st.breaker.RecordSuccess()
		acc = result
	}

	timings.Total = total.Stop().Milliseconds()

	acc.Representations = mergeRepresentations(acc.Representations)
	acc.Definitions = mergeDefinitions(acc.Definitions, acc.Representations, req.Location)

	res := &types.Result{
		Data: responseData{
			Definitions:     acc.Definitions,
			Representations: acc.Representations,
			Relationships:   acc.Relationships,
			Patterns:        acc.Patterns,
			Suggestions:     acc.Suggestions,
		},
		PerStageTimings: timings,
		Source:          sourceNames(acc.Sources),
		Confidence:      fuseConfidence(acc.Sources),
		RequestID:       req.RequestID,
		Timestamp:       time.Now(),
	}
	if len(failed) > 0 {
		res.FailedLayers = failed
	}

	o.services.ResponseCache.Put(fp, *res)
	return res, nil
}

func sourceNames(sources []layer.Name) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}

func recordStageTiming(t *types.PerStageTimings, n layer.Name, d time.Duration) {
	ms := d.Milliseconds()
	switch n {
	case layer.Lexical:
		t.L1 = ms
	case layer.AST:
		t.L2 = ms
	case layer.Graph:
		t.L3 = ms
	case layer.Patterns:
		t.L4 = ms
	case layer.Propagation:
		t.L5 = ms
	}
}

// Close releases the underlying services bundle.
func (o *Orchestrator) Close() error {
	return o.services.Close()
}

// Health reports every layer's circuit breaker state, keyed by layer
// name, for the diagnostics request kind.
func (o *Orchestrator) Health() map[string]string {
	out := make(map[string]string, len(o.stages))
	for _, st := range o.stages {
		out[string(st.name)] = st.breaker.State()
	}
	return out
}

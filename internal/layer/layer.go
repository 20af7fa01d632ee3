// Package layer defines the uniform capability interface every pipeline
// stage satisfies: a single capability set (Initialize/Process/
// Dispose/IsHealthy/GetMetrics) instead of ad-hoc duck typing, held
// behind one abstraction by the Orchestrator.
package layer

import (
	"context"

	"layeredquery/internal/types"
)

// Name identifies a layer for logging, config lookup, and circuit
// breaker bookkeeping.
type Name string

const (
	Lexical     Name = "lexical"
	AST         Name = "ast"
	Graph       Name = "graph"
	Patterns    Name = "patterns"
	Propagation Name = "propagation"
)

// Metrics is the per-layer health/performance snapshot returned by
// GetMetrics, consumed by the Orchestrator's circuit breaker and by
// diagnostics responses.
type Metrics struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	TimeoutRequests    int64
	AverageLatencyMs   float64
	LastError          string
}

// Layer is the capability set every pipeline stage implements. The
// Orchestrator holds layers only behind this interface and never
// type-switches on concrete implementations.
type Layer interface {
	// Name identifies the layer.
	Name() Name

	// Initialize prepares the layer's resources (parsers, DB handles,
	// caches). Called once at core startup.
	Initialize(ctx context.Context) error

	// Process runs the layer against the accumulated LayerResult for one
	// request, returning the updated result or an error. Implementations
	// must honor ctx cancellation at every suspension point.
	Process(ctx context.Context, req types.Request, acc *Result) (*Result, error)

	// Dispose releases any held resources (file handles, DB connections,
	// background goroutines). Called once at core shutdown.
	Dispose() error

	// IsHealthy reports whether the layer's circuit breaker would permit
	// new work right now.
	IsHealthy() bool

	// GetMetrics returns a snapshot of the layer's operational counters.
	GetMetrics() Metrics
}

// Result is the accumulated evidence passed between layers within a
// single request, built up as L1 through L5 each contribute.
type Result struct {
	Definitions   []types.Concept
	Representations []types.SymbolRepresentation
	Relationships []types.Relationship
	Patterns      []types.Pattern
	Suggestions   []types.Suggestion
	AST           *types.ParsedAST
	CandidateFiles []string

	// Sufficient, when set by a layer, permits early return — forbidden
	// for findDefinition requests.
	Sufficient bool

	// Sources lists which layers contributed evidence so far, in order.
	Sources []Name

	// ToolsUsed names concrete mechanisms exercised (e.g. "bloomFilter",
	// "treeSitter", "regexFallback") for diagnostics.
	ToolsUsed []string

	// TimedOut marks a layer that hit its latency budget without
	// finishing; this yields partial results, not failure.
	TimedOut bool
}

// AddSource records that a layer contributed to this result, avoiding
// duplicate entries.
func (r *Result) AddSource(n Name) {
	for _, s := range r.Sources {
		if s == n {
			return
		}
	}
	r.Sources = append(r.Sources, n)
}

// Package services constructs the SharedServices bundle the
// Orchestrator and its layers depend on: configuration, the embedded
// concept-graph database handle, the five layer engines, and the
// response cache — each built exactly once per core instance and
// handed around by reference, replacing module-level package-global
// singletons (e.g. internal/core's package-level kernel/store
// variables in the style this package generalizes from) with explicit
// dependency wiring.
package services

import (
	"fmt"
	"path/filepath"
	"time"

	"layeredquery/internal/ast"
	"layeredquery/internal/cache"
	"layeredquery/internal/config"
	"layeredquery/internal/graph"
	"layeredquery/internal/lexical"
	"layeredquery/internal/patterns"
	"layeredquery/internal/propagation"
	"layeredquery/internal/types"
)

// SharedServices bundles every long-lived dependency a core instance
// needs. One SharedServices is built per workspace root and disposed
// on shutdown.
type SharedServices struct {
	Config        *config.CoreConfig
	WorkspaceRoot string

	Graph       *graph.Store
	Lexical     *lexical.Engine
	AST         *ast.Engine
	Patterns    *patterns.Engine
	Propagation *propagation.Planner

	ResponseCache *cache.TTLCache[string, types.Result]
}

// New constructs every layer engine against workspaceRoot and cfg. The
// Concept Graph's *sql.DB handle is shared with the Pattern Learner,
// which persists patterns in the same embedded database rather than
// opening a second one.
func New(cfg *config.CoreConfig, workspaceRoot string) (*SharedServices, error) {
	dbPath := cfg.Layers.L3.DBPath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspaceRoot, dbPath)
	}
	store, err := graph.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("services: opening concept graph: %w", err)
	}

	lex, err := lexical.New(workspaceRoot, lexical.Config{
		IgnoreDirs:      cfg.Layers.L1.IgnoreDirs,
		BloomEnabled:    cfg.Layers.L1.Optimization.BloomFilter,
		MaxGlobResults:  cfg.Layers.L1.MaxGlobResults,
		ProcessPoolSize: cfg.Layers.L1.ProcessPoolSize,
		CacheTTL:        time.Duration(cfg.Cache.Memory.TTL) * time.Second,
		CacheSize:       cfg.Cache.Memory.MaxSize,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("services: building lexical engine: %w", err)
	}

	astEngine, err := ast.New(ast.Config{
		CacheSize: cfg.Layers.L2.CacheSize,
		CacheTTL:  time.Duration(cfg.Layers.L2.CacheTTL) * time.Second,
		MaxFiles:  cfg.Layers.L2.MaxFiles,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("services: building ast engine: %w", err)
	}

	patternsEngine, err := patterns.New(store.DB(), patterns.Config{
		LearningThreshold:   cfg.Layers.L4.LearningThreshold,
		ConfidenceThreshold: cfg.Layers.L4.ConfidenceThreshold,
		MaxPatterns:         cfg.Layers.L4.MaxPatterns,
		DecayRate:           cfg.Layers.L4.DecayRate,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("services: building pattern learner: %w", err)
	}

	planner := propagation.New(store, propagation.Config{
		MaxDepth:           cfg.Layers.L5.MaxDepth,
		MaxSuggestions:     cfg.Layers.L5.MaxSuggestions,
		AutoApplyThreshold: cfg.Layers.L5.AutoApplyThreshold,
	})

	respCache, err := cache.New[string, types.Result](cfg.Cache.Memory.MaxSize, time.Duration(cfg.Cache.Memory.TTL)*time.Second)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("services: building response cache: %w", err)
	}

	return &SharedServices{
		Config:        cfg,
		WorkspaceRoot: workspaceRoot,
		Graph:         store,
		Lexical:       lex,
		AST:           astEngine,
		Patterns:      patternsEngine,
		Propagation:   planner,
		ResponseCache: respCache,
	}, nil
}

// Close releases every held resource (DB handle, tree-sitter parsers).
func (s *SharedServices) Close() error {
	s.AST.Dispose()
	return s.Graph.Close()
}

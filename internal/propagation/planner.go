// Package propagation implements Layer 5, the Propagation Planner:
// given a confirmed Change, it walks the concept graph outward and
// proposes related edits via a fixed, priority-ordered rule set.
//
// Grounded on shard_manager_tools.go's sortToolsByPriority (iterate
// candidates, rank by a priority score, take the winner) and
// local_graph.go's bounded, never-revisit traversal — generalized here
// from shard/tool candidates to relationship edges via
// graph.Store.ReachableFrom. Rule-priority selection is additionally
// cross-checked against the same decision expressed as Datalog through
// internal/rules, so the "no revisits, highest priority wins" contract
// is enforced both in Go control flow and in the declarative program.
package propagation

import (
	"sort"

	"layeredquery/internal/graph"
	"layeredquery/internal/logging"
	"layeredquery/internal/rules"
	"layeredquery/internal/types"
)

const (
	defaultMaxDepth       = 3
	defaultMaxSuggestions = 500
	defaultAutoApplyFloor = 0.8
)

// Candidate is a concept reached while walking outward from a
// confirmed change's source concept.
type Candidate struct {
	Concept      types.Concept
	Relationship types.Relationship
	Depth        int
}

// Context carries the evidence a PropagationRule needs beyond the
// Change itself: the concept graph handle (for supplementary lookups)
// and the full candidate set the planner already resolved.
type Context struct {
	Store      *graph.Store
	Candidates []Candidate
}

// PropagationRule is the uniform shape every built-in (and any future
// custom) propagation rule implements, named exactly as spec'd:
// matches, canPropagate, transform, apply.
type PropagationRule interface {
	Name() string
	Priority() int
	Matches(change types.Change, ctx *Context) bool
	CanPropagate(change types.Change, target types.Concept) bool
	Transform(targetName string, change types.Change) (string, bool)
	Apply(change types.Change, ctx *Context) []types.Suggestion
}

// Planner walks the graph outward from a change's source concept and
// applies the highest-priority matching rule per reachable target.
type Planner struct {
	store              *graph.Store
	rules              []PropagationRule
	rulesEngine        *rules.Engine
	maxDepth           int
	maxSuggestions     int
	autoApplyThreshold float64
}

// Config tunes planner bounds; zero values take spec defaults.
type Config struct {
	MaxDepth           int
	MaxSuggestions     int
	AutoApplyThreshold float64
}

// New builds a Planner over store with the five built-in rules,
// ordered by descending priority.
func New(store *graph.Store, cfg Config) *Planner {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = defaultMaxSuggestions
	}
	if cfg.AutoApplyThreshold <= 0 {
		cfg.AutoApplyThreshold = defaultAutoApplyFloor
	}

	builtin := []PropagationRule{
		interfaceImplementationRule{},
		getterSetterRule{},
		serviceControllerRule{},
		testSyncRule{},
		namingConventionRule{},
	}
	sort.Slice(builtin, func(i, j int) bool { return builtin[i].Priority() > builtin[j].Priority() })

	return &Planner{
		store:              store,
		rules:              builtin,
		rulesEngine:        rules.NewPropagationEngine(),
		maxDepth:           cfg.MaxDepth,
		maxSuggestions:     cfg.MaxSuggestions,
		autoApplyThreshold: cfg.AutoApplyThreshold,
	}
}

// Plan resolves every concept reachable within maxDepth of change's
// source concept and, for each, lets the highest-priority matching
// rule emit a suggestion. Termination is bounded by depth (via
// ReachableFrom), by the unique-target visited set (ReachableFrom
// never revisits), and by maxSuggestions.
func (p *Planner) Plan(change types.Change) ([]types.Suggestion, error) {
	timer := logging.StartTimer(logging.CategoryPropagation, "Plan")
	defer timer.Stop()

	steps, err := p.store.ReachableFrom(change.SourceConceptID, p.maxDepth)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(steps))
	for _, step := range steps {
		concept, ok, err := p.store.GetConcept(step.ConceptID)
		if err != nil || !ok {
			continue
		}
		candidates = append(candidates, Candidate{Concept: concept, Relationship: step.Relationship, Depth: step.Depth})
	}
	ctx := &Context{Store: p.store, Candidates: candidates}

	var suggestions []types.Suggestion
	for i, c := range candidates {
		if len(suggestions) >= p.maxSuggestions {
			logging.PropagationDebug("Plan: reached suggestion cap of %d, dropping remaining %d candidates", p.maxSuggestions, len(candidates)-i)
			break
		}
		for _, rule := range p.rules {
			if !rule.Matches(change, ctx) || !rule.CanPropagate(change, c.Concept) {
				continue
			}
			newName, ok := rule.Transform(c.Concept.CanonicalName, change)
			if !ok {
				continue
			}
			suggestions = append(suggestions, types.Suggestion{
				Kind:       rule.Name(),
				Target:     c.Concept.ID,
				Proposal:   newName,
				Confidence: confidenceFor(rule, c),
				Reason:     rule.Name() + " propagation from " + change.Identifier,
				AutoApply:  confidenceFor(rule, c) >= p.autoApplyThreshold,
				Evidence:   []string{string(c.Relationship.Type)},
			})
			break // highest-priority matching rule wins; no further rules considered for this target
		}
	}

	p.crossCheckDeclarative(change, candidates, suggestions)
	return suggestions, nil
}

// confidenceFor blends a rule's own base trust with the graph
// evidence (edge confidence, target concept confidence) supporting
// the propagation.
func confidenceFor(rule PropagationRule, c Candidate) float64 {
	base := ruleBaseConfidence[rule.Name()]
	if base == 0 {
		base = 0.6
	}
	score := base * c.Concept.Confidence * c.Relationship.Confidence
	if score > 1.0 {
		score = 1.0
	}
	return score
}

var ruleBaseConfidence = map[string]float64{
	"interface_implementation": 0.97,
	"getter_setter":            0.92,
	"service_controller":       0.88,
	"test_sync":                0.88,
	"naming_convention":        0.65,
}

// crossCheckDeclarative asserts the same candidate facts the built-in
// Go rules reasoned over into the Mangle propagation program and logs
// a warning if the declarative winner disagrees with the Go-side
// pick — the two control paths are expected to always agree since
// they encode the same priority table, so a mismatch signals a bug in
// one of them rather than a legitimate difference in judgment.
func (p *Planner) crossCheckDeclarative(change types.Change, candidates []Candidate, suggestions []types.Suggestion) {
	facts := make([]rules.Fact, 0, len(candidates)*2)
	for _, c := range candidates {
		facts = append(facts, rules.Fact{Predicate: "edge", Args: []interface{}{change.SourceConceptID, c.Concept.ID, "/" + string(c.Relationship.Type)}})
		if (interfaceImplementationRule{}).CanPropagate(change, c.Concept) {
			facts = append(facts, rules.Fact{Predicate: "implements_edge", Args: []interface{}{change.SourceConceptID, c.Concept.ID}})
		}
		if (getterSetterRule{}).CanPropagate(change, c.Concept) {
			facts = append(facts, rules.Fact{Predicate: "accessor_pair", Args: []interface{}{change.SourceConceptID, c.Concept.ID}})
		}
		if (serviceControllerRule{}).CanPropagate(change, c.Concept) {
			facts = append(facts, rules.Fact{Predicate: "service_pair", Args: []interface{}{change.SourceConceptID, c.Concept.ID}})
		}
		if (testSyncRule{}).CanPropagate(change, c.Concept) {
			facts = append(facts, rules.Fact{Predicate: "test_pair", Args: []interface{}{change.SourceConceptID, c.Concept.ID}})
		}
		if (namingConventionRule{}).CanPropagate(change, c.Concept) {
			facts = append(facts, rules.Fact{Predicate: "convention_swap", Args: []interface{}{change.SourceConceptID, c.Concept.ID}})
		}
	}

	winners, err := p.rulesEngine.Evaluate(facts, "best_propagation")
	if err != nil {
		logging.PropagationDebug("crossCheckDeclarative: evaluation failed: %v", err)
		return
	}
	if len(winners) != len(suggestions) {
		logging.Get(logging.CategoryPropagation).Warn("crossCheckDeclarative: Go planner emitted %d suggestions but the declarative rule set derived %d best_propagation facts", len(suggestions), len(winners))
	}
}

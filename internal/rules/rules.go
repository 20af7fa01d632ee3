// Package rules wraps google/mangle to evaluate propagation-rule
// predicates as Datalog, generalized from internal/core/kernel.go
// (Fact/ToAtom conversion, parse → analyze → fixpoint-eval pipeline)
// from whole-repo policy evaluation down to a single stratified
// program: given the facts of a confirmed Change and the concept
// graph edges reachable from it, which (source, target, rule) triples
// hold.
package rules

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"layeredquery/internal/logging"
	"layeredquery/internal/types"
)

//go:embed propagation.mg stagegate.mg
var defaultRules embed.FS

// NewPropagationEngine builds an Engine from the embedded propagation
// rule set. It panics if the embedded program fails to parse or
// analyze: a corrupt baked-in constitution means a corrupt binary.
func NewPropagationEngine() *Engine {
	return mustEmbedded("propagation.mg", logging.CategoryPropagation)
}

// NewStageGateEngine builds an Engine from the embedded stage-gating
// rule set used by the Orchestrator to decide which layers apply to a
// request kind and which kinds forbid an early sufficient return. It
// panics under the same corrupt-binary stance as NewPropagationEngine.
func NewStageGateEngine() *Engine {
	return mustEmbedded("stagegate.mg", logging.CategoryOrchestrator)
}

func mustEmbedded(name string, category logging.Category) *Engine {
	data, err := defaultRules.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("rules: embedded %s missing: %v", name, err))
	}
	e, err := New(string(data))
	if err != nil {
		panic(fmt.Sprintf("rules: embedded %s failed to compile: %v", name, err))
	}
	e.category = category
	return e
}

// createdFactLimit bounds fixpoint evaluation so a malformed or
// adversarial rule set can never loop the engine forever.
const createdFactLimit = 50000

// Fact is a single Datalog atom in predicate(arg1, arg2, ...) form.
// MangleAtom args (starting with '/') are emitted as name constants;
// everything else becomes a Mangle string or number constant.
type Fact struct {
	Predicate string
	Args      []interface{}
}

// MangleAtom marks a string as a Mangle name constant rather than a
// quoted string constant, so callers can write MangleAtom("/uses")
// instead of relying on a string-prefix convention.
type MangleAtom string

// argTerm pairs a Fact argument's ast.BaseTerm conversion with its
// literal Mangle source rendering. Both Fact.String and Fact.ToAtom
// need the same classification of a Go value (atom vs. quoted string
// vs. number vs. float); toArgTerm computes it once so neither method
// re-derives it independently.
type argTerm struct {
	term ast.BaseTerm
	text string
}

func toArgTerm(arg interface{}) (argTerm, error) {
	switch v := arg.(type) {
	case MangleAtom:
		c, err := ast.Name(string(v))
		if err != nil {
			return argTerm{}, err
		}
		return argTerm{term: c, text: string(v)}, nil
	case string:
		if strings.HasPrefix(v, "/") {
			c, err := ast.Name(v)
			if err != nil {
				return argTerm{}, err
			}
			return argTerm{term: c, text: v}, nil
		}
		return argTerm{term: ast.String(v), text: fmt.Sprintf("%q", v)}, nil
	case int:
		return argTerm{term: ast.Number(int64(v)), text: fmt.Sprintf("%d", v)}, nil
	case float64:
		return argTerm{term: ast.Float64(v), text: fmt.Sprintf("%f", v)}, nil
	default:
		text := fmt.Sprintf("%v", v)
		return argTerm{term: ast.String(text), text: text}, nil
	}
}

// String renders the fact in Mangle source syntax.
func (f Fact) String() string {
	args := make([]string, 0, len(f.Args))
	for _, arg := range f.Args {
		at, err := toArgTerm(arg)
		if err != nil {
			args = append(args, fmt.Sprintf("%v", arg))
			continue
		}
		args = append(args, at.text)
	}
	return fmt.Sprintf("%s(%s).", f.Predicate, strings.Join(args, ", "))
}

// ToAtom converts a Fact into a mangle ast.Atom suitable for direct
// fact-store insertion.
func (f Fact) ToAtom() (ast.Atom, error) {
	terms := make([]ast.BaseTerm, 0, len(f.Args))
	for _, arg := range f.Args {
		at, err := toArgTerm(arg)
		if err != nil {
			return ast.Atom{}, err
		}
		terms = append(terms, at.term)
	}
	return ast.NewAtom(f.Predicate, terms...), nil
}

func atomToFact(a ast.Atom) Fact {
	args := make([]interface{}, len(a.Args))
	for i, term := range a.Args {
		args[i] = baseTermToValue(term)
	}
	return Fact{Predicate: a.Predicate.Symbol, Args: args}
}

// constantValue extracts the Go value carried by each ast.ConstantType
// the fact-conversion path can see. Keyed by type rather than written
// as a long case-for-case switch, so adding a constant kind is one map
// entry instead of another branch to keep in sync with ToAtom/String.
var constantValue = map[ast.ConstantType]func(ast.Constant) interface{}{
	ast.NameType:    func(c ast.Constant) interface{} { return c.Symbol },
	ast.StringType:  func(c ast.Constant) interface{} { return c.Symbol },
	ast.BytesType:   func(c ast.Constant) interface{} { return c.Symbol },
	ast.NumberType:  func(c ast.Constant) interface{} { return c.NumValue },
	ast.Float64Type: func(c ast.Constant) interface{} { return c.Float64Value },
}

func baseTermToValue(term ast.BaseTerm) interface{} {
	c, ok := term.(ast.Constant)
	if !ok {
		return fmt.Sprintf("%v", term)
	}
	if extract, ok := constantValue[c.Type]; ok {
		return extract(c)
	}
	return c.Symbol
}

// ParseFactString parses a single "predicate(args...)" fact string.
func ParseFactString(factStr string) (Fact, error) {
	parsed, err := parse.Unit(strings.NewReader(factStr + "."))
	if err != nil {
		return Fact{}, fmt.Errorf("rules: parsing fact string: %w", err)
	}
	if len(parsed.Clauses) == 0 {
		return Fact{}, fmt.Errorf("rules: no clauses in fact string %q", factStr)
	}
	return atomToFact(parsed.Clauses[0].Head), nil
}

// Engine evaluates a fixed Datalog program (the propagation rule set)
// against a per-query set of EDB facts. Unlike a long-lived Kernel, an
// Engine's rule source never changes at runtime, so the parsed
// programInfo is built once in New and reused for every Evaluate call
// — only the fact store is rebuilt per query.
type Engine struct {
	mu          sync.Mutex
	programInfo *analysis.ProgramInfo
	source      string
	category    logging.Category
}

// New parses and analyzes the given Datalog source (declarations plus
// rules) once, failing fast if the embedded rule set does not compile.
func New(source string) (*Engine, error) {
	parsed, err := parse.Unit(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("rules: parsing program: %w", err)
	}
	info, err := analysis.AnalyzeOneUnit(parsed, nil)
	if err != nil {
		return nil, fmt.Errorf("rules: analyzing program: %w", err)
	}
	return &Engine{programInfo: info, source: source, category: logging.CategoryPropagation}, nil
}

// Evaluate loads facts into a fresh in-memory store, runs the cached
// program to fixpoint, and returns every derived and base fact for the
// given predicate.
func (e *Engine) Evaluate(facts []Fact, predicate string) ([]Fact, error) {
	timer := logging.StartTimer(e.category, "rules.Evaluate")
	defer timer.Stop()

	e.mu.Lock()
	info := e.programInfo
	e.mu.Unlock()

	store := factstore.NewSimpleInMemoryStore()
	for _, f := range facts {
		atom, err := f.ToAtom()
		if err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("rules: converting fact %s", f.Predicate), err)
		}
		store.Add(atom)
	}

	if _, err := engine.EvalProgramWithStats(info, store, engine.WithCreatedFactLimit(createdFactLimit)); err != nil {
		return nil, types.NewError(types.ErrInternal, "rules: fixpoint evaluation failed", err)
	}

	var results []Fact
	found := false
	for pred := range info.Decls {
		if pred.Symbol != predicate {
			continue
		}
		found = true
		store.GetFacts(ast.NewQuery(pred), func(a ast.Atom) error {
			results = append(results, atomToFact(a))
			return nil
		})
	}
	if !found {
		logging.Get(e.category).Debug("rules: predicate %s has no declaration in the program", predicate)
	}
	return results, nil
}

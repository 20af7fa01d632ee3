package propagation

import (
	"layeredquery/internal/types"
)

// interfaceImplementationRule: renaming an interface member renames
// every concept whose `implements` edge points at that interface.
type interfaceImplementationRule struct{}

func (interfaceImplementationRule) Name() string { return "interface_implementation" }
func (interfaceImplementationRule) Priority() int { return 9 }

func (interfaceImplementationRule) Matches(change types.Change, ctx *Context) bool {
	return change.Type == types.ChangeRename || change.Type == types.ChangeSignature
}

func (interfaceImplementationRule) CanPropagate(change types.Change, target types.Concept) bool {
	// An implementor's `implements` edge has Source=implementor,
	// Target=interface, so the candidate is reachable via an incoming
	// edge onto the source concept; ReachableFrom already resolved
	// that into target being a candidate. Nothing further to check
	// beyond the edge type itself, verified by the planner when it
	// walked the candidate's relationship.
	return target.Kind == types.ConceptClass || target.Kind == types.ConceptType || target.Kind == types.ConceptInterface
}

func (interfaceImplementationRule) Transform(targetName string, change types.Change) (string, bool) {
	if change.To == "" {
		return "", false
	}
	return change.To, true
}

func (r interfaceImplementationRule) Apply(change types.Change, ctx *Context) []types.Suggestion {
	return applyRule(r, change, ctx)
}

// getterSetterRule: get*/set* and is*/has* accessor pairs synchronize.
type getterSetterRule struct{}

var accessorPairing = map[string]string{"get": "set", "set": "get", "is": "has", "has": "is"}

func accessorPrefix(name string) string {
	tokens := splitIdentifierTokens(name)
	if len(tokens) == 0 {
		return ""
	}
	if _, ok := accessorPairing[tokens[0]]; ok {
		return tokens[0]
	}
	return ""
}

func (getterSetterRule) Name() string  { return "getter_setter" }
func (getterSetterRule) Priority() int { return 8 }

func (getterSetterRule) Matches(change types.Change, ctx *Context) bool {
	return change.Type == types.ChangeRename && accessorPrefix(change.Identifier) != ""
}

func (getterSetterRule) CanPropagate(change types.Change, target types.Concept) bool {
	if target.Kind != types.ConceptFunction {
		return false
	}
	sourcePrefix := accessorPrefix(change.Identifier)
	targetPrefix := accessorPrefix(target.CanonicalName)
	if sourcePrefix == "" || targetPrefix != accessorPairing[sourcePrefix] {
		return false
	}
	return sameTokens(suffixOf(target.CanonicalName), suffixOf(change.Identifier))
}

func (getterSetterRule) Transform(targetName string, change types.Change) (string, bool) {
	newSuffix := suffixOf(change.To)
	targetTokens := splitIdentifierTokens(targetName)
	if len(targetTokens) == 0 || len(newSuffix) == 0 {
		return "", false
	}
	return rebuildWithConvention(append([]string{targetTokens[0]}, newSuffix...), caseConvention(targetName)), true
}

func (r getterSetterRule) Apply(change types.Change, ctx *Context) []types.Suggestion {
	return applyRule(r, change, ctx)
}

// serviceControllerRule: *Service and *Controller peers rename in
// lockstep.
type serviceControllerRule struct{}

var serviceControllerPairing = map[string]string{"service": "controller", "controller": "service"}

func serviceControllerSuffix(name string) string {
	tokens := splitIdentifierTokens(name)
	if len(tokens) == 0 {
		return ""
	}
	last := tokens[len(tokens)-1]
	if _, ok := serviceControllerPairing[last]; ok {
		return last
	}
	return ""
}

func (serviceControllerRule) Name() string  { return "service_controller" }
func (serviceControllerRule) Priority() int { return 7 }

func (serviceControllerRule) Matches(change types.Change, ctx *Context) bool {
	return change.Type == types.ChangeRename && serviceControllerSuffix(change.Identifier) != ""
}

func (serviceControllerRule) CanPropagate(change types.Change, target types.Concept) bool {
	sourceSuffix := serviceControllerSuffix(change.Identifier)
	targetSuffix := serviceControllerSuffix(target.CanonicalName)
	if sourceSuffix == "" || targetSuffix != serviceControllerPairing[sourceSuffix] {
		return false
	}
	sourceTokens := splitIdentifierTokens(change.Identifier)
	targetTokens := splitIdentifierTokens(target.CanonicalName)
	return sameTokens(sourceTokens[:len(sourceTokens)-1], targetTokens[:len(targetTokens)-1])
}

func (serviceControllerRule) Transform(targetName string, change types.Change) (string, bool) {
	newTokens := splitIdentifierTokens(change.To)
	if len(newTokens) == 0 {
		return "", false
	}
	targetSuffix := serviceControllerSuffix(targetName)
	if targetSuffix == "" {
		return "", false
	}
	out := append(newTokens[:len(newTokens)-1], targetSuffix)
	return rebuildWithConvention(out, caseConvention(targetName)), true
}

func (r serviceControllerRule) Apply(change types.Change, ctx *Context) []types.Suggestion {
	return applyRule(r, change, ctx)
}

// testSyncRule: a renamed source symbol's test-file peer (suffixed
// Test/Spec/Tests/Specs) follows the rename.
type testSyncRule struct{}

var testSuffixes = []string{"test", "spec", "tests", "specs"}

func testSuffixOf(name string) string {
	tokens := splitIdentifierTokens(name)
	if len(tokens) == 0 {
		return ""
	}
	last := tokens[len(tokens)-1]
	for _, s := range testSuffixes {
		if last == s {
			return s
		}
	}
	return ""
}

func (testSyncRule) Name() string  { return "test_sync" }
func (testSyncRule) Priority() int { return 6 }

func (testSyncRule) Matches(change types.Change, ctx *Context) bool {
	return change.Type == types.ChangeRename
}

func (testSyncRule) CanPropagate(change types.Change, target types.Concept) bool {
	suffix := testSuffixOf(target.CanonicalName)
	if suffix == "" {
		return false
	}
	targetTokens := splitIdentifierTokens(target.CanonicalName)
	return sameTokens(targetTokens[:len(targetTokens)-1], splitIdentifierTokens(change.Identifier))
}

func (testSyncRule) Transform(targetName string, change types.Change) (string, bool) {
	suffix := testSuffixOf(targetName)
	if suffix == "" || change.To == "" {
		return "", false
	}
	newTokens := append(splitIdentifierTokens(change.To), suffix)
	return rebuildWithConvention(newTokens, caseConvention(targetName)), true
}

func (r testSyncRule) Apply(change types.Change, ctx *Context) []types.Suggestion {
	return applyRule(r, change, ctx)
}

// namingConventionRule: a peer with the same tokens as the renamed
// symbol but a different case convention (camel, Pascal, snake) is
// renamed to the new tokens in its own convention; the lowest-priority
// and most speculative of the five rules.
type namingConventionRule struct{}

func (namingConventionRule) Name() string  { return "naming_convention" }
func (namingConventionRule) Priority() int { return 4 }

func (namingConventionRule) Matches(change types.Change, ctx *Context) bool {
	return change.Type == types.ChangeRename
}

func (namingConventionRule) CanPropagate(change types.Change, target types.Concept) bool {
	return sameTokens(splitIdentifierTokens(target.CanonicalName), splitIdentifierTokens(change.Identifier)) &&
		caseConvention(target.CanonicalName) != caseConvention(change.Identifier)
}

func (namingConventionRule) Transform(targetName string, change types.Change) (string, bool) {
	if change.To == "" {
		return "", false
	}
	return rebuildWithConvention(splitIdentifierTokens(change.To), caseConvention(targetName)), true
}

func (r namingConventionRule) Apply(change types.Change, ctx *Context) []types.Suggestion {
	return applyRule(r, change, ctx)
}

// sameTokens compares token slices case-insensitively (they are
// already lowercased by splitIdentifierTokens).
func sameTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// applyRule is the shared Apply implementation for every built-in
// rule: scan ctx.Candidates, matching Matches/CanPropagate/Transform,
// and build a Suggestion. The planner's own Plan loop already performs
// this scan with priority ordering across rules; Apply exists so a
// rule can also be invoked standalone (by tests, or by a future caller
// that wants one rule's opinion in isolation) without going through
// the full planner.
func applyRule(rule PropagationRule, change types.Change, ctx *Context) []types.Suggestion {
	if !rule.Matches(change, ctx) {
		return nil
	}
	var out []types.Suggestion
	for _, c := range ctx.Candidates {
		if !rule.CanPropagate(change, c.Concept) {
			continue
		}
		newName, ok := rule.Transform(c.Concept.CanonicalName, change)
		if !ok {
			continue
		}
		out = append(out, types.Suggestion{
			Kind:       rule.Name(),
			Target:     c.Concept.ID,
			Proposal:   newName,
			Confidence: confidenceFor(rule, c),
			Reason:     rule.Name() + " propagation from " + change.Identifier,
			AutoApply:  confidenceFor(rule, c) >= defaultAutoApplyFloor,
			Evidence:   []string{string(c.Relationship.Type)},
		})
	}
	return out
}

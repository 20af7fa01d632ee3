package types

import "testing"

func TestLocationOrdering(t *testing.T) {
	a := Location{URI: "a.ts", Line: 1, Col: 0}
	b := Location{URI: "a.ts", Line: 2, Col: 0}
	if !a.Less(b) {
		t.Error("expected a < b")
	}
	if b.Less(a) == false && a.Less(b) == false {
		t.Error("exactly one direction should hold")
	}
}

func TestRangeContains(t *testing.T) {
	r := Range{
		Start: Location{URI: "a.ts", Line: 1, Col: 0},
		End:   Location{URI: "a.ts", Line: 5, Col: 0},
	}
	if !r.Valid() {
		t.Fatal("expected valid range")
	}
	if !r.Contains(Location{URI: "a.ts", Line: 3, Col: 2}) {
		t.Error("expected range to contain interior location")
	}
	if r.Contains(Location{URI: "a.ts", Line: 10, Col: 0}) {
		t.Error("did not expect range to contain location past end")
	}
	if r.Contains(Location{URI: "b.ts", Line: 3, Col: 0}) {
		t.Error("did not expect range to contain location in a different file")
	}
}

func TestRangeInvalid(t *testing.T) {
	r := Range{
		Start: Location{URI: "a.ts", Line: 5, Col: 0},
		End:   Location{URI: "a.ts", Line: 1, Col: 0},
	}
	if r.Valid() {
		t.Error("expected invalid range when end precedes start")
	}
}

func TestConceptValid(t *testing.T) {
	c := Concept{ID: "c1", CanonicalName: "Foo", Kind: ConceptClass}
	if !c.Valid() {
		t.Error("expected valid concept")
	}
	if (Concept{}).Valid() {
		t.Error("expected empty concept to be invalid")
	}
}

func TestRelationshipNoSelfLoop(t *testing.T) {
	r := Relationship{Source: "c1", Target: "c1", Type: RelUses}
	if r.Valid() {
		t.Error("expected self-loop with non-contains type to be invalid")
	}
	r2 := Relationship{Source: "c1", Target: "c1", Type: RelContains}
	if !r2.Valid() {
		t.Error("expected self-loop with contains type to be valid")
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	base := NewError(ErrNotFound, "symbol missing", nil)
	wrapped := NewError(ErrNotFound, "symbol missing again", base)

	if !wrapped.Is(&Error{Code: ErrNotFound}) {
		t.Error("expected Is to match on code")
	}
	if wrapped.Is(&Error{Code: ErrTimeout}) {
		t.Error("did not expect Is to match a different code")
	}
}

func TestErrorRetryableDefaults(t *testing.T) {
	if !NewError(ErrTimeout, "slow", nil).Retryable {
		t.Error("expected Timeout to be retryable")
	}
	if NewError(ErrNotFound, "missing", nil).Retryable {
		t.Error("did not expect NotFound to be retryable")
	}
}

func TestRequestFingerprintStable(t *testing.T) {
	r1 := Request{Kind: KindFindDefinition, WorkspaceRoot: "/ws", Identifier: "Foo"}
	r2 := Request{Kind: KindFindDefinition, WorkspaceRoot: "/ws", Identifier: "Foo"}
	if r1.Fingerprint() != r2.Fingerprint() {
		t.Error("expected identical requests to produce identical fingerprints")
	}
	r3 := Request{Kind: KindFindDefinition, WorkspaceRoot: "/ws", Identifier: "Bar"}
	if r1.Fingerprint() == r3.Fingerprint() {
		t.Error("expected different identifiers to produce different fingerprints")
	}
}

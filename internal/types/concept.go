package types

import "time"

// ConceptKind enumerates the kinds of symbol a Concept can represent.
type ConceptKind string

const (
	ConceptClass     ConceptKind = "class"
	ConceptFunction  ConceptKind = "function"
	ConceptVariable  ConceptKind = "variable"
	ConceptModule    ConceptKind = "module"
	ConceptInterface ConceptKind = "interface"
	ConceptType      ConceptKind = "type"
	ConceptNamespace ConceptKind = "namespace"
	ConceptPackage   ConceptKind = "package"
)

// Concept is a semantic symbol tracked by the Concept Graph (L3). Its id
// is stable across runs; canonicalName is its preferred identifier form.
type Concept struct {
	ID            string                 `json:"id"`
	CanonicalName string                 `json:"canonicalName"`
	Kind          ConceptKind            `json:"kind"`
	Confidence    float64                `json:"confidence"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Valid reports whether the Concept has a non-empty id and
// canonicalName.
func (c Concept) Valid() bool {
	return c.ID != "" && c.CanonicalName != ""
}

// SymbolRepresentation is a concrete textual occurrence of a Concept.
type SymbolRepresentation struct {
	ConceptID   string `json:"conceptId"`
	Name        string `json:"name"`
	Location    Range  `json:"location"`
	Occurrences int    `json:"occurrences"`
	Context     string `json:"context"`
}

// Key returns the (conceptId, uri, range) tuple that must be unique
// across all representations of a concept.
func (s SymbolRepresentation) Key() string {
	return s.ConceptID + "|" + s.Location.Start.URI + "|" + s.Location.String()
}

func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// RelationshipType enumerates the edge types between concepts.
type RelationshipType string

const (
	RelUses      RelationshipType = "uses"
	RelExtends   RelationshipType = "extends"
	RelImplements RelationshipType = "implements"
	RelImports   RelationshipType = "imports"
	RelContains  RelationshipType = "contains"
	RelDependsOn RelationshipType = "dependsOn"
)

// Relationship is a directed, typed edge between two concepts.
type Relationship struct {
	Source     string                 `json:"source"`
	Target     string                 `json:"target"`
	Type       RelationshipType       `json:"type"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Valid enforces the no-self-loop invariant unless Type is "contains".
func (r Relationship) Valid() bool {
	if r.Source == "" || r.Target == "" {
		return false
	}
	if r.Source == r.Target && r.Type != RelContains {
		return false
	}
	return true
}

// Pattern is a learned rename/refactor template tracked by L4.
type Pattern struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Template   string    `json:"template"`
	Category   string    `json:"category"`
	Occurrences int      `json:"occurrences"`
	Confidence float64   `json:"confidence"`
	LastUsed   time.Time `json:"lastUsed"`
	DecayRate  float64   `json:"decayRate"`
}

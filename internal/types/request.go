package types

import "time"

// RequestKind is the closed set of query kinds the Orchestrator accepts.
type RequestKind string

const (
	KindFindDefinition     RequestKind = "findDefinition"
	KindFindReferences     RequestKind = "findReferences"
	KindFindImplementations RequestKind = "findImplementations"
	KindHover              RequestKind = "hover"
	KindCompletion         RequestKind = "completion"
	KindRenamePrepare      RequestKind = "renamePrepare"
	KindRenamePlan         RequestKind = "renamePlan"
	KindRenameApply        RequestKind = "renameApply"
	KindDiagnostics        RequestKind = "diagnostics"
	KindPatternDetect      RequestKind = "patternDetect"
	KindPatternLearn       RequestKind = "patternLearn"
	KindPatternSuggest     RequestKind = "patternSuggest"
	KindConceptQuery       RequestKind = "conceptQuery"
	KindConceptGraph       RequestKind = "conceptGraph"
	KindRelationship       RequestKind = "relationship"
)

// Request is a tagged union over every query kind the core accepts.
// Exactly one of the kind-specific fields is populated, selected by
// Kind, rather than an `any`-shaped payload.
type Request struct {
	Kind          RequestKind
	WorkspaceRoot string
	RequestID     string
	Deadline      time.Time

	// Symbol-oriented kinds (findDefinition, findReferences,
	// findImplementations, hover, renamePrepare, renamePlan, renameApply).
	Identifier string
	Location   Location
	NewName    string // renamePlan/renameApply target name

	// completion
	Prefix string

	// diagnostics
	FilePaths []string

	// pattern kinds
	OldName string
	Context string

	// concept/relationship kinds
	ConceptID string
	RelType   RelationshipType
	Depth     int

	// snapshot-adjacent plumbing carried alongside a renameApply request
	SnapshotID string
}

// Fingerprint derives the deterministic cache key from a request:
// (kind, normalizedArgs, workspaceRoot).
func (r Request) Fingerprint() string {
	return string(r.Kind) + "|" + r.WorkspaceRoot + "|" + r.Identifier + "|" +
		r.NewName + "|" + r.Prefix + "|" + r.ConceptID + "|" + string(r.RelType)
}

// PerStageTimings records how long each layer took, in milliseconds.
type PerStageTimings struct {
	L1    int64 `json:"l1"`
	L2    int64 `json:"l2"`
	L3    int64 `json:"l3"`
	L4    int64 `json:"l4"`
	L5    int64 `json:"l5"`
	Total int64 `json:"total"`
}

// Result is the uniform response envelope returned by the Orchestrator
// and by the external Core API.
type Result struct {
	Data            interface{}     `json:"data"`
	PerStageTimings PerStageTimings `json:"perStageTimings"`
	Source          []string        `json:"source"`
	Confidence      float64         `json:"confidence"`
	CacheHit        bool            `json:"cacheHit"`
	RequestID       string          `json:"requestId"`
	Timestamp       time.Time       `json:"timestamp"`
	// FailedLayers lists layers that errored or were skipped, with a
	// human-readable reason, for partial-failure diagnostics.
	FailedLayers map[string]string `json:"failedLayers,omitempty"`
}

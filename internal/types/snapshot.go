package types

import "time"

// Edit is a single proposed change to one file within a Snapshot's
// overlay, expressed as a unified-diff-producing pair of contents.
type Edit struct {
	Path       string `json:"path"`
	OldContent string `json:"oldContent"`
	NewContent string `json:"newContent"`
	// PreImageHash is the SHA-256 of OldContent at proposal time, checked
	// again at apply time to detect concurrent modification.
	PreImageHash string `json:"preImageHash"`
}

// SnapshotStatus tracks the lifecycle of a staged snapshot.
type SnapshotStatus string

const (
	SnapshotOpen    SnapshotStatus = "open"
	SnapshotChecked SnapshotStatus = "checked"
	SnapshotApplied SnapshotStatus = "applied"
	SnapshotDropped SnapshotStatus = "dropped"
)

// Snapshot is an isolated overlay of edits staged against a base
// revision; edits never touch the working tree until Apply succeeds.
type Snapshot struct {
	ID           string         `json:"id"`
	CreatedAt    time.Time      `json:"createdAt"`
	BaseRevision string         `json:"baseRevision"`
	Overlay      map[string]Edit `json:"overlay"`
	ProgressLog  []string       `json:"progressLog"`
	Status       SnapshotStatus `json:"status"`
}

// CheckResult is the outcome of running one external verification
// command against a snapshot's overlay.
type CheckResult struct {
	Command    string `json:"command"`
	ExitCode   int    `json:"exitCode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"durationMs"`
}

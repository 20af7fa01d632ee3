package snapshot

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"

	"layeredquery/internal/types"
)

// LineType represents the type of a diff line.
type LineType int

const (
	LineContext LineType = iota // unchanged context line
	LineAdded                   // added line
	LineRemoved                 // removed line
	LineHeader                  // diff header line
)

// Line is a single line in a diff hunk. WordDiff is set only for a
// removed/added line pair that replaces one line with another,
// pinpointing the changed span inside an otherwise-similar line.
type Line struct {
	LineNum  int
	Content  string
	Type     LineType
	WordDiff []diffmatchpatch.Diff
}

// Hunk is a contiguous group of changed lines with surrounding context.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff is the unified diff of one file between two snapshot revisions.
// PreImageHash is populated only when the diff was produced from a staged
// types.Edit (ComputeEditDiff/ComputeOverlayDiff), confirming which
// pre-image the hunks below were computed against.
type FileDiff struct {
	OldPath      string
	NewPath      string
	Hunks        []Hunk
	IsNew        bool
	IsDelete     bool
	IsBinary     bool
	PreImageHash string
}

// DiffEngine computes unified diffs for the proposePatch/runChecks/apply
// pipeline, caching results for repeated content pairs (e.g. re-checking a
// pending patch against the same pre-image).
type DiffEngine struct {
	dmp   *diffmatchpatch.DiffMatchPatch
	cache sync.Map
}

type diffCacheKey struct {
	oldHash uint64
	newHash uint64
}

// NewDiffEngine creates a diff engine tuned for code: semantic cleanup is
// enabled and the match timeout is disabled in favor of exact results, since
// snapshot diffs run against bounded file sizes, not arbitrary input.
func NewDiffEngine() *DiffEngine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &DiffEngine{dmp: dmp}
}

// DefaultDiffEngine is shared by callers that don't need a dedicated cache.
var DefaultDiffEngine = NewDiffEngine()

// ComputeDiff produces the FileDiff between oldContent and newContent.
func (e *DiffEngine) ComputeDiff(oldPath, newPath, oldContent, newContent string) *FileDiff {
	fileDiff := &FileDiff{
		OldPath: oldPath,
		NewPath: newPath,
		Hunks:   make([]Hunk, 0),
	}

	if oldContent == "" {
		fileDiff.IsNew = true
	}
	if newContent == "" {
		fileDiff.IsDelete = true
	}

	key := diffCacheKey{hashContent(oldContent), hashContent(newContent)}
	if cached, ok := e.cache.Load(key); ok {
		if cachedDiff, ok := cached.(*FileDiff); ok {
			result := *cachedDiff
			result.OldPath = oldPath
			result.NewPath = newPath
			return &result
		}
	}

	a, b, lineArray := e.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	fileDiff.Hunks = e.convertToHunks(diffs, 3)
	e.cache.Store(key, fileDiff)

	return fileDiff
}

// ComputeDiff is a convenience wrapper over DefaultDiffEngine.
func ComputeDiff(oldPath, newPath, oldContent, newContent string) *FileDiff {
	return DefaultDiffEngine.ComputeDiff(oldPath, newPath, oldContent, newContent)
}

// ComputeEditDiff diffs a single staged types.Edit. It re-derives the
// pre-image hash from edit.OldContent and, when the edit already
// carries one (every edit staged through Store.ProposePatch does),
// refuses to diff against content that no longer matches it — the
// same integrity check Store.Apply performs before writing, run here
// so a caller inspecting a snapshot's diff never sees hunks computed
// against a stale pre-image.
func (e *DiffEngine) ComputeEditDiff(path string, edit types.Edit) (*FileDiff, error) {
	actual := hashPreImage(edit.OldContent)
	if edit.PreImageHash != "" && edit.PreImageHash != actual {
		return nil, fmt.Errorf("snapshot: pre-image hash mismatch for %s: edit recorded %s, content hashes to %s",
			path, edit.PreImageHash, actual)
	}

	fileDiff := e.ComputeDiff(path, path, edit.OldContent, edit.NewContent)
	fileDiff.PreImageHash = actual
	return fileDiff, nil
}

// ComputeOverlayDiff diffs every edit in a snapshot's overlay in one
// batch, in deterministic path order, failing the whole batch on the
// first pre-image mismatch rather than returning a partial, possibly
// misleading result.
func (e *DiffEngine) ComputeOverlayDiff(overlay map[string]types.Edit) ([]*FileDiff, error) {
	paths := make([]string, 0, len(overlay))
	for path := range overlay {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	diffs := make([]*FileDiff, 0, len(paths))
	for _, path := range paths {
		fileDiff, err := e.ComputeEditDiff(path, overlay[path])
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, fileDiff)
	}
	return diffs, nil
}

func (e *DiffEngine) convertToHunks(diffs []diffmatchpatch.Diff, contextLines int) []Hunk {
	if len(diffs) == 0 {
		return nil
	}
	operations := e.diffsToOperations(diffs)
	if len(operations) == 0 {
		return nil
	}
	hunks := e.groupIntoHunks(operations, contextLines)
	for i := range hunks {
		e.annotateWordDiffs(&hunks[i])
	}
	return hunks
}

// annotateWordDiffs finds single removed/added line pairs within a
// hunk — a one-line replacement rather than a multi-line block swap —
// and attaches the word-level diff between them, so a caller can
// highlight just the changed span instead of the whole line.
func (e *DiffEngine) annotateWordDiffs(hunk *Hunk) {
	for i := 0; i < len(hunk.Lines)-1; i++ {
		if hunk.Lines[i].Type != LineRemoved || hunk.Lines[i+1].Type != LineAdded {
			continue
		}
		if i > 0 && hunk.Lines[i-1].Type == LineRemoved {
			continue
		}
		if i+2 < len(hunk.Lines) && hunk.Lines[i+2].Type == LineAdded {
			continue
		}
		wordDiff := e.ComputeWordLevelDiff(hunk.Lines[i].Content, hunk.Lines[i+1].Content)
		hunk.Lines[i].WordDiff = wordDiff
		hunk.Lines[i+1].WordDiff = wordDiff
	}
}

type operation struct {
	typ     LineType
	oldLine int
	newLine int
	content string
}

func (e *DiffEngine) diffsToOperations(diffs []diffmatchpatch.Diff) []operation {
	operations := make([]operation, 0)
	oldLine := 0
	newLine := 0

	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")

		if len(lines) == 1 && lines[0] == "" && d.Type != diffmatchpatch.DiffEqual {
			continue
		}
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}

		for i, line := range lines {
			if i == len(lines)-1 && line == "" && len(lines) > 1 {
				continue
			}

			switch d.Type {
			case diffmatchpatch.DiffEqual:
				operations = append(operations, operation{typ: LineContext, oldLine: oldLine, newLine: newLine, content: line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				operations = append(operations, operation{typ: LineRemoved, oldLine: oldLine, newLine: -1, content: line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				operations = append(operations, operation{typ: LineAdded, oldLine: -1, newLine: newLine, content: line})
				newLine++
			}
		}
	}

	return operations
}

func (e *DiffEngine) groupIntoHunks(ops []operation, contextLines int) []Hunk {
	if len(ops) == 0 {
		return nil
	}

	hunks := make([]Hunk, 0)
	var currentHunk *Hunk
	lastChangeIdx := -1

	for i, op := range ops {
		isChange := op.typ != LineContext

		if isChange {
			if currentHunk == nil {
				currentHunk = &Hunk{Lines: make([]Line, 0)}

				start := i - contextLines
				if start < 0 {
					start = 0
				}
				for j := start; j < i; j++ {
					if ops[j].typ == LineContext {
						currentHunk.Lines = append(currentHunk.Lines, Line{
							LineNum: ops[j].oldLine + 1,
							Content: ops[j].content,
							Type:    LineContext,
						})
					}
				}

				if start < len(ops) {
					currentHunk.OldStart = ops[start].oldLine + 1
					currentHunk.NewStart = ops[start].newLine + 1
					if ops[start].oldLine < 0 {
						currentHunk.OldStart = 0
					}
					if ops[start].newLine < 0 {
						currentHunk.NewStart = 0
					}
				}
			}
			lastChangeIdx = i
		}

		if currentHunk != nil {
			lineNum := op.oldLine + 1
			if op.typ == LineAdded {
				lineNum = op.newLine + 1
			}
			currentHunk.Lines = append(currentHunk.Lines, Line{LineNum: lineNum, Content: op.content, Type: op.typ})

			if op.typ == LineContext && i-lastChangeIdx > contextLines {
				trimTo := len(currentHunk.Lines) - (i - lastChangeIdx - contextLines)
				if trimTo > 0 && trimTo < len(currentHunk.Lines) {
					currentHunk.Lines = currentHunk.Lines[:trimTo]
				}
				e.computeHunkCounts(currentHunk)
				hunks = append(hunks, *currentHunk)
				currentHunk = nil
			}
		}
	}

	if currentHunk != nil && len(currentHunk.Lines) > 0 {
		e.computeHunkCounts(currentHunk)
		hunks = append(hunks, *currentHunk)
	}

	return hunks
}

func (e *DiffEngine) computeHunkCounts(hunk *Hunk) {
	for _, line := range hunk.Lines {
		if line.Type == LineRemoved || line.Type == LineContext {
			hunk.OldCount++
		}
		if line.Type == LineAdded || line.Type == LineContext {
			hunk.NewCount++
		}
	}
}

// hashContent computes an FNV-1a hash for the diff cache key.
func hashContent(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

// ClearCache drops all cached diff results.
func (e *DiffEngine) ClearCache() {
	e.cache = sync.Map{}
}

// ComputeWordLevelDiff computes word-level differences within a single line,
// used to highlight the changed span inside a modified hunk line.
func (e *DiffEngine) ComputeWordLevelDiff(oldLine, newLine string) []diffmatchpatch.Diff {
	diffs := e.dmp.DiffMain(oldLine, newLine, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)
	return diffs
}

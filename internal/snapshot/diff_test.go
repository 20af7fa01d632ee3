package snapshot

import (
	"strings"
	"testing"

	"layeredquery/internal/types"
)

func TestComputeDiff_SimpleAddition(t *testing.T) {
	oldContent := "line1\nline2\nline3"
	newContent := "line1\nline2\nline2.5\nline3"

	engine := NewDiffEngine()
	diff := engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)

	if diff == nil {
		t.Fatal("Expected diff, got nil")
	}
	if len(diff.Hunks) != 1 {
		t.Errorf("Expected 1 hunk, got %d", len(diff.Hunks))
	}
	if diff.IsNew || diff.IsDelete {
		t.Error("Should not be marked as new or delete")
	}

	hasAddition := false
	for _, hunk := range diff.Hunks {
		for _, line := range hunk.Lines {
			if line.Type == LineAdded && line.Content == "line2.5" {
				hasAddition = true
			}
		}
	}
	if !hasAddition {
		t.Error("Expected to find added line 'line2.5'")
	}
}

func TestComputeDiff_SimpleDeletion(t *testing.T) {
	oldContent := "line1\nline2\nline3\nline4"
	newContent := "line1\nline2\nline4"

	engine := NewDiffEngine()
	diff := engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)

	if len(diff.Hunks) != 1 {
		t.Errorf("Expected 1 hunk, got %d", len(diff.Hunks))
	}

	hasRemoval := false
	for _, hunk := range diff.Hunks {
		for _, line := range hunk.Lines {
			if line.Type == LineRemoved && line.Content == "line3" {
				hasRemoval = true
			}
		}
	}
	if !hasRemoval {
		t.Error("Expected to find removed line 'line3'")
	}
}

func TestComputeDiff_NewFile(t *testing.T) {
	engine := NewDiffEngine()
	diff := engine.ComputeDiff("", "new.txt", "", "new file content\nline 2")
	if !diff.IsNew {
		t.Error("Expected diff to be marked as new file")
	}
}

func TestComputeDiff_DeletedFile(t *testing.T) {
	engine := NewDiffEngine()
	diff := engine.ComputeDiff("old.txt", "", "old file content\nline 2", "")
	if !diff.IsDelete {
		t.Error("Expected diff to be marked as deleted file")
	}
}

func TestComputeDiff_NoChanges(t *testing.T) {
	content := "line1\nline2\nline3"
	engine := NewDiffEngine()
	diff := engine.ComputeDiff("file.txt", "file.txt", content, content)
	if len(diff.Hunks) != 0 {
		t.Errorf("Expected 0 hunks for identical content, got %d", len(diff.Hunks))
	}
}

func TestComputeDiff_MultipleHunks(t *testing.T) {
	oldContent := `line1
line2
line3
line4
line5
line6
line7
line8
line9
line10
line11
line12
line13
line14
line15`

	newContent := `line1
line2
CHANGED3
line4
line5
line6
line7
line8
line9
line10
line11
line12
CHANGED13
line14
line15`

	engine := NewDiffEngine()
	diff := engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)
	if len(diff.Hunks) < 1 {
		t.Errorf("Expected at least 1 hunk, got %d", len(diff.Hunks))
	}
}

func TestComputeDiff_ContextLines(t *testing.T) {
	oldContent := "line1\nline2\nline3\nline4\nline5"
	newContent := "line1\nline2\nCHANGED\nline4\nline5"

	engine := NewDiffEngine()
	diff := engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)
	if len(diff.Hunks) != 1 {
		t.Fatalf("Expected 1 hunk, got %d", len(diff.Hunks))
	}

	hasContext := false
	for _, line := range diff.Hunks[0].Lines {
		if line.Type == LineContext {
			hasContext = true
			break
		}
	}
	if !hasContext {
		t.Error("Expected context lines in hunk")
	}
}

func TestComputeDiff_Caching(t *testing.T) {
	oldContent := "line1\nline2\nline3"
	newContent := "line1\nline2\nline3\nline4"

	engine := NewDiffEngine()

	diff1 := engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)
	diff2 := engine.ComputeDiff("old2.txt", "new2.txt", oldContent, newContent)

	if len(diff1.Hunks) != len(diff2.Hunks) {
		t.Errorf("Cache should preserve hunk count: %d vs %d", len(diff1.Hunks), len(diff2.Hunks))
	}
	if diff2.OldPath != "old2.txt" || diff2.NewPath != "new2.txt" {
		t.Error("Cached diff should have updated paths")
	}

	engine.ClearCache()
	diff3 := engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)
	if len(diff3.Hunks) != len(diff1.Hunks) {
		t.Error("Cache clearing should not affect diff computation")
	}
}

func TestComputeDiff_EmptyLines(t *testing.T) {
	engine := NewDiffEngine()
	diff := engine.ComputeDiff("old.txt", "new.txt", "line1\n\nline3", "line1\n\n\nline3")
	if diff == nil {
		t.Fatal("Expected diff, got nil")
	}
	if len(diff.Hunks) == 0 {
		t.Error("Expected to detect change in empty lines")
	}
}

func TestComputeDiff_LargeFile(t *testing.T) {
	var oldLines, newLines []string
	for i := 0; i < 1000; i++ {
		oldLines = append(oldLines, "line "+string(rune(i)))
		newLines = append(newLines, "line "+string(rune(i)))
	}
	newLines[500] = "CHANGED LINE"

	oldContent := strings.Join(oldLines, "\n")
	newContent := strings.Join(newLines, "\n")

	engine := NewDiffEngine()
	diff := engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)
	if diff == nil {
		t.Fatal("Expected diff, got nil")
	}
	if len(diff.Hunks) == 0 {
		t.Error("Expected at least one hunk for large file diff")
	}
}

func TestComputeDiff_HunkCounts(t *testing.T) {
	oldContent := "line1\nline2\nline3"
	newContent := "line1\nNEW\nline3"

	engine := NewDiffEngine()
	diff := engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)
	if len(diff.Hunks) != 1 {
		t.Fatalf("Expected 1 hunk, got %d", len(diff.Hunks))
	}

	hunk := diff.Hunks[0]
	oldCount, newCount := 0, 0
	for _, line := range hunk.Lines {
		if line.Type == LineRemoved || line.Type == LineContext {
			oldCount++
		}
		if line.Type == LineAdded || line.Type == LineContext {
			newCount++
		}
	}

	if hunk.OldCount != oldCount {
		t.Errorf("OldCount mismatch: expected %d, got %d", oldCount, hunk.OldCount)
	}
	if hunk.NewCount != newCount {
		t.Errorf("NewCount mismatch: expected %d, got %d", newCount, hunk.NewCount)
	}
}

func TestComputeWordLevelDiff(t *testing.T) {
	engine := NewDiffEngine()
	diffs := engine.ComputeWordLevelDiff("The quick brown fox", "The quick red fox")
	if len(diffs) == 0 {
		t.Fatal("Expected word-level diffs, got none")
	}

	hasChange := false
	for _, d := range diffs {
		if strings.Contains(d.Text, "red") || strings.Contains(d.Text, "brown") {
			hasChange = true
			break
		}
	}
	if !hasChange {
		t.Error("Expected to detect word-level change")
	}
}

func TestComputeEditDiff_DerivesPreImageHash(t *testing.T) {
	engine := NewDiffEngine()
	edit := types.Edit{Path: "a.go", OldContent: "line1\nline2\n", NewContent: "line1\nCHANGED\n"}

	fileDiff, err := engine.ComputeEditDiff("a.go", edit)
	if err != nil {
		t.Fatalf("ComputeEditDiff: %v", err)
	}
	want := hashPreImage(edit.OldContent)
	if fileDiff.PreImageHash != want {
		t.Errorf("expected PreImageHash %s, got %s", want, fileDiff.PreImageHash)
	}
}

func TestComputeEditDiff_RejectsStalePreImage(t *testing.T) {
	engine := NewDiffEngine()
	edit := types.Edit{
		Path:         "a.go",
		OldContent:   "line1\nline2\n",
		NewContent:   "line1\nCHANGED\n",
		PreImageHash: "not-the-real-hash",
	}

	if _, err := engine.ComputeEditDiff("a.go", edit); err == nil {
		t.Fatal("expected an error when the recorded pre-image hash doesn't match OldContent")
	}
}

func TestComputeOverlayDiff_BatchesInSortedPathOrder(t *testing.T) {
	engine := NewDiffEngine()
	overlay := map[string]types.Edit{
		"b.go": {Path: "b.go", OldContent: "b1\n", NewContent: "b2\n"},
		"a.go": {Path: "a.go", OldContent: "a1\n", NewContent: "a2\n"},
	}

	diffs, err := engine.ComputeOverlayDiff(overlay)
	if err != nil {
		t.Fatalf("ComputeOverlayDiff: %v", err)
	}
	if len(diffs) != 2 {
		t.Fatalf("expected 2 file diffs, got %d", len(diffs))
	}
	if diffs[0].OldPath != "a.go" || diffs[1].OldPath != "b.go" {
		t.Errorf("expected deterministic path order [a.go, b.go], got [%s, %s]", diffs[0].OldPath, diffs[1].OldPath)
	}
}

func TestComputeOverlayDiff_FailsWholeBatchOnMismatch(t *testing.T) {
	engine := NewDiffEngine()
	overlay := map[string]types.Edit{
		"a.go": {Path: "a.go", OldContent: "a1\n", NewContent: "a2\n", PreImageHash: "bogus"},
	}

	if _, err := engine.ComputeOverlayDiff(overlay); err == nil {
		t.Fatal("expected ComputeOverlayDiff to fail on a pre-image mismatch")
	}
}

func TestAnnotateWordDiffs_SingleLineReplacement(t *testing.T) {
	engine := NewDiffEngine()
	diff := engine.ComputeDiff("old.txt", "new.txt", "line1\nbrown fox\nline3", "line1\nred fox\nline3")
	if len(diff.Hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(diff.Hunks))
	}

	var removed, added *Line
	for i, line := range diff.Hunks[0].Lines {
		switch line.Type {
		case LineRemoved:
			removed = &diff.Hunks[0].Lines[i]
		case LineAdded:
			added = &diff.Hunks[0].Lines[i]
		}
	}
	if removed == nil || added == nil {
		t.Fatal("expected both a removed and an added line")
	}
	if len(removed.WordDiff) == 0 || len(added.WordDiff) == 0 {
		t.Error("expected a single-line replacement to carry a word-level diff")
	}
}

func BenchmarkComputeDiff_Small(b *testing.B) {
	engine := NewDiffEngine()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.ComputeDiff("old.txt", "new.txt", "line1\nline2\nline3", "line1\nCHANGED\nline3")
	}
}

func BenchmarkComputeDiff_Large(b *testing.B) {
	var lines []string
	for i := 0; i < 1000; i++ {
		lines = append(lines, "line content here "+string(rune(i)))
	}
	oldContent := strings.Join(lines, "\n")
	lines[500] = "CHANGED"
	newContent := strings.Join(lines, "\n")

	engine := NewDiffEngine()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)
	}
}

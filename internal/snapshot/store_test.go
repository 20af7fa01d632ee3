package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"layeredquery/internal/types"
)

func TestCreateSnapshot_StartsOpen(t *testing.T) {
	root := t.TempDir()
	store := New(root)

	id, err := store.CreateSnapshot("abc123")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	snap, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Status != types.SnapshotOpen {
		t.Errorf("expected status %s, got %s", types.SnapshotOpen, snap.Status)
	}
	if snap.BaseRevision != "abc123" {
		t.Errorf("expected base revision abc123, got %s", snap.BaseRevision)
	}
}

func TestProposePatch_RecordsPreImageHash(t *testing.T) {
	root := t.TempDir()
	store := New(root)
	id, _ := store.CreateSnapshot("rev1")

	overlay, err := store.ProposePatch(id, []types.Edit{
		{Path: "a.go", OldContent: "package a\n", NewContent: "package a // edited\n"},
	})
	if err != nil {
		t.Fatalf("ProposePatch: %v", err)
	}

	edit, ok := overlay["a.go"]
	if !ok {
		t.Fatal("expected a.go in overlay")
	}
	if edit.PreImageHash == "" {
		t.Error("expected a non-empty pre-image hash")
	}
}

func TestProposePatch_RejectsAppliedSnapshot(t *testing.T) {
	root := t.TempDir()
	os.Setenv("LAYEREDQUERY_ALLOW_APPLY", "1")
	defer os.Unsetenv("LAYEREDQUERY_ALLOW_APPLY")

	store := New(root)
	id, _ := store.CreateSnapshot("rev1")
	store.ProposePatch(id, []types.Edit{{Path: "a.go", OldContent: "", NewContent: "x"}})
	if err := store.Apply(id, false); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, err := store.ProposePatch(id, []types.Edit{{Path: "b.go", NewContent: "y"}}); err == nil {
		t.Fatal("expected ProposePatch on an applied snapshot to fail")
	}
}

func TestRunChecks_CapturesExitCodeAndOutput(t *testing.T) {
	root := t.TempDir()
	store := New(root)
	id, _ := store.CreateSnapshot("rev1")
	store.ProposePatch(id, []types.Edit{{Path: "check.txt", NewContent: "hello"}})

	results, err := store.RunChecks(context.Background(), id, []string{"true", "false"}, 5)
	if err != nil {
		t.Fatalf("RunChecks: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ExitCode != 0 {
		t.Errorf("expected true to exit 0, got %d", results[0].ExitCode)
	}
	if results[1].ExitCode == 0 {
		t.Error("expected false to exit non-zero")
	}

	snap, _ := store.Get(id)
	if snap.Status != types.SnapshotOpen {
		t.Errorf("expected status to stay open after a failing check, got %s", snap.Status)
	}
}

func TestApply_RefusesWithoutEnvFlag(t *testing.T) {
	root := t.TempDir()
	os.Unsetenv("LAYEREDQUERY_ALLOW_APPLY")

	store := New(root)
	id, _ := store.CreateSnapshot("rev1")
	store.ProposePatch(id, []types.Edit{{Path: "a.go", NewContent: "x"}})

	if err := store.Apply(id, false); err == nil {
		t.Fatal("expected Apply to refuse without the opt-in env flag")
	}
}

func TestApply_RefusesOnPreImageMismatch(t *testing.T) {
	root := t.TempDir()
	os.Setenv("LAYEREDQUERY_ALLOW_APPLY", "1")
	defer os.Unsetenv("LAYEREDQUERY_ALLOW_APPLY")

	if err := os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n// changed since snapshot\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	store := New(root)
	id, _ := store.CreateSnapshot("rev1")
	store.ProposePatch(id, []types.Edit{
		{Path: "a.go", OldContent: "package a\n", NewContent: "package a // edited\n"},
	})
	store.RunChecks(context.Background(), id, []string{"true"}, 5)

	if err := store.Apply(id, true); err == nil {
		t.Fatal("expected Apply to refuse when the file changed since ProposePatch")
	}
}

func TestApply_WritesFilesAndRollsBackOnFailure(t *testing.T) {
	root := t.TempDir()
	os.Setenv("LAYEREDQUERY_ALLOW_APPLY", "1")
	defer os.Unsetenv("LAYEREDQUERY_ALLOW_APPLY")

	store := New(root)
	id, _ := store.CreateSnapshot("rev1")
	store.ProposePatch(id, []types.Edit{
		{Path: "new.go", OldContent: "", NewContent: "package new\n"},
	})
	store.RunChecks(context.Background(), id, []string{"true"}, 5)

	if err := store.Apply(id, true); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(root, "new.go"))
	if err != nil {
		t.Fatalf("expected new.go to exist: %v", err)
	}
	if string(content) != "package new\n" {
		t.Errorf("unexpected content: %q", content)
	}

	snap, _ := store.Get(id)
	if snap.Status != types.SnapshotApplied {
		t.Errorf("expected status applied, got %s", snap.Status)
	}

	if err := store.Apply(id, false); err == nil {
		t.Fatal("expected a second Apply on an already-applied snapshot to fail")
	}
}

func TestDrop_RemovesSnapshotFromActiveSet(t *testing.T) {
	root := t.TempDir()
	store := New(root)
	id, _ := store.CreateSnapshot("rev1")

	if err := store.Drop(id); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if _, err := store.Get(id); err == nil {
		t.Fatal("expected Get on a dropped snapshot to fail")
	}
}

func TestDiff_ReflectsStagedEdits(t *testing.T) {
	root := t.TempDir()
	store := New(root)
	id, _ := store.CreateSnapshot("rev1")
	store.ProposePatch(id, []types.Edit{
		{Path: "a.go", OldContent: "line1\nline2\n", NewContent: "line1\nline2changed\n"},
	})

	diffs, err := store.Diff(id)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(diffs) != 1 {
		t.Fatalf("expected 1 file diff, got %d", len(diffs))
	}
}

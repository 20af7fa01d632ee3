package services

import (
	"os"
	"path/filepath"
	"testing"

	"layeredquery/internal/config"
)

func TestNewBuildsAndCloses(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Layers.L3.DBPath = filepath.Join(root, ".ontology", "ontology.db")

	svc, err := New(cfg, root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if svc.Graph == nil || svc.Lexical == nil || svc.AST == nil || svc.Patterns == nil || svc.Propagation == nil {
		t.Fatal("expected every engine to be constructed")
	}
	if svc.ResponseCache == nil {
		t.Fatal("expected a response cache")
	}

	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewUsesRelativeDBPathUnderWorkspaceRoot(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Layers.L3.DBPath = ".ontology/ontology.db"

	svc, err := New(cfg, root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()

	want := filepath.Join(root, ".ontology", "ontology.db")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected the concept graph database under the workspace root: %v", err)
	}
}

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetLoggingState() {
	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false
	config = loggingConfig{}
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true.
func TestAllCategoriesLog(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configDir := filepath.Join(tempDir, ".ontology")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"orchestrator": true,
				"lexical": true,
				"ast": true,
				"graph": true,
				"patterns": true,
				"propagation": true,
				"snapshot": true,
				"cache": true,
				"watch": true
			}
		}
	}`

	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryOrchestrator,
		CategoryLexical,
		CategoryAST,
		CategoryGraph,
		CategoryPatterns,
		CategoryPropagation,
		CategorySnapshot,
		CategoryCache,
		CategoryWatch,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}

		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	Orchestrator("Convenience orchestrator log")
	Lexical("Convenience lexical log")
	AST("Convenience ast log")
	Graph("Convenience graph log")
	Patterns("Convenience patterns log")
	Propagation("Convenience propagation log")
	Snapshot("Convenience snapshot log")
	Cache("Convenience cache log")
	Watch("Convenience watch log")

	CloseAll()

	logsPath := filepath.Join(tempDir, ".ontology", "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	t.Logf("Created %d log files in %s", len(entries), logsPath)

	for _, cat := range categories {
		found := false
		for _, entry := range entries {
			if strings.Contains(entry.Name(), string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("Failed to read log file for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("Log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug_mode is false.
func TestDebugModeDisabled(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_disabled")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configDir := filepath.Join(tempDir, ".ontology")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": false,
			"categories": {
				"orchestrator": true,
				"ast": true,
				"graph": true
			}
		}
	}`

	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Error("Expected debug mode to be DISABLED (production mode)")
	}

	categories := []Category{CategoryOrchestrator, CategoryAST, CategoryGraph, CategoryLexical}
	for _, cat := range categories {
		if IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be DISABLED when debug_mode=false", cat)
		}
	}

	Orchestrator("This should NOT be logged")
	AST("This should NOT be logged")
	Graph("This should NOT be logged")

	logger := Get(CategoryOrchestrator)
	logger.Info("This should NOT be logged")
	logger.Debug("This should NOT be logged")
	logger.Error("This should NOT be logged")

	CloseAll()

	logsPath := filepath.Join(tempDir, ".ontology", "logs")
	_, err = os.Stat(logsPath)
	if err == nil {
		entries, _ := os.ReadDir(logsPath)
		if len(entries) > 0 {
			t.Errorf("Expected NO log files in production mode, but found %d files", len(entries))
		}
	} else if !os.IsNotExist(err) {
		t.Fatalf("unexpected stat error: %v", err)
	}
}

// TestCategoryToggle tests individual category enable/disable.
func TestCategoryToggle(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_category")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configDir := filepath.Join(tempDir, ".ontology")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"orchestrator": true,
				"ast": true,
				"graph": false,
				"lexical": false
			}
		}
	}`

	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}

	if !IsCategoryEnabled(CategoryOrchestrator) {
		t.Error("orchestrator should be enabled")
	}
	if !IsCategoryEnabled(CategoryAST) {
		t.Error("ast should be enabled")
	}
	if IsCategoryEnabled(CategoryGraph) {
		t.Error("graph should be DISABLED")
	}
	if IsCategoryEnabled(CategoryLexical) {
		t.Error("lexical should be DISABLED")
	}

	// Category not present in config should default to enabled when debug_mode=true.
	if !IsCategoryEnabled(CategoryPatterns) {
		t.Error("patterns (not in config) should default to enabled")
	}

	Orchestrator("This SHOULD be logged")
	AST("This SHOULD be logged")
	Graph("This should NOT be logged")
	Lexical("This should NOT be logged")
	Patterns("This SHOULD be logged (default enabled)")

	CloseAll()

	logsPath := filepath.Join(tempDir, ".ontology", "logs")
	entries, _ := os.ReadDir(logsPath)

	var hasOrchestratorLog, hasASTLog, hasGraphLog, hasLexicalLog bool
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.Contains(name, "orchestrator"):
			hasOrchestratorLog = true
		case strings.Contains(name, "ast"):
			hasASTLog = true
		case strings.Contains(name, "graph"):
			hasGraphLog = true
		case strings.Contains(name, "lexical"):
			hasLexicalLog = true
		}
	}

	if !hasOrchestratorLog {
		t.Error("Expected orchestrator log file")
	}
	if !hasASTLog {
		t.Error("Expected ast log file")
	}
	if hasGraphLog {
		t.Error("Should NOT have graph log file (disabled)")
	}
	if hasLexicalLog {
		t.Error("Should NOT have lexical log file (disabled)")
	}
}

// TestTimerLogging tests the timing helper.
func TestTimerLogging(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_timer")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configDir := filepath.Join(tempDir, ".ontology")
	os.MkdirAll(configDir, 0755)

	configContent := `{"logging": {"level": "debug", "debug_mode": true}}`
	os.WriteFile(filepath.Join(configDir, "config.json"), []byte(configContent), 0644)

	resetLoggingState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}

	timer := StartTimer(CategoryAST, "parseFile")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()

	if elapsed <= 0 {
		t.Error("Timer should have recorded non-zero duration")
	}

	budgetTimer := StartTimer(CategoryLexical, "search")
	time.Sleep(time.Millisecond)
	budgetTimer.StopWithBudget(time.Microsecond)

	CloseAll()
}

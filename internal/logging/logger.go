// Package logging provides config-driven categorized file-based logging for
// the Layered Analysis Pipeline. Logs are written to .ontology/logs/ with a
// separate file per category. Logging is controlled by debug_mode in the
// workspace config — when false, no logs are written.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category, one per pipeline component.
type Category string

const (
	CategoryOrchestrator Category = "orchestrator" // stage gating, fusion, circuit breakers
	CategoryLexical      Category = "lexical"      // L1 grep/glob/ls, bloom filter
	CategoryAST          Category = "ast"          // L2 parsing, queries, complexity
	CategoryGraph        Category = "graph"         // L3 concept graph, embedded store
	CategoryPatterns     Category = "patterns"      // L4 pattern learner
	CategoryPropagation  Category = "propagation"   // L5 propagation planner
	CategorySnapshot     Category = "snapshot"      // snapshot store, diffs, apply
	CategoryCache        Category = "cache"         // shared LRU/bloom caches
	CategoryWatch        Category = "watch"         // filesystem watch events
)

// loggingConfig mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports.
type loggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories"`
	Level      string          `json:"level"`
	JSONFormat bool            `json:"json_format"`
}

type configFile struct {
	Logging loggingConfig `json:"logging"`
}

// StructuredLogEntry represents a JSON log entry.
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"`
	Category  string                 `json:"cat"`
	Level     string                 `json:"lvl"`
	Message   string                 `json:"msg"`
	RequestID string                 `json:"req,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers      = make(map[Category]*Logger)
	loggersMu    sync.RWMutex
	logsDir      string
	workspace    string
	config       loggingConfig
	configLoaded bool
	configMu     sync.RWMutex
	logLevel     int
)

const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config.
// Should be called once at startup with the workspace path.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	workspace = ws
	logsDir = filepath.Join(workspace, ".ontology", "logs")

	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		config.DebugMode = false
	}

	if !config.DebugMode {
		return nil // Silent no-op in production mode
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryOrchestrator)
	boot.Info("=== Layered Analysis Pipeline logging initialized ===")
	boot.Info("Workspace: %s", workspace)
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Debug mode: %v", config.DebugMode)
	boot.Info("Log level: %s", config.Level)

	return nil
}

// loadConfig reads the logging config from <workspace>/.ontology/config.json.
func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	configPath := filepath.Join(workspace, ".ontology", "config.json")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			config.DebugMode = false
			configLoaded = true
			return nil
		}
		return err
	}

	var cf configFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse logging config: %w", err)
	}

	config = cf.Logging
	configLoaded = true

	switch config.Level {
	case "debug":
		logLevel = LevelDebug
	case "info":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	return nil
}

// ReloadConfig reloads the config from disk.
func ReloadConfig() error {
	return loadConfig()
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}
	if logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", date, category)
	logPath := filepath.Join(logsDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func (l *Logger) logJSON(level, msg string) {
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}
	l.logger.Printf("%s", data)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("debug", msg)
	} else {
		l.logger.Printf("[DEBUG] %s", msg)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("info", msg)
	} else {
		l.logger.Printf("[INFO] %s", msg)
	}
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("warn", msg)
	} else {
		l.logger.Printf("[WARN] %s", msg)
	}
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("error", msg)
	} else {
		l.logger.Printf("[ERROR] %s", msg)
	}
}

// StructuredLog writes a fully structured log entry with custom fields.
func (l *Logger) StructuredLog(level string, msg string, fields map[string]interface{}) {
	if l.logger == nil {
		return
	}
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
		Fields:    fields,
	}
	if config.JSONFormat {
		if data, err := json.Marshal(entry); err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	l.logger.Printf("[%s] %s | fields=%v", level, msg, fields)
}

// IsJSONFormat returns whether JSON logging is enabled.
func IsJSONFormat() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.JSONFormat
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// Convenience functions — quick logging without getting a logger first.
// =============================================================================

func Orchestrator(format string, args ...interface{})     { Get(CategoryOrchestrator).Info(format, args...) }
func OrchestratorDebug(format string, args ...interface{}) { Get(CategoryOrchestrator).Debug(format, args...) }
func OrchestratorWarn(format string, args ...interface{})  { Get(CategoryOrchestrator).Warn(format, args...) }
func OrchestratorError(format string, args ...interface{}) { Get(CategoryOrchestrator).Error(format, args...) }

func Lexical(format string, args ...interface{})      { Get(CategoryLexical).Info(format, args...) }
func LexicalDebug(format string, args ...interface{})  { Get(CategoryLexical).Debug(format, args...) }
func LexicalWarn(format string, args ...interface{})   { Get(CategoryLexical).Warn(format, args...) }
func LexicalError(format string, args ...interface{})  { Get(CategoryLexical).Error(format, args...) }

func AST(format string, args ...interface{})      { Get(CategoryAST).Info(format, args...) }
func ASTDebug(format string, args ...interface{})  { Get(CategoryAST).Debug(format, args...) }
func ASTWarn(format string, args ...interface{})   { Get(CategoryAST).Warn(format, args...) }
func ASTError(format string, args ...interface{}) { Get(CategoryAST).Error(format, args...) }

func Graph(format string, args ...interface{})      { Get(CategoryGraph).Info(format, args...) }
func GraphDebug(format string, args ...interface{})  { Get(CategoryGraph).Debug(format, args...) }
func GraphWarn(format string, args ...interface{})   { Get(CategoryGraph).Warn(format, args...) }
func GraphError(format string, args ...interface{})  { Get(CategoryGraph).Error(format, args...) }

func Patterns(format string, args ...interface{})      { Get(CategoryPatterns).Info(format, args...) }
func PatternsDebug(format string, args ...interface{})  { Get(CategoryPatterns).Debug(format, args...) }
func PatternsWarn(format string, args ...interface{})   { Get(CategoryPatterns).Warn(format, args...) }
func PatternsError(format string, args ...interface{})  { Get(CategoryPatterns).Error(format, args...) }

func Propagation(format string, args ...interface{})     { Get(CategoryPropagation).Info(format, args...) }
func PropagationDebug(format string, args ...interface{}) { Get(CategoryPropagation).Debug(format, args...) }
func PropagationWarn(format string, args ...interface{})  { Get(CategoryPropagation).Warn(format, args...) }
func PropagationError(format string, args ...interface{}) { Get(CategoryPropagation).Error(format, args...) }

func Snapshot(format string, args ...interface{})      { Get(CategorySnapshot).Info(format, args...) }
func SnapshotDebug(format string, args ...interface{})  { Get(CategorySnapshot).Debug(format, args...) }
func SnapshotWarn(format string, args ...interface{})   { Get(CategorySnapshot).Warn(format, args...) }
func SnapshotError(format string, args ...interface{})  { Get(CategorySnapshot).Error(format, args...) }

func Cache(format string, args ...interface{})      { Get(CategoryCache).Info(format, args...) }
func CacheDebug(format string, args ...interface{})  { Get(CategoryCache).Debug(format, args...) }
func CacheWarn(format string, args ...interface{})   { Get(CategoryCache).Warn(format, args...) }
func CacheError(format string, args ...interface{})  { Get(CategoryCache).Error(format, args...) }

func Watch(format string, args ...interface{})      { Get(CategoryWatch).Info(format, args...) }
func WatchDebug(format string, args ...interface{})  { Get(CategoryWatch).Debug(format, args...) }
func WatchWarn(format string, args ...interface{})   { Get(CategoryWatch).Warn(format, args...) }
func WatchError(format string, args ...interface{})  { Get(CategoryWatch).Error(format, args...) }

// =============================================================================
// Timing helpers — for per-stage latency-budget logging.
// =============================================================================

// Timer measures an operation's duration against the category's log.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level.
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithBudget logs a warning if duration exceeds the layer's latency budget.
func (t *Timer) StopWithBudget(budget time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > budget {
		Get(t.category).Warn("%s took %v (budget: %v)", t.op, elapsed, budget)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}

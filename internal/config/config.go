// Package config holds the single typed CoreConfig tree for the Layered
// Analysis Pipeline, loaded from YAML with environment overrides,
// following the internal/config/config.go pattern.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// CoreConfig is the root configuration tree for the core.
type CoreConfig struct {
	Layers      LayersConfig      `yaml:"layers"`
	Performance PerformanceConfig `yaml:"performance"`
	Cache       CacheConfig       `yaml:"cache"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LayersConfig groups per-layer enablement and tunables.
type LayersConfig struct {
	L1 L1Config `yaml:"l1"`
	L2 L2Config `yaml:"l2"`
	L3 L3Config `yaml:"l3"`
	L4 L4Config `yaml:"l4"`
	L5 L5Config `yaml:"l5"`
}

// L1Config tunes Lexical Search.
type L1Config struct {
	Enabled      bool               `yaml:"enabled"`
	Timeout      int                `yaml:"timeout"` // ms
	Optimization L1Optimization     `yaml:"optimization"`
	MaxGlobResults int              `yaml:"max_glob_results"`
	ProcessPoolSize int             `yaml:"process_pool_size"`
	IgnoreDirs   []string           `yaml:"ignore_dirs"`
}

// L1Optimization toggles the bloom filter, frequency cache, and
// parallel search strategies.
type L1Optimization struct {
	BloomFilter    bool `yaml:"bloomFilter"`
	FrequencyCache bool `yaml:"frequencyCache"`
	ParallelSearch bool `yaml:"parallelSearch"`
}

// L2Config tunes the AST Engine.
type L2Config struct {
	Enabled      bool     `yaml:"enabled"`
	Timeout      int      `yaml:"timeout"`
	Languages    []string `yaml:"languages"`
	MaxFileSize  int      `yaml:"maxFileSize"`
	ParseTimeout int      `yaml:"parseTimeout"`
	MaxFiles     int      `yaml:"maxFiles"`
	CacheSize    int      `yaml:"cacheSize"`
	CacheTTL     int      `yaml:"cacheTTLSeconds"`
}

// L3Config tunes the Concept Graph.
type L3Config struct {
	Enabled          bool   `yaml:"enabled"`
	Timeout          int    `yaml:"timeout"`
	DBPath           string `yaml:"dbPath"`
	CacheSize        int    `yaml:"cacheSize"`
	ConceptThreshold float64 `yaml:"conceptThreshold"`
	RelationshipDepth int   `yaml:"relationshipDepth"`
	MaxTraversalEdges int   `yaml:"maxTraversalEdges"`
}

// L4Config tunes the Pattern Learner.
type L4Config struct {
	Enabled           bool    `yaml:"enabled"`
	Timeout           int     `yaml:"timeout"`
	LearningThreshold int     `yaml:"learningThreshold"`
	ConfidenceThreshold float64 `yaml:"confidenceThreshold"`
	MaxPatterns       int     `yaml:"maxPatterns"`
	DecayRate         float64 `yaml:"decayRate"`
}

// L5Config tunes the Propagation Planner.
type L5Config struct {
	Enabled            bool    `yaml:"enabled"`
	Timeout            int     `yaml:"timeout"`
	MaxDepth           int     `yaml:"maxDepth"`
	AutoApplyThreshold float64 `yaml:"autoApplyThreshold"`
	PropagationTimeout int     `yaml:"propagationTimeout"`
	MaxSuggestions     int     `yaml:"maxSuggestions"`
}

// PerformanceConfig tunes orchestrator-wide resource limits.
type PerformanceConfig struct {
	TargetLatency           int `yaml:"targetLatency"`
	MaxConcurrentRequests   int `yaml:"maxConcurrentRequests"`
	RequestTimeout          int `yaml:"requestTimeout"`
	CircuitBreakerThreshold int `yaml:"circuitBreakerThreshold"`
	CircuitBreakerCooldown  int `yaml:"circuitBreakerCooldownSeconds"`
	HealthCheckInterval     int `yaml:"healthCheckInterval"`
}

// CacheStrategy selects where the shared response cache lives.
type CacheStrategy string

const (
	CacheMemory CacheStrategy = "memory"
	CacheDisk   CacheStrategy = "disk"
)

// CacheConfig tunes the shared orchestrator-level response cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Strategy CacheStrategy `yaml:"strategy"`
	Memory   MemoryCacheConfig `yaml:"memory"`
}

// MemoryCacheConfig tunes the in-memory cache strategy.
type MemoryCacheConfig struct {
	MaxSize int `yaml:"maxSize"`
	TTL     int `yaml:"ttl"` // seconds
}

// MonitoringConfig tunes operational metrics emission.
type MonitoringConfig struct {
	Enabled         bool   `yaml:"enabled"`
	MetricsInterval int    `yaml:"metricsInterval"`
	LogLevel        string `yaml:"logLevel"`
}

// LoggingConfig mirrors internal/logging's on-disk config shape so both
// packages agree on the same YAML/JSON schema.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
	Level      string          `yaml:"level" json:"level"`
	JSONFormat bool            `yaml:"json_format" json:"json_format"`
}

// DefaultConfig returns the default configuration, following the
// DefaultConfig() convention of one value per concern.
func DefaultConfig() *CoreConfig {
	return &CoreConfig{
		Layers: LayersConfig{
			L1: L1Config{
				Enabled: true,
				Timeout: 5,
				Optimization: L1Optimization{
					BloomFilter:    true,
					FrequencyCache: true,
					ParallelSearch: true,
				},
				MaxGlobResults:  1000,
				ProcessPoolSize: 4,
				IgnoreDirs:      []string{"node_modules", ".git", "dist", "coverage"},
			},
			L2: L2Config{
				Enabled:      true,
				Timeout:      50,
				Languages:    []string{"typescript", "javascript", "python"},
				MaxFileSize:  1 << 20,
				ParseTimeout: 50,
				MaxFiles:     100,
				CacheSize:    100,
				CacheTTL:     300,
			},
			L3: L3Config{
				Enabled:           true,
				Timeout:           10,
				DBPath:            ".ontology/ontology.db",
				CacheSize:         500,
				ConceptThreshold:  0.5,
				RelationshipDepth: 3,
				MaxTraversalEdges: 500,
			},
			L4: L4Config{
				Enabled:             true,
				Timeout:             10,
				LearningThreshold:   3,
				ConfidenceThreshold: 0.7,
				MaxPatterns:         1000,
				DecayRate:           0.05,
			},
			L5: L5Config{
				Enabled:            true,
				Timeout:            20,
				MaxDepth:           3,
				AutoApplyThreshold: 0.8,
				PropagationTimeout: 20,
				MaxSuggestions:     500,
			},
		},
		Performance: PerformanceConfig{
			TargetLatency:           100,
			MaxConcurrentRequests:   100,
			RequestTimeout:          3000,
			CircuitBreakerThreshold: 5,
			CircuitBreakerCooldown:  30,
			HealthCheckInterval:     60,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Strategy: CacheMemory,
			Memory: MemoryCacheConfig{
				MaxSize: 1000,
				TTL:     5,
			},
		},
		Monitoring: MonitoringConfig{
			Enabled:         true,
			MetricsInterval: 60,
			LogLevel:        "info",
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads CoreConfig from a YAML file, falling back to defaults if the
// file doesn't exist, then applies environment overrides.
func Load(path string) (*CoreConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes CoreConfig to a YAML file, creating parent directories.
func (c *CoreConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *CoreConfig) applyEnvOverrides() {
	if v := os.Getenv("LQ_DB_PATH"); v != "" {
		c.Layers.L3.DBPath = v
	}
	if v := os.Getenv("LQ_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
	if v := os.Getenv("LQ_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LQ_MAX_CONCURRENT_REQUESTS"); v != "" {
		if n, err := fmt.Sscanf(v, "%d", &c.Performance.MaxConcurrentRequests); err != nil || n != 1 {
			// leave default on parse failure
		}
	}
}

// RequestTimeoutDuration returns the total per-request timeout as a
// time.Duration.
func (c *CoreConfig) RequestTimeoutDuration() time.Duration {
	if c.Performance.RequestTimeout <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.Performance.RequestTimeout) * time.Millisecond
}

// Validate checks cross-field invariants that DefaultConfig always
// satisfies but a user-supplied file might not.
func (c *CoreConfig) Validate() error {
	if c.Performance.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("performance.maxConcurrentRequests must be positive")
	}
	if c.Layers.L3.DBPath == "" {
		return fmt.Errorf("layers.l3.dbPath must be set")
	}
	if c.Layers.L5.MaxDepth <= 0 {
		return fmt.Errorf("layers.l5.maxDepth must be positive")
	}
	return nil
}

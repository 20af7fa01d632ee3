// Package lexical implements Layer 1 — bounded content/glob/ls search
// over the workspace with a bloom-filter negative cache and a
// TTL-bounded result cache, grounded on Scanner.ScanDirectory (bounded
// worker fan-out, context cancellation, ignore-list directory
// pruning).
package lexical

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"layeredquery/internal/cache"
	"layeredquery/internal/logging"
)

// Hit is a single grep match.
type Hit struct {
	File   string
	Line   int
	Text   string
	Column int
}

// OutputMode selects what grep returns.
type OutputMode string

const (
	OutputFiles   OutputMode = "files"
	OutputContent OutputMode = "content"
	OutputCount   OutputMode = "count"
)

// GrepOptions tunes a grep call.
type GrepOptions struct {
	OutputMode      OutputMode
	Context         int
	MaxResults      int
	Timeout         time.Duration
	Regex           bool
	CaseInsensitive bool
}

// GrepResult carries grep hits plus fail-mode flags.
type GrepResult struct {
	Hits     []Hit
	Count    int
	TimedOut bool
}

// ProcessResult is L1's top-level summary returned to the Orchestrator.
type ProcessResult struct {
	Exact      []Hit
	Fuzzy      []Hit
	Conceptual []string
	SearchTime time.Duration
	ToolsUsed  []string
}

// bloomKey identifies a (identifier, scope) pair in the negative cache.
func bloomKey(identifier, scope string) string {
	return identifier + "\x00" + scope
}

// cacheKey identifies a cached grep result.
type resultCacheKey struct {
	pattern string
	scope   string
	opts    GrepOptions
}

// Engine is the Lexical Search layer.
type Engine struct {
	root string

	ignoreDirs map[string]bool

	mu    sync.RWMutex // guards bloom (lock-on-write)
	bloom *bloom.BloomFilter

	resultCache *cache.TTLCache[string, GrepResult]

	processPool chan struct{} // bounds concurrent subprocess-equivalent scans

	bloomEnabled bool
	maxGlobResults int
}

// Config groups the tunables an Engine needs from CoreConfig.
type Config struct {
	IgnoreDirs      []string
	BloomEnabled    bool
	MaxGlobResults  int
	ProcessPoolSize int
	CacheTTL        time.Duration
	CacheSize       int
}

// New constructs a Lexical Search engine rooted at root.
func New(root string, cfg Config) (*Engine, error) {
	ignore := make(map[string]bool, len(cfg.IgnoreDirs))
	for _, d := range cfg.IgnoreDirs {
		ignore[d] = true
	}

	rc, err := cache.New[string, GrepResult](maxInt(cfg.CacheSize, 1), cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("lexical: building result cache: %w", err)
	}

	poolSize := cfg.ProcessPoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	return &Engine{
		root:           root,
		ignoreDirs:     ignore,
		bloom:          bloom.NewWithEstimates(1_000_000, 0.01),
		resultCache:    rc,
		processPool:    make(chan struct{}, poolSize),
		bloomEnabled:   cfg.BloomEnabled,
		maxGlobResults: maxInt(cfg.MaxGlobResults, 1000),
	}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// HasSeenEmpty reports whether (identifier, scope) is known, from a
// completed prior search, to have zero matches. It never returns true
// for a pair that was not previously searched end-to-end — see markEmpty.
func (e *Engine) HasSeenEmpty(identifier, scope string) bool {
	if !e.bloomEnabled {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bloom.TestString(bloomKey(identifier, scope))
}

// markEmpty records that a real, completed search found zero matches for
// (identifier, scope). Callers must only invoke this after a real search
// has run to completion — the bloom filter's no-false-negatives
// invariant forbids inserting from anything else.
func (e *Engine) markEmpty(identifier, scope string) {
	if !e.bloomEnabled {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bloom.AddString(bloomKey(identifier, scope))
}

// InvalidateScope replaces the whole bloom filter with an empty one and
// drops every cached grep result whose key contains path, or every
// cached result when path lies under the workspace root. Called from
// the file-watch handler on any change event.
func (e *Engine) InvalidateScope(path string) {
	// Bloom filters support no selective deletion; since a changed file
	// may invalidate a "confirmed empty" pair, rebuild a fresh filter
	// rather than serve stale negatives. This is the documented cost of
	// using a bloom filter for negative caching.
	e.mu.Lock()
	e.bloom = bloom.NewWithEstimates(1_000_000, 0.01)
	e.mu.Unlock()

	e.resultCache.RemoveMatching(func(key string) bool {
		return strings.Contains(key, path) || strings.HasPrefix(path, e.root)
	})
}

// Grep searches file contents under pathGlob beneath root for pattern.
func (e *Engine) Grep(ctx context.Context, pattern, pathGlob string, opts GrepOptions) (*GrepResult, error) {
	timer := logging.StartTimer(logging.CategoryLexical, "grep")
	defer timer.StopWithBudget(5 * time.Millisecond)

	if opts.MaxResults <= 0 {
		opts.MaxResults = 1000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	scope := e.root
	if pathGlob != "" && pathGlob != "*" {
		scope = filepath.Join(e.root, pathGlob)
	}
	if e.HasSeenEmpty(pattern, scope) {
		logging.LexicalDebug("bloom hit for %q in scope %q, short-circuiting", pattern, scope)
		return &GrepResult{}, nil
	}

	key := fmt.Sprintf("%v", resultCacheKey{pattern: pattern, scope: scope, opts: opts})
	if cached, ok := e.resultCache.Get(key); ok {
		return &cached, nil
	}

	var matcher func(string) []int // returns column offsets of matches per line
	if opts.Regex {
		re, err := compileRegex(pattern, opts.CaseInsensitive)
		if err != nil {
			return nil, err
		}
		matcher = func(line string) []int {
			loc := re.FindStringIndex(line)
			if loc == nil {
				return nil
			}
			return []int{loc[0]}
		}
	} else {
		needle := pattern
		if opts.CaseInsensitive {
			needle = strings.ToLower(needle)
		}
		matcher = func(line string) []int {
			haystack := line
			if opts.CaseInsensitive {
				haystack = strings.ToLower(haystack)
			}
			idx := strings.Index(haystack, needle)
			if idx < 0 {
				return nil
			}
			return []int{idx}
		}
	}

	files, err := e.globFiles(pathGlob)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	result := &GrepResult{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, f := range files {
		select {
		case <-ctx.Done():
			result.TimedOut = true
		default:
		}
		if result.TimedOut {
			break
		}

		wg.Add(1)
		e.processPool <- struct{}{}
		go func(path string) {
			defer wg.Done()
			defer func() { <-e.processPool }()

			hits := scanFile(ctx, filepath.Join(e.root, path), matcher, opts.Context)
			if len(hits) == 0 {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if len(result.Hits) < opts.MaxResults {
				result.Hits = append(result.Hits, hits...)
			}
		}(f)
	}
	wg.Wait()

	if ctx.Err() != nil {
		result.TimedOut = true
	}

	sort.Slice(result.Hits, func(i, j int) bool {
		if result.Hits[i].File != result.Hits[j].File {
			return result.Hits[i].File < result.Hits[j].File
		}
		return result.Hits[i].Line < result.Hits[j].Line
	})
	if len(result.Hits) > opts.MaxResults {
		result.Hits = result.Hits[:opts.MaxResults]
	}
	result.Count = len(result.Hits)

	if !result.TimedOut {
		e.resultCache.Put(key, *result)
		if len(result.Hits) == 0 {
			e.markEmpty(pattern, scope)
		}
	}

	return result, nil
}

func compileRegex(pattern string, caseInsensitive bool) (*regexp.Regexp, error) {
	if caseInsensitive {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

func scanFile(ctx context.Context, path string, matcher func(string) []int, context int) []Hit {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var hits []Hit
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNum := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return hits
		default:
		}
		lineNum++
		line := scanner.Text()
		if cols := matcher(line); len(cols) > 0 {
			hits = append(hits, Hit{File: path, Line: lineNum, Text: line, Column: cols[0]})
		}
	}
	return hits
}

// Glob returns file paths under root matching pattern, bounded to
// e.maxGlobResults.
func (e *Engine) Glob(pattern, root string) ([]string, error) {
	if root == "" {
		root = e.root
	}
	timer := logging.StartTimer(logging.CategoryLexical, "glob")
	defer timer.Stop()

	var matches []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if e.ignoreDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= e.maxGlobResults {
			return filepath.SkipAll
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		ok, matchErr := filepath.Match(pattern, filepath.Base(path))
		if matchErr != nil {
			return matchErr
		}
		if ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		return matches, err
	}
	return matches, nil
}

func (e *Engine) globFiles(pathGlob string) ([]string, error) {
	if pathGlob == "" {
		pathGlob = "*"
	}
	return e.Glob(pathGlob, e.root)
}

// DirEntry is one entry returned by Ls.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// Ls lists the entries of a directory under the workspace root.
func (e *Engine) Ls(path string) ([]DirEntry, error) {
	full := filepath.Join(e.root, path)
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, ent := range entries {
		info, err := ent.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}
		out = append(out, DirEntry{Name: ent.Name(), IsDir: ent.IsDir(), Size: size})
	}
	return out, nil
}

// Process runs the top-level L1 query used by the Orchestrator: an
// exact-match grep plus a looser fuzzy pass, within the layer's latency
// budget.
func (e *Engine) Process(ctx context.Context, identifier string) (*ProcessResult, error) {
	start := time.Now()
	var toolsUsed []string

	if e.HasSeenEmpty(identifier, e.root) {
		toolsUsed = append(toolsUsed, "bloomFilter")
		return &ProcessResult{SearchTime: time.Since(start), ToolsUsed: toolsUsed}, nil
	}

	exact, err := e.Grep(ctx, identifier, "*", GrepOptions{OutputMode: OutputContent, MaxResults: 200})
	if err != nil {
		return nil, err
	}
	toolsUsed = append(toolsUsed, "grep")

	var fuzzy []Hit
	if len(exact.Hits) == 0 {
		fz, err := e.Grep(ctx, identifier, "*", GrepOptions{OutputMode: OutputContent, MaxResults: 200, CaseInsensitive: true})
		if err == nil {
			fuzzy = fz.Hits
			toolsUsed = append(toolsUsed, "fuzzyGrep")
		}
	}

	return &ProcessResult{
		Exact:      exact.Hits,
		Fuzzy:      fuzzy,
		SearchTime: time.Since(start),
		ToolsUsed:  toolsUsed,
	}, nil
}

// Package ast implements Layer 2 — multi-language syntactic parsing,
// AST queries, definition/reference lookup, and complexity metrics,
// grounded on TreeSitterParser (internal/world/ast_treesitter.go) with
// a regex pseudo-AST fallback generalized from internal/world/ast.go.
package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"layeredquery/internal/cache"
	"layeredquery/internal/logging"
	"layeredquery/internal/types"
)

// Definition is a named declaration found in an AST.
type Definition struct {
	Name       string
	Kind       string // function, class, variable, interface, ...
	Location   types.Range
	Confidence float64
}

// Reference is a named-identifier occurrence found in an AST.
type Reference struct {
	Name     string
	Location types.Range
}

// Complexity holds per-function complexity metrics.
type Complexity struct {
	Cyclomatic int
	Cognitive  int
	Nesting    int
	Lines      int
}

// Engine is the AST Engine (L2). One shared Engine instance holds one
// tree-sitter parser per language; *sitter.Parser is not safe for
// concurrent Parse calls, so parseMu serializes access to them when
// multiple pool workers call ParseFile on the same Engine concurrently.
// The cache and read-only query sources stay lock-free and shared.
type Engine struct {
	tsParser *sitter.Parser
	jsParser *sitter.Parser
	pyParser *sitter.Parser

	tsLang *sitter.Language
	jsLang *sitter.Language
	pyLang *sitter.Language

	parseMu sync.Mutex

	astCache   *cache.TTLCache[string, *types.ParsedAST]
	queryCache map[string]string // language -> compiled query source, recompilation avoidance

	maxFiles int
}

// Config groups the tunables an Engine needs from CoreConfig.
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
	MaxFiles  int
}

// New constructs an AST Engine with one tree-sitter parser per
// supported language.
func New(cfg Config) (*Engine, error) {
	astCache, err := cache.New[string, *types.ParsedAST](maxInt(cfg.CacheSize, 1), cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("ast: building ast cache: %w", err)
	}

	tsLang := typescript.GetLanguage()
	jsLang := javascript.GetLanguage()
	pyLang := python.GetLanguage()

	ts := sitter.NewParser()
	ts.SetLanguage(tsLang)
	js := sitter.NewParser()
	js.SetLanguage(jsLang)
	py := sitter.NewParser()
	py.SetLanguage(pyLang)

	return &Engine{
		tsParser:   ts,
		jsParser:   js,
		pyParser:   py,
		tsLang:     tsLang,
		jsLang:     jsLang,
		pyLang:     pyLang,
		astCache:   astCache,
		queryCache: make(map[string]string),
		maxFiles:   maxInt(cfg.MaxFiles, 100),
	}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Dispose releases the tree-sitter parsers.
func (e *Engine) Dispose() {
	e.tsParser.Close()
	e.jsParser.Close()
	e.pyParser.Close()
}

func (e *Engine) parserFor(lang types.Language) *sitter.Parser {
	switch lang {
	case types.LangTypeScript:
		return e.tsParser
	case types.LangJavaScript:
		return e.jsParser
	case types.LangPython:
		return e.pyParser
	default:
		return nil
	}
}

func checksum(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// DetectLanguage maps a file extension to a supported Language, or ""
// if unsupported.
func DetectLanguage(path string) types.Language {
	switch ext(path) {
	case ".ts", ".tsx":
		return types.LangTypeScript
	case ".js", ".jsx", ".mjs":
		return types.LangJavaScript
	case ".py":
		return types.LangPython
	default:
		return ""
	}
}

func ext(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}

// ParseCode produces a ParsedAST for in-memory text, using the native
// tree-sitter grammar when the language is supported, or the regex
// pseudo-AST fallback otherwise.
func (e *Engine) ParseCode(ctx context.Context, text string, lang types.Language) (*types.ParsedAST, error) {
	return e.parseCode(ctx, text, lang, "")
}

func (e *Engine) parseCode(ctx context.Context, text string, lang types.Language, uri string) (*types.ParsedAST, error) {
	timer := logging.StartTimer(logging.CategoryAST, "parseCode")
	defer timer.StopWithBudget(50 * time.Millisecond)

	content := []byte(text)
	sum := checksum(content)

	parser := e.parserFor(lang)
	if parser == nil {
		logging.ASTWarn("no native parser for language %q, using pseudo-AST fallback", lang)
		ast := parsePseudoAST(content, lang, sum)
		ast.Source = content
		ast.URI = uri
		return ast, nil
	}

	e.parseMu.Lock()
	tree, err := parser.ParseCtx(ctx, nil, content)
	e.parseMu.Unlock()
	if err != nil {
		return nil, types.NewError(types.ErrParse, fmt.Sprintf("parsing %s", lang), err)
	}

	return &types.ParsedAST{
		Tree:      tree,
		Language:  lang,
		Version:   1,
		Checksum:  sum,
		Timestamp: time.Now(),
		Degraded:  false,
		Source:    content,
		URI:       uri,
	}, nil
}

// ParseFile parses the file at path, reusing the cached AST when its
// checksum matches the current content unless forceRefresh is set.
func (e *Engine) ParseFile(ctx context.Context, path string, content []byte, forceRefresh bool) (*types.ParsedAST, error) {
	sum := checksum(content)

	if !forceRefresh {
		if cached, ok := e.astCache.Get(path); ok && cached.Checksum == sum {
			logging.ASTDebug("ast cache hit for %s", path)
			return cached, nil
		}
	}

	lang := DetectLanguage(path)
	parsed, err := e.parseCode(ctx, string(content), lang, path)
	if err != nil {
		return nil, err
	}

	e.astCache.Put(path, parsed)
	return parsed, nil
}

// Invalidate evicts path's cached AST, called from the file-watch
// handler on modify/delete events.
func (e *Engine) Invalidate(path string) {
	e.astCache.Remove(path)
}

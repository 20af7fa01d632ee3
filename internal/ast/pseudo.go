package ast

import (
	"regexp"
	"time"

	"layeredquery/internal/types"
)

// pseudoNode is a shallow tagged-regex definition used when a native
// tree-sitter grammar is unavailable at runtime. It satisfies the same
// query interface as a real tree-sitter tree at reduced precision.
type pseudoNode struct {
	kind string
	name string
	line int
	col  int
}

// pseudoTree is the degraded-AST payload stored in ParsedAST.Tree when
// Degraded is true.
type pseudoTree struct {
	nodes []pseudoNode
	lines []string
}

var pseudoPatterns = map[types.Language][]struct {
	kind string
	re   *regexp.Regexp
}{
	types.LangPython: {
		{kind: "function", re: regexp.MustCompile(`^\s*def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)},
		{kind: "class", re: regexp.MustCompile(`^\s*class\s+([A-Za-z_][A-Za-z0-9_]*)\s*[:\(]`)},
		{kind: "variable", re: regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=\s*[^=]`)},
	},
	types.LangTypeScript: {
		{kind: "class", re: regexp.MustCompile(`^\s*(?:export\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][A-Za-z0-9_$]*)`)},
		{kind: "interface", re: regexp.MustCompile(`^\s*(?:export\s+)?interface\s+([A-Za-z_$][A-Za-z0-9_$]*)`)},
		{kind: "function", re: regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_$][A-Za-z0-9_$]*)`)},
		{kind: "variable", re: regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=`)},
	},
	types.LangJavaScript: {
		{kind: "class", re: regexp.MustCompile(`^\s*(?:export\s+)?class\s+([A-Za-z_$][A-Za-z0-9_$]*)`)},
		{kind: "function", re: regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_$][A-Za-z0-9_$]*)`)},
		{kind: "variable", re: regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=`)},
	},
}

func splitLines(content []byte) []string {
	var lines []string
	start := 0
	for i, b := range content {
		if b == '\n' {
			lines = append(lines, string(content[start:i]))
			start = i + 1
		}
	}
	lines = append(lines, string(content[start:]))
	return lines
}

func parsePseudoAST(content []byte, lang types.Language, sum string) *types.ParsedAST {
	lines := splitLines(content)
	patterns := pseudoPatterns[lang]

	var nodes []pseudoNode
	for i, line := range lines {
		for _, p := range patterns {
			if m := p.re.FindStringSubmatchIndex(line); m != nil {
				name := line[m[2]:m[3]]
				nodes = append(nodes, pseudoNode{kind: p.kind, name: name, line: i, col: m[2]})
			}
		}
	}

	return &types.ParsedAST{
		Tree:      &pseudoTree{nodes: nodes, lines: lines},
		Language:  lang,
		Version:   1,
		Checksum:  sum,
		Timestamp: time.Now(),
		Degraded:  true,
	}
}

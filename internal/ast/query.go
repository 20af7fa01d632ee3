package ast

import (
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"layeredquery/internal/types"
)

// definitionNodeTypes maps a tree-sitter node type to the Definition
// kind it represents, per language. Node type names come from each
// grammar's node-types.json (function_declaration, class_declaration,
// method_definition, ...).
var definitionNodeTypes = map[types.Language]map[string]string{
	types.LangTypeScript: {
		"function_declaration":  "function",
		"class_declaration":     "class",
		"interface_declaration": "interface",
		"method_definition":     "method",
		"variable_declarator":   "variable",
	},
	types.LangJavaScript: {
		"function_declaration": "function",
		"class_declaration":    "class",
		"method_definition":    "method",
		"variable_declarator":  "variable",
	},
	types.LangPython: {
		"function_definition": "function",
		"class_definition":    "class",
	},
}

// identifierFieldName is the field tree-sitter uses to expose a
// definition node's name, which is "name" for every grammar wired here.
const identifierFieldName = "name"

func nodeText(n *sitter.Node, content []byte) string {
	return n.Content(content)
}

func toRange(n *sitter.Node, uri string) types.Range {
	start := n.StartPoint()
	end := n.EndPoint()
	return types.Range{
		Start: types.Location{URI: uri, Line: int(start.Row) + 1, Col: int(start.Column) + 1},
		End:   types.Location{URI: uri, Line: int(end.Row) + 1, Col: int(end.Column) + 1},
	}
}

// Query runs a tree-sitter s-expression query against ast and returns
// every definition-shaped capture, or (for a degraded pseudo-AST)
// filters pseudoTree nodes whose kind matches queryPattern directly.
func (e *Engine) Query(ast *types.ParsedAST, queryPattern string) ([]Definition, error) {
	if ast.Degraded {
		pt, ok := ast.Tree.(*pseudoTree)
		if !ok {
			return nil, types.NewError(types.ErrInternal, "degraded AST has unexpected tree payload", nil)
		}
		var out []Definition
		for _, n := range pt.nodes {
			if n.kind != queryPattern {
				continue
			}
			out = append(out, Definition{
				Name:       n.name,
				Kind:       n.kind,
				Location:   pseudoRange(n),
				Confidence: 0.6,
			})
		}
		return out, nil
	}

	root, ok := ast.Tree.(*sitter.Tree)
	if !ok {
		return nil, types.NewError(types.ErrInternal, "native AST has unexpected tree payload", nil)
	}

	lang := e.languageFor(ast.Language)
	q, err := sitter.NewQuery([]byte(queryPattern), lang)
	if err != nil {
		return nil, types.NewError(types.ErrParse, fmt.Sprintf("compiling query %q", queryPattern), err)
	}
	defer q.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(q, root.RootNode())

	var out []Definition
	for {
		m, ok := cursor.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			out = append(out, Definition{
				Name:       nodeText(c.Node, ast.Source),
				Kind:       c.Node.Type(),
				Location:   toRange(c.Node, ast.URI),
				Confidence: 1.0,
			})
		}
	}
	return out, nil
}

func (e *Engine) languageFor(lang types.Language) *sitter.Language {
	switch lang {
	case types.LangTypeScript:
		return e.tsLang
	case types.LangJavaScript:
		return e.jsLang
	case types.LangPython:
		return e.pyLang
	default:
		return nil
	}
}

func pseudoRange(n pseudoNode) types.Range {
	loc := types.Location{Line: n.line + 1, Col: n.col + 1}
	return types.Range{Start: loc, End: loc}
}

// FindDefinition walks ast looking for a declaration whose name
// matches symbol. Native trees are walked node-by-node, matching the
// definitionNodeTypes table for the AST's language; degraded trees
// scan the recorded pseudoTree nodes directly, which is why a
// fallback-sourced Definition always carries Confidence < 1.0.
func (e *Engine) FindDefinition(ast *types.ParsedAST, symbol string) []Definition {
	if ast.Degraded {
		pt, ok := ast.Tree.(*pseudoTree)
		if !ok {
			return nil
		}
		var out []Definition
		for _, n := range pt.nodes {
			if n.name == symbol {
				out = append(out, Definition{Name: n.name, Kind: n.kind, Location: pseudoRange(n), Confidence: 0.6})
			}
		}
		return out
	}

	tree, ok := ast.Tree.(*sitter.Tree)
	if !ok {
		return nil
	}
	kinds := definitionNodeTypes[ast.Language]

	var out []Definition
	content := ast.Source

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if kind, isDef := kinds[n.Type()]; isDef {
			nameNode := n.ChildByFieldName(identifierFieldName)
			if nameNode != nil {
				name := nodeText(nameNode, content)
				if name == symbol {
					out = append(out, Definition{
						Name:       name,
						Kind:       kind,
						Location:   toRange(n, ast.URI),
						Confidence: 1.0,
					})
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())
	return out
}

// FindReferences walks ast collecting every bare identifier occurrence
// matching symbol. Native trees match the "identifier" node type;
// degraded trees fall back to a word-boundary regex scan of the
// recorded source lines.
func (e *Engine) FindReferences(ast *types.ParsedAST, symbol string) []Reference {
	if ast.Degraded {
		pt, ok := ast.Tree.(*pseudoTree)
		if !ok {
			return nil
		}
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(symbol) + `\b`)
		var out []Reference
		for i, line := range pt.lines {
			for _, idx := range re.FindAllStringIndex(line, -1) {
				out = append(out, Reference{
					Name:     symbol,
					Location: types.Range{Start: types.Location{Line: i + 1, Col: idx[0] + 1}, End: types.Location{Line: i + 1, Col: idx[1] + 1}},
				})
			}
		}
		return out
	}

	tree, ok := ast.Tree.(*sitter.Tree)
	if !ok {
		return nil
	}

	var out []Reference
	content := ast.Source

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "identifier" && nodeText(n, content) == symbol {
			out = append(out, Reference{Name: symbol, Location: toRange(n, ast.URI)})
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())
	return out
}

var complexityKeywords = []string{"if", "elif", "else if", "for", "while", "case", "catch", "except", "&&", "||", "and ", "or "}

// AnalyzeComplexity computes cyclomatic complexity, an approximate
// cognitive-complexity score (nesting-weighted decision points), max
// nesting depth, and line count. Native trees count decision-bearing
// node types; degraded trees fall back to keyword counting across the
// recorded source lines, which is why fallback-derived complexity is
// advisory only.
func (e *Engine) AnalyzeComplexity(ast *types.ParsedAST) Complexity {
	if ast.Degraded {
		pt, _ := ast.Tree.(*pseudoTree)
		if pt == nil {
			return Complexity{}
		}
		c := Complexity{Cyclomatic: 1, Lines: len(pt.lines)}
		depth := 0
		maxDepth := 0
		for _, line := range pt.lines {
			trimmed := strings.TrimLeft(line, " \t")
			indent := len(line) - len(trimmed)
			depth = indent / 4
			if depth > maxDepth {
				maxDepth = depth
			}
			for _, kw := range complexityKeywords {
				if strings.Contains(trimmed, kw) {
					c.Cyclomatic++
					c.Cognitive += 1 + depth
				}
			}
		}
		c.Nesting = maxDepth
		return c
	}

	tree, ok := ast.Tree.(*sitter.Tree)
	if !ok {
		return Complexity{}
	}

	decisionTypes := map[string]bool{
		"if_statement": true, "elif_clause": true, "else_clause": true,
		"for_statement": true, "for_in_statement": true, "while_statement": true,
		"case_clause": true, "catch_clause": true, "except_clause": true,
		"conditional_expression": true, "binary_expression": true,
	}

	c := Complexity{Cyclomatic: 1}
	var walk func(n *sitter.Node, depth int)
	walk = func(n *sitter.Node, depth int) {
		if decisionTypes[n.Type()] {
			c.Cyclomatic++
			c.Cognitive += 1 + depth
		}
		childDepth := depth
		switch n.Type() {
		case "if_statement", "for_statement", "for_in_statement", "while_statement", "try_statement":
			childDepth = depth + 1
			if depth+1 > c.Nesting {
				c.Nesting = depth + 1
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i), childDepth)
		}
	}
	root := tree.RootNode()
	walk(root, 0)
	c.Lines = int(root.EndPoint().Row) + 1
	return c
}

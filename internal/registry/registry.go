// Package registry is the declarative Tool Registry catalog: a
// name/description/schema entry per tool, independent of any
// particular protocol adapter. cmd/lq and any future adapter
// look a tool up by name, validate/build a types.Request from its
// arguments, and hand it to the Orchestrator — the catalog itself
// never calls into the pipeline.
package registry

import (
	"encoding/json"
	"fmt"

	"layeredquery/internal/types"
)

// Schema is a minimal JSON-schema-shaped object, built as a plain Go
// map and marshaled with encoding/json rather than hand-rolling a
// JSON Schema type hierarchy the registry has no other use for.
type Schema map[string]any

// Args is the decoded argument bag a tool call supplies; BuildRequest
// reads out of it by key.
type Args map[string]any

func (a Args) str(key string) string {
	if v, ok := a[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (a Args) strSlice(key string) []string {
	v, ok := a[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (a Args) intVal(key string) int {
	v, ok := a[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

// ToolSpec is one entry in the registry: the catalog metadata adapters
// advertise to their caller, plus the function that turns a JSON
// argument bag into a Core API request.
type ToolSpec struct {
	Name         string
	Description  string
	InputSchema  Schema
	OutputSchema Schema
	// Available reports whether this tool should currently be
	// advertised (e.g. snapshot-apply tools hidden unless the
	// workspace opted into writes).
	Available func() bool
	// BuildRequest decodes args into a types.Request ready for
	// Orchestrator.Handle. Nil for snapshot-store tools (IsSnapshotOp
	// true), which bypass the Orchestrator entirely and call into
	// internal/snapshot.Store directly: they mutate staged state rather
	// than answering a query, so they don't fit the Result envelope
	// every Orchestrator-routed tool shares.
	BuildRequest func(workspaceRoot string, args Args) (types.Request, error)
	// IsSnapshotOp marks a tool that the caller dispatches to
	// internal/snapshot.Store by SnapshotOp name instead of building a
	// types.Request.
	IsSnapshotOp bool
	// SnapshotOp is the Store method this tool corresponds to
	// ("create", "proposePatch", "runChecks", "apply", "drop", "get"),
	// set only when IsSnapshotOp is true.
	SnapshotOp string
}

// MarshalSchemas returns the tool's input/output schemas as compact
// JSON, for adapters that expose the catalog over a wire protocol.
func (t ToolSpec) MarshalSchemas() (input, output json.RawMessage, err error) {
	input, err = json.Marshal(t.InputSchema)
	if err != nil {
		return nil, nil, err
	}
	if t.OutputSchema != nil {
		output, err = json.Marshal(t.OutputSchema)
		if err != nil {
			return nil, nil, err
		}
	}
	return input, output, nil
}

func alwaysAvailable() bool { return true }

func identifierSchema(extra Schema) Schema {
	base := Schema{
		"type": "object",
		"properties": map[string]any{
			"identifier": map[string]any{"type": "string", "description": "symbol name to look up"},
		},
		"required": []string{"identifier"},
	}
	for k, v := range extra {
		base[k] = v
	}
	return base
}

func requireIdentifier(args Args) error {
	if args.str("identifier") == "" {
		return types.NewError(types.ErrInvalidRequest, "identifier is required", nil)
	}
	return nil
}

// resultSchema is the §4.1 Result envelope every tool ultimately
// returns, shared across catalog entries rather than repeated.
var resultSchema = Schema{
	"type": "object",
	"properties": map[string]any{
		"data":            map[string]any{"type": "object"},
		"perStageTimings": map[string]any{"type": "object"},
		"source":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"confidence":      map[string]any{"type": "number"},
		"cacheHit":        map[string]any{"type": "boolean"},
		"requestId":       map[string]any{"type": "string"},
	},
}

// Catalog is the canonical tool list. Fourteen entries build a
// types.Request the Orchestrator accepts unmodified; tools with no
// direct Orchestrator analogue (explore_codebase, build_symbol_map)
// compose existing request kinds rather than inventing a new pipeline
// stage for them. The four snapshot-store tools (IsSnapshotOp) and
// cache_controls have a nil BuildRequest, and Build refuses them.
var Catalog = map[string]ToolSpec{
	"find_definition": {
		Name:        "find_definition",
		Description: "Locate where a symbol is defined.",
		InputSchema: identifierSchema(nil),
		OutputSchema: resultSchema,
		Available:   alwaysAvailable,
		BuildRequest: func(root string, args Args) (types.Request, error) {
			if err := requireIdentifier(args); err != nil {
				return types.Request{}, err
			}
			return types.Request{Kind: types.KindFindDefinition, WorkspaceRoot: root, Identifier: args.str("identifier")}, nil
		},
	},
	"find_references": {
		Name:        "find_references",
		Description: "Find every usage site of a symbol.",
		InputSchema: identifierSchema(nil),
		OutputSchema: resultSchema,
		Available:   alwaysAvailable,
		BuildRequest: func(root string, args Args) (types.Request, error) {
			if err := requireIdentifier(args); err != nil {
				return types.Request{}, err
			}
			return types.Request{Kind: types.KindFindReferences, WorkspaceRoot: root, Identifier: args.str("identifier")}, nil
		},
	},
	"rename_symbol": {
		Name:        "rename_symbol",
		Description: "Prepare a rename: validate the target symbol and report the scope of the change before any plan is built.",
		InputSchema: identifierSchema(Schema{
			"properties": map[string]any{
				"identifier": map[string]any{"type": "string"},
				"newName":    map[string]any{"type": "string"},
			},
			"required": []string{"identifier", "newName"},
		}),
		OutputSchema: resultSchema,
		Available:    alwaysAvailable,
		BuildRequest: func(root string, args Args) (types.Request, error) {
			if err := requireIdentifier(args); err != nil {
				return types.Request{}, err
			}
			return types.Request{
				Kind: types.KindRenamePrepare, WorkspaceRoot: root,
				Identifier: args.str("identifier"), NewName: args.str("newName"),
			}, nil
		},
	},
	"plan_rename": {
		Name:        "plan_rename",
		Description: "Compute the full propagated edit set for renaming a symbol, without applying it.",
		InputSchema: identifierSchema(Schema{
			"properties": map[string]any{
				"identifier": map[string]any{"type": "string"},
				"newName":    map[string]any{"type": "string"},
			},
			"required": []string{"identifier", "newName"},
		}),
		OutputSchema: resultSchema,
		Available:    alwaysAvailable,
		BuildRequest: func(root string, args Args) (types.Request, error) {
			if err := requireIdentifier(args); err != nil {
				return types.Request{}, err
			}
			if args.str("newName") == "" {
				return types.Request{}, types.NewError(types.ErrInvalidRequest, "newName is required", nil)
			}
			return types.Request{
				Kind: types.KindRenamePlan, WorkspaceRoot: root,
				Identifier: args.str("identifier"), NewName: args.str("newName"),
			}, nil
		},
	},
	"apply_rename": {
		Name:        "apply_rename",
		Description: "Apply a previously planned rename's edits to a staged snapshot.",
		InputSchema: identifierSchema(Schema{
			"properties": map[string]any{
				"identifier": map[string]any{"type": "string"},
				"newName":    map[string]any{"type": "string"},
				"snapshotId": map[string]any{"type": "string"},
			},
			"required": []string{"identifier", "newName", "snapshotId"},
		}),
		OutputSchema: resultSchema,
		Available:    alwaysAvailable,
		BuildRequest: func(root string, args Args) (types.Request, error) {
			if err := requireIdentifier(args); err != nil {
				return types.Request{}, err
			}
			if args.str("snapshotId") == "" {
				return types.Request{}, types.NewError(types.ErrInvalidRequest, "snapshotId is required", nil)
			}
			return types.Request{
				Kind: types.KindRenameApply, WorkspaceRoot: root,
				Identifier: args.str("identifier"), NewName: args.str("newName"),
				SnapshotID: args.str("snapshotId"),
			}, nil
		},
	},
	"explore_codebase": {
		Name:        "explore_codebase",
		Description: "Open-ended lexical exploration of the workspace by a free-text query.",
		InputSchema: Schema{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		},
		OutputSchema: resultSchema,
		Available:    alwaysAvailable,
		BuildRequest: func(root string, args Args) (types.Request, error) {
			if args.str("query") == "" {
				return types.Request{}, types.NewError(types.ErrInvalidRequest, "query is required", nil)
			}
			return types.Request{Kind: types.KindFindDefinition, WorkspaceRoot: root, Identifier: args.str("query")}, nil
		},
	},
	"build_symbol_map": {
		Name:        "build_symbol_map",
		Description: "Return the concept graph reachable from a symbol, for building a symbol map of its neighborhood.",
		InputSchema: Schema{
			"type": "object",
			"properties": map[string]any{
				"conceptId": map[string]any{"type": "string"},
				"depth":     map[string]any{"type": "integer"},
			},
			"required": []string{"conceptId"},
		},
		OutputSchema: resultSchema,
		Available:    alwaysAvailable,
		BuildRequest: func(root string, args Args) (types.Request, error) {
			if args.str("conceptId") == "" {
				return types.Request{}, types.NewError(types.ErrInvalidRequest, "conceptId is required", nil)
			}
			depth := args.intVal("depth")
			if depth <= 0 {
				depth = 2
			}
			return types.Request{Kind: types.KindConceptGraph, WorkspaceRoot: root, ConceptID: args.str("conceptId"), Depth: depth}, nil
		},
	},
	"grep_content": {
		Name:        "grep_content",
		Description: "Lexical search for a literal or pattern match across the workspace.",
		InputSchema: identifierSchema(nil),
		OutputSchema: resultSchema,
		Available:   alwaysAvailable,
		BuildRequest: func(root string, args Args) (types.Request, error) {
			if err := requireIdentifier(args); err != nil {
				return types.Request{}, err
			}
			return types.Request{Kind: types.KindFindDefinition, WorkspaceRoot: root, Identifier: args.str("identifier")}, nil
		},
	},
	"list_files": {
		Name:        "list_files",
		Description: "Enumerate candidate files for a diagnostics or batch request.",
		InputSchema: Schema{
			"type": "object",
			"properties": map[string]any{
				"filePaths": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
		OutputSchema: resultSchema,
		Available:    alwaysAvailable,
		BuildRequest: func(root string, args Args) (types.Request, error) {
			return types.Request{Kind: types.KindDiagnostics, WorkspaceRoot: root, FilePaths: args.strSlice("filePaths")}, nil
		},
	},
	"get_completions": {
		Name:        "get_completions",
		Description: "Rank completion candidates for a prefix at a location.",
		InputSchema: Schema{
			"type": "object",
			"properties": map[string]any{
				"prefix": map[string]any{"type": "string"},
			},
			"required": []string{"prefix"},
		},
		OutputSchema: resultSchema,
		Available:    alwaysAvailable,
		BuildRequest: func(root string, args Args) (types.Request, error) {
			if args.str("prefix") == "" {
				return types.Request{}, types.NewError(types.ErrInvalidRequest, "prefix is required", nil)
			}
			return types.Request{Kind: types.KindCompletion, WorkspaceRoot: root, Prefix: args.str("prefix")}, nil
		},
	},
	"list_symbols": {
		Name:        "list_symbols",
		Description: "List the symbols represented in the concept graph for a file.",
		InputSchema: Schema{
			"type": "object",
			"properties": map[string]any{
				"filePaths": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"filePaths"},
		},
		OutputSchema: resultSchema,
		Available:    alwaysAvailable,
		BuildRequest: func(root string, args Args) (types.Request, error) {
			paths := args.strSlice("filePaths")
			if len(paths) == 0 {
				return types.Request{}, types.NewError(types.ErrInvalidRequest, "filePaths is required", nil)
			}
			return types.Request{Kind: types.KindDiagnostics, WorkspaceRoot: root, FilePaths: paths}, nil
		},
	},
	"diagnostics": {
		Name:        "diagnostics",
		Description: "Run parse/structural diagnostics over a set of files.",
		InputSchema: Schema{
			"type": "object",
			"properties": map[string]any{
				"filePaths": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"filePaths"},
		},
		OutputSchema: resultSchema,
		Available:    alwaysAvailable,
		BuildRequest: func(root string, args Args) (types.Request, error) {
			paths := args.strSlice("filePaths")
			if len(paths) == 0 {
				return types.Request{}, types.NewError(types.ErrInvalidRequest, "filePaths is required", nil)
			}
			return types.Request{Kind: types.KindDiagnostics, WorkspaceRoot: root, FilePaths: paths}, nil
		},
	},
	"pattern_stats": {
		Name:        "pattern_stats",
		Description: "Report the pattern learner's current predictions for a symbol.",
		InputSchema: identifierSchema(nil),
		OutputSchema: resultSchema,
		Available:   alwaysAvailable,
		BuildRequest: func(root string, args Args) (types.Request, error) {
			if err := requireIdentifier(args); err != nil {
				return types.Request{}, err
			}
			return types.Request{Kind: types.KindPatternDetect, WorkspaceRoot: root, Identifier: args.str("identifier")}, nil
		},
	},
	"knowledge_insights": {
		Name:        "knowledge_insights",
		Description: "Query the concept graph directly for a concept's relationships.",
		InputSchema: Schema{
			"type": "object",
			"properties": map[string]any{
				"conceptId": map[string]any{"type": "string"},
			},
			"required": []string{"conceptId"},
		},
		OutputSchema: resultSchema,
		Available:    alwaysAvailable,
		BuildRequest: func(root string, args Args) (types.Request, error) {
			if args.str("conceptId") == "" {
				return types.Request{}, types.NewError(types.ErrInvalidRequest, "conceptId is required", nil)
			}
			return types.Request{Kind: types.KindConceptQuery, WorkspaceRoot: root, ConceptID: args.str("conceptId")}, nil
		},
	},
	"cache_controls": {
		Name:        "cache_controls",
		Description: "Inspect or purge the shared response/bloom/AST caches.",
		InputSchema: Schema{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{"type": "string", "enum": []string{"stats", "purge"}},
			},
			"required": []string{"action"},
		},
		OutputSchema: Schema{"type": "object"},
		Available:    alwaysAvailable,
		IsSnapshotOp: false,
	},
	"get_snapshot": {
		Name:         "get_snapshot",
		Description:  "Fetch a staged snapshot's current overlay and status.",
		InputSchema:  Schema{"type": "object", "properties": map[string]any{"snapshotId": map[string]any{"type": "string"}}, "required": []string{"snapshotId"}},
		OutputSchema: Schema{"type": "object"},
		Available:    alwaysAvailable,
		IsSnapshotOp: true,
		SnapshotOp:   "get",
	},
	"propose_patch": {
		Name:        "propose_patch",
		Description: "Stage edits into a snapshot's overlay.",
		InputSchema: Schema{
			"type": "object",
			"properties": map[string]any{
				"snapshotId": map[string]any{"type": "string"},
				"edits":      map[string]any{"type": "array"},
			},
			"required": []string{"snapshotId", "edits"},
		},
		OutputSchema: Schema{"type": "object"},
		Available:    alwaysAvailable,
		IsSnapshotOp: true,
		SnapshotOp:   "proposePatch",
	},
	"run_checks": {
		Name:        "run_checks",
		Description: "Run verification commands against a snapshot's overlay in an isolated scratch directory.",
		InputSchema: Schema{
			"type": "object",
			"properties": map[string]any{
				"snapshotId": map[string]any{"type": "string"},
				"commands":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"timeoutSec": map[string]any{"type": "integer"},
			},
			"required": []string{"snapshotId", "commands"},
		},
		OutputSchema: Schema{"type": "array"},
		Available:    alwaysAvailable,
		IsSnapshotOp: true,
		SnapshotOp:   "runChecks",
	},
	"patch_checks_in_snapshot": {
		Name:        "patch_checks_in_snapshot",
		Description: "Apply a staged snapshot to the working tree once its checks have passed.",
		InputSchema: Schema{
			"type": "object",
			"properties": map[string]any{
				"snapshotId": map[string]any{"type": "string"},
				"check":      map[string]any{"type": "boolean"},
			},
			"required": []string{"snapshotId"},
		},
		OutputSchema: Schema{"type": "object"},
		Available:    alwaysAvailable,
		IsSnapshotOp: true,
		SnapshotOp:   "apply",
	},
}

// Lookup retrieves a tool by name.
func Lookup(name string) (ToolSpec, bool) {
	spec, ok := Catalog[name]
	return spec, ok
}

// Names returns every currently-available tool name, for advertising
// the catalog to a caller.
func Names() []string {
	names := make([]string, 0, len(Catalog))
	for name, spec := range Catalog {
		if spec.Available == nil || spec.Available() {
			names = append(names, name)
		}
	}
	return names
}

// Build resolves name and constructs its types.Request from args, or
// returns an error identifying an unknown tool or invalid arguments.
func Build(name, workspaceRoot string, args Args) (types.Request, error) {
	spec, ok := Lookup(name)
	if !ok {
		return types.Request{}, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unknown tool %q", name), nil)
	}
	if spec.Available != nil && !spec.Available() {
		return types.Request{}, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("tool %q is not currently available", name), nil)
	}
	if spec.BuildRequest == nil {
		return types.Request{}, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("tool %q does not route through the Core API, dispatch it via its SnapshotOp or cache_controls handler instead", name), nil)
	}
	return spec.BuildRequest(workspaceRoot, args)
}

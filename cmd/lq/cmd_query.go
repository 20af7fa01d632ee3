package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"layeredquery/internal/types"
)

var findDefinitionCmd = &cobra.Command{
	Use:   "find-definition <identifier>",
	Short: "Locate where a symbol is defined",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(types.Request{
			Kind:          types.KindFindDefinition,
			WorkspaceRoot: workspace,
			Identifier:    args[0],
		})
	},
}

var findReferencesCmd = &cobra.Command{
	Use:   "find-references <identifier>",
	Short: "Find every usage site of a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(types.Request{
			Kind:          types.KindFindReferences,
			WorkspaceRoot: workspace,
			Identifier:    args[0],
		})
	},
}

var completionPrefix string

var completionsCmd = &cobra.Command{
	Use:   "completions",
	Short: "Rank completion candidates for a prefix",
	RunE: func(cmd *cobra.Command, args []string) error {
		if completionPrefix == "" {
			return fmt.Errorf("--prefix is required")
		}
		return runRequest(types.Request{
			Kind:          types.KindCompletion,
			WorkspaceRoot: workspace,
			Prefix:        completionPrefix,
		})
	},
}

var diagnosticsFiles []string

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Run parse/structural diagnostics over a set of files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(types.Request{
			Kind:          types.KindDiagnostics,
			WorkspaceRoot: workspace,
			FilePaths:     diagnosticsFiles,
		})
	},
}

func init() {
	completionsCmd.Flags().StringVar(&completionPrefix, "prefix", "", "completion prefix")
	diagnosticsCmd.Flags().StringSliceVar(&diagnosticsFiles, "file", nil, "file to check (repeatable)")
}

// runRequest builds an Orchestrator for the current workspace, runs
// req through it, and prints the Result as indented JSON.
func runRequest(req types.Request) error {
	o, closeFn, err := newOrchestrator()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := requestContext()
	defer cancel()

	res, err := o.Handle(ctx, req)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

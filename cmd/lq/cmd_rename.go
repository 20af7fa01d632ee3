package main

import (
	"github.com/spf13/cobra"

	"layeredquery/internal/types"
)

var renameNewName string
var renameSnapshotID string

var planRenameCmd = &cobra.Command{
	Use:   "plan-rename <identifier>",
	Short: "Compute the full propagated edit set for renaming a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(types.Request{
			Kind:          types.KindRenamePlan,
			WorkspaceRoot: workspace,
			Identifier:    args[0],
			NewName:       renameNewName,
		})
	},
}

var applyRenameCmd = &cobra.Command{
	Use:   "apply-rename <identifier>",
	Short: "Apply a previously planned rename's edits to a staged snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(types.Request{
			Kind:          types.KindRenameApply,
			WorkspaceRoot: workspace,
			Identifier:    args[0],
			NewName:       renameNewName,
			SnapshotID:    renameSnapshotID,
		})
	},
}

func init() {
	planRenameCmd.Flags().StringVar(&renameNewName, "to", "", "new name for the symbol (required)")
	planRenameCmd.MarkFlagRequired("to")

	applyRenameCmd.Flags().StringVar(&renameNewName, "to", "", "new name for the symbol (required)")
	applyRenameCmd.Flags().StringVar(&renameSnapshotID, "snapshot", "", "snapshot id to apply into (required)")
	applyRenameCmd.MarkFlagRequired("to")
	applyRenameCmd.MarkFlagRequired("snapshot")
}

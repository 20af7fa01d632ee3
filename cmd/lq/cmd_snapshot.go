package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"layeredquery/internal/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage staged edit snapshots",
}

var snapshotCreateBase string

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a new snapshot pinned to a base revision",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := snapshot.New(workspace)
		id, err := store.CreateSnapshot(snapshotCreateBase)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var snapshotGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a snapshot's current overlay and status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := snapshot.New(workspace)
		snap, err := store.Get(args[0])
		if err != nil {
			return err
		}
		return printJSON(snap)
	},
}

var snapshotChecksTimeout int

var snapshotChecksCmd = &cobra.Command{
	Use:   "checks <id> -- <command> [command...]",
	Short: "Run verification commands against a snapshot's overlay",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := snapshot.New(workspace)
		results, err := store.RunChecks(cmd.Context(), args[0], args[1:], snapshotChecksTimeout)
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

var snapshotApplyCheck bool

var snapshotApplyCmd = &cobra.Command{
	Use:   "apply <id>",
	Short: "Apply a staged snapshot to the working tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := snapshot.New(workspace)
		return store.Apply(args[0], snapshotApplyCheck)
	},
}

var snapshotDropCmd = &cobra.Command{
	Use:   "drop <id>",
	Short: "Discard a snapshot without touching the working tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := snapshot.New(workspace)
		return store.Drop(args[0])
	},
}

func init() {
	snapshotCreateCmd.Flags().StringVar(&snapshotCreateBase, "base", "", "base revision label")
	snapshotChecksCmd.Flags().IntVar(&snapshotChecksTimeout, "timeout-sec", 0, "per-command timeout in seconds (default 30)")
	snapshotApplyCmd.Flags().BoolVar(&snapshotApplyCheck, "check", true, "verify pre-image hashes and check status before applying")

	snapshotCmd.AddCommand(snapshotCreateCmd, snapshotGetCmd, snapshotChecksCmd, snapshotApplyCmd, snapshotDropCmd)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

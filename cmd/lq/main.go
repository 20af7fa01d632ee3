// Command lq is a thin CLI adapter over the Layered Analysis Pipeline's
// Core API: it marshals flags into a types.Request, hands it to an
// Orchestrator, and prints the resulting Result as JSON. It holds no
// pipeline logic of its own.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"layeredquery/internal/config"
	"layeredquery/internal/logging"
	"layeredquery/internal/orchestrator"
	"layeredquery/internal/services"
)

var (
	workspace string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "lq",
	Short: "lq - code-intelligence CLI over the Layered Analysis Pipeline",
	Long: `lq answers symbol-oriented queries (definitions, references, rename
propagation, completions, diagnostics) over a workspace of source files,
by routing each query through the same layered pipeline an editor or AI
assistant integration would use.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		} else if abs, err := filepath.Abs(ws); err == nil {
			ws = abs
		}
		workspace = ws

		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current directory)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Second, "request deadline")

	rootCmd.AddCommand(
		findDefinitionCmd,
		findReferencesCmd,
		planRenameCmd,
		applyRenameCmd,
		completionsCmd,
		diagnosticsCmd,
		snapshotCmd,
	)
}

// newOrchestrator builds a one-shot SharedServices + Orchestrator pair
// rooted at workspace, for a single CLI invocation. Every subcommand
// owns its own services bundle rather than sharing a process-wide
// singleton, since lq exits after each command.
func newOrchestrator() (*orchestrator.Orchestrator, func() error, error) {
	cfgPath := filepath.Join(workspace, ".layeredquery", "config.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	svc, err := services.New(cfg, workspace)
	if err != nil {
		return nil, nil, fmt.Errorf("build services: %w", err)
	}

	return orchestrator.New(svc, cfg), svc.Close, nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package cli implements the ditty command line: operational tooling for
// inspecting the output directory a training run writes to. Running the
// training itself stays with the calling program, which owns the model and
// data loader.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/helixml/ditty/pkg/system"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ditty",
		Short: "Ditty",
		Long:  `Training orchestration toolkit`,
	}

	rootCmd.AddCommand(newCheckpointsCmd())
	rootCmd.AddCommand(newProgressCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func Execute() {
	rootCmd := NewRootCmd()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	system.Default().Cleanup(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

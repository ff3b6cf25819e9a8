package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixml/ditty/pkg/config"
	"github.com/helixml/ditty/pkg/system"
	"github.com/helixml/ditty/pkg/trainer"
)

func newProgressCmd() *cobra.Command {
	var outputDir string

	progressCmd := &cobra.Command{
		Use:   "progress",
		Short: "Show the progression record of a training run",
		Long:  ``,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadSettings()
			if err != nil {
				return err
			}
			system.SetupLogging(cfg.LogLevel)
			if outputDir == "" {
				outputDir = cfg.OutputDir
			}

			record, err := trainer.ReadProgression(outputDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:     %s\n", record.RunID)
			fmt.Fprintf(out, "Epoch:   %d\n", record.CurrentEpoch)
			fmt.Fprintf(out, "Step:    %d\n", record.CurrentStep)
			for name, value := range record.Metrics {
				fmt.Fprintf(out, "Metric:  %s = %f\n", name, value)
			}
			fmt.Fprintf(out, "Updated: %s\n", record.UpdatedAt.Format(time.DateTime))
			return nil
		},
	}

	progressCmd.Flags().StringVar(&outputDir, "output-dir", "", "training output directory (defaults to DITTY_OUTPUT_DIR)")

	return progressCmd
}

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/helixml/ditty/pkg/config"
	"github.com/helixml/ditty/pkg/system"
)

func newCheckpointsCmd() *cobra.Command {
	var outputDir string

	checkpointsCmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "List resumable checkpoints in an output directory",
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

			dir := filepath.Join(outputDir, "checkpoints")
			entries, err := os.ReadDir(dir)
			if err != nil {
				return fmt.Errorf("listing %s: %w", dir, err)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Name", "Modified", "Size"})
			table.SetAutoWrapText(false)
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetCenterSeparator("")
			table.SetColumnSeparator("")
			table.SetRowSeparator("")
			table.SetHeaderLine(false)
			table.SetBorder(false)
			table.SetTablePadding(" ")

			for _, entry := range entries {
				if !entry.IsDir() {
					continue
				}
				size, modified, err := dirStats(filepath.Join(dir, entry.Name()))
				if err != nil {
					return err
				}
				table.Append([]string{
					entry.Name(),
					modified.Format(time.DateTime),
					humanize.Bytes(uint64(size)),
				})
			}

			table.Render()
			return nil
		},
	}

	checkpointsCmd.Flags().StringVar(&outputDir, "output-dir", "", "training output directory (defaults to DITTY_OUTPUT_DIR)")

	return checkpointsCmd
}

// dirStats walks one checkpoint directory and reports its total size and
// newest modification time.
func dirStats(dir string) (int64, time.Time, error) {
	var size int64
	var modified time.Time
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			size += info.Size()
		}
		if info.ModTime().After(modified) {
			modified = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("walking %s: %w", dir, err)
	}
	return size, modified, nil
}

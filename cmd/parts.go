package cmd

import (
	"fmt"
	"os"

	"github.com/aarsakian/FSRecover/disk"
	"github.com/aarsakian/FSRecover/reporter"
	"github.com/spf13/cobra"
)

var (
	partsRecoverable bool
	partsOther       bool
	partsStats       bool
)

var partsCmd = &cobra.Command{
	Use:   "parts <image>",
	Short: "Scan the image and list the partitions found",
	Long: `List every NTFS partition found by scanning the image, located by its boot
sector or inferred from its MFT records alone.

Examples:
  fsrecover parts disk.img
  fsrecover parts disk.img --recoverable --stats -s disk.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		rp := reporter.Reporter{
			Out:             os.Stdout,
			ShowRecoverable: partsRecoverable,
			ShowOther:       partsOther,
			ShowStats:       partsStats,
		}
		rp.Show(s.partitions)
		return nil
	},
}

var tableCmd = &cobra.Command{
	Use:   "table <image>",
	Short: "List the partitions declared by the MBR or GPT",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var hD disk.Disk
		if err := hD.Initialize(args[0], cfg.Mode); err != nil {
			return err
		}
		defer hD.Close()

		if err := hD.DiscoverPartitions(); err != nil {
			return fmt.Errorf("no partition table: %w", err)
		}
		reporter.Reporter{Out: os.Stdout}.ShowTable(hD.ListPartitions())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(partsCmd)
	rootCmd.AddCommand(tableCmd)

	partsCmd.Flags().BoolVar(&partsRecoverable, "recoverable", false, "only partitions whose tree reaches the threshold")
	partsCmd.Flags().BoolVar(&partsOther, "other", false, "only partitions below the threshold")
	partsCmd.Flags().BoolVar(&partsStats, "stats", false, "rebuild and show record classification counts")
	partsCmd.MarkFlagsMutuallyExclusive("recoverable", "other")
}

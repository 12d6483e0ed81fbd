package cmd

import (
	"fmt"
	"os"

	EWFLogger "github.com/aarsakian/EWF_Reader/logger"
	"github.com/aarsakian/FSRecover/config"
	FSLogger "github.com/aarsakian/FSRecover/logger"
	VMDKLogger "github.com/aarsakian/VMDK_Reader/logger"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logActive  bool
	saveFile   string
	overwrite  bool
	outputDir  string
	mode       string
	threshold  float64

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fsrecover",
	Short: "Reconstruct damaged NTFS filesystems from raw disk images",
	Long: `fsrecover scans a raw disk image for NTFS boot sectors and MFT records,
rebuilds the directory tree of every filesystem it finds, including those
whose boot sector is gone, and restores the files it can still locate.

Partitions are addressed by the index shown by "fsrecover parts". Unreachable
records are kept under LostFiles.

Examples:
  fsrecover parts disk.img --recoverable -s disk.yaml
  fsrecover tree disk.img 0 -s disk.yaml
  fsrecover restore disk.img 0 Root/Users --hash MD5
  fsrecover restore disk.img 1 LostFiles --deleted --filter 'Ext == "docx"'`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}
		if outputDir != "" {
			cfg.OutputDir = outputDir
		}
		if mode != "" {
			cfg.Mode = mode
		}
		if cmd.Flags().Changed("threshold") {
			cfg.Threshold = threshold
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		if logActive {
			if err := FSLogger.InitializeLogger(logActive, cfg.LogFile); err != nil {
				return err
			}
			VMDKLogger.InitializeLogger(logActive, cfg.LogFile)
			EWFLogger.InitializeLogger(logActive, cfg.LogFile)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		FSLogger.FSRecoverlogger.Close()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "configuration file (default fsrecover.yaml)")
	flags.BoolVar(&logActive, "log", false, "enable logging")
	flags.StringVarP(&saveFile, "savefile", "s", "", "scan state file, read when present and written after a scan")
	flags.BoolVarP(&overwrite, "overwrite", "w", false, "ignore an existing scan state file and rescan")
	flags.StringVarP(&outputDir, "outputdir", "o", "", "directory for exports and restored files")
	flags.StringVar(&mode, "mode", "", "image format: auto, raw, ewf, vmdk, device")
	flags.Float64Var(&threshold, "threshold", 0.5, "reachable fraction needed for a partition to count as recoverable")
}

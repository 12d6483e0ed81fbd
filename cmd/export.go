package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aarsakian/FSRecover/disk/partition"
	"github.com/aarsakian/FSRecover/exporter"
	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:   "tree <image> <partition>",
	Short: "Print the reconstructed tree and the lost files of a partition",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		part, idx, err := s.partition(args[1])
		if err != nil {
			return err
		}
		if err := part.Rebuild(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		fmt.Printf("Partition #%d -> %s\n", idx, part)
		return exporter.WriteTree(os.Stdout, exporter.UseColor(cfg.Color, os.Stdout), part.Root(), part.Lost())
	},
}

type writeFunc func(w io.Writer, part *partition.Partition, idx int) error

// newExportCmd builds a command writing one partition to <outputdir>/Partition<n>.<ext>
// or to the file given as third argument, "-" meaning stdout.
func newExportCmd(name string, ext string, short string, write writeFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <image> <partition> [file]",
		Short: short,
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			part, idx, err := s.partition(args[1])
			if err != nil {
				return err
			}
			if err := part.Rebuild(); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}

			target := filepath.Join(cfg.OutputDir, fmt.Sprintf("Partition%d.%s", idx, ext))
			if len(args) == 3 {
				target = args[2]
			}
			if target == "-" {
				return write(os.Stdout, part, idx)
			}

			if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
				return err
			}
			file, err := os.Create(target)
			if err != nil {
				return err
			}
			defer file.Close()
			if err := write(file, part, idx); err != nil {
				return err
			}
			fmt.Printf("%s written to %s\n", name, target)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(treeCmd)

	rootCmd.AddCommand(newExportCmd("csv", "csv", "Write one CSV row per recovered node",
		func(w io.Writer, part *partition.Partition, idx int) error {
			return exporter.WriteCSV(w, part.Root(), part.Lost())
		}))
	rootCmd.AddCommand(newExportCmd("bodyfile", "body", "Write a mactime body file of the partition",
		func(w io.Writer, part *partition.Partition, idx int) error {
			return exporter.WriteBodyfile(w, part.Root(), part.Lost())
		}))
	rootCmd.AddCommand(newExportCmd("graph", "dot", "Write the partition tree as a Graphviz digraph",
		func(w io.Writer, part *partition.Partition, idx int) error {
			return exporter.WriteGraph(w, fmt.Sprintf("Partition%d", idx), part.Root(), part.Lost())
		}))
}

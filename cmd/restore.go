package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/aarsakian/FSRecover/exporter"
	"github.com/aarsakian/FSRecover/filtermanager"
	"github.com/aarsakian/FSRecover/filters"
	"github.com/aarsakian/FSRecover/utils"
	"github.com/spf13/cobra"
)

var (
	restoreDeleted     bool
	restoreOnlyDeleted bool
	restoreFilter      string
	restoreExtensions  string
	restoreNames       string
	restoreWithin      string
	restoreNoEmptyDirs bool
	restoreHash        string
)

var restoreCmd = &cobra.Command{
	Use:   "restore <image> <partition> [id-or-path]",
	Short: "Copy recovered files out of the image",
	Long: `Restore a record id or a path, relative to Root or starting with LostFiles,
into <outputdir>/Partition<n>. Without a key the whole root tree is restored.

Examples:
  fsrecover restore disk.img 0 5
  fsrecover restore disk.img 0 Users/alice --ext docx,xlsx --hash SHA1
  fsrecover restore disk.img 0 LostFiles --deleted --filter 'Size > 1024 && Ext == "jpg"'`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		fm, err := restoreFilters()
		if err != nil {
			return err
		}

		s, err := openSession(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		part, idx, err := s.partition(args[1])
		if err != nil {
			return err
		}
		key := ""
		if len(args) == 3 {
			key = args[2]
		}
		node := part.Get(key, nil)
		if node == nil {
			return fmt.Errorf("%q not found in partition %d", key, idx)
		}

		exp := exporter.Exporter{
			Location:       filepath.Join(cfg.OutputDir, fmt.Sprintf("Partition%d", idx)),
			Hash:           restoreHash,
			IncludeDeleted: restoreDeleted || restoreOnlyDeleted,
		}
		restored, err := exp.Restore(s.disk.Handler, node, fm)
		if err != nil {
			return err
		}
		for _, file := range restored {
			if file.Hash != "" {
				fmt.Printf("File %s has %s %s\n", file.Path, exp.Hash, file.Hash)
			}
		}
		fmt.Printf("%d files restored under %s\n", len(restored), exp.Location)
		return nil
	},
}

func restoreFilters() (*filtermanager.FilterManager, error) {
	var fm filtermanager.FilterManager
	if restoreOnlyDeleted {
		fm.Register(filters.DeletedFilter{Include: true})
	}
	if names := utils.GetEntries(restoreNames); len(names) > 0 {
		fm.Register(filters.NameFilter{Filenames: names})
	}
	if extensions := utils.GetEntries(restoreExtensions); len(extensions) > 0 {
		fm.Register(filters.ExtensionsFilter{Extensions: extensions})
	}
	if restoreWithin != "" {
		fm.Register(filters.PathFilter{NamePath: restoreWithin})
	}
	if restoreFilter != "" {
		expression, err := filters.NewExpressionFilter(restoreFilter)
		if err != nil {
			return nil, err
		}
		fm.Register(expression)
	}
	if restoreNoEmptyDirs {
		fm.Register(filters.FoldersFilter{Include: false})
	}
	return &fm, nil
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	flags := restoreCmd.Flags()
	flags.BoolVar(&restoreDeleted, "deleted", false, "also restore files flagged as deleted")
	flags.BoolVar(&restoreOnlyDeleted, "only-deleted", false, "restore only files flagged as deleted")
	flags.StringVar(&restoreFilter, "filter", "", "expression over Name, Path, Ext, Size, ID, Dir, Deleted, Class, Created, Modified, Accessed")
	flags.StringVar(&restoreExtensions, "ext", "", "restore only these extensions, comma separated")
	flags.StringVar(&restoreNames, "name", "", "restore only these file names, comma separated")
	flags.StringVar(&restoreWithin, "within", "", "restore only below this path, starting with the name of the restored node")
	flags.BoolVar(&restoreNoEmptyDirs, "no-empty-dirs", false, "create only the directories holding restored files")
	flags.StringVar(&restoreHash, "hash", "", "hash restored files with MD5 or SHA1")
}

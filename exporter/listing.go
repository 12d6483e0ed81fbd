package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aarsakian/FSRecover/tree"
	"github.com/aarsakian/FSRecover/utils"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const timeLayout = "2006-01-02 15:04:05"

// UseColor resolves the auto|always|never setting against the output.
func UseColor(mode string, out *os.File) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" || out == nil {
		return false
	}
	return isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())
}

type palette struct {
	dir, deleted, synthetic, detached func(a ...interface{}) string
}

func newPalette(enabled bool) palette {
	paint := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return palette{
		dir:       paint(color.FgBlue, color.Bold),
		deleted:   paint(color.FgRed),
		synthetic: paint(color.FgYellow, color.Bold),
		detached:  paint(color.FgMagenta),
	}
}

// WriteTree prints an indented listing of the subtrees, one line per node.
func WriteTree(w io.Writer, colored bool, tops ...*tree.Node) error {
	colors := newPalette(colored)
	for _, top := range tops {
		if top == nil {
			continue
		}
		walker := tree.NewWalker(top)
		for entry, ok := walker.Next(); ok; entry, ok = walker.Next() {
			if _, err := fmt.Fprintln(w, describe(entry, colors)); err != nil {
				return err
			}
		}
	}
	return nil
}

func describe(entry tree.Entry, colors palette) string {
	node := entry.Node
	indent := strings.Repeat("  ", entry.Depth)
	if node.Synthetic {
		return indent + colors.synthetic(node.Name)
	}

	var name string
	switch {
	case node.IsDeleted:
		name = colors.deleted(node.Name)
	case entry.IsDirectory:
		name = colors.dir(node.Name)
	default:
		name = node.Name
	}

	line := fmt.Sprintf("%s%s (Id: %d", indent, name, node.ID)
	if !entry.IsDirectory {
		line += fmt.Sprintf(", Size: %s", utils.HumanSize(node.Size))
	}
	line += ")"
	if node.IsDeleted {
		line += " [deleted]"
	}
	if node.HasDetachedParent {
		line += " " + colors.detached(fmt.Sprintf("[parent %d]", node.DetachedParent))
	}
	return line
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func unixTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func parentColumn(node *tree.Node) string {
	parent := node.Parent()
	if parent == nil || parent.Synthetic {
		if node.HasDetachedParent {
			return strconv.FormatUint(node.DetachedParent, 10)
		}
		return ""
	}
	return strconv.FormatUint(parent.ID, 10)
}

var csvHeader = []string{"Id", "Parent", "Name", "Full Path", "Size", "Human Size",
	"Created", "Modified", "MFT Modified", "Accessed", "Directory", "Deleted", "Class"}

// WriteCSV emits one row per node of the subtrees, synthetic nodes excluded.
func WriteCSV(w io.Writer, tops ...*tree.Node) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, top := range tops {
		if top == nil {
			continue
		}
		walker := tree.NewWalker(top)
		for entry, ok := walker.Next(); ok; entry, ok = walker.Next() {
			node := entry.Node
			if node.Synthetic {
				continue
			}
			row := []string{
				strconv.FormatUint(node.ID, 10),
				parentColumn(node),
				node.Name,
				node.Path(),
				strconv.FormatUint(node.Size, 10),
				utils.HumanSize(node.Size),
				formatTime(node.Times.Created),
				formatTime(node.Times.Modified),
				formatTime(node.Times.MFTModified),
				formatTime(node.Times.Accessed),
				strconv.FormatBool(entry.IsDirectory),
				strconv.FormatBool(node.IsDeleted),
				node.Class.String(),
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteBodyfile emits a mactime body file, the reconstructed tree and the
// lost files in two commented sections.
func WriteBodyfile(w io.Writer, root *tree.Node, lost *tree.Node) error {
	sections := []struct {
		title string
		top   *tree.Node
	}{
		{"Full paths", root},
		{"Orphaned files", lost},
	}
	for _, section := range sections {
		if _, err := fmt.Fprintf(w, "# ---%s---\n", section.title); err != nil {
			return err
		}
		if section.top == nil {
			continue
		}
		walker := tree.NewWalker(section.top)
		for entry, ok := walker.Next(); ok; entry, ok = walker.Next() {
			if entry.Node.Synthetic {
				continue
			}
			if _, err := fmt.Fprintln(w, bodyLine(entry)); err != nil {
				return err
			}
		}
	}
	return nil
}

func bodyLine(entry tree.Entry) string {
	node := entry.Node
	name := node.Path()
	if node.IsDeleted {
		name += " (deleted)"
	}
	mode := "r/rrwxrwxrwx"
	if entry.IsDirectory {
		mode = "d/drwxrwxrwx"
	}
	times := node.Times
	return fmt.Sprintf("0|%s|%d|%s|0|0|%d|%d|%d|%d|%d", name, node.ID, mode, node.Size,
		unixTime(times.Accessed), unixTime(times.Modified), unixTime(times.MFTModified),
		unixTime(times.Created))
}

func dotID(node *tree.Node) string {
	if node.Synthetic {
		return strings.ToLower(node.Name)
	}
	return fmt.Sprintf("id%d", node.ID)
}

// WriteGraph renders the subtrees as a Graphviz digraph.
func WriteGraph(w io.Writer, name string, tops ...*tree.Node) error {
	if _, err := fmt.Fprintf(w, "digraph %q {\n", name); err != nil {
		return err
	}
	for _, top := range tops {
		if top == nil {
			continue
		}
		walker := tree.NewWalker(top)
		for entry, ok := walker.Next(); ok; entry, ok = walker.Next() {
			node := entry.Node
			shape := "box"
			if entry.IsDirectory {
				shape = "folder"
			}
			attrs := fmt.Sprintf("label=%q, shape=%s", node.Name, shape)
			if node.IsDeleted {
				attrs += ", color=red"
			}
			if _, err := fmt.Fprintf(w, "  %s [%s];\n", dotID(node), attrs); err != nil {
				return err
			}
			if parent := node.Parent(); parent != nil && entry.Depth > 0 {
				if _, err := fmt.Fprintf(w, "  %s -> %s;\n", dotID(parent), dotID(node)); err != nil {
					return err
				}
			}
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

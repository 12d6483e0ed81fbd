package reporter

import (
	"fmt"
	"io"

	"github.com/aarsakian/FSRecover/disk/partition"
	"github.com/aarsakian/FSRecover/utils"
)

type Reporter struct {
	Out             io.Writer
	ShowRecoverable bool
	ShowOther       bool
	ShowStats       bool
}

// selected rebuilds a partition only when the listing depends on the
// outcome.
func (rp Reporter) selected(part *partition.Partition) bool {
	if rp.ShowRecoverable == rp.ShowOther {
		return true
	}
	if rp.ShowRecoverable {
		return part.Recoverable()
	}
	return !part.Recoverable()
}

// Show lists the partitions by index, the index being what the other
// commands accept.
func (rp Reporter) Show(partitions []*partition.Partition) int {
	shown := 0
	for idx, part := range partitions {
		if !rp.selected(part) {
			continue
		}
		fmt.Fprintf(rp.Out, "Partition #%d -> %s\n", idx, part)
		if rp.ShowStats {
			rp.showStats(part)
		}
		shown++
	}
	fmt.Fprintf(rp.Out, "%d partitions shown of %d found\n", shown, len(partitions))
	return shown
}

func (rp Reporter) showStats(part *partition.Partition) {
	if err := part.Rebuild(); err != nil {
		fmt.Fprintf(rp.Out, "\t%s\n", err)
	}
	stats := part.Stats()
	format := func(n int) string { return utils.FormatNumber(int64(n)) }
	fmt.Fprintf(rp.Out, "\trecords %s, reachable %s, orphan %s, cyclic %s, stranded %s",
		format(stats.Total), format(stats.Reachable), format(stats.Orphan),
		format(stats.Cyclic), format(stats.Stranded))
	if dups := part.Duplicates(); dups > 0 {
		fmt.Fprintf(rp.Out, ", duplicates %s", format(dups))
	}
	fmt.Fprintln(rp.Out)
}

func (rp Reporter) ShowTable(listing []string) {
	for _, line := range listing {
		fmt.Fprintln(rp.Out, line)
	}
}

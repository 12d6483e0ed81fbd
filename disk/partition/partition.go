package partition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aarsakian/FSRecover/FS"
	"github.com/aarsakian/FSRecover/logger"
	"github.com/aarsakian/FSRecover/tree"
	"github.com/aarsakian/FSRecover/utils"
)

// Partition is a filesystem instance found on the image together with the
// records that belong to it. The tree is rebuilt lazily and only once.
type Partition struct {
	ID          string
	FSType      string
	Offset      int64
	Size        int64
	Declared    bool
	ClusterSize int
	RootID      uint64
	Label       string
	Threshold   float64
	// TableEntry describes the MBR/GPT entry starting at Offset, if any.
	TableEntry string
	Records    map[uint64]FS.Record

	root        *tree.Node
	lost        *tree.Node
	index       map[uint64]*tree.Node
	recoverable bool
	stats       tree.Stats
	rebuilt     bool
	rebuildErr  error
	duplicates  int
}

func New(boundary FS.Boundary, threshold float64) *Partition {
	return &Partition{
		ID:          boundary.ID,
		FSType:      boundary.FSType,
		Offset:      boundary.Offset,
		Size:        boundary.Size,
		Declared:    boundary.Declared,
		ClusterSize: boundary.ClusterSize,
		RootID:      boundary.RootID,
		Label:       boundary.Label,
		Threshold:   threshold,
		Records:     make(map[uint64]FS.Record),
	}
}

func (partition *Partition) OffsetKnown() bool {
	return partition.Offset >= 0
}

// Accept stores a record unless one with the same id was accepted before.
func (partition *Partition) Accept(record FS.Record) bool {
	if partition.rebuilt {
		msg := fmt.Sprintf("partition %s already rebuilt, record %d ignored", partition.ID, record.ID)
		logger.FSRecoverlogger.Warning(msg)
		return false
	}
	if record.Partition != "" && record.Partition != partition.ID {
		return false
	}
	if _, exists := partition.Records[record.ID]; exists {
		partition.duplicates++
		msg := fmt.Sprintf("partition %s duplicate record %d at %d ignored", partition.ID, record.ID, record.Offset)
		logger.FSRecoverlogger.Info(msg)
		return false
	}
	partition.Records[record.ID] = record
	return true
}

// Rebuild links the records into a tree. Later calls return the outcome of
// the first one without doing any work.
func (partition *Partition) Rebuild() error {
	if partition.rebuilt {
		return partition.rebuildErr
	}
	partition.rebuilt = true

	result := tree.Build(partition.Records, partition.RootID, partition.Threshold, partition.ID)
	partition.root = result.Root
	partition.lost = result.Lost
	partition.index = result.Index
	partition.recoverable = result.Recoverable
	partition.stats = result.Stats
	if result.MissingRoot {
		partition.rebuildErr = fmt.Errorf("partition %s: %w", partition.ID, FS.ErrMissingRoot)
		logger.FSRecoverlogger.Warning(partition.rebuildErr.Error())
	}
	return partition.rebuildErr
}

func (partition *Partition) IsRebuilt() bool {
	return partition.rebuilt
}

func (partition *Partition) Root() *tree.Node {
	partition.Rebuild()
	return partition.root
}

func (partition *Partition) Lost() *tree.Node {
	partition.Rebuild()
	return partition.lost
}

func (partition *Partition) Recoverable() bool {
	partition.Rebuild()
	return partition.recoverable
}

func (partition *Partition) Stats() tree.Stats {
	partition.Rebuild()
	return partition.stats
}

func (partition Partition) Duplicates() int {
	return partition.duplicates
}

// Get resolves a record id or a slash separated path. Paths are relative to
// the root unless they start with LostFiles.
func (partition *Partition) Get(key string, def *tree.Node) *tree.Node {
	partition.Rebuild()

	key = strings.TrimSpace(key)
	if id, err := strconv.ParseUint(key, 10, 64); err == nil {
		if node, ok := partition.index[id]; ok {
			return node
		}
		return def
	}

	trimmed := strings.Trim(key, "/")
	if trimmed == "" {
		return partition.root
	}
	first, rest, _ := strings.Cut(trimmed, "/")
	if first == tree.LostName {
		if node := partition.lost.Lookup(rest); node != nil {
			return node
		}
		return def
	}
	if node := partition.root.Lookup(trimmed); node != nil {
		return node
	}
	if first == tree.RootName {
		if node := partition.root.Lookup(rest); node != nil {
			return node
		}
	}
	return def
}

func (partition *Partition) String() string {
	var parts []string
	if partition.Size > 0 {
		parts = append(parts, utils.HumanSize(uint64(partition.Size)))
	} else {
		parts = append(parts, "unknown size")
	}
	parts = append(parts, fmt.Sprintf("%s records", utils.FormatNumber(int64(len(partition.Records)))))
	if partition.rebuilt {
		if partition.recoverable {
			parts = append(parts, "Recoverable")
		} else {
			parts = append(parts, "Unrecoverable")
		}
	}
	if partition.OffsetKnown() {
		parts = append(parts, fmt.Sprintf("Offset: %s", utils.FormatNumber(partition.Offset)))
	} else {
		parts = append(parts, "Offset: unknown")
	}
	parts = append(parts, fmt.Sprintf("Cluster: %d", partition.ClusterSize))
	if partition.Declared {
		parts = append(parts, "boot sector")
	} else {
		parts = append(parts, "inferred")
	}
	if partition.Label != "" {
		parts = append(parts, fmt.Sprintf("Label: %s", partition.Label))
	}
	if partition.TableEntry != "" {
		parts = append(parts, partition.TableEntry)
	}
	return fmt.Sprintf("Partition (%s, %s)", partition.FSType, strings.Join(parts, ", "))
}

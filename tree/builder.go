package tree

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/aarsakian/FSRecover/FS"
	"github.com/aarsakian/FSRecover/logger"
	"github.com/aarsakian/FSRecover/utils"
)

const (
	RootName         = "Root"
	LostName         = "LostFiles"
	DefaultThreshold = 0.5
	// LostID never collides with a record number, those are 48 bit wide.
	LostID = ^uint64(0)
)

type Class int

const (
	Reachable Class = iota
	Orphan
	Cyclic
	Stranded
	Synthetic
)

var classNames = map[Class]string{
	Reachable: "reachable", Orphan: "orphan", Cyclic: "cyclic",
	Stranded: "stranded", Synthetic: "synthetic",
}

func (class Class) String() string {
	return classNames[class]
}

type Node struct {
	Name        string
	ID          uint64
	IsDirectory bool
	IsDeleted   bool
	Size        uint64
	Extents     []FS.Extent
	Resident    []byte
	Times       FS.Timestamps
	Class       Class
	// parent reference the record claimed before the tree cut it
	DetachedParent    uint64
	HasDetachedParent bool
	Synthetic         bool
	Partition         string
	parent            *Node
	children          []*Node
}

type Stats struct {
	Total     int
	Reachable int
	Orphan    int
	Cyclic    int
	Stranded  int
}

type Result struct {
	Root        *Node
	Lost        *Node
	Recoverable bool
	MissingRoot bool
	Stats       Stats
	Index       map[uint64]*Node
}

type builder struct {
	records   map[uint64]FS.Record
	rootID    uint64
	hasRoot   bool
	nodes     map[uint64]*Node
	classes   map[uint64]Class
	parentOf  map[uint64]*Node
	lost      *Node
	lostChild []uint64
}

// Build links the records of one partition into a tree under the root record
// and a lost-and-found tree holding everything that cannot reach it. Every
// record ends up exactly once in one of the two trees.
func Build(records map[uint64]FS.Record, rootID uint64, threshold float64, partitionID string) *Result {
	_, hasRoot := records[rootID]
	b := &builder{
		records:  records,
		rootID:   rootID,
		hasRoot:  hasRoot,
		nodes:    make(map[uint64]*Node, len(records)),
		classes:  make(map[uint64]Class, len(records)),
		parentOf: make(map[uint64]*Node, len(records)),
		lost: &Node{Name: LostName, ID: LostID, IsDirectory: true, Synthetic: true,
			Class: Synthetic, Partition: partitionID},
	}

	ids := make([]uint64, 0, len(records))
	for id, record := range records {
		ids = append(ids, id)
		b.nodes[id] = newNode(record, partitionID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var root *Node
	if hasRoot {
		root = b.nodes[rootID]
		root.Name = RootName
		root.IsDirectory = true
		b.classes[rootID] = Reachable
	} else {
		root = &Node{Name: RootName, ID: rootID, IsDirectory: true, Synthetic: true,
			Class: Synthetic, Partition: partitionID}
	}

	for _, id := range ids {
		if _, done := b.classes[id]; !done {
			b.classify(id)
		}
	}

	result := &Result{Root: root, Lost: b.lost, MissingRoot: !hasRoot, Index: b.nodes}
	for _, id := range ids {
		node := b.nodes[id]
		node.Class = b.classes[id]
		if parent, ok := b.parentOf[id]; ok {
			node.parent = parent
			parent.children = append(parent.children, node)
		}
		switch node.Class {
		case Reachable:
			result.Stats.Reachable++
		case Orphan:
			result.Stats.Orphan++
		case Cyclic:
			result.Stats.Cyclic++
		case Stranded:
			result.Stats.Stranded++
		}
	}
	result.Stats.Total = len(records)

	sortChildren(root)
	sortChildren(b.lost)

	result.Recoverable = hasRoot && result.Stats.Total > 0 &&
		float64(result.Stats.Reachable)/float64(result.Stats.Total) >= threshold

	msg := fmt.Sprintf("partition %s rebuilt: %s records, %s reachable, %d orphan, %d cyclic, %d stranded",
		partitionID, utils.FormatNumber(int64(result.Stats.Total)), utils.FormatNumber(int64(result.Stats.Reachable)),
		result.Stats.Orphan, result.Stats.Cyclic, result.Stats.Stranded)
	logger.FSRecoverlogger.Info(msg)
	return result
}

func newNode(record FS.Record, partitionID string) *Node {
	return &Node{
		Name:        sanitizeName(record.Name, record.ID, record.IsDirectory),
		ID:          record.ID,
		IsDirectory: record.IsDirectory,
		IsDeleted:   record.IsDeleted,
		Size:        record.Size,
		Extents:     record.Extents,
		Resident:    record.Resident,
		Times:       record.Times,
		Partition:   partitionID,
	}
}

// classify follows the parent chain of id until it meets the root, a record
// already classified, a missing parent or itself. The whole chain is then
// classified at once so no record is walked twice.
func (b *builder) classify(id uint64) {
	var path []uint64
	onPath := make(map[uint64]int)
	current := id

	for {
		if current == b.rootID && b.hasRoot {
			b.resolve(path, Reachable)
			return
		}
		if class, done := b.classes[current]; done {
			if class == Reachable {
				b.resolve(path, Reachable)
			} else {
				b.resolve(path, Stranded)
			}
			return
		}
		if idx, seen := onPath[current]; seen {
			b.resolveCycle(path, idx)
			return
		}

		onPath[current] = len(path)
		path = append(path, current)

		record := b.records[current]
		if _, exists := b.records[record.ParentID]; !record.HasParent || !exists {
			b.resolveOrphan(path)
			return
		}
		current = record.ParentID
	}
}

func (b *builder) link(id uint64, class Class) {
	b.classes[id] = class
	b.parentOf[id] = b.nodes[b.records[id].ParentID]
}

func (b *builder) detach(id uint64, class Class) {
	record := b.records[id]
	b.classes[id] = class
	b.parentOf[id] = b.lost
	node := b.nodes[id]
	node.DetachedParent = record.ParentID
	node.HasDetachedParent = record.HasParent
}

func (b *builder) resolve(path []uint64, class Class) {
	for _, id := range path {
		b.link(id, class)
	}
}

func (b *builder) resolveOrphan(path []uint64) {
	last := len(path) - 1
	b.resolve(path[:last], Stranded)
	b.detach(path[last], Orphan)
}

// resolveCycle cuts the cycle at its smallest id, which goes under
// lost-and-found with the other members hanging below it.
func (b *builder) resolveCycle(path []uint64, start int) {
	members := path[start:]
	cut := members[0]
	for _, id := range members {
		if id < cut {
			cut = id
		}
	}
	for _, id := range members {
		if id == cut {
			b.detach(id, Cyclic)
		} else {
			b.link(id, Cyclic)
		}
	}
	b.resolve(path[:start], Stranded)
}

func sortChildren(node *Node) {
	stack := []*Node{node}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		sort.Slice(current.children, func(i, j int) bool {
			a, b := current.children[i], current.children[j]
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ID < b.ID
		})
		stack = append(stack, current.children...)
	}
}

func sanitizeName(name string, id uint64, isDirectory bool) string {
	if validName(name) {
		return name
	}
	if isDirectory {
		return fmt.Sprintf("Dir_%d", id)
	}
	return fmt.Sprintf("File_%d", id)
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." || !utf8.ValidString(name) {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f || r == '/' || r == utf8.RuneError {
			return false
		}
	}
	return true
}

package tree

import (
	"path"
	"strings"

	"github.com/aarsakian/FSRecover/FS"
)

func (node *Node) Children() []*Node {
	children := make([]*Node, len(node.children))
	copy(children, node.children)
	return children
}

func (node *Node) HasChildren() bool {
	return len(node.children) > 0
}

func (node *Node) Parent() *Node {
	return node.parent
}

// Descend returns the child called name, the lowest id wins among duplicates.
func (node *Node) Descend(name string) *Node {
	for _, child := range node.children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// Lookup follows a slash separated path below node.
func (node *Node) Lookup(relPath string) *Node {
	current := node
	for _, segment := range strings.Split(relPath, "/") {
		if segment == "" {
			continue
		}
		current = current.Descend(segment)
		if current == nil {
			return nil
		}
	}
	return current
}

// Path starts at the top of the tree, Root or LostFiles.
func (node *Node) Path() string {
	var segments []string
	for current := node; current != nil; current = current.parent {
		segments = append(segments, current.Name)
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return strings.Join(segments, "/")
}

// IsDir treats any node with children as a directory, since damaged records
// may hang below a file.
func (node *Node) IsDir() bool {
	return node.IsDirectory || len(node.children) > 0
}

// Count is the number of nodes in the subtree, node included.
func (node *Node) Count() int {
	count := 0
	walker := NewWalker(node)
	for {
		if _, ok := walker.Next(); !ok {
			return count
		}
		count++
	}
}

type Entry struct {
	Node        *Node
	RelPath     string
	Depth       int
	Extents     []FS.Extent
	Resident    []byte
	Deleted     bool
	IsDirectory bool
}

type frame struct {
	node    *Node
	relPath string
	depth   int
}

// Walker enumerates a subtree depth first in name order. It can be
// restarted from a position previously reported by Position.
type Walker struct {
	start    *Node
	stack    []frame
	position int
}

func NewWalker(start *Node) *Walker {
	walker := &Walker{start: start}
	walker.Reset()
	return walker
}

func NewWalkerAt(start *Node, position int) *Walker {
	walker := NewWalker(start)
	for walker.position < position {
		if _, ok := walker.Next(); !ok {
			break
		}
	}
	return walker
}

func (walker *Walker) Reset() {
	walker.position = 0
	walker.stack = walker.stack[:0]
	if walker.start != nil {
		walker.stack = append(walker.stack, frame{node: walker.start, relPath: walker.start.Name})
	}
}

func (walker *Walker) Position() int {
	return walker.position
}

func (walker *Walker) Next() (Entry, bool) {
	if len(walker.stack) == 0 {
		return Entry{}, false
	}
	current := walker.stack[len(walker.stack)-1]
	walker.stack = walker.stack[:len(walker.stack)-1]

	children := current.node.children
	for idx := len(children) - 1; idx >= 0; idx-- {
		walker.stack = append(walker.stack, frame{
			node:    children[idx],
			relPath: path.Join(current.relPath, children[idx].Name),
			depth:   current.depth + 1,
		})
	}
	walker.position++

	node := current.node
	return Entry{
		Node:        node,
		RelPath:     current.relPath,
		Depth:       current.depth,
		Extents:     node.Extents,
		Resident:    node.Resident,
		Deleted:     node.IsDeleted,
		IsDirectory: node.IsDir(),
	}, true
}

package filters

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aarsakian/FSRecover/tree"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

type Filter interface {
	Execute(entries []tree.Entry) []tree.Entry
}

func keep(entries []tree.Entry, f func(tree.Entry) bool) []tree.Entry {
	var kept []tree.Entry
	for _, entry := range entries {
		if f(entry) {
			kept = append(kept, entry)
		}
	}
	return kept
}

type NameFilter struct {
	Filenames []string
}

func (nameFilter NameFilter) Execute(entries []tree.Entry) []tree.Entry {
	return keep(entries, func(entry tree.Entry) bool {
		if entry.IsDirectory {
			return true
		}
		for _, fname := range nameFilter.Filenames {
			if entry.Node.Name == fname {
				return true
			}
		}
		return false
	})
}

// PathFilter keeps the entries at or below NamePath, relative to where the
// walk started.
type PathFilter struct {
	NamePath string
}

func (pathFilter PathFilter) Execute(entries []tree.Entry) []tree.Entry {
	prefix := strings.Trim(pathFilter.NamePath, "/")
	return keep(entries, func(entry tree.Entry) bool {
		return entry.RelPath == prefix || strings.HasPrefix(entry.RelPath, prefix+"/") ||
			strings.HasPrefix(prefix, entry.RelPath+"/")
	})
}

type ExtensionsFilter struct {
	Extensions []string
}

func (extensionsFilter ExtensionsFilter) Execute(entries []tree.Entry) []tree.Entry {
	return keep(entries, func(entry tree.Entry) bool {
		if entry.IsDirectory {
			return true
		}
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(entry.Node.Name)), ".")
		for _, wanted := range extensionsFilter.Extensions {
			if ext == strings.TrimPrefix(strings.ToLower(wanted), ".") {
				return true
			}
		}
		return false
	})
}

// DeletedFilter with Include set keeps only deleted files.
type DeletedFilter struct {
	Include bool
}

func (deletedFilter DeletedFilter) Execute(entries []tree.Entry) []tree.Entry {
	if !deletedFilter.Include {
		return entries
	}
	return keep(entries, func(entry tree.Entry) bool {
		return entry.IsDirectory || entry.Deleted
	})
}

type FoldersFilter struct {
	Include bool
}

func (foldersFilter FoldersFilter) Execute(entries []tree.Entry) []tree.Entry {
	if foldersFilter.Include {
		return entries
	}
	return keep(entries, func(entry tree.Entry) bool {
		return !entry.IsDirectory
	})
}

// Env is what an ExpressionFilter sees of each entry.
type Env struct {
	ID       uint64
	Name     string
	Path     string
	Ext      string
	Size     uint64
	Dir      bool
	Deleted  bool
	Class    string
	Created  time.Time
	Modified time.Time
	Accessed time.Time
}

func NewEnv(entry tree.Entry) Env {
	node := entry.Node
	return Env{
		ID:       node.ID,
		Name:     node.Name,
		Path:     entry.RelPath,
		Ext:      strings.TrimPrefix(strings.ToLower(path.Ext(node.Name)), "."),
		Size:     node.Size,
		Dir:      entry.IsDirectory,
		Deleted:  entry.Deleted,
		Class:    node.Class.String(),
		Created:  node.Times.Created,
		Modified: node.Times.Modified,
		Accessed: node.Times.Accessed,
	}
}

// ExpressionFilter keeps the files for which a boolean expr expression holds,
// e.g. `Ext == "jpg" && Size > 1024`. Directories always pass.
type ExpressionFilter struct {
	Source  string
	program *vm.Program
}

func NewExpressionFilter(source string) (*ExpressionFilter, error) {
	program, err := expr.Compile(source, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", source, err)
	}
	return &ExpressionFilter{Source: source, program: program}, nil
}

func (expressionFilter ExpressionFilter) Execute(entries []tree.Entry) []tree.Entry {
	return keep(entries, func(entry tree.Entry) bool {
		if entry.IsDirectory {
			return true
		}
		res, err := expr.Run(expressionFilter.program, NewEnv(entry))
		if err != nil {
			return false
		}
		matched, _ := res.(bool)
		return matched
	})
}

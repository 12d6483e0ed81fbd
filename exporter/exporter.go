package exporter

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aarsakian/FSRecover/FS"
	"github.com/aarsakian/FSRecover/filtermanager"
	"github.com/aarsakian/FSRecover/img"
	"github.com/aarsakian/FSRecover/logger"
	"github.com/aarsakian/FSRecover/tree"
	"github.com/aarsakian/FSRecover/utils"
)

const readChunk = 1 << 20

var ErrUnsupportedHash = errors.New("only MD5 or SHA1 are supported")

// ErrNoExtents marks non-resident files whose data runs were never recovered.
var ErrNoExtents = errors.New("no data runs, partition offset unknown")

type Exporter struct {
	Location       string
	Hash           string
	IncludeDeleted bool
}

// Restored describes one file written by Restore.
type Restored struct {
	Path string
	ID   uint64
	Size uint64
	Hash string
}

func (exp Exporter) validate() error {
	switch exp.Hash {
	case "", "MD5", "SHA1":
		return nil
	}
	return fmt.Errorf("%s: %w", exp.Hash, ErrUnsupportedHash)
}

func (exp Exporter) entries(start *tree.Node, fm *filtermanager.FilterManager) []tree.Entry {
	var entries []tree.Entry
	walker := tree.NewWalker(start)
	for entry, ok := walker.Next(); ok; entry, ok = walker.Next() {
		if entry.Deleted && !exp.IncludeDeleted {
			continue
		}
		entries = append(entries, entry)
	}
	if fm != nil {
		entries = fm.ApplyFilters(entries)
	}
	return entries
}

// Restore copies the subtree below start into Location, the directory layout
// following the recovered names. Files are read back from their extents and
// truncated to their logical size.
func (exp Exporter) Restore(hD img.DiskReader, start *tree.Node, fm *filtermanager.FilterManager) ([]Restored, error) {
	if err := exp.validate(); err != nil {
		return nil, err
	}
	if start == nil {
		return nil, errors.New("nothing to restore")
	}

	var restored []Restored
	for _, entry := range exp.entries(start, fm) {
		fullpath := filepath.Join(exp.Location, filepath.FromSlash(entry.RelPath))
		if entry.IsDirectory {
			if err := os.MkdirAll(fullpath, 0750); err != nil {
				return restored, err
			}
			continue
		}

		if entry.Resident == nil && len(entry.Extents) == 0 && entry.Node.Size > 0 {
			logger.FSRecoverlogger.Warning(fmt.Sprintf("skipping %s: %s", entry.RelPath, ErrNoExtents))
			continue
		}
		if err := os.MkdirAll(filepath.Dir(fullpath), 0750); err != nil {
			return restored, err
		}
		if err := exp.CreateFile(hD, fullpath, entry); err != nil {
			logger.FSRecoverlogger.Error(fmt.Sprintf("restoring %s: %s", entry.RelPath, err))
			continue
		}

		result := Restored{Path: fullpath, ID: entry.Node.ID, Size: entry.Node.Size}
		if exp.Hash != "" {
			hash, err := utils.HashFile(fullpath, exp.Hash)
			if err != nil {
				logger.FSRecoverlogger.Error(err)
			}
			result.Hash = hash
		}
		restored = append(restored, result)
	}
	return restored, nil
}

func (exp Exporter) CreateFile(hD img.DiskReader, fullpath string, entry tree.Entry) error {
	if entry.Resident == nil && len(entry.Extents) == 0 && entry.Node.Size > 0 {
		return ErrNoExtents
	}
	file, err := os.Create(fullpath)
	if err != nil {
		return err
	}
	defer file.Close()

	if entry.Resident != nil {
		if _, err := file.Write(entry.Resident); err != nil {
			return err
		}
	} else {
		for _, extent := range entry.Extents {
			if err := copyExtent(hD, file, extent); err != nil {
				return err
			}
		}
	}
	return file.Truncate(int64(entry.Node.Size))
}

// copyExtent writes zeros for sparse extents and for unreadable chunks so
// that later extents stay at their file offsets.
func copyExtent(hD img.DiskReader, w io.Writer, extent FS.Extent) error {
	for done := int64(0); done < extent.Length; {
		length := extent.Length - done
		if length > readChunk {
			length = readChunk
		}

		var data []byte
		if !extent.Sparse {
			var err error
			data, err = hD.ReadFile(extent.Offset+done, int(length))
			if err != nil {
				scanErr := &FS.ScanError{Offset: extent.Offset + done, Length: int(length), Err: err}
				logger.FSRecoverlogger.Warning(scanErr.Error())
				data = nil
			}
		}
		if int64(len(data)) < length {
			padded := make([]byte, length)
			copy(padded, data)
			data = padded
		}

		if _, err := w.Write(data); err != nil {
			return err
		}
		done += length
	}
	return nil
}

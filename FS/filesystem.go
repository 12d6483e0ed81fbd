package FS

import (
	"errors"
	"fmt"
	"time"

	"github.com/aarsakian/FSRecover/img"
)

var ErrMissingRoot = errors.New("root directory record not found")

// Extent locates a run of file data inside the image. Sparse extents have no
// location and read back as zeros.
type Extent struct {
	Offset int64
	Length int64
	Sparse bool
}

type Timestamps struct {
	Created     time.Time
	Modified    time.Time
	MFTModified time.Time
	Accessed    time.Time
}

// Record is one metadata entry salvaged from the image. ParentID is whatever
// the entry claims and may point nowhere.
type Record struct {
	ID          uint64
	ParentID    uint64
	HasParent   bool
	Name        string
	IsDirectory bool
	IsDeleted   bool
	Size        uint64
	Extents     []Extent
	Resident    []byte
	Times       Timestamps
	Offset      int64
	Partition   string
}

// Boundary describes a filesystem instance found on the image.
type Boundary struct {
	ID          string
	FSType      string
	Offset      int64 // -1 when no boot sector and no inference succeeded
	Size        int64
	Declared    bool
	ClusterSize int
	RootID      uint64
	Label       string
}

func (boundary Boundary) OffsetKnown() bool {
	return boundary.Offset >= 0
}

// Scanner finds one filesystem type in a raw image. Feed is called once per
// sector during the forward pass and reports whether the sector must be kept
// for a resumed session; Scan assembles what was fed.
type Scanner interface {
	Type() string
	Feed(offset int64, sector []byte) bool
	Scan(hD img.DiskReader) ([]Record, []Boundary)
}

type ScanError struct {
	Offset int64
	Length int
	Err    error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("unreadable region at %d (%d bytes): %v", e.Offset, e.Length, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

type RecordCorruptionError struct {
	Offset int64
	Reason string
}

func (e *RecordCorruptionError) Error() string {
	return fmt.Sprintf("corrupt record at %d: %s", e.Offset, e.Reason)
}

package disk

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aarsakian/FSRecover/FS"
	"github.com/aarsakian/FSRecover/disk/partition"
	gptLib "github.com/aarsakian/FSRecover/disk/partition/GPT"
	mbrLib "github.com/aarsakian/FSRecover/disk/partition/MBR"
	"github.com/aarsakian/FSRecover/img"
	"github.com/aarsakian/FSRecover/logger"
	"github.com/aarsakian/FSRecover/state"
	"github.com/aarsakian/FSRecover/utils"
)

const (
	DefaultSectorSize   = 512
	DefaultChunkSectors = 2048
	progressEvery       = 1 << 30
)

var (
	ErrNTFSVol    = errors.New("NTFS volume discovered instead of MBR")
	ErrEmptyImage = errors.New("image reports no size")
)

// TableEntry is a partition declared by an MBR or GPT.
type TableEntry interface {
	GetOffset() int64
	GetSize() int64
	GetPartitionType() string
	GetInfo() string
	LocateFileSystem(img.DiskReader) string
}

type Disk struct {
	MBR          *mbrLib.MBR
	GPT          *gptLib.GPT
	Handler      img.DiskReader
	Path         string
	Partitions   []TableEntry
	SectorSize   int
	ChunkSectors int
	Threshold    float64
	// Checkpoint receives the partial scan state every CheckpointEvery bytes
	// of the forward pass.
	Checkpoint      func(*state.ScanState)
	CheckpointEvery int64
}

// Initialize opens the image once for the whole session.
func (disk *Disk) Initialize(evidencefile string, mode string) error {
	hD, err := img.GetHandler(evidencefile, mode)
	if err != nil {
		return err
	}
	if hD.GetDiskSize() <= 0 {
		hD.CloseHandler()
		return fmt.Errorf("%s: %w", evidencefile, ErrEmptyImage)
	}
	disk.Handler = hD
	disk.Path = evidencefile
	return nil
}

func (disk Disk) Close() {
	if disk.Handler != nil {
		disk.Handler.CloseHandler()
	}
}

func (disk Disk) sectorSize() int {
	if disk.SectorSize <= 0 {
		return DefaultSectorSize
	}
	return disk.SectorSize
}

func (disk Disk) chunkSectors() int {
	if disk.ChunkSectors <= 0 {
		return DefaultChunkSectors
	}
	return disk.ChunkSectors
}

func (disk Disk) checkpointEvery() int64 {
	if disk.CheckpointEvery <= 0 {
		return progressEvery
	}
	return disk.CheckpointEvery
}

func (disk Disk) hasProtectiveMBR() bool {
	return disk.MBR != nil && disk.MBR.IsProtective()
}

func (disk *Disk) populateMBR() error {
	data, err := disk.Handler.ReadFile(0, mbrLib.SectorSize)
	if err != nil {
		return err
	}
	if len(data) >= 11 && string(data[3:7]) == "NTFS" {
		return ErrNTFSVol
	}

	var mbr mbrLib.MBR
	if err := mbr.Parse(data); err != nil {
		return err
	}
	if offset, err := mbr.GetExtendedPartitionOffset(); err == nil {
		if err := mbr.DiscoverExtendedPartitions(disk.Handler, offset); err != nil {
			logger.FSRecoverlogger.Warning(fmt.Sprintf("extended partitions: %s", err))
		}
	}
	disk.MBR = &mbr
	return nil
}

func (disk *Disk) populateGPT() error {
	data, err := disk.Handler.ReadFile(gptLib.SectorSize, gptLib.SectorSize) // header at LBA 1
	if err != nil {
		return err
	}
	var gpt gptLib.GPT
	if err := gpt.ParseHeader(data); err != nil {
		return err
	}
	data, err = disk.Handler.ReadFile(int64(gpt.Header.PartitionsStartLBA)*gptLib.SectorSize,
		int(gpt.GetPartitionArraySize()))
	if err != nil {
		return err
	}
	gpt.ParsePartitions(data)
	disk.GPT = &gpt
	return nil
}

// DiscoverPartitions reads the declared partition table. Recovery does not
// depend on it, it only annotates what the scan finds.
func (disk *Disk) DiscoverPartitions() error {
	disk.Partitions = nil
	if err := disk.populateMBR(); err != nil {
		return err
	}
	if disk.hasProtectiveMBR() {
		if err := disk.populateGPT(); err != nil {
			return err
		}
		for idx := range disk.GPT.Partitions {
			disk.Partitions = append(disk.Partitions, &disk.GPT.Partitions[idx])
		}
	} else {
		partitions := disk.MBR.GetPartitions()
		for idx := range partitions {
			disk.Partitions = append(disk.Partitions, &partitions[idx])
		}
	}
	for _, entry := range disk.Partitions {
		entry.LocateFileSystem(disk.Handler)
	}
	return nil
}

func (disk Disk) ListPartitions() []string {
	var listing []string
	if disk.hasProtectiveMBR() {
		listing = append(listing, "GPT:")
	} else {
		listing = append(listing, "MBR:")
	}
	for _, entry := range disk.Partitions {
		//show only non zero partition entries
		if entry.GetOffset() == 0 {
			continue
		}
		listing = append(listing, entry.GetInfo())
	}
	return listing
}

// Scan makes one forward pass over the image feeding every sector to every
// scanner, then lets each scanner assemble its partitions. A complete st
// restricts the pass to the sectors it lists, a partial one continues after
// them. st is updated in place.
func (disk *Disk) Scan(scanners []FS.Scanner, st *state.ScanState) ([]*partition.Partition, error) {
	if disk.Handler == nil {
		return nil, errors.New("disk not initialized")
	}
	size := disk.Handler.GetDiskSize()
	sectorSize := disk.sectorSize()

	if st == nil {
		return nil, errors.New("no scan state")
	}
	if !st.Matches(size, sectorSize) {
		msg := fmt.Sprintf("scan state for %d bytes / %d sector, image is %d / %d, rescanning",
			st.ImageSize, st.SectorSize, size, sectorSize)
		logger.FSRecoverlogger.Warning(msg)
		st.ImageSize = size
		st.SectorSize = sectorSize
		st.Reset()
	}

	disk.feedInteresting(scanners, st)
	if !st.Complete {
		disk.forwardPass(scanners, st, size)
		st.Complete = true
	}

	partitions := disk.assemble(scanners)
	return partitions, nil
}

func feed(scanners []FS.Scanner, offset int64, sector []byte) bool {
	interesting := false
	for _, scanner := range scanners {
		if scanner.Feed(offset, sector) {
			interesting = true
		}
	}
	return interesting
}

func (disk Disk) feedInteresting(scanners []FS.Scanner, st *state.ScanState) {
	sectorSize := disk.sectorSize()
	for _, offset := range st.Interesting {
		sector, err := disk.Handler.ReadFile(offset, sectorSize)
		if err != nil {
			scanErr := &FS.ScanError{Offset: offset, Length: sectorSize, Err: err}
			logger.FSRecoverlogger.Warning(scanErr.Error())
			continue
		}
		feed(scanners, offset, sector)
	}
}

func (disk Disk) forwardPass(scanners []FS.Scanner, st *state.ScanState, size int64) {
	sectorSize := int64(disk.sectorSize())
	chunkLen := sectorSize * int64(disk.chunkSectors())
	nextReport := int64(progressEvery)
	nextCheckpoint := st.NextSector*sectorSize + disk.checkpointEvery()

	for offset := st.NextSector * sectorSize; offset < size; offset += chunkLen {
		length := chunkLen
		if offset+length > size {
			length = size - offset
		}

		chunk, err := disk.Handler.ReadFile(offset, int(length))
		if err != nil {
			disk.feedSectors(scanners, st, offset, length)
		} else {
			for pos := int64(0); pos < int64(len(chunk)); pos += sectorSize {
				end := pos + sectorSize
				if end > int64(len(chunk)) {
					end = int64(len(chunk))
				}
				if feed(scanners, offset+pos, chunk[pos:end]) {
					st.MarkInteresting(offset + pos)
				}
			}
		}
		st.NextSector = (offset + length + sectorSize - 1) / sectorSize

		if offset+length >= nextReport {
			msg := fmt.Sprintf("scanned %s of %s bytes", utils.FormatNumber(offset+length), utils.FormatNumber(size))
			logger.FSRecoverlogger.Info(msg)
			nextReport += progressEvery
		}
		if disk.Checkpoint != nil && offset+length >= nextCheckpoint && offset+length < size {
			disk.Checkpoint(st)
			nextCheckpoint += disk.checkpointEvery()
		}
	}
}

// feedSectors retries a failed chunk one sector at a time so that only the
// unreadable sectors are lost.
func (disk Disk) feedSectors(scanners []FS.Scanner, st *state.ScanState, offset int64, length int64) {
	sectorSize := int64(disk.sectorSize())
	for pos := offset; pos < offset+length; pos += sectorSize {
		sector, err := disk.Handler.ReadFile(pos, int(sectorSize))
		if err != nil {
			scanErr := &FS.ScanError{Offset: pos, Length: int(sectorSize), Err: err}
			logger.FSRecoverlogger.Warning(scanErr.Error())
			continue
		}
		if feed(scanners, pos, sector) {
			st.MarkInteresting(pos)
		}
	}
}

func (disk Disk) assemble(scanners []FS.Scanner) []*partition.Partition {
	var partitions []*partition.Partition
	byID := make(map[string]*partition.Partition)

	for _, scanner := range scanners {
		records, boundaries := scanner.Scan(disk.Handler)
		for _, boundary := range boundaries {
			if _, exists := byID[boundary.ID]; exists {
				continue
			}
			part := partition.New(boundary, disk.Threshold)
			disk.annotate(part)
			byID[boundary.ID] = part
			partitions = append(partitions, part)
		}
		for _, record := range records {
			part, ok := byID[record.Partition]
			if !ok {
				msg := fmt.Sprintf("%s record %d at %d has no partition", scanner.Type(), record.ID, record.Offset)
				logger.FSRecoverlogger.Warning(msg)
				continue
			}
			part.Accept(record)
		}
	}

	sort.SliceStable(partitions, func(i, j int) bool {
		a, b := partitions[i], partitions[j]
		if a.OffsetKnown() != b.OffsetKnown() {
			return a.OffsetKnown()
		}
		if a.Offset != b.Offset {
			return a.Offset < b.Offset
		}
		return a.ID < b.ID
	})

	msg := fmt.Sprintf("%d partitions found", len(partitions))
	logger.FSRecoverlogger.Info(msg)
	return partitions
}

func (disk Disk) annotate(part *partition.Partition) {
	if !part.OffsetKnown() {
		return
	}
	for _, entry := range disk.Partitions {
		if entry.GetOffset() == part.Offset {
			part.TableEntry = entry.GetInfo()
			return
		}
	}
}

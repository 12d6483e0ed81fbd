package MBR

import (
	"encoding/binary"
	"errors"
	"fmt"

	ntfsLib "github.com/aarsakian/FSRecover/FS/NTFS"
	"github.com/aarsakian/FSRecover/img"
	"github.com/aarsakian/FSRecover/utils"
)

const (
	SectorSize      = 512
	tableOffset     = 446
	maxLogical      = 128
	protectiveType  = 0xee
	extendedCHS     = 0x05
	extendedLBA     = 0x0f
	mbrEndSignature = 0xaa55
)

var (
	ErrNoMBR                 = errors.New("no MBR signature")
	ErrNoExtendedPartition   = errors.New("extended partition not found")
	ErrExtendedChainTooLong  = errors.New("extended partition chain too long")
	ErrExtendedChainBadEntry = errors.New("extended partition entry outside disk")
)

var PartitionTypes = map[uint8]string{
	0x05: "Extended",
	0x07: "HPFS/NTFS/exFAT",
	0x0b: "W95 FAT32",
	0x0c: "W95 FAT32 (LBA)",
	0x0f: "Extended (LBA)",
	0x17: "Hidden HPFS/NTFS",
	0x27: "Hidden NTFS Win",
	0x83: "Linux",
	0xee: "GPT protective",
}

type MBR struct {
	BootCode           [446]byte //0-445
	Partitions         []Partition
	ExtendedPartitions []Partition
	Signature          uint16 `bin:"-"` //510-511
}

type Partition struct {
	Flag     uint8
	StartCHS [3]byte
	Type     uint8
	EndCHS   [3]byte
	StartLBA uint32 // absolute once parsed, logical ones are rebased
	Size     uint32 //sectors
	FS       string `bin:"-"`
	Index    int    `bin:"-"`
}

func (partition Partition) GetOffset() int64 {
	return int64(partition.StartLBA) * SectorSize
}

func (partition Partition) GetSize() int64 {
	return int64(partition.Size) * SectorSize
}

func (partition Partition) GetPartitionType() string {
	partitionType, ok := PartitionTypes[partition.Type]
	if ok {
		return partitionType
	}
	return fmt.Sprintf("type %#02x", partition.Type)
}

func (partition Partition) IsExtended() bool {
	return partition.Type == extendedCHS || partition.Type == extendedLBA
}

func (partition Partition) IsEmpty() bool {
	return partition.Type == 0 || partition.Size == 0
}

// LocateFileSystem checks the first sector of the partition for a known boot sector.
func (partition *Partition) LocateFileSystem(hD img.DiskReader) string {
	data, err := hD.ReadFile(partition.GetOffset(), SectorSize)
	if err != nil {
		return ""
	}
	if ntfsLib.IsBootSector(data) {
		partition.FS = ntfsLib.FSType
	}
	return partition.FS
}

func (partition Partition) GetInfo() string {
	info := fmt.Sprintf("MBR #%d %s at sector %d, %s", partition.Index, partition.GetPartitionType(),
		partition.StartLBA, utils.HumanSize(uint64(partition.GetSize())))
	if partition.FS != "" {
		info += " " + partition.FS
	}
	return info
}

func (mbr MBR) IsProtective() bool {
	for _, partition := range mbr.Partitions {
		if partition.Type == protectiveType {
			return true
		}
	}
	return false
}

func LocatePartitions(data []byte) []Partition {
	var partitions []Partition
	for pos := 0; pos+16 <= len(data); pos += 16 {
		var partition Partition
		if err := utils.Unmarshal(data[pos:pos+16], &partition); err != nil {
			continue
		}
		partitions = append(partitions, partition)
	}
	return partitions
}

func (mbr *MBR) Parse(buffer []byte) error {
	if len(buffer) < SectorSize {
		return fmt.Errorf("MBR of %d bytes: %w", len(buffer), utils.ErrShortBuffer)
	}
	mbr.Signature = binary.LittleEndian.Uint16(buffer[510:512])
	if mbr.Signature != mbrEndSignature {
		return ErrNoMBR
	}
	if err := utils.Unmarshal(buffer, mbr); err != nil {
		return err
	}
	mbr.Partitions = nil
	for idx, partition := range LocatePartitions(buffer[tableOffset:510]) {
		if partition.IsEmpty() {
			continue
		}
		partition.Index = idx + 1
		mbr.Partitions = append(mbr.Partitions, partition)
	}
	return nil
}

func (mbr MBR) GetExtendedPartitionOffset() (uint32, error) {
	for _, partition := range mbr.Partitions {
		if partition.IsExtended() {
			return partition.StartLBA, nil
		}
	}
	return 0, ErrNoExtendedPartition
}

// DiscoverExtendedPartitions walks the chain of extended boot records. Each
// one holds a logical partition relative to itself and a link relative to
// the start of the extended partition.
func (mbr *MBR) DiscoverExtendedPartitions(hD img.DiskReader, extendedStart uint32) error {
	mbr.ExtendedPartitions = nil
	ebrLBA := extendedStart
	visited := make(map[uint32]bool)

	for count := 0; count < maxLogical; count++ {
		if visited[ebrLBA] {
			return nil
		}
		visited[ebrLBA] = true

		data, err := hD.ReadFile(int64(ebrLBA)*SectorSize, SectorSize)
		if err != nil {
			return fmt.Errorf("EBR at sector %d: %w", ebrLBA, err)
		}
		if len(data) < SectorSize || binary.LittleEndian.Uint16(data[510:512]) != mbrEndSignature {
			return nil
		}

		entries := LocatePartitions(data[tableOffset:510])
		logical := entries[0]
		if !logical.IsEmpty() {
			logical.StartLBA += ebrLBA
			logical.Index = len(mbr.Partitions) + len(mbr.ExtendedPartitions) + 1
			if logical.GetOffset() >= hD.GetDiskSize() {
				return fmt.Errorf("logical partition at sector %d: %w", logical.StartLBA, ErrExtendedChainBadEntry)
			}
			mbr.ExtendedPartitions = append(mbr.ExtendedPartitions, logical)
		}

		link := entries[1]
		if link.IsEmpty() || !link.IsExtended() {
			return nil
		}
		ebrLBA = extendedStart + link.StartLBA
	}
	return ErrExtendedChainTooLong
}

// GetPartitions lists primary and logical partitions, extended containers excluded.
func (mbr MBR) GetPartitions() []Partition {
	var partitions []Partition
	for _, partition := range mbr.Partitions {
		if partition.IsExtended() || partition.Type == protectiveType {
			continue
		}
		partitions = append(partitions, partition)
	}
	return append(partitions, mbr.ExtendedPartitions...)
}

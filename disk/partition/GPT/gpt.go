package gpt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	ntfsLib "github.com/aarsakian/FSRecover/FS/NTFS"
	"github.com/aarsakian/FSRecover/img"
	"github.com/aarsakian/FSRecover/utils"
)

const (
	SectorSize       = 512
	headerSignature  = "EFI PART"
	entryNameOffset  = 56
	minEntrySize     = 128
	maxPartitionData = 1 << 20
)

var ErrNoGPT = errors.New("no GPT header")

var PartitionTypeGuids = map[string]string{
	"ebd0a0a2-b9e5-4433-87c0-68b6b72699c7": "Windows",
	"e3c9e316-0b5c-4db8-817d-f92df00215ae": "Microsoft reserved",
	"de94bba4-06d1-4d40-a16a-bfd50179d6ac": "Windows recovery",
	"c12a7328-f81f-11d2-ba4b-00a0c93ec93b": "EFI system",
	"0fc63daf-8483-4772-8e79-3d69d8477de4": "Linux",
	"a19d880f-05fc-4d3b-a006-743f0f84911e": "Linux RAID",
}

type GPT struct {
	Header     *GPTHeader
	Partitions []Partition
}

type GPTHeader struct {
	StartSignature     [8]byte
	Revision           [4]byte
	HeaderSize         uint32
	HeaderCRC          uint32
	Reserved           [4]byte
	CurrentLBA         uint64 //location of header
	BackupLBA          uint64
	FirstUsableLBA     uint64
	LastUsableLBA      uint64
	DiskGUID           [16]byte
	PartitionsStartLBA uint64 // usually LBA 2
	NofPartitions      uint32
	PartitionSize      uint32
	PartionArrayCRC    uint32
	Reserved2          [420]byte
}

type Partition struct {
	PartitionTypeGUID [16]byte
	PartitionGUID     [16]byte
	StartLBA          uint64
	EndLBA            uint64
	Atttributes       [8]byte
	Name              string `bin:"-"`
	FS                string `bin:"-"`
	Index             int    `bin:"-"`
}

func (partition Partition) GetPartitionType() string {
	guid := utils.StringifyGUID(partition.PartitionTypeGUID[:])
	partitionType, ok := PartitionTypeGuids[guid]
	if ok {
		return partitionType
	}
	return guid
}

func (partition Partition) GetUniquePartitionType() string {
	return utils.StringifyGUID(partition.PartitionGUID[:])
}

func (partition Partition) IsEmpty() bool {
	return partition.PartitionTypeGUID == [16]byte{}
}

func (partition Partition) GetOffset() int64 {
	return int64(partition.StartLBA) * SectorSize
}

func (partition Partition) GetSize() int64 {
	if partition.EndLBA < partition.StartLBA {
		return 0
	}
	return int64(partition.EndLBA-partition.StartLBA+1) * SectorSize
}

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
	info := fmt.Sprintf("GPT #%d %s %s at sector %d, %s", partition.Index, partition.GetUniquePartitionType(),
		partition.GetPartitionType(), partition.StartLBA, utils.HumanSize(uint64(partition.GetSize())))
	if partition.Name != "" {
		info += fmt.Sprintf(" %q", partition.Name)
	}
	if partition.FS != "" {
		info += " " + partition.FS
	}
	return info
}

func (gpt *GPT) ParseHeader(buffer []byte) error {
	if len(buffer) < SectorSize {
		return fmt.Errorf("GPT header of %d bytes: %w", len(buffer), utils.ErrShortBuffer)
	}
	var header GPTHeader
	if err := utils.Unmarshal(buffer, &header); err != nil {
		return err
	}
	if !bytes.Equal(header.StartSignature[:], []byte(headerSignature)) {
		return ErrNoGPT
	}
	if header.PartitionSize < minEntrySize || header.GetPartitionArraySize() > maxPartitionData {
		return fmt.Errorf("%d entries of %d bytes: %w", header.NofPartitions, header.PartitionSize, ErrNoGPT)
	}
	gpt.Header = &header
	return nil
}

func (header GPTHeader) GetPartitionArraySize() uint32 {
	return header.PartitionSize * header.NofPartitions
}

func (gpt GPT) GetPartitionArraySize() uint32 {
	return gpt.Header.GetPartitionArraySize()
}

func (gpt *GPT) ParsePartitions(data []byte) {
	gpt.Partitions = nil
	entrySize := int(gpt.Header.PartitionSize)

	for idx := 0; idx < int(gpt.Header.NofPartitions); idx++ {
		if (idx+1)*entrySize > len(data) {
			break
		}
		entry := data[idx*entrySize : (idx+1)*entrySize]
		var partition Partition
		if err := utils.Unmarshal(entry, &partition); err != nil || partition.IsEmpty() {
			continue
		}
		partition.Name = strings.TrimRight(utils.DecodeUTF16(entry[entryNameOffset:minEntrySize]), "\x00")
		partition.Index = idx + 1
		gpt.Partitions = append(gpt.Partitions, partition)
	}
}

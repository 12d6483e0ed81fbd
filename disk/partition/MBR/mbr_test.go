package MBR

import (
	"encoding/binary"
	"testing"

	"github.com/aarsakian/FSRecover/img"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putEntry(sector []byte, slot int, partType uint8, start, size uint32) {
	entry := sector[tableOffset+slot*16 : tableOffset+(slot+1)*16]
	entry[4] = partType
	binary.LittleEndian.PutUint32(entry[8:12], start)
	binary.LittleEndian.PutUint32(entry[12:16], size)
	binary.LittleEndian.PutUint16(sector[510:512], mbrEndSignature)
}

func TestParse(t *testing.T) {
	sector := make([]byte, SectorSize)
	putEntry(sector, 0, 0x07, 2048, 4096)
	putEntry(sector, 2, 0x83, 8192, 100)

	var mbr MBR
	require.NoError(t, mbr.Parse(sector))
	require.Len(t, mbr.Partitions, 2)
	assert.Equal(t, int64(2048*512), mbr.Partitions[0].GetOffset())
	assert.Equal(t, int64(4096*512), mbr.Partitions[0].GetSize())
	assert.Equal(t, "HPFS/NTFS/exFAT", mbr.Partitions[0].GetPartitionType())
	assert.Equal(t, 3, mbr.Partitions[1].Index)
	assert.False(t, mbr.IsProtective())

	_, err := mbr.GetExtendedPartitionOffset()
	assert.ErrorIs(t, err, ErrNoExtendedPartition)
}

func TestParseRejects(t *testing.T) {
	var mbr MBR
	assert.ErrorIs(t, mbr.Parse(make([]byte, SectorSize)), ErrNoMBR)
	assert.Error(t, mbr.Parse(make([]byte, 100)))
}

func TestExtendedChain(t *testing.T) {
	data := make([]byte, 64*SectorSize)
	putEntry(data[:SectorSize], 0, 0x07, 1, 7)
	putEntry(data[:SectorSize], 1, extendedLBA, 8, 56)

	// first EBR at sector 8: logical at 8+2, link to the EBR at 8+24
	putEntry(data[8*SectorSize:9*SectorSize], 0, 0x07, 2, 10)
	putEntry(data[8*SectorSize:9*SectorSize], 1, extendedCHS, 24, 30)
	// second EBR at sector 32: logical at 32+4, end of chain
	putEntry(data[32*SectorSize:33*SectorSize], 0, 0x83, 4, 20)

	hD := &img.MemoryReader{Data: data}
	var mbr MBR
	require.NoError(t, mbr.Parse(data[:SectorSize]))
	extStart, err := mbr.GetExtendedPartitionOffset()
	require.NoError(t, err)
	assert.Equal(t, uint32(8), extStart)

	require.NoError(t, mbr.DiscoverExtendedPartitions(hD, extStart))
	require.Len(t, mbr.ExtendedPartitions, 2)
	assert.Equal(t, uint32(10), mbr.ExtendedPartitions[0].StartLBA)
	assert.Equal(t, uint32(36), mbr.ExtendedPartitions[1].StartLBA)

	partitions := mbr.GetPartitions()
	require.Len(t, partitions, 3)
	assert.Equal(t, uint32(1), partitions[0].StartLBA)
	assert.Contains(t, partitions[2].GetInfo(), "Linux")
}

func TestExtendedChainLoop(t *testing.T) {
	data := make([]byte, 16*SectorSize)
	putEntry(data[:SectorSize], 0, extendedLBA, 4, 12)
	putEntry(data[4*SectorSize:5*SectorSize], 0, 0x07, 1, 2)
	putEntry(data[4*SectorSize:5*SectorSize], 1, extendedLBA, 0, 12)

	var mbr MBR
	require.NoError(t, mbr.Parse(data[:SectorSize]))
	require.NoError(t, mbr.DiscoverExtendedPartitions(&img.MemoryReader{Data: data}, 4))
	assert.Len(t, mbr.ExtendedPartitions, 1)
}

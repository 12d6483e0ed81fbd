package gpt

import (
	"encoding/binary"
	"testing"

	"github.com/aarsakian/FSRecover/img"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

// Windows basic data partition type in on-disk byte order.
var basicData = [16]byte{0xa2, 0xa0, 0xd0, 0xeb, 0xe5, 0xb9, 0x33, 0x44,
	0x87, 0xc0, 0x68, 0xb6, 0xb7, 0x26, 0x99, 0xc7}

func header(entries uint32) []byte {
	buf := make([]byte, SectorSize)
	copy(buf, headerSignature)
	binary.LittleEndian.PutUint64(buf[72:80], 2)
	binary.LittleEndian.PutUint32(buf[80:84], entries)
	binary.LittleEndian.PutUint32(buf[84:88], 128)
	return buf
}

func entry(start, end uint64, name string) []byte {
	buf := make([]byte, 128)
	copy(buf[0:16], basicData[:])
	buf[16] = 0x42
	binary.LittleEndian.PutUint64(buf[32:40], start)
	binary.LittleEndian.PutUint64(buf[40:48], end)
	encoded, _ := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(name))
	copy(buf[56:], encoded)
	return buf
}

func TestParse(t *testing.T) {
	var gpt GPT
	require.NoError(t, gpt.ParseHeader(header(4)))
	assert.Equal(t, uint64(2), gpt.Header.PartitionsStartLBA)
	assert.Equal(t, uint32(512), gpt.GetPartitionArraySize())

	array := make([]byte, 512)
	copy(array[0:], entry(2048, 4095, "Basic data partition"))
	copy(array[256:], entry(8192, 8192+127, ""))
	gpt.ParsePartitions(array)

	require.Len(t, gpt.Partitions, 2)
	first := gpt.Partitions[0]
	assert.Equal(t, "Windows", first.GetPartitionType())
	assert.Equal(t, "Basic data partition", first.Name)
	assert.Equal(t, int64(2048*512), first.GetOffset())
	assert.Equal(t, int64(2048*512), first.GetSize())
	assert.Equal(t, 1, first.Index)
	assert.Equal(t, 3, gpt.Partitions[1].Index)
	assert.Contains(t, first.GetInfo(), "GPT #1")
}

func TestParseHeaderRejects(t *testing.T) {
	var gpt GPT
	assert.ErrorIs(t, gpt.ParseHeader(make([]byte, SectorSize)), ErrNoGPT)
	assert.ErrorIs(t, gpt.ParseHeader(header(1<<20)), ErrNoGPT)
	assert.Error(t, gpt.ParseHeader(make([]byte, 10)))
}

func TestLocateFileSystem(t *testing.T) {
	data := make([]byte, 4096)
	copy(data[1024+3:], "NTFS    ")
	binary.LittleEndian.PutUint16(data[1024+510:], 0xaa55)

	partition := Partition{StartLBA: 2}
	assert.Equal(t, "NTFS", partition.LocateFileSystem(&img.MemoryReader{Data: data}))
	assert.Contains(t, partition.GetInfo(), "NTFS")

	empty := Partition{StartLBA: 4}
	assert.Empty(t, empty.LocateFileSystem(&img.MemoryReader{Data: data}))
}

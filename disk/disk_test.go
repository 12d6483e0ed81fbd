package disk

import (
	"encoding/binary"
	"testing"

	"github.com/aarsakian/FSRecover/FS"
	ntfsLib "github.com/aarsakian/FSRecover/FS/NTFS"
	"github.com/aarsakian/FSRecover/FS/NTFS/ntfstest"
	"github.com/aarsakian/FSRecover/img"
	"github.com/aarsakian/FSRecover/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const imageSize = 1 << 20

var testVolume = ntfstest.Volume{
	Start:        65536,
	ClusterSize:  4096,
	TotalSectors: 1919,
	MFTCluster:   4,
	MirrCluster:  2,
	Serial:       0xfeedbeef,
}

type countingReader struct {
	img.DiskReader
	reads int
}

func (reader *countingReader) ReadFile(offset int64, length int) ([]byte, error) {
	reader.reads++
	return reader.DiskReader.ReadFile(offset, length)
}

func buildImage() *ntfstest.Image {
	image := ntfstest.NewImage(imageSize)

	mbr := make([]byte, 512)
	entry := mbr[446:462]
	entry[4] = 0x07
	binary.LittleEndian.PutUint32(entry[8:12], uint32(testVolume.Start/512))
	binary.LittleEndian.PutUint32(entry[12:16], uint32(testVolume.TotalSectors+1))
	binary.LittleEndian.PutUint16(mbr[510:512], 0xaa55)
	image.Put(0, mbr)

	image.PutBoot(testVolume)
	files := []ntfstest.File{
		testVolume.MFTFile(),
		{Entry: 3, Parent: 5, Name: "$Volume", VolumeName: "CASE"},
		ntfstest.RootDir(),
		{Entry: 30, Parent: 5, Name: "docs", Directory: true},
		{Entry: 31, Parent: 30, Name: "a.txt", Resident: []byte("hello")},
		{Entry: 32, Parent: 30, Name: "b.txt", Resident: []byte("world")},
	}
	for _, file := range files {
		image.PutRecord(testVolume, file)
	}
	return image
}

func newDisk(hD img.DiskReader) *Disk {
	return &Disk{Handler: hD, ChunkSectors: 64, Threshold: 0.5}
}

func scanners() []FS.Scanner {
	return []FS.Scanner{ntfsLib.NewScanner(4096)}
}

func TestDiscoverPartitions(t *testing.T) {
	disk := newDisk(buildImage().Reader())
	require.NoError(t, disk.DiscoverPartitions())

	require.Len(t, disk.Partitions, 1)
	assert.Equal(t, testVolume.Start, disk.Partitions[0].GetOffset())

	listing := disk.ListPartitions()
	require.Len(t, listing, 2)
	assert.Equal(t, "MBR:", listing[0])
	assert.Contains(t, listing[1], "MBR #1")
}

func TestDiscoverPartitionsOnBareVolume(t *testing.T) {
	image := ntfstest.NewImage(imageSize)
	image.PutBoot(ntfstest.Volume{ClusterSize: 4096, TotalSectors: 2047, MFTCluster: 4, MirrCluster: 2})

	disk := newDisk(image.Reader())
	assert.ErrorIs(t, disk.DiscoverPartitions(), ErrNTFSVol)
}

func TestScan(t *testing.T) {
	disk := newDisk(buildImage().Reader())
	require.NoError(t, disk.DiscoverPartitions())

	st := state.New("memory", imageSize, 512)
	partitions, err := disk.Scan(scanners(), st)
	require.NoError(t, err)
	require.Len(t, partitions, 1)

	part := partitions[0]
	assert.Equal(t, testVolume.Start, part.Offset)
	assert.True(t, part.Declared)
	assert.Contains(t, part.TableEntry, "MBR #1")
	assert.Equal(t, "CASE", part.Label)
	assert.Contains(t, part.Records, uint64(31))

	require.NoError(t, part.Rebuild())
	assert.True(t, part.Recoverable())
	node := part.Get("docs/a.txt", nil)
	require.NotNil(t, node)
	assert.Equal(t, uint64(31), node.ID)

	assert.True(t, st.Complete)
	assert.Equal(t, int64(imageSize/512), st.NextSector)
	assert.Contains(t, st.Interesting, testVolume.Start)
	assert.Contains(t, st.Interesting, testVolume.RecordOffset(31))
}

func TestScanSkipsUnreadableSectors(t *testing.T) {
	reader := buildImage().Reader()
	bad := testVolume.RecordOffset(31)
	reader.Unreadable = [][2]int64{{bad, bad + 512}}

	disk := newDisk(reader)
	st := state.New("memory", imageSize, 512)
	partitions, err := disk.Scan(scanners(), st)
	require.NoError(t, err)
	require.Len(t, partitions, 1)

	records := partitions[0].Records
	assert.NotContains(t, records, uint64(31))
	assert.Contains(t, records, uint64(30))
	assert.Contains(t, records, uint64(32))
	assert.True(t, st.Complete)
}

func TestScanResumesFromState(t *testing.T) {
	image := buildImage()

	st := state.New("memory", imageSize, 512)
	first, err := newDisk(image.Reader()).Scan(scanners(), st)
	require.NoError(t, err)
	require.Len(t, first, 1)

	reader := &countingReader{DiskReader: image.Reader()}
	second, err := newDisk(reader).Scan(scanners(), st)
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.Equal(t, len(first[0].Records), len(second[0].Records))
	assert.Equal(t, first[0].ID, second[0].ID)
	// interesting sectors plus the record and boot rereads, no forward pass
	assert.Less(t, reader.reads, imageSize/512)
}

func TestScanContinuesPartialState(t *testing.T) {
	image := buildImage()

	full := state.New("memory", imageSize, 512)
	_, err := newDisk(image.Reader()).Scan(scanners(), full)
	require.NoError(t, err)

	cut := testVolume.RecordOffset(31)
	partial := state.New("memory", imageSize, 512)
	partial.NextSector = cut / 512
	for _, offset := range full.Interesting {
		if offset < cut {
			partial.MarkInteresting(offset)
		}
	}

	partitions, err := newDisk(image.Reader()).Scan(scanners(), partial)
	require.NoError(t, err)
	require.Len(t, partitions, 1)
	assert.Contains(t, partitions[0].Records, uint64(30))
	assert.Contains(t, partitions[0].Records, uint64(32))
	assert.True(t, partial.Complete)
	assert.ElementsMatch(t, full.Interesting, partial.Interesting)
}

func TestScanResetsMismatchedState(t *testing.T) {
	st := state.New("memory", 4096, 512)
	st.Complete = true
	st.MarkInteresting(0)

	partitions, err := newDisk(buildImage().Reader()).Scan(scanners(), st)
	require.NoError(t, err)
	require.Len(t, partitions, 1)
	assert.Equal(t, int64(imageSize), st.ImageSize)
	assert.Contains(t, partitions[0].Records, uint64(5))
}

func TestScanKeepsZeroThreshold(t *testing.T) {
	disk := newDisk(buildImage().Reader())
	disk.Threshold = 0

	partitions, err := disk.Scan(scanners(), state.New("memory", imageSize, 512))
	require.NoError(t, err)
	require.Len(t, partitions, 1)
	assert.Zero(t, partitions[0].Threshold)
}

func TestScanCheckpoints(t *testing.T) {
	image := buildImage()

	full := state.New("memory", imageSize, 512)
	_, err := newDisk(image.Reader()).Scan(scanners(), full)
	require.NoError(t, err)

	var checkpoints []state.ScanState
	disk := newDisk(image.Reader())
	disk.CheckpointEvery = imageSize / 4
	disk.Checkpoint = func(st *state.ScanState) {
		saved := *st
		saved.Interesting = append([]int64(nil), st.Interesting...)
		checkpoints = append(checkpoints, saved)
	}
	st := state.New("memory", imageSize, 512)
	_, err = disk.Scan(scanners(), st)
	require.NoError(t, err)

	require.Len(t, checkpoints, 3)
	for i, saved := range checkpoints {
		assert.False(t, saved.Complete)
		assert.Equal(t, int64((i+1)*imageSize/4/512), saved.NextSector)
	}

	// a scan interrupted after the second checkpoint picks up where it stopped
	resumed := checkpoints[1]
	partitions, err := newDisk(image.Reader()).Scan(scanners(), &resumed)
	require.NoError(t, err)
	require.Len(t, partitions, 1)
	assert.Contains(t, partitions[0].Records, uint64(31))
	assert.True(t, resumed.Complete)
	assert.ElementsMatch(t, full.Interesting, resumed.Interesting)
}

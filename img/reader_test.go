package img

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectMode(t *testing.T) {
	tests := map[string]string{
		"case/disk.E01":      "ewf",
		"vm/disk.vmdk":       "vmdk",
		"/dev/sdb":           "device",
		`\\.\PhysicalDrive0`: "device",
		"disk.dd":            "raw",
	}
	for path, want := range tests {
		assert.Equal(t, want, DetectMode(path), path)
	}
}

func TestRawReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))

	hD, err := GetHandler(path, "auto")
	require.NoError(t, err)
	defer hD.CloseHandler()

	assert.Equal(t, int64(10), hD.GetDiskSize())
	data, err := hD.ReadFile(2, 4)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(data))

	data, err = hD.ReadFile(8, 4)
	require.NoError(t, err)
	assert.Equal(t, "89", string(data))

	_, err = hD.ReadFile(10, 1)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = GetHandler(path, "floppy")
	assert.Error(t, err)
	_, err = GetHandler(filepath.Join(t.TempDir(), "missing.img"), "raw")
	assert.Error(t, err)
}

func TestMemoryReader(t *testing.T) {
	hD := &MemoryReader{Data: make([]byte, 2048), Unreadable: [][2]int64{{512, 1024}}}

	_, err := hD.ReadFile(0, 1024)
	assert.Error(t, err)
	data, err := hD.ReadFile(1024, 4096)
	require.NoError(t, err)
	assert.Len(t, data, 1024)
	_, err = hD.ReadFile(2048, 1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestVMDKReaderRejects(t *testing.T) {
	reader := VMDKReader{PathToEvidenceFiles: "disk.img"}
	assert.Error(t, reader.CreateHandler())
	assert.Zero(t, reader.GetDiskSize())

	_, err := reader.ReadFile(0, 512)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

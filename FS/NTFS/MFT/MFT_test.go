package MFT

import (
	"encoding/binary"
	"testing"

	MFTAttributes "github.com/aarsakian/FSRecover/FS/NTFS/MFT/attributes"
	"github.com/aarsakian/FSRecover/FS/NTFS/ntfstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessValidRecord(t *testing.T) {
	data := ntfstest.BuildRecord(ntfstest.File{
		Entry: 42, Parent: 5, Name: "a.txt", Resident: []byte("hello"),
	}, 1024)

	var record Record
	require.NoError(t, record.Process(data))

	assert.Equal(t, uint32(42), record.Entry)
	assert.True(t, record.IsInUse())
	assert.False(t, record.IsFolder())
	assert.False(t, record.IsExtension())
	assert.Equal(t, "a.txt", record.GetFname())
	assert.Equal(t, uint64(5), record.GetBestFNAttribute().ParRef)
	assert.True(t, record.HasAttr(MFTAttributes.StandardInformation))

	dataAttr := record.GetUnnamedData()
	require.NotNil(t, dataAttr)
	assert.False(t, dataAttr.IsNoNResident())
	assert.Equal(t, []byte("hello"), dataAttr.Content)
	assert.Equal(t, uint64(5), dataAttr.GetRealSize())
}

func TestProcessLeavesInputUntouched(t *testing.T) {
	data := ntfstest.BuildRecord(ntfstest.File{Entry: 7, Parent: 5, Name: "x"}, 1024)
	original := append([]byte{}, data...)

	var record Record
	require.NoError(t, record.Process(data))
	assert.Equal(t, original, data)
}

func TestProcessNonResidentData(t *testing.T) {
	data := ntfstest.BuildRecord(ntfstest.File{
		Entry: 64, Parent: 5, Name: "big.bin", RealSize: 10000,
		Runs: []ntfstest.Run{{LCN: 100, Length: 2}, {Length: 1, Sparse: true}, {LCN: 50, Length: 1}},
	}, 1024)

	var record Record
	require.NoError(t, record.Process(data))

	dataAttr := record.GetUnnamedData()
	require.NotNil(t, dataAttr)
	assert.True(t, dataAttr.IsNoNResident())
	assert.Equal(t, uint64(10000), dataAttr.GetRealSize())
	assert.Equal(t, MFTAttributes.RunList{
		{VCN: 0, Offset: 100, Length: 2},
		{VCN: 2, Length: 1, Sparse: true},
		{VCN: 3, Offset: 50, Length: 1},
	}, dataAttr.GetRunList())
}

func TestProcessRejects(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func([]byte)
		expected error
	}{
		{
			name:     "BAAD signature",
			mutate:   func(data []byte) { copy(data[0:4], "BAAD") },
			expected: ErrBadSignature,
		},
		{
			name:     "garbage signature",
			mutate:   func(data []byte) { copy(data[0:4], "XXXX") },
			expected: ErrBadSignature,
		},
		{
			name:     "torn write in second sector",
			mutate:   func(data []byte) { data[1022] ^= 0xff },
			expected: ErrFixup,
		},
		{
			name:     "update array count does not match size",
			mutate:   func(data []byte) { binary.LittleEndian.PutUint16(data[6:8], 5) },
			expected: ErrFixup,
		},
		{
			name:     "used size beyond allocation",
			mutate:   func(data []byte) { binary.LittleEndian.PutUint32(data[24:28], 4096) },
			expected: ErrLayout,
		},
		{
			name:     "first attribute outside record",
			mutate:   func(data []byte) { binary.LittleEndian.PutUint16(data[20:22], 2000) },
			expected: ErrLayout,
		},
		{
			name:     "allocated size not a sector multiple",
			mutate:   func(data []byte) { binary.LittleEndian.PutUint32(data[28:32], 1000) },
			expected: ErrLayout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := ntfstest.BuildRecord(ntfstest.File{Entry: 9, Parent: 5, Name: "f"}, 1024)
			tt.mutate(data)

			var record Record
			assert.ErrorIs(t, record.Process(data), tt.expected)
		})
	}
}

func TestProcessKeepsAttributesBeforeDamage(t *testing.T) {
	data := ntfstest.BuildRecord(ntfstest.File{
		Entry: 12, Parent: 5, Name: "a.txt", Resident: []byte("payload"),
	}, 1024)
	// first attribute at 56, $SI takes 96 bytes and $FN 104, $DATA starts at 256
	binary.LittleEndian.PutUint32(data[24:28], 270)

	var record Record
	require.NoError(t, record.Process(data))
	assert.Equal(t, "a.txt", record.GetFname())
	assert.Nil(t, record.GetUnnamedData())
}

func TestProcessExtensionRecord(t *testing.T) {
	data := ntfstest.BuildRecord(ntfstest.File{Entry: 80, Parent: 5, Name: "ext", BaseRef: 40 | 3<<48}, 1024)

	var record Record
	require.NoError(t, record.Process(data))
	assert.True(t, record.IsExtension())
}

func TestGetBestFNAttributePrefersLongNames(t *testing.T) {
	header := &MFTAttributes.AttributeHeader{Type: MFTAttributes.FileName}
	record := Record{Attributes: []Attribute{
		&MFTAttributes.FNAttribute{Nspace: 2, Fname: "AFILE~1.TXT", Header: header},
		&MFTAttributes.FNAttribute{Nspace: 1, Fname: "a file.txt", Header: header},
	}}
	assert.Equal(t, "a file.txt", record.GetFname())

	record = Record{Attributes: []Attribute{
		&MFTAttributes.FNAttribute{Nspace: 2, Fname: "AFILE~1.TXT", Header: header},
	}}
	assert.Equal(t, "AFILE~1.TXT", record.GetFname())

	assert.Equal(t, "", Record{}.GetFname())
}

func TestPeekAllocSize(t *testing.T) {
	data := ntfstest.BuildRecord(ntfstest.File{Entry: 1, Name: "m"}, 4096)
	assert.Equal(t, 4096, PeekAllocSize(data))
	assert.Equal(t, 0, PeekAllocSize(data[:10]))

	var record Record
	require.NoError(t, record.Process(data))
	assert.Equal(t, uint32(1), record.Entry)
}

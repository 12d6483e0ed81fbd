package attributes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessRunList(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		startVCN    uint64
		expected    RunList
		expectError bool
	}{
		{
			name:     "single run",
			data:     []byte{0x21, 0x10, 0x00, 0x01, 0x00},
			expected: RunList{{VCN: 0, Offset: 256, Length: 16}},
		},
		{
			name: "negative relative offset",
			data: []byte{0x21, 0x08, 0x00, 0x02, 0x21, 0x04, 0x00, 0xff, 0x00},
			expected: RunList{
				{VCN: 0, Offset: 512, Length: 8},
				{VCN: 8, Offset: 256, Length: 4},
			},
		},
		{
			name: "sparse run keeps the previous cluster",
			data: []byte{0x21, 0x02, 0x00, 0x01, 0x01, 0x04, 0x11, 0x02, 0x10, 0x00},
			expected: RunList{
				{VCN: 0, Offset: 256, Length: 2},
				{VCN: 2, Length: 4, Sparse: true},
				{VCN: 6, Offset: 272, Length: 2},
			},
		},
		{
			name:     "extension attribute starts past zero",
			data:     []byte{0x11, 0x04, 0x20, 0x00},
			startVCN: 100,
			expected: RunList{{VCN: 100, Offset: 32, Length: 4}},
		},
		{
			name:        "oversized field",
			data:        []byte{0x91, 0x01, 0x00},
			expectError: true,
		},
		{
			name:        "pair cut short",
			data:        []byte{0x21, 0x08},
			expectError: true,
		},
		{
			name:        "cluster before the volume",
			data:        []byte{0x11, 0x04, 0xf0, 0x00},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runlist, err := ProcessRunList(tt.data, tt.startVCN)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrBadRunList)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, runlist)
		})
	}
}

func TestRunListTotalClusters(t *testing.T) {
	runlist := RunList{{Length: 3}, {Length: 5, Sparse: true}, {Length: 1}}
	assert.Equal(t, uint64(9), runlist.TotalClusters())
}

func TestFNAttributeParse(t *testing.T) {
	data := make([]byte, 66+8)
	data[0] = 0x05
	data[64] = 4
	data[65] = 1
	copy(data[66:], []byte{'t', 0, 'e', 0, 's', 0, 't', 0})

	var fnattr FNAttribute
	require.NoError(t, fnattr.Parse(data))
	assert.Equal(t, uint64(5), fnattr.ParRef)
	assert.Equal(t, "test", fnattr.Fname)
	assert.Equal(t, "Win32", fnattr.GetFileNameType())

	data[64] = 40
	assert.Error(t, fnattr.Parse(data))
}

func TestSIAttributeParseShortVersion(t *testing.T) {
	data := make([]byte, 48)
	data[32] = 0x20

	var siattr SIAttribute
	require.NoError(t, siattr.Parse(data))
	assert.Equal(t, uint32(0x20), siattr.Dos)
	assert.Zero(t, siattr.Usn)

	assert.Error(t, siattr.Parse(make([]byte, 20)))
}

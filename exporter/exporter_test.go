package exporter

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aarsakian/FSRecover/FS"
	"github.com/aarsakian/FSRecover/filtermanager"
	"github.com/aarsakian/FSRecover/filters"
	"github.com/aarsakian/FSRecover/img"
	"github.com/aarsakian/FSRecover/tree"
	"github.com/aarsakian/FSRecover/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2020, 5, 17, 10, 30, 0, 0, time.UTC)

func testImage() *img.MemoryReader {
	data := make([]byte, 64*1024)
	for i := 0; i < 4096; i++ {
		data[8192+i] = byte(i % 251)
		data[20480+i] = 0xAB
	}
	return &img.MemoryReader{Data: data}
}

func testTree() *tree.Result {
	records := map[uint64]FS.Record{
		5:  {ID: 5, ParentID: 5, HasParent: true, Name: ".", IsDirectory: true},
		30: {ID: 30, ParentID: 5, HasParent: true, Name: "docs", IsDirectory: true,
			Times: FS.Timestamps{Created: created}},
		31: {ID: 31, ParentID: 30, HasParent: true, Name: "note.txt", Size: 5, Resident: []byte("hello")},
		32: {ID: 32, ParentID: 30, HasParent: true, Name: "old.bin", IsDeleted: true, Size: 3*4096 - 100,
			Extents: []FS.Extent{{Offset: 8192, Length: 4096}, {Length: 4096, Sparse: true}, {Offset: 20480, Length: 4096 - 100}}},
		40: {ID: 40, ParentID: 77, HasParent: true, Name: "stray.dat", Size: 1},
	}
	return tree.Build(records, 5, 0.5, "test")
}

func TestRestoreFidelity(t *testing.T) {
	hD := testImage()
	result := testTree()
	dir := t.TempDir()

	exp := Exporter{Location: dir, IncludeDeleted: true, Hash: "MD5"}
	restored, err := exp.Restore(hD, result.Root, nil)
	require.NoError(t, err)
	require.Len(t, restored, 2)

	content, err := os.ReadFile(filepath.Join(dir, "Root", "docs", "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	content, err = os.ReadFile(filepath.Join(dir, "Root", "docs", "old.bin"))
	require.NoError(t, err)
	want := append([]byte{}, hD.Data[8192:12288]...)
	want = append(want, make([]byte, 4096)...)
	want = append(want, hD.Data[20480:20480+3996]...)
	assert.Equal(t, want, content)

	for _, file := range restored {
		if file.ID == 32 {
			assert.Equal(t, utils.GetMD5(want), file.Hash)
		}
	}
}

func TestRestoreSkipsDeleted(t *testing.T) {
	dir := t.TempDir()
	restored, err := Exporter{Location: dir}.Restore(testImage(), testTree().Root, nil)
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.Equal(t, uint64(31), restored[0].ID)
	assert.NoFileExists(t, filepath.Join(dir, "Root", "docs", "old.bin"))
}

func TestRestoreFiltered(t *testing.T) {
	var fm filtermanager.FilterManager
	fm.Register(filters.ExtensionsFilter{Extensions: []string{"bin"}})

	dir := t.TempDir()
	exp := Exporter{Location: dir, IncludeDeleted: true}
	restored, err := exp.Restore(testImage(), testTree().Root, &fm)
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.Equal(t, uint64(32), restored[0].ID)
	assert.DirExists(t, filepath.Join(dir, "Root", "docs"))
}

func TestRestoreUnreadableExtent(t *testing.T) {
	hD := testImage()
	hD.Unreadable = [][2]int64{{8192, 8704}}

	dir := t.TempDir()
	exp := Exporter{Location: dir, IncludeDeleted: true}
	node := testTree().Index[32]
	_, err := exp.Restore(hD, node, nil)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "old.bin"))
	require.NoError(t, err)
	assert.Len(t, content, 3*4096-100)
	assert.Equal(t, make([]byte, 8192), content[:8192])
	assert.Equal(t, hD.Data[20480:20480+3996], content[8192:])
}

func TestRestoreWithoutExtents(t *testing.T) {
	records := map[uint64]FS.Record{
		5:  {ID: 5, ParentID: 5, HasParent: true, Name: ".", IsDirectory: true},
		30: {ID: 30, ParentID: 5, HasParent: true, Name: "report.docx", Size: 10000},
		31: {ID: 31, ParentID: 5, HasParent: true, Name: "empty.txt"},
	}
	result := tree.Build(records, 5, 0.5, "test")

	dir := t.TempDir()
	restored, err := Exporter{Location: dir}.Restore(testImage(), result.Root, nil)
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.Equal(t, uint64(31), restored[0].ID)
	assert.NoFileExists(t, filepath.Join(dir, "Root", "report.docx"))
	assert.FileExists(t, filepath.Join(dir, "Root", "empty.txt"))

	entry := tree.Entry{Node: result.Index[30]}
	err = Exporter{}.CreateFile(testImage(), filepath.Join(dir, "report.docx"), entry)
	assert.ErrorIs(t, err, ErrNoExtents)
	assert.NoFileExists(t, filepath.Join(dir, "report.docx"))
}

func TestRestoreRejectsHash(t *testing.T) {
	_, err := Exporter{Location: t.TempDir(), Hash: "SHA256"}.Restore(testImage(), testTree().Root, nil)
	assert.ErrorIs(t, err, ErrUnsupportedHash)
}

func TestWriteTree(t *testing.T) {
	result := testTree()
	var buf bytes.Buffer
	require.NoError(t, WriteTree(&buf, false, result.Root, result.Lost))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "Root (Id: 5)", lines[0])
	assert.Equal(t, "  docs (Id: 30)", lines[1])
	assert.Equal(t, "    note.txt (Id: 31, Size: 5 B)", lines[2])
	assert.Contains(t, lines[3], "old.bin (Id: 32")
	assert.Contains(t, lines[3], "[deleted]")
	assert.Equal(t, "LostFiles", lines[4])
	assert.Equal(t, "  stray.dat (Id: 40, Size: 1 B) [parent 77]", lines[5])
}

func TestWriteCSV(t *testing.T) {
	result := testTree()
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, result.Root, result.Lost))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, csvHeader, rows[0])

	byID := make(map[string][]string)
	for _, row := range rows[1:] {
		byID[row[0]] = row
	}
	assert.Equal(t, "Root/docs", byID["30"][3])
	assert.Equal(t, "2020-05-17 10:30:00", byID["30"][6])
	assert.Equal(t, "30", byID["32"][1])
	assert.Equal(t, "true", byID["32"][11])
	assert.Equal(t, "77", byID["40"][1])
	assert.Equal(t, "orphan", byID["40"][12])
}

func TestWriteBodyfile(t *testing.T) {
	result := testTree()
	var buf bytes.Buffer
	require.NoError(t, WriteBodyfile(&buf, result.Root, result.Lost))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "# ---Full paths---\n"))
	assert.Contains(t, out, "# ---Orphaned files---\n")
	assert.Contains(t, out, "0|Root/docs|30|d/drwxrwxrwx|0|0|0|0|0|0|1589711400\n")
	assert.Contains(t, out, "0|Root/docs/old.bin (deleted)|32|r/rrwxrwxrwx|0|0|12188|")
	assert.Contains(t, out, "0|LostFiles/stray.dat|40|")
	assert.Less(t, strings.Index(out, "Root/docs"), strings.Index(out, "Orphaned"))
}

func TestWriteGraph(t *testing.T) {
	result := testTree()
	var buf bytes.Buffer
	require.NoError(t, WriteGraph(&buf, "Partition 0", result.Root, result.Lost))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "digraph \"Partition 0\" {\n"))
	assert.Contains(t, out, "id5 -> id30;")
	assert.Contains(t, out, "id30 -> id32;")
	assert.Contains(t, out, "lostfiles -> id40;")
	assert.Contains(t, out, "color=red")
	assert.True(t, strings.HasSuffix(out, "}\n"))
}

type shortWriter struct {
	room int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.room {
		return 0, errors.New("disk full")
	}
	w.room -= len(p)
	return len(p), nil
}

func TestWriteGraphWriteError(t *testing.T) {
	result := testTree()
	var buf bytes.Buffer
	require.NoError(t, WriteGraph(&buf, "Partition 0", result.Root))
	header := len("digraph \"Partition 0\" {\n")

	// fail on the first node line and then on the first edge line
	for _, room := range []int{header, strings.Index(buf.String(), "  id5 ->")} {
		err := WriteGraph(&shortWriter{room: room}, "Partition 0", result.Root)
		assert.EqualError(t, err, "disk full")
	}
}

func TestUseColor(t *testing.T) {
	assert.True(t, UseColor("always", nil))
	assert.False(t, UseColor("never", os.Stdout))
	assert.False(t, UseColor("auto", nil))
}

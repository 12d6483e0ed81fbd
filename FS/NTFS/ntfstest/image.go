// Package ntfstest builds small synthetic NTFS images for tests.
package ntfstest

import (
	"encoding/binary"
	"time"

	"github.com/aarsakian/FSRecover/img"
	"golang.org/x/text/encoding/unicode"
)

const (
	SectorSize        = 512
	DefaultRecordSize = 1024
	usn               = 0x0001
)

// Run is a data run with an absolute cluster number.
type Run struct {
	LCN    int64
	Length uint64
	Sparse bool
}

// File describes the MFT record to generate.
type File struct {
	Entry      uint32
	Parent     uint64
	Name       string
	NameSpace  uint8
	Directory  bool
	Deleted    bool
	Resident   []byte
	Runs       []Run
	RealSize   uint64
	Created    time.Time
	NoFileName bool
	VolumeName string
	BaseRef    uint64
}

type Volume struct {
	Start        int64
	ClusterSize  int64
	TotalSectors uint64
	MFTCluster   int64
	MirrCluster  int64
	RecordSize   int
	Serial       uint64
}

func (vol Volume) recordSize() int {
	if vol.RecordSize == 0 {
		return DefaultRecordSize
	}
	return vol.RecordSize
}

func (vol Volume) MFTOffset() int64 {
	return vol.Start + vol.MFTCluster*vol.ClusterSize
}

func (vol Volume) MirrOffset() int64 {
	return vol.Start + vol.MirrCluster*vol.ClusterSize
}

func (vol Volume) RecordOffset(entry uint32) int64 {
	return vol.MFTOffset() + int64(entry)*int64(vol.recordSize())
}

func (vol Volume) BackupBootOffset() int64 {
	return vol.Start + int64(vol.TotalSectors)*SectorSize
}

// ClusterOffset is the image position of a cluster of this volume.
func (vol Volume) ClusterOffset(lcn int64) int64 {
	return vol.Start + lcn*vol.ClusterSize
}

func (vol Volume) Boot() []byte {
	buf := make([]byte, SectorSize)
	copy(buf[0:3], []byte{0xeb, 0x52, 0x90})
	copy(buf[3:11], "NTFS    ")
	binary.LittleEndian.PutUint16(buf[11:13], SectorSize)
	buf[13] = byte(vol.ClusterSize / SectorSize)
	buf[21] = 0xf8
	binary.LittleEndian.PutUint64(buf[40:48], vol.TotalSectors)
	binary.LittleEndian.PutUint64(buf[48:56], uint64(vol.MFTCluster))
	binary.LittleEndian.PutUint64(buf[56:64], uint64(vol.MirrCluster))
	recordSizeRaw := int8(0)
	for size := vol.recordSize(); size > 1; size >>= 1 {
		recordSizeRaw--
	}
	buf[64] = byte(recordSizeRaw)
	buf[68] = 0x01
	binary.LittleEndian.PutUint64(buf[72:80], vol.Serial)
	binary.LittleEndian.PutUint16(buf[510:512], 0xaa55)
	return buf
}

// MFTFile is record 0 with a $DATA runlist covering the given clusters.
func (vol Volume) MFTFile(runs ...Run) File {
	if len(runs) == 0 {
		runs = []Run{{LCN: vol.MFTCluster, Length: 16}}
	}
	size := uint64(0)
	for _, run := range runs {
		size += run.Length * uint64(vol.ClusterSize)
	}
	return File{Entry: 0, Parent: 5, Name: "$MFT", Runs: runs, RealSize: size}
}

func RootDir() File {
	return File{Entry: 5, Parent: 5, Name: ".", Directory: true}
}

type Image struct {
	Data []byte
}

func NewImage(size int) *Image {
	return &Image{Data: make([]byte, size)}
}

func (image *Image) Put(offset int64, data []byte) {
	copy(image.Data[offset:], data)
}

func (image *Image) PutBoot(vol Volume) {
	image.Put(vol.Start, vol.Boot())
}

func (image *Image) PutBackupBoot(vol Volume) {
	image.Put(vol.BackupBootOffset(), vol.Boot())
}

func (image *Image) PutRecord(vol Volume, file File) {
	image.Put(vol.RecordOffset(file.Entry), BuildRecord(file, vol.recordSize()))
}

func (image *Image) PutMirrorRecord(vol Volume, file File) {
	offset := vol.MirrOffset() + int64(file.Entry)*int64(vol.recordSize())
	image.Put(offset, BuildRecord(file, vol.recordSize()))
}

func (image *Image) Reader() *img.MemoryReader {
	return &img.MemoryReader{Data: image.Data}
}

// Feeder is the part of a filesystem scanner the helpers drive.
type Feeder interface {
	Feed(offset int64, sector []byte) bool
}

// FeedAll passes every sector of the image to the scanner.
func (image *Image) FeedAll(scanner Feeder) {
	for offset := 0; offset+SectorSize <= len(image.Data); offset += SectorSize {
		scanner.Feed(int64(offset), image.Data[offset:offset+SectorSize])
	}
}

func align8(n int) int {
	return (n + 7) &^ 7
}

func encodeName(name string) []byte {
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(name))
	if err != nil {
		panic(err)
	}
	return encoded
}

func windowsTime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100) + 116444736000000000
}

func resident(attrType uint32, id uint16, content []byte) []byte {
	length := align8(24 + len(content))
	buf := make([]byte, length)
	binary.LittleEndian.PutUint32(buf[0:4], attrType)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(length))
	binary.LittleEndian.PutUint16(buf[10:12], 0x18)
	binary.LittleEndian.PutUint16(buf[14:16], id)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(content)))
	binary.LittleEndian.PutUint16(buf[20:22], 24)
	copy(buf[24:], content)
	return buf
}

func nonResident(attrType uint32, id uint16, runs []Run, realSize uint64, clusters uint64) []byte {
	runlist := EncodeRunList(runs)
	length := align8(64 + len(runlist))
	buf := make([]byte, length)
	binary.LittleEndian.PutUint32(buf[0:4], attrType)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(length))
	buf[8] = 1
	binary.LittleEndian.PutUint16(buf[10:12], 0x40)
	binary.LittleEndian.PutUint16(buf[14:16], id)
	if clusters > 0 {
		binary.LittleEndian.PutUint64(buf[24:32], clusters-1)
	}
	binary.LittleEndian.PutUint16(buf[32:34], 64)
	binary.LittleEndian.PutUint64(buf[40:48], clusters)
	binary.LittleEndian.PutUint64(buf[48:56], realSize)
	binary.LittleEndian.PutUint64(buf[56:64], realSize)
	copy(buf[64:], runlist)
	return buf
}

func minimalBytes(val int64, signed bool) []byte {
	var out []byte
	for {
		b := byte(val)
		out = append(out, b)
		val >>= 8
		if signed {
			if (val == 0 && b&0x80 == 0) || (val == -1 && b&0x80 != 0) {
				return out
			}
		} else if val == 0 {
			return out
		}
	}
}

// EncodeRunList writes mapping pairs with offsets relative to the previous run.
func EncodeRunList(runs []Run) []byte {
	var buf []byte
	prev := int64(0)
	for _, run := range runs {
		lengthBytes := minimalBytes(int64(run.Length), false)
		var offsetBytes []byte
		if !run.Sparse {
			offsetBytes = minimalBytes(run.LCN-prev, true)
			prev = run.LCN
		}
		buf = append(buf, byte(len(offsetBytes)<<4|len(lengthBytes)))
		buf = append(buf, lengthBytes...)
		buf = append(buf, offsetBytes...)
	}
	return append(buf, 0)
}

// BuildRecord lays out a FILE record with standard information, file name
// and data attributes and protects it with fixups.
func BuildRecord(file File, recordSize int) []byte {
	buf := make([]byte, recordSize)
	usaCount := recordSize/SectorSize + 1

	copy(buf[0:4], "FILE")
	binary.LittleEndian.PutUint16(buf[4:6], 0x30)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(usaCount))
	binary.LittleEndian.PutUint16(buf[16:18], 1)
	binary.LittleEndian.PutUint16(buf[18:20], 1)
	firstAttrOffset := align8(0x30 + 2*usaCount)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(firstAttrOffset))
	flags := uint16(0)
	if !file.Deleted {
		flags |= 0x01
	}
	if file.Directory {
		flags |= 0x02
	}
	binary.LittleEndian.PutUint16(buf[22:24], flags)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(recordSize))
	binary.LittleEndian.PutUint64(buf[32:40], file.BaseRef)
	binary.LittleEndian.PutUint32(buf[44:48], file.Entry)

	stamp := windowsTime(file.Created)
	var attrs [][]byte

	si := make([]byte, 72)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(si[i*8:i*8+8], stamp)
	}
	attrs = append(attrs, resident(0x10, 0, si))

	if !file.NoFileName {
		name := encodeName(file.Name)
		fn := make([]byte, 66+len(name))
		binary.LittleEndian.PutUint64(fn[0:8], file.Parent&0x0000ffffffffffff|1<<48)
		for i := 0; i < 4; i++ {
			binary.LittleEndian.PutUint64(fn[8+i*8:16+i*8], stamp)
		}
		binary.LittleEndian.PutUint64(fn[48:56], file.RealSize)
		fn[64] = byte(len(name) / 2)
		nameSpace := file.NameSpace
		if nameSpace == 0 {
			nameSpace = 1
		}
		fn[65] = nameSpace
		copy(fn[66:], name)
		attrs = append(attrs, resident(0x30, 1, fn))
	}

	if file.VolumeName != "" {
		attrs = append(attrs, resident(0x60, 2, encodeName(file.VolumeName)))
	}

	switch {
	case file.Runs != nil:
		clusters := uint64(0)
		for _, run := range file.Runs {
			clusters += run.Length
		}
		attrs = append(attrs, nonResident(0x80, 3, file.Runs, file.RealSize, clusters))
	case file.Resident != nil:
		attrs = append(attrs, resident(0x80, 3, file.Resident))
	}

	ptr := firstAttrOffset
	for _, attr := range attrs {
		copy(buf[ptr:], attr)
		ptr += len(attr)
	}
	binary.LittleEndian.PutUint32(buf[ptr:ptr+4], 0xffffffff)
	ptr += 8
	binary.LittleEndian.PutUint32(buf[24:28], uint32(ptr))
	binary.LittleEndian.PutUint16(buf[40:42], 4)

	ApplyFixups(buf)
	return buf
}

// ApplyFixups moves the last two bytes of every sector into the update
// sequence array and stamps the sequence number in their place.
func ApplyFixups(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0x30:0x32], usn)
	for i := 1; i <= len(buf)/SectorSize; i++ {
		end := i * SectorSize
		copy(buf[0x30+2*i:0x32+2*i], buf[end-2:end])
		binary.LittleEndian.PutUint16(buf[end-2:end], usn)
	}
}

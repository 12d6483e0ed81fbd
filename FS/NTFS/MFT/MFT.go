package MFT

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	MFTAttributes "github.com/aarsakian/FSRecover/FS/NTFS/MFT/attributes"
	"github.com/aarsakian/FSRecover/logger"
	"github.com/aarsakian/FSRecover/utils"
)

var RecordSize = 1024

const (
	sectorSize       = 512
	headerLen        = 48
	usaOffsetNTFS31  = 0x30
	flagInUse        = 0x01
	flagDirectory    = 0x02
	baseRefEntryMask = 0x0000ffffffffffff
)

var (
	ErrBadSignature = errors.New("bad record signature")
	ErrFixup        = errors.New("update sequence mismatch")
	ErrLayout       = errors.New("inconsistent record layout")
)

var MFTflags = map[uint16]string{
	0: "File Unallocted", 1: "File Allocated", 2: "Folder Unalloc", 3: "Folder Allocated",
}

type Attribute interface {
	FindType() string
	SetHeader(header *MFTAttributes.AttributeHeader)
	GetHeader() MFTAttributes.AttributeHeader
	IsNoNResident() bool
	Parse([]byte) error
}

// MFT Record
type Record struct {
	Signature          string `bin:"4"` //0-3
	UpdateSeqArrOffset uint16 //4-5 offset values are relative to the start of the entry.
	UpdateSeqArrSize   uint16 //6-7
	Lsn                uint64 //8-15 logical File Sequence Number
	Seq                uint16 //16-17 incremented when the entry is either allocated or unallocated
	Linkcount          uint16 //18-19 how many directories have entries for this MFTentry
	AttrOff            uint16 //20-21 first attr location
	Flags              uint16 //22-23 tells whether entry is used or not
	Size               uint32 //24-27
	AllocSize          uint32 //28-31
	BaseRef            uint64 //32-39
	NextAttrID         uint16 //40-41
	F1                 uint16 //42-43
	Entry              uint32 //44-47
	Attributes         []Attribute
	Offset             int64 `bin:"-"` // position in the image
}

// PeekAllocSize reads the allocated size field without validating anything,
// so callers know how much to read before Process.
func PeekAllocSize(bs []byte) int {
	if len(bs) < 32 {
		return 0
	}
	return int(binary.LittleEndian.Uint32(bs[28:32]))
}

func (record *Record) applyFixups(bs []byte) error {
	usaOff := int(record.UpdateSeqArrOffset)
	count := int(record.UpdateSeqArrSize)
	if count-1 != len(bs)/sectorSize {
		return fmt.Errorf("%d update entries for %d sectors: %w", count-1, len(bs)/sectorSize, ErrFixup)
	}
	if usaOff < usaOffsetNTFS31 || usaOff%2 != 0 || usaOff+2*count > len(bs) {
		return fmt.Errorf("update sequence array at %d: %w", usaOff, ErrLayout)
	}

	usn := bs[usaOff : usaOff+2]
	for i := 1; i < count; i++ {
		pos := i*sectorSize - 2
		if !bytes.Equal(bs[pos:pos+2], usn) {
			return fmt.Errorf("sector %d: %w", i-1, ErrFixup)
		}
		copy(bs[pos:pos+2], bs[usaOff+2*i:usaOff+2*i+2])
	}
	return nil
}

// Process validates a FILE record, applies the fixups on a private copy and
// decodes the attributes it needs. Damage past the header only truncates the
// attribute list.
func (record *Record) Process(raw []byte) error {
	if len(raw) < headerLen {
		return fmt.Errorf("record of %d bytes: %w", len(raw), utils.ErrShortBuffer)
	}

	if err := utils.Unmarshal(raw[:headerLen], record); err != nil {
		return err
	}

	if record.Signature == "BAAD" {
		return fmt.Errorf("record marked BAAD: %w", ErrBadSignature)
	}
	if record.Signature != "FILE" {
		return fmt.Errorf("signature %q: %w", record.Signature, ErrBadSignature)
	}

	allocSize := int(record.AllocSize)
	if allocSize < sectorSize || allocSize%sectorSize != 0 || allocSize > len(raw) {
		return fmt.Errorf("allocated size %d: %w", allocSize, ErrLayout)
	}
	bs := make([]byte, allocSize)
	copy(bs, raw)

	if err := record.applyFixups(bs); err != nil {
		return err
	}

	if record.Size > record.AllocSize || record.Size < headerLen {
		return fmt.Errorf("used size %d of %d: %w", record.Size, record.AllocSize, ErrLayout)
	}
	usaEnd := uint32(record.UpdateSeqArrOffset) + 2*uint32(record.UpdateSeqArrSize)
	if uint32(record.AttrOff) < usaEnd || uint32(record.AttrOff) >= record.Size {
		return fmt.Errorf("first attribute at %d: %w", record.AttrOff, ErrLayout)
	}

	record.Attributes = nil
	err := record.processAttributes(bs[:record.Size])
	if err != nil {
		msg := fmt.Sprintf("record %d at %d: attribute list truncated %s", record.Entry, record.Offset, err)
		logger.FSRecoverlogger.Warning(msg)
	}
	return nil
}

func (record *Record) processAttributes(bs []byte) error {
	ReadPtr := int(record.AttrOff)
	for ReadPtr+4 <= len(bs) {
		if binary.LittleEndian.Uint32(bs[ReadPtr:ReadPtr+4]) == MFTAttributes.EndOfAttributes {
			return nil
		}
		if ReadPtr+16 > len(bs) {
			return fmt.Errorf("attribute header at %d: %w", ReadPtr, utils.ErrShortBuffer)
		}

		attrHeader := new(MFTAttributes.AttributeHeader)
		if err := utils.Unmarshal(bs[ReadPtr:ReadPtr+16], attrHeader); err != nil {
			return err
		}
		attrLen := int(attrHeader.AttrLen)
		if attrLen < 16 || attrLen%8 != 0 || ReadPtr+attrLen > len(bs) {
			return fmt.Errorf("attribute %s length %d at %d: %w", attrHeader.GetType(), attrLen, ReadPtr, ErrLayout)
		}
		attrBuf := bs[ReadPtr : ReadPtr+attrLen]

		if attrHeader.IsNamed() {
			nameStart := int(attrHeader.NameOff)
			nameEnd := nameStart + 2*int(attrHeader.Nlen)
			if nameEnd <= attrLen {
				attrHeader.Name = utils.DecodeUTF16(attrBuf[nameStart:nameEnd])
			}
		}

		var attr Attribute
		var err error
		if !attrHeader.IsNoNResident() {
			attr, err = processResident(attrHeader, attrBuf)
		} else {
			attr, err = processNonResident(attrHeader, attrBuf)
		}
		if err != nil {
			msg := fmt.Sprintf("record %d skipped attribute %s: %s", record.Entry, attrHeader.GetType(), err)
			logger.FSRecoverlogger.Warning(msg)
		} else if attr != nil {
			record.Attributes = append(record.Attributes, attr)
		}

		ReadPtr += attrLen
	}
	return nil
}

func processResident(attrHeader *MFTAttributes.AttributeHeader, attrBuf []byte) (Attribute, error) {
	if len(attrBuf) < 24 {
		return nil, fmt.Errorf("resident header: %w", utils.ErrShortBuffer)
	}
	atrRecordResident := new(MFTAttributes.ATRrecordResident)
	if err := utils.Unmarshal(attrBuf[16:24], atrRecordResident); err != nil {
		return nil, err
	}
	start := int(atrRecordResident.OffsetContent)
	end := start + int(atrRecordResident.ContentSize)
	if start < 24 || end > len(attrBuf) {
		return nil, fmt.Errorf("content %d-%d outside attribute: %w", start, end, ErrLayout)
	}
	attrHeader.ATRrecordResident = atrRecordResident

	var attr Attribute
	switch attrHeader.Type {
	case MFTAttributes.FileName:
		attr = &MFTAttributes.FNAttribute{}
	case MFTAttributes.StandardInformation:
		attr = &MFTAttributes.SIAttribute{}
	case MFTAttributes.Data:
		attr = &MFTAttributes.DATA{}
	case MFTAttributes.VolumeNameType:
		attr = &MFTAttributes.VolumeName{}
	default:
		return nil, nil
	}
	if err := attr.Parse(attrBuf[start:end]); err != nil {
		return nil, err
	}
	attr.SetHeader(attrHeader)
	return attr, nil
}

func processNonResident(attrHeader *MFTAttributes.AttributeHeader, attrBuf []byte) (Attribute, error) {
	if attrHeader.Type != MFTAttributes.Data {
		return nil, nil
	}
	if len(attrBuf) < 64 {
		return nil, fmt.Errorf("non resident header: %w", utils.ErrShortBuffer)
	}
	atrNoNRecordResident := new(MFTAttributes.ATRrecordNoNResident)
	if err := utils.Unmarshal(attrBuf[16:64], atrNoNRecordResident); err != nil {
		return nil, err
	}
	runOff := int(atrNoNRecordResident.RunOff)
	if runOff < 64 || runOff > len(attrBuf) {
		return nil, fmt.Errorf("runlist offset %d: %w", runOff, ErrLayout)
	}
	runlist, err := MFTAttributes.ProcessRunList(attrBuf[runOff:], atrNoNRecordResident.StartVcn)
	if err != nil {
		return nil, err
	}
	atrNoNRecordResident.RunList = runlist
	attrHeader.ATRrecordNoNResident = atrNoNRecordResident

	data := &MFTAttributes.DATA{}
	data.SetHeader(attrHeader)
	return data, nil
}

func (record Record) IsInUse() bool {
	return record.Flags&flagInUse != 0
}

func (record Record) IsDeleted() bool {
	return !record.IsInUse()
}

func (record Record) IsFolder() bool {
	return record.Flags&flagDirectory != 0
}

// IsExtension tells whether the record only holds overflow attributes of a base record.
func (record Record) IsExtension() bool {
	return record.BaseRef&baseRefEntryMask != 0
}

func (record Record) GetType() string {
	return MFTflags[record.Flags&(flagInUse|flagDirectory)]
}

func (record Record) FindAttribute(attrType uint32) Attribute {
	for _, attribute := range record.Attributes {
		if attribute.GetHeader().Type == attrType {
			return attribute
		}
	}
	return nil
}

func (record Record) HasAttr(attrType uint32) bool {
	return record.FindAttribute(attrType) != nil
}

func (record Record) GetFNAttributes() []*MFTAttributes.FNAttribute {
	var fnattrs []*MFTAttributes.FNAttribute
	for _, attribute := range record.Attributes {
		if fnattr, ok := attribute.(*MFTAttributes.FNAttribute); ok {
			fnattrs = append(fnattrs, fnattr)
		}
	}
	return fnattrs
}

// GetBestFNAttribute prefers the long names over the 8.3 ones.
func (record Record) GetBestFNAttribute() *MFTAttributes.FNAttribute {
	fnattrs := record.GetFNAttributes()
	for _, namescheme := range []string{"Win32", "POSIX", "Win32 & Dos", "Dos"} {
		for _, fnattr := range fnattrs {
			if fnattr.GetFileNameType() == namescheme {
				return fnattr
			}
		}
	}
	if len(fnattrs) > 0 {
		return fnattrs[0]
	}
	return nil
}

func (record Record) GetFname() string {
	fnattr := record.GetBestFNAttribute()
	if fnattr == nil {
		return ""
	}
	return fnattr.Fname
}

// GetUnnamedData returns the default data stream, ignoring alternate streams.
func (record Record) GetUnnamedData() *MFTAttributes.DATA {
	for _, attribute := range record.Attributes {
		data, ok := attribute.(*MFTAttributes.DATA)
		if ok && !data.Header.IsNamed() {
			return data
		}
	}
	return nil
}

func (record Record) GetVolumeName() string {
	attr := record.FindAttribute(MFTAttributes.VolumeNameType)
	if attr == nil {
		return ""
	}
	return attr.(*MFTAttributes.VolumeName).Name
}

package attributes

import (
	"fmt"

	"github.com/aarsakian/FSRecover/utils"
)

const fnHeaderLen = 66

var NameSpaceFlags = map[uint8]string{
	0: "POSIX", 1: "Win32", 2: "Dos", 3: "Win32 & Dos",
}

type FNAttribute struct {
	ParRef     uint64 `bin:"6"`
	ParSeq     uint16
	Crtime     utils.WindowsTime
	Mtime      utils.WindowsTime
	MFTmtime   utils.WindowsTime
	Atime      utils.WindowsTime
	AllocFsize uint64
	RealFsize  uint64
	Flags      uint32
	Reparse    uint32
	Nlen       uint8 //length of name in characters
	Nspace     uint8 //format of name
	Fname      string `bin:"-"`
	Header     *AttributeHeader
}

func (fnattr *FNAttribute) SetHeader(header *AttributeHeader) {
	fnattr.Header = header
}

func (fnattr FNAttribute) GetHeader() AttributeHeader {
	return *fnattr.Header
}

func (fnattr FNAttribute) FindType() string {
	return fnattr.Header.GetType()
}

func (fnAttr FNAttribute) IsNoNResident() bool {
	return fnAttr.Header.IsNoNResident()
}

func (fnAttr *FNAttribute) Parse(data []byte) error {
	if len(data) < fnHeaderLen {
		return fmt.Errorf("filename attribute %d bytes: %w", len(data), utils.ErrShortBuffer)
	}
	if err := utils.Unmarshal(data[:fnHeaderLen], fnAttr); err != nil {
		return err
	}
	nameEnd := fnHeaderLen + 2*int(fnAttr.Nlen)
	if nameEnd > len(data) {
		return fmt.Errorf("filename of %d chars overflows attribute: %w", fnAttr.Nlen, utils.ErrShortBuffer)
	}
	fnAttr.Fname = utils.DecodeUTF16(data[fnHeaderLen:nameEnd])
	return nil
}

func (fnAttr FNAttribute) GetFileNameType() string {
	return NameSpaceFlags[fnAttr.Nspace]
}

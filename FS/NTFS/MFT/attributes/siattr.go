package attributes

import (
	"fmt"

	"github.com/aarsakian/FSRecover/utils"
)

// NTFS 1.2 volumes stop after the dos flags, later versions carry 72 bytes.
const siMinLen = 36

type SIAttribute struct {
	Crtime   utils.WindowsTime
	Mtime    utils.WindowsTime
	MFTmtime utils.WindowsTime
	Atime    utils.WindowsTime
	Dos      uint32
	Maxver   uint32
	Ver      uint32
	ClassID  uint32
	OwnID    uint32
	SecID    uint32
	Quota    uint64
	Usn      uint64
	Header   *AttributeHeader
}

func (siattr *SIAttribute) SetHeader(header *AttributeHeader) {
	siattr.Header = header
}

func (siattr SIAttribute) GetHeader() AttributeHeader {
	return *siattr.Header
}

func (siattr SIAttribute) FindType() string {
	return siattr.Header.GetType()
}

func (siattr SIAttribute) IsNoNResident() bool {
	return siattr.Header.IsNoNResident() // always resident
}

func (siattr *SIAttribute) Parse(data []byte) error {
	if len(data) < siMinLen {
		return fmt.Errorf("standard information %d bytes: %w", len(data), utils.ErrShortBuffer)
	}
	buf := make([]byte, 72)
	copy(buf, data)
	return utils.Unmarshal(buf, siattr)
}

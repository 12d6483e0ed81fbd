package attributes

import (
	"errors"
	"fmt"

	"github.com/aarsakian/FSRecover/utils"
)

const (
	StandardInformation = 0x10
	AttributeList       = 0x20
	FileName            = 0x30
	ObjectID            = 0x40
	SecurityDescriptor  = 0x50
	VolumeNameType      = 0x60
	VolumeInformation   = 0x70
	Data                = 0x80
	IndexRoot           = 0x90
	IndexAllocation     = 0xa0
	BitMap              = 0xb0
	ReparsePoint        = 0xc0
	EndOfAttributes     = 0xffffffff
)

var AttrTypes = map[uint32]string{
	StandardInformation: "Standard Information", AttributeList: "Attribute List",
	FileName: "FileName", ObjectID: "Object ID",
	SecurityDescriptor: "Security Descriptor", VolumeNameType: "Volume Name",
	VolumeInformation: "Volume Information", Data: "DATA",
	IndexRoot: "Index Root", IndexAllocation: "Index Allocation",
	BitMap: "BitMap", ReparsePoint: "Reparse Point",
	0xe0: "Extended Attribute", 0xf0: "Extended Attribute Information",
	0x100: "Logged Utility Stream",
	EndOfAttributes: "Last",
}

var ErrBadRunList = errors.New("malformed runlist")

type AttributeHeader struct {
	Type                 uint32 //0-3 type of attribute e.g. $DATA
	AttrLen              uint32 //4-7
	NoNResident          uint8  //8
	Nlen                 uint8  //9
	NameOff              uint16 //10-11 relative to the start of attribute
	Flags                uint16 //12-13 compressed, encrypted, sparse
	ID                   uint16 //14-15
	ATRrecordResident    *ATRrecordResident
	ATRrecordNoNResident *ATRrecordNoNResident
	Name                 string `bin:"-"`
}

type ATRrecordResident struct {
	ContentSize   uint32 //16-19 size of resident attribute
	OffsetContent uint16 //20-21 offset to content
	IdxFlags      uint8  //22
	Padding       uint8  //23
}

type ATRrecordNoNResident struct {
	StartVcn     uint64 //16-23
	LastVcn      uint64 //24-31
	RunOff       uint16 //32-33 offset to the runlist
	Compusize    uint16 //34-35
	F1           uint32 //36-39
	Length       uint64 //40-47 allocated
	ActualLength uint64 //48-55
	InitLength   uint64 //56-63
	RunList      RunList
}

// Run is a fragment of a non resident attribute. Offset is the absolute
// cluster number once the relative runlist deltas have been summed.
type Run struct {
	VCN    uint64
	Offset int64
	Length uint64
	Sparse bool
}

type RunList []Run

func (attrHeader AttributeHeader) GetType() string {
	attrType, ok := AttrTypes[attrHeader.Type]
	if ok {
		return attrType
	}
	return fmt.Sprintf("%x", attrHeader.Type)
}

func (attrHeader AttributeHeader) IsLast() bool {
	return attrHeader.Type == EndOfAttributes
}

func (attrHeader AttributeHeader) IsNoNResident() bool {
	return attrHeader.NoNResident == 1
}

func (attrHeader AttributeHeader) IsNamed() bool {
	return attrHeader.Nlen > 0
}

// ProcessRunList decodes the mapping pairs array of a non resident attribute.
// Each pair starts with a byte whose low nibble is the size of the length
// field and high nibble the size of the signed, relative cluster offset.
func ProcessRunList(runlists []byte, startVCN uint64) (RunList, error) {
	var runlist RunList
	clusterPtr := 0
	vcn := startVCN
	lcn := int64(0)

	for clusterPtr < len(runlists) {
		header := runlists[clusterPtr]
		if header == 0 {
			return runlist, nil
		}
		clusterLenB := int(header & 0x0f)
		clusterOffsB := int(header >> 4)
		if clusterLenB == 0 || clusterLenB > 8 || clusterOffsB > 8 {
			return runlist, fmt.Errorf("pair header %x at %d: %w", header, clusterPtr, ErrBadRunList)
		}
		if clusterPtr+1+clusterLenB+clusterOffsB > len(runlists) {
			return runlist, fmt.Errorf("pair at %d exceeds attribute: %w", clusterPtr, ErrBadRunList)
		}

		clustersLen := utils.ReadEndianUInt(runlists[clusterPtr+1 : clusterPtr+1+clusterLenB])
		run := Run{VCN: vcn, Length: clustersLen}
		if clusterOffsB == 0 {
			run.Sparse = true
		} else {
			lcn += utils.ReadEndianInt(runlists[clusterPtr+1+clusterLenB : clusterPtr+1+clusterLenB+clusterOffsB])
			if lcn < 0 {
				return runlist, fmt.Errorf("negative cluster %d: %w", lcn, ErrBadRunList)
			}
			run.Offset = lcn
		}
		runlist = append(runlist, run)

		vcn += clustersLen
		clusterPtr += 1 + clusterLenB + clusterOffsB
	}
	// missing terminator, the attribute was cut short
	return runlist, nil
}

func (runlist RunList) TotalClusters() uint64 {
	total := uint64(0)
	for _, run := range runlist {
		total += run.Length
	}
	return total
}

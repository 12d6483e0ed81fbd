package attributes

import "github.com/aarsakian/FSRecover/utils"

type VolumeName struct {
	Name   string
	Header *AttributeHeader
}

func (volName *VolumeName) SetHeader(header *AttributeHeader) {
	volName.Header = header
}

func (volName VolumeName) GetHeader() AttributeHeader {
	return *volName.Header
}

func (volName *VolumeName) Parse(data []byte) error {
	volName.Name = utils.DecodeUTF16(data)
	return nil
}

func (volName VolumeName) FindType() string {
	return volName.Header.GetType()
}

func (volName VolumeName) IsNoNResident() bool {
	return volName.Header.IsNoNResident()
}

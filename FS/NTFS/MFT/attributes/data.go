package attributes

type DATA struct {
	Content []byte
	Header  *AttributeHeader
}

func (data *DATA) SetHeader(header *AttributeHeader) {
	data.Header = header
}

func (data DATA) GetHeader() AttributeHeader {
	return *data.Header
}

func (data DATA) FindType() string {
	return data.Header.GetType()
}

func (data DATA) IsNoNResident() bool {
	return data.Header.IsNoNResident()
}

func (data *DATA) Parse(content []byte) error {
	data.Content = make([]byte, len(content))
	copy(data.Content, content)
	return nil
}

func (data DATA) GetRunList() RunList {
	if data.Header == nil || data.Header.ATRrecordNoNResident == nil {
		return nil
	}
	return data.Header.ATRrecordNoNResident.RunList
}

// GetRealSize is the logical size, for either residency.
func (data DATA) GetRealSize() uint64 {
	if data.IsNoNResident() {
		return data.Header.ATRrecordNoNResident.ActualLength
	}
	return uint64(len(data.Content))
}

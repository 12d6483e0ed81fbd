package img

import (
	"errors"
	"fmt"
	"path"
	"strings"

	vmdkLib "github.com/aarsakian/VMDK_Reader/vmdk"
)

type VMDKReader struct {
	PathToEvidenceFiles string
	fd                  *vmdkLib.VMDKImage
}

func (imgreader *VMDKReader) CreateHandler() error {
	extension := path.Ext(imgreader.PathToEvidenceFiles)
	if strings.ToLower(extension) != ".vmdk" {
		return errors.New("only VMDK sparse images are supported")
	}
	vmdkImage := vmdkLib.VMDKImage{Path: imgreader.PathToEvidenceFiles}
	vmdkImage.Process()
	imgreader.fd = &vmdkImage
	return nil
}

func (imgreader VMDKReader) CloseHandler() {

}

func (imgreader VMDKReader) ReadFile(physicalOffset int64, length int) ([]byte, error) {
	if physicalOffset < 0 || physicalOffset >= imgreader.GetDiskSize() {
		return nil, fmt.Errorf("vmdk read at %d: %w", physicalOffset, ErrOutOfBounds)
	}
	data := imgreader.fd.RetrieveData(physicalOffset, int64(length))
	if len(data) == 0 {
		return nil, fmt.Errorf("vmdk read at %d returned no data", physicalOffset)
	}
	return data, nil
}

func (imgreader VMDKReader) GetDiskSize() int64 {
	if imgreader.fd == nil {
		return 0
	}
	return int64(imgreader.fd.GetHDSize())
}

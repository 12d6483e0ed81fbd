package img

import (
	"errors"
	"fmt"
	"path"
	"strings"

	ewfLib "github.com/aarsakian/EWF_Reader/ewf"
	ewfutils "github.com/aarsakian/EWF_Reader/ewf/utils"
)

type EWFReader struct {
	PathToEvidenceFiles string
	fd                  ewfLib.EWF_Image
}

func (imgreader *EWFReader) CreateHandler() error {
	extension := path.Ext(imgreader.PathToEvidenceFiles)
	if strings.ToLower(extension) != ".e01" {
		return errors.New("only EWF images (.E01) are supported")
	}
	var ewf_image ewfLib.EWF_Image
	filenames := ewfutils.FindEvidenceFiles(imgreader.PathToEvidenceFiles)
	if len(filenames) == 0 {
		return fmt.Errorf("no evidence segments found for %s", imgreader.PathToEvidenceFiles)
	}

	ewf_image.ParseEvidence(filenames)

	imgreader.fd = ewf_image
	return nil
}

func (imgreader EWFReader) CloseHandler() {

}

func (imgreader EWFReader) ReadFile(physicalOffset int64, length int) ([]byte, error) {
	if physicalOffset < 0 || physicalOffset >= imgreader.GetDiskSize() {
		return nil, fmt.Errorf("ewf read at %d: %w", physicalOffset, ErrOutOfBounds)
	}
	data := imgreader.fd.RetrieveData(physicalOffset, int64(length))
	if len(data) == 0 {
		return nil, fmt.Errorf("ewf read at %d returned no data", physicalOffset)
	}
	return data, nil
}

func (imgreader EWFReader) GetDiskSize() int64 {
	return int64(imgreader.fd.Chunksize) * int64(imgreader.fd.NofChunks)
}

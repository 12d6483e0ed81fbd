package img

import (
	"fmt"
	"io"
	"os"

	"github.com/aarsakian/FSRecover/logger"
)

type RawReader struct {
	PathToEvidenceFiles string
	fd                  *os.File
	size                int64
}

func (imgreader *RawReader) CreateHandler() error {
	file, err := os.Open(imgreader.PathToEvidenceFiles)
	if err != nil {
		return err
	}
	finfo, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	imgreader.fd = file
	imgreader.size = finfo.Size()
	return nil
}

func (imgreader RawReader) CloseHandler() {
	if imgreader.fd != nil {
		imgreader.fd.Close()
	}
}

func (imgreader RawReader) ReadFile(physicalOffset int64, length int) ([]byte, error) {
	if physicalOffset < 0 || physicalOffset >= imgreader.size {
		return nil, fmt.Errorf("raw read at %d: %w", physicalOffset, ErrOutOfBounds)
	}
	data := make([]byte, length)
	n, err := imgreader.fd.ReadAt(data, physicalOffset)
	if err != nil && !(err == io.EOF && n > 0) {
		msg := fmt.Sprintf("error %s reading offset %d len %d", err, physicalOffset, length)
		logger.FSRecoverlogger.Error(msg)
		return nil, err
	}
	return data[:n], nil
}

func (imgreader RawReader) GetDiskSize() int64 {
	return imgreader.size
}

package img

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var ErrOutOfBounds = errors.New("read beyond end of image")

type DiskReader interface {
	CreateHandler() error
	CloseHandler()
	ReadFile(int64, int) ([]byte, error)
	GetDiskSize() int64
}

// DetectMode guesses the reader from the evidence file extension.
func DetectMode(pathToDisk string) string {
	switch strings.ToLower(filepath.Ext(pathToDisk)) {
	case ".e01":
		return "ewf"
	case ".vmdk":
		return "vmdk"
	}
	if strings.HasPrefix(pathToDisk, "/dev/") || strings.HasPrefix(pathToDisk, `\\.\`) {
		return "device"
	}
	return "raw"
}

func GetHandler(pathToDisk string, mode string) (DiskReader, error) {
	if mode == "" || mode == "auto" {
		mode = DetectMode(pathToDisk)
	}

	var dr DiskReader
	switch mode {
	case "device":
		dr = newDeviceReader(pathToDisk)
	case "ewf":
		dr = &EWFReader{PathToEvidenceFiles: pathToDisk}
	case "raw":
		dr = &RawReader{PathToEvidenceFiles: pathToDisk}
	case "vmdk":
		dr = &VMDKReader{PathToEvidenceFiles: pathToDisk}
	default:
		return nil, fmt.Errorf("unknown image mode %s (raw, ewf, vmdk, device)", mode)
	}

	if err := dr.CreateHandler(); err != nil {
		return nil, fmt.Errorf("opening %s as %s: %w", pathToDisk, mode, err)
	}
	return dr, nil
}

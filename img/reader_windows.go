//go:build windows

package img

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const sectorAlignment = 512

type DISK_GEOMETRY struct {
	Cylinders         int64
	MediaType         int32
	TracksPerCylinder int32
	SectorsPerTrack   int32
	BytesPerSector    int32
}

// WindowsReader reads physical drives like \\.\PHYSICALDRIVE1.
type WindowsReader struct {
	a_file string
	fd     windows.Handle
	size   int64
}

func newDeviceReader(pathToDisk string) DiskReader {
	return &WindowsReader{a_file: pathToDisk}
}

func (winreader *WindowsReader) CreateHandler() error {
	file_ptr, err := windows.UTF16PtrFromString(winreader.a_file)
	if err != nil {
		return err
	}
	var templateHandle windows.Handle
	fd, err := windows.CreateFile(file_ptr, windows.FILE_READ_DATA,
		windows.FILE_SHARE_READ, nil,
		windows.OPEN_EXISTING, 0, templateHandle)
	if err != nil {
		return err
	}
	winreader.fd = fd
	size, err := winreader.geometrySize()
	if err != nil {
		windows.Close(fd)
		return err
	}
	winreader.size = size
	return nil
}

func (winreader WindowsReader) CloseHandler() {
	windows.Close(winreader.fd)
}

func (winreader WindowsReader) geometrySize() (int64, error) {
	const IOCTL_DISK_GET_DRIVE_GEOMETRY = 0x70000
	const nByte_DISK_GEOMETRY = 24
	disk_geometry := DISK_GEOMETRY{}

	var returned uint32
	var inBuffer *byte
	err := windows.DeviceIoControl(winreader.fd, IOCTL_DISK_GET_DRIVE_GEOMETRY,
		inBuffer, 0, (*byte)(unsafe.Pointer(&disk_geometry)), nByte_DISK_GEOMETRY, &returned, nil)
	if err != nil {
		return 0, err
	}

	return disk_geometry.Cylinders * int64(disk_geometry.TracksPerCylinder) *
		int64(disk_geometry.SectorsPerTrack) * int64(disk_geometry.BytesPerSector), nil
}

func (winreader WindowsReader) GetDiskSize() int64 {
	return winreader.size
}

// ReadFile aligns the request to sectors since raw devices refuse unaligned reads.
func (winreader WindowsReader) ReadFile(physicalOffset int64, length int) ([]byte, error) {
	if physicalOffset < 0 || physicalOffset >= winreader.size {
		return nil, fmt.Errorf("device read at %d: %w", physicalOffset, ErrOutOfBounds)
	}
	alignedOffset := physicalOffset - physicalOffset%sectorAlignment
	skip := int(physicalOffset - alignedOffset)
	alignedLength := (skip + length + sectorAlignment - 1) / sectorAlignment * sectorAlignment
	buffer := make([]byte, alignedLength)

	highPart := int32(alignedOffset >> 32)
	_, err := windows.SetFilePointer(winreader.fd, int32(alignedOffset&0xffffffff),
		&highPart, windows.FILE_BEGIN)
	if err != nil {
		return nil, err
	}

	var bytesRead uint32
	err = windows.ReadFile(winreader.fd, buffer, &bytesRead, nil)
	if err != nil {
		return nil, fmt.Errorf("error reading win32 api file: %w", err)
	}
	if int(bytesRead) <= skip {
		return nil, fmt.Errorf("short read at %d", physicalOffset)
	}
	end := skip + length
	if end > int(bytesRead) {
		end = int(bytesRead)
	}
	return buffer[skip:end], nil
}

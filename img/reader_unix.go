//go:build !windows

package img

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// UnixReader reads block devices such as /dev/sdb directly.
type UnixReader struct {
	pathToDisk string
	fd         int
	size       int64
}

func newDeviceReader(pathToDisk string) DiskReader {
	return &UnixReader{pathToDisk: pathToDisk, fd: -1}
}

func (unixreader *UnixReader) CreateHandler() error {
	fd, err := unix.Open(unixreader.pathToDisk, unix.O_RDONLY, 0)
	if err != nil {
		return err
	}
	size, err := unix.Seek(fd, 0, unix.SEEK_END)
	if err != nil {
		unix.Close(fd)
		return err
	}
	unixreader.fd = fd
	unixreader.size = size
	return nil
}

func (unixreader UnixReader) ReadFile(physicalOffset int64, length int) ([]byte, error) {
	if physicalOffset < 0 || physicalOffset >= unixreader.size {
		return nil, fmt.Errorf("device read at %d: %w", physicalOffset, ErrOutOfBounds)
	}
	buffer := make([]byte, length)
	n, err := unix.Pread(unixreader.fd, buffer, physicalOffset)
	if err != nil {
		return nil, fmt.Errorf("error reading %s at %d: %w", unixreader.pathToDisk, physicalOffset, err)
	}
	return buffer[:n], nil
}

func (unixreader UnixReader) CloseHandler() {
	if unixreader.fd >= 0 {
		unix.Close(unixreader.fd)
	}
}

func (unixreader UnixReader) GetDiskSize() int64 {
	return unixreader.size
}

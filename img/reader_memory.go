package img

import "fmt"

// MemoryReader serves an image held in memory, e.g. an extracted $MFT file.
type MemoryReader struct {
	Data []byte
	// Unreadable marks byte ranges that fail like bad sectors do.
	Unreadable [][2]int64
}

func (memreader *MemoryReader) CreateHandler() error {
	return nil
}

func (memreader MemoryReader) CloseHandler() {
}

func (memreader MemoryReader) ReadFile(physicalOffset int64, length int) ([]byte, error) {
	if physicalOffset < 0 || physicalOffset >= int64(len(memreader.Data)) {
		return nil, fmt.Errorf("memory read at %d: %w", physicalOffset, ErrOutOfBounds)
	}
	end := physicalOffset + int64(length)
	for _, bad := range memreader.Unreadable {
		if physicalOffset < bad[1] && end > bad[0] {
			return nil, fmt.Errorf("unreadable area %d-%d", bad[0], bad[1])
		}
	}
	if end > int64(len(memreader.Data)) {
		end = int64(len(memreader.Data))
	}
	data := make([]byte, end-physicalOffset)
	copy(data, memreader.Data[physicalOffset:end])
	return data, nil
}

func (memreader MemoryReader) GetDiskSize() int64 {
	return int64(len(memreader.Data))
}

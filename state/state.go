// Package state keeps the progress of a scan so that an interrupted or
// repeated session only feeds the sectors that mattered.
package state

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
)

type ScanState struct {
	Session     string    `yaml:"session"`
	Image       string    `yaml:"image"`
	ImageSize   int64     `yaml:"image_size"`
	SectorSize  int       `yaml:"sector_size"`
	NextSector  int64     `yaml:"next_sector"`
	Complete    bool      `yaml:"complete"`
	Updated     time.Time `yaml:"updated"`
	Interesting []int64   `yaml:"interesting"`
}

func New(image string, imageSize int64, sectorSize int) *ScanState {
	return &ScanState{
		Session:    uuid.NewString(),
		Image:      image,
		ImageSize:  imageSize,
		SectorSize: sectorSize,
	}
}

// Matches tells whether the snapshot was taken on an image of the same
// geometry.
func (st ScanState) Matches(imageSize int64, sectorSize int) bool {
	return st.ImageSize == imageSize && st.SectorSize == sectorSize
}

func (st *ScanState) Reset() {
	st.NextSector = 0
	st.Complete = false
	st.Interesting = nil
}

func (st *ScanState) MarkInteresting(offset int64) {
	st.Interesting = append(st.Interesting, offset)
}

func (st *ScanState) Save(path string) error {
	st.Updated = time.Now().UTC()
	sort.Slice(st.Interesting, func(i, j int) bool { return st.Interesting[i] < st.Interesting[j] })
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding scan state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing scan state %s: %w", path, err)
	}
	return nil
}

func Load(path string) (*ScanState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st ScanState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding scan state %s: %w", path, err)
	}
	if st.SectorSize <= 0 {
		return nil, fmt.Errorf("scan state %s has sector size %d", path, st.SectorSize)
	}
	return &st, nil
}

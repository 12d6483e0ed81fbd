package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/aarsakian/FSRecover/FS"
	ntfsLib "github.com/aarsakian/FSRecover/FS/NTFS"
	"github.com/aarsakian/FSRecover/disk"
	"github.com/aarsakian/FSRecover/disk/partition"
	"github.com/aarsakian/FSRecover/logger"
	"github.com/aarsakian/FSRecover/state"
)

// session is one opened image and the partitions scanned out of it.
type session struct {
	disk       *disk.Disk
	partitions []*partition.Partition
}

func (s *session) Close() {
	s.disk.Close()
}

func loadState(path string, image string, size int64, sectorSize int) *state.ScanState {
	if path == "" || overwrite {
		return state.New(image, size, sectorSize)
	}
	st, err := state.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ignoring scan state: %s\n", err)
		}
		return state.New(image, size, sectorSize)
	}
	fmt.Fprintf(os.Stderr, "resuming scan session %s\n", st.Session)
	return st
}

func openSession(image string) (*session, error) {
	hD := &disk.Disk{
		SectorSize:   cfg.SectorSize,
		ChunkSectors: cfg.ChunkSectors,
		Threshold:    cfg.Threshold,
	}
	if err := hD.Initialize(image, cfg.Mode); err != nil {
		return nil, err
	}
	s := &session{disk: hD}

	if err := hD.DiscoverPartitions(); err != nil {
		logger.FSRecoverlogger.Warning(fmt.Sprintf("partition table: %s", err))
	}

	st := loadState(saveFile, image, hD.Handler.GetDiskSize(), cfg.SectorSize)
	if saveFile != "" {
		hD.Checkpoint = func(partial *state.ScanState) {
			if err := partial.Save(saveFile); err != nil {
				logger.FSRecoverlogger.Warning(fmt.Sprintf("scan checkpoint not saved: %s", err))
			}
		}
	}
	scanners := []FS.Scanner{ntfsLib.NewScanner(cfg.ClusterSize)}
	partitions, err := hD.Scan(scanners, st)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.partitions = partitions

	if saveFile != "" {
		if err := st.Save(saveFile); err != nil {
			fmt.Fprintf(os.Stderr, "scan state not saved: %s\n", err)
		}
	}
	return s, nil
}

func (s *session) partition(arg string) (*partition.Partition, int, error) {
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 0 || idx >= len(s.partitions) {
		return nil, 0, fmt.Errorf("partition %q: use an index between 0 and %d", arg, len(s.partitions)-1)
	}
	return s.partitions[idx], idx, nil
}

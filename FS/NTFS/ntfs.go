package ntfs

import (
	"errors"
	"fmt"

	"github.com/aarsakian/FSRecover/utils"
)

const (
	BootSignature = "NTFS    "
	bootEndMarker = 0xaa55
	BootSectorLen = 512
)

var ErrBadBootSector = errors.New("not a valid NTFS boot sector")

// NTFS is the boot sector (BPB and extended BPB) of a volume.
type NTFS struct {
	JumpInstruction   [3]byte  //0-2
	Signature         string   `bin:"8"` //3-10 "NTFS    "
	BytesPerSector    uint16   //11-12
	SectorsPerCluster uint8    //13
	NotUsed1          [7]byte  //14-20
	MediaDescriptor   uint8    //21
	NotUsed2          [18]byte //22-39
	TotalSectors      uint64   //40-47 volume sectors minus the backup boot sector
	MFTOffset         uint64   //48-55 cluster of $MFT
	MFTMirrOffset     uint64   //56-63 cluster of $MFTMirr
	RecordSizeRaw     int8     //64 clusters, or 2^-n bytes when negative
	NotUsed3          [3]byte  //65-67
	IndexSizeRaw      int8     //68
	NotUsed4          [3]byte  //69-71
	SerialNumber      uint64   //72-79
	Checksum          uint32   //80-83
	Bootcode          [426]byte
	EndMarker         uint16 //510-511
}

func (ntfs *NTFS) Parse(buffer []byte) error {
	if len(buffer) < BootSectorLen {
		return fmt.Errorf("boot sector of %d bytes: %w", len(buffer), utils.ErrShortBuffer)
	}
	if err := utils.Unmarshal(buffer[:BootSectorLen], ntfs); err != nil {
		return err
	}
	return ntfs.Validate()
}

// Validate checks the signatures and that the geometry fields are usable.
func (ntfs NTFS) Validate() error {
	if ntfs.Signature != BootSignature || ntfs.EndMarker != bootEndMarker {
		return fmt.Errorf("missing signature: %w", ErrBadBootSector)
	}
	switch ntfs.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return fmt.Errorf("%d bytes per sector: %w", ntfs.BytesPerSector, ErrBadBootSector)
	}
	spc := ntfs.SectorsPerCluster
	if spc == 0 || spc&(spc-1) != 0 {
		return fmt.Errorf("%d sectors per cluster: %w", spc, ErrBadBootSector)
	}
	if ntfs.TotalSectors == 0 {
		return fmt.Errorf("zero sectors: %w", ErrBadBootSector)
	}
	recordSize := ntfs.GetRecordSize()
	if recordSize < 256 || recordSize > 65536 {
		return fmt.Errorf("record size %d: %w", recordSize, ErrBadBootSector)
	}
	return nil
}

func (ntfs NTFS) GetSectorsPerCluster() uint8 {
	return ntfs.SectorsPerCluster
}

func (ntfs NTFS) GetClusterSize() int64 {
	return int64(ntfs.SectorsPerCluster) * int64(ntfs.BytesPerSector)
}

func (ntfs NTFS) GetRecordSize() int64 {
	if ntfs.RecordSizeRaw > 0 {
		return int64(ntfs.RecordSizeRaw) * ntfs.GetClusterSize()
	}
	return int64(1) << uint(-int(ntfs.RecordSizeRaw))
}

// GetVolumeSize includes the trailing sector that holds the backup boot sector.
func (ntfs NTFS) GetVolumeSize() int64 {
	return int64(ntfs.TotalSectors+1) * int64(ntfs.BytesPerSector)
}

// GetMFTOffset is relative to the start of the volume.
func (ntfs NTFS) GetMFTOffset() int64 {
	return int64(ntfs.MFTOffset) * ntfs.GetClusterSize()
}

func (ntfs NTFS) GetMFTMirrOffset() int64 {
	return int64(ntfs.MFTMirrOffset) * ntfs.GetClusterSize()
}

// GetBackupDistance is how far the backup copy lies from the primary one.
func (ntfs NTFS) GetBackupDistance() int64 {
	return int64(ntfs.TotalSectors) * int64(ntfs.BytesPerSector)
}

func (ntfs NTFS) GetSerial() string {
	return fmt.Sprintf("%016X", ntfs.SerialNumber)
}

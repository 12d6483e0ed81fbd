package ntfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/aarsakian/FSRecover/FS"
	"github.com/aarsakian/FSRecover/FS/NTFS/MFT"
	MFTAttributes "github.com/aarsakian/FSRecover/FS/NTFS/MFT/attributes"
	"github.com/aarsakian/FSRecover/img"
	"github.com/aarsakian/FSRecover/logger"
	"github.com/aarsakian/FSRecover/utils"
)

const (
	FSType         = "NTFS"
	RootRecordID   = 5
	DefaultCluster = 4096

	volumeRecord = 3
	// $MFTMirr holds copies of the first records only
	mirrorMaxEntry  = 3
	minClusterSize  = 512
	maxRecordSize   = 65536
	recordSignature = "FILE"
	badSignature    = "BAAD"
)

// Scanner locates NTFS volumes from their boot sectors and MFT records,
// including volumes whose boot sectors are gone.
type Scanner struct {
	FallbackClusterSize int64
	bootOffsets         []int64
	recordOffsets       []int64
	seen                map[int64]bool
}

type parsedRecord struct {
	offset int64
	record MFT.Record
}

// group collects the records that share an MFT base, i.e. that belong to the
// same contiguous piece of an MFT.
type group struct {
	base    int64
	records []parsedRecord
	entries map[uint32]int
}

type bootCandidate struct {
	offset int64
	ntfs   NTFS
}

type volume struct {
	boundary    FS.Boundary
	clusterSize int64
	mftBase     int64
	mirrBase    int64
	main        []*group
	mirror      []*group
}

func NewScanner(fallbackClusterSize int) *Scanner {
	if fallbackClusterSize < minClusterSize {
		fallbackClusterSize = DefaultCluster
	}
	return &Scanner{FallbackClusterSize: int64(fallbackClusterSize), seen: make(map[int64]bool)}
}

func (scanner Scanner) Type() string {
	return FSType
}

func IsBootSector(sector []byte) bool {
	return len(sector) >= BootSectorLen &&
		string(sector[3:11]) == BootSignature &&
		binary.LittleEndian.Uint16(sector[510:512]) == bootEndMarker
}

func IsRecordCandidate(sector []byte) bool {
	return bytes.HasPrefix(sector, []byte(recordSignature)) || bytes.HasPrefix(sector, []byte(badSignature))
}

// Feed remembers the offsets of boot sectors and record candidates.
func (scanner *Scanner) Feed(offset int64, sector []byte) bool {
	if scanner.seen == nil {
		scanner.seen = make(map[int64]bool)
	}
	if scanner.seen[offset] {
		return true
	}
	switch {
	case IsBootSector(sector):
		scanner.bootOffsets = append(scanner.bootOffsets, offset)
	case IsRecordCandidate(sector):
		scanner.recordOffsets = append(scanner.recordOffsets, offset)
	default:
		return false
	}
	scanner.seen[offset] = true
	return true
}

// Scan assembles volumes out of the fed sectors. Records come out grouped by
// volume, main MFT copies before the mirror ones.
func (scanner *Scanner) Scan(hD img.DiskReader) ([]FS.Record, []FS.Boundary) {
	groups := scanner.parseRecords(hD)
	boots := scanner.parseBootSectors(hD)

	claimed := make(map[int64]bool)
	volumes := placeBootSectors(boots, groups)
	for _, vol := range volumes {
		vol.claimDeclared(groups, claimed)
	}
	volumes = append(volumes, scanner.inferVolumes(groups, claimed, volumes)...)

	sort.SliceStable(volumes, func(i, j int) bool {
		return lessBoundary(volumes[i].boundary, volumes[j].boundary)
	})

	var records []FS.Record
	var boundaries []FS.Boundary
	for _, vol := range volumes {
		vol.boundary.Label = vol.label()
		for _, grp := range append(append([]*group{}, vol.main...), vol.mirror...) {
			for _, parsed := range grp.records {
				records = append(records, vol.toRecord(parsed))
			}
		}
		boundaries = append(boundaries, vol.boundary)
	}

	msg := fmt.Sprintf("NTFS scan: %s boot sectors, %s records, %d volumes",
		utils.FormatNumber(int64(len(boots))), utils.FormatNumber(int64(len(records))), len(boundaries))
	logger.FSRecoverlogger.Info(msg)
	return records, boundaries
}

func lessBoundary(a, b FS.Boundary) bool {
	if a.OffsetKnown() != b.OffsetKnown() {
		return a.OffsetKnown()
	}
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	return a.ID < b.ID
}

func (scanner Scanner) parseRecords(hD img.DiskReader) map[int64]*group {
	groups := make(map[int64]*group)
	offsets := append([]int64{}, scanner.recordOffsets...)
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	for _, offset := range offsets {
		record, err := readRecord(hD, offset)
		if err != nil {
			corruptErr := &FS.RecordCorruptionError{Offset: offset, Reason: err.Error()}
			logger.FSRecoverlogger.Warning(corruptErr.Error())
			continue
		}
		if record.IsExtension() {
			continue
		}

		base := offset - int64(record.Entry)*int64(record.AllocSize)
		grp, ok := groups[base]
		if !ok {
			grp = &group{base: base, entries: make(map[uint32]int)}
			groups[base] = grp
		}
		if _, dup := grp.entries[record.Entry]; dup {
			continue
		}
		grp.entries[record.Entry] = len(grp.records)
		grp.records = append(grp.records, parsedRecord{offset: offset, record: record})
	}
	return groups
}

func readRecord(hD img.DiskReader, offset int64) (MFT.Record, error) {
	var record MFT.Record
	data, err := hD.ReadFile(offset, BootSectorLen)
	if err != nil {
		return record, err
	}
	allocSize := MFT.PeekAllocSize(data)
	if allocSize < BootSectorLen || allocSize > maxRecordSize || allocSize%BootSectorLen != 0 {
		return record, fmt.Errorf("allocated size %d: %w", allocSize, MFT.ErrLayout)
	}
	if allocSize > len(data) {
		data, err = hD.ReadFile(offset, allocSize)
		if err != nil {
			return record, err
		}
	}
	record.Offset = offset
	err = record.Process(data)
	return record, err
}

func (scanner Scanner) parseBootSectors(hD img.DiskReader) []bootCandidate {
	var boots []bootCandidate
	offsets := append([]int64{}, scanner.bootOffsets...)
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	for _, offset := range offsets {
		data, err := hD.ReadFile(offset, BootSectorLen)
		if err != nil {
			logger.FSRecoverlogger.Warning(fmt.Sprintf("boot sector at %d unreadable %s", offset, err))
			continue
		}
		var ntfs NTFS
		if err := ntfs.Parse(data); err != nil {
			logger.FSRecoverlogger.Warning(fmt.Sprintf("boot sector at %d rejected %s", offset, err))
			continue
		}
		boots = append(boots, bootCandidate{offset: offset, ntfs: ntfs})
	}
	return boots
}

// placeBootSectors decides for every boot sector whether it is the primary
// copy at the start of the volume or the backup at its end.
func placeBootSectors(boots []bootCandidate, groups map[int64]*group) []*volume {
	confirms := func(start int64, ntfs NTFS) bool {
		_, main := groups[start+ntfs.GetMFTOffset()]
		_, mirror := groups[start+ntfs.GetMFTMirrOffset()]
		return main || mirror
	}
	twinAt := func(offset int64, serial uint64) bool {
		for _, other := range boots {
			if other.offset == offset && other.ntfs.SerialNumber == serial {
				return true
			}
		}
		return false
	}

	var volumes []*volume
	starts := make(map[int64]bool)
	for _, boot := range boots {
		distance := boot.ntfs.GetBackupDistance()
		primary := boot.offset
		backup := boot.offset - distance

		start := primary
		switch {
		case confirms(primary, boot.ntfs):
		case backup >= 0 && confirms(backup, boot.ntfs):
			start = backup
		case twinAt(boot.offset+distance, boot.ntfs.SerialNumber):
		case backup >= 0 && twinAt(backup, boot.ntfs.SerialNumber):
			start = backup
		}
		if starts[start] {
			continue
		}
		starts[start] = true

		volumes = append(volumes, &volume{
			boundary: FS.Boundary{
				ID:          fmt.Sprintf("ntfs-%d", start),
				FSType:      FSType,
				Offset:      start,
				Size:        boot.ntfs.GetVolumeSize(),
				Declared:    true,
				ClusterSize: int(boot.ntfs.GetClusterSize()),
				RootID:      RootRecordID,
			},
			clusterSize: boot.ntfs.GetClusterSize(),
			mftBase:     start + boot.ntfs.GetMFTOffset(),
			mirrBase:    start + boot.ntfs.GetMFTMirrOffset(),
		})
	}
	return volumes
}

func (vol *volume) claimDeclared(groups map[int64]*group, claimed map[int64]bool) {
	if grp, ok := groups[vol.mftBase]; ok && !claimed[grp.base] {
		vol.main = append(vol.main, grp)
		claimed[grp.base] = true
	}
	if grp, ok := groups[vol.mirrBase]; ok && !claimed[grp.base] {
		vol.mirror = append(vol.mirror, grp)
		claimed[grp.base] = true
	}
	vol.claimFragments(groups, claimed)
}

// claimFragments follows the $MFT runlist to pull in the groups of a
// fragmented MFT. A fragment starting at VCN v holds records whose base is
// the fragment start minus v clusters.
func (vol *volume) claimFragments(groups map[int64]*group, claimed map[int64]bool) {
	if !vol.boundary.OffsetKnown() {
		return
	}
	mftRecord := vol.find(0)
	if mftRecord == nil {
		return
	}
	data := mftRecord.GetUnnamedData()
	if data == nil {
		return
	}
	for _, run := range data.GetRunList() {
		if run.Sparse {
			continue
		}
		expected := vol.boundary.Offset + (run.Offset-int64(run.VCN))*vol.clusterSize
		if grp, ok := groups[expected]; ok && !claimed[grp.base] {
			vol.main = append(vol.main, grp)
			claimed[grp.base] = true
		}
	}
}

// inferVolumes turns unclaimed groups into volumes without a boot sector.
func (scanner Scanner) inferVolumes(groups map[int64]*group, claimed map[int64]bool, declared []*volume) []*volume {
	var withMFT, rest []*group
	for _, grp := range sortedGroups(groups) {
		if claimed[grp.base] {
			continue
		}
		if _, ok := grp.entries[0]; ok {
			withMFT = append(withMFT, grp)
		} else {
			rest = append(rest, grp)
		}
	}
	// full MFT pieces before the small groups that may be mirrors
	sort.SliceStable(withMFT, func(i, j int) bool {
		return withMFT[i].maxEntry() > mirrorMaxEntry && withMFT[j].maxEntry() <= mirrorMaxEntry
	})

	byStart := make(map[int64]*volume)
	for _, vol := range declared {
		byStart[vol.boundary.Offset] = vol
	}

	var volumes []*volume
	for _, grp := range withMFT {
		if claimed[grp.base] {
			continue
		}
		claimed[grp.base] = true

		if mirrored := findMirrored(volumes, grp); mirrored != nil {
			mirrored.mirror = append(mirrored.mirror, grp)
			continue
		}

		start, clusterSize := scanner.inferStart(grp)
		if existing, ok := byStart[start]; ok && start >= 0 {
			existing.main = append(existing.main, grp)
			continue
		}

		vol := &volume{
			boundary: FS.Boundary{
				FSType:      FSType,
				Offset:      start,
				ClusterSize: int(clusterSize),
				RootID:      RootRecordID,
			},
			clusterSize: clusterSize,
			main:        []*group{grp},
		}
		if start >= 0 {
			vol.boundary.ID = fmt.Sprintf("ntfs-%d", start)
			byStart[start] = vol
		} else {
			vol.boundary.ID = fmt.Sprintf("ntfs-mft-%d", grp.base)
		}
		vol.claimFragments(groups, claimed)
		volumes = append(volumes, vol)

		logger.FSRecoverlogger.Info(fmt.Sprintf("inferred NTFS volume %s from MFT at %d",
			vol.boundary.ID, grp.base))
	}

	for _, grp := range rest {
		if claimed[grp.base] {
			continue
		}
		claimed[grp.base] = true
		volumes = append(volumes, &volume{
			boundary: FS.Boundary{
				ID:          fmt.Sprintf("ntfs-mft-%d", grp.base),
				FSType:      FSType,
				Offset:      -1,
				ClusterSize: int(scanner.FallbackClusterSize),
				RootID:      RootRecordID,
			},
			clusterSize: scanner.FallbackClusterSize,
			main:        []*group{grp},
		})
	}
	return volumes
}

// inferStart places the volume so that the first $MFT cluster lands on the
// group base, shrinking the cluster size when the volume would start before
// the image.
func (scanner Scanner) inferStart(grp *group) (int64, int64) {
	record := grp.find(0)
	if record == nil {
		return -1, scanner.FallbackClusterSize
	}
	data := record.GetUnnamedData()
	if data == nil || !data.IsNoNResident() {
		return -1, scanner.FallbackClusterSize
	}
	runlist := data.GetRunList()
	if len(runlist) == 0 || runlist[0].Sparse || runlist[0].VCN != 0 {
		return -1, scanner.FallbackClusterSize
	}
	for clusterSize := scanner.FallbackClusterSize; clusterSize >= minClusterSize; clusterSize /= 2 {
		start := grp.base - runlist[0].Offset*clusterSize
		if start >= 0 {
			return start, clusterSize
		}
	}
	return -1, scanner.FallbackClusterSize
}

func findMirrored(volumes []*volume, grp *group) *volume {
	if grp.maxEntry() > mirrorMaxEntry {
		return nil
	}
	candidate := grp.find(0).GetUnnamedData()
	if candidate == nil {
		return nil
	}
	for _, vol := range volumes {
		mftRecord := vol.find(0)
		if mftRecord == nil {
			continue
		}
		data := mftRecord.GetUnnamedData()
		if data != nil && sameRunList(data.GetRunList(), candidate.GetRunList()) {
			return vol
		}
	}
	return nil
}

func sameRunList(a, b MFTAttributes.RunList) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for idx := range a {
		if a[idx] != b[idx] {
			return false
		}
	}
	return true
}

func sortedGroups(groups map[int64]*group) []*group {
	sorted := make([]*group, 0, len(groups))
	for _, grp := range groups {
		sorted = append(sorted, grp)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].base < sorted[j].base })
	return sorted
}

func (grp group) find(entry uint32) *MFT.Record {
	idx, ok := grp.entries[entry]
	if !ok {
		return nil
	}
	return &grp.records[idx].record
}

func (grp group) maxEntry() uint32 {
	max := uint32(0)
	for entry := range grp.entries {
		if entry > max {
			max = entry
		}
	}
	return max
}

func (vol volume) find(entry uint32) *MFT.Record {
	for _, grp := range append(append([]*group{}, vol.main...), vol.mirror...) {
		if record := grp.find(entry); record != nil {
			return record
		}
	}
	return nil
}

func (vol volume) label() string {
	record := vol.find(volumeRecord)
	if record == nil {
		return ""
	}
	return record.GetVolumeName()
}

func (vol volume) toRecord(parsed parsedRecord) FS.Record {
	record := parsed.record
	rec := FS.Record{
		ID:          uint64(record.Entry),
		IsDirectory: record.IsFolder(),
		IsDeleted:   record.IsDeleted(),
		Offset:      parsed.offset,
		Partition:   vol.boundary.ID,
	}

	if fnattr := record.GetBestFNAttribute(); fnattr != nil {
		rec.Name = fnattr.Fname
		rec.ParentID = fnattr.ParRef
		rec.HasParent = true
		rec.Times = FS.Timestamps{
			Created:     fnattr.Crtime.Time(),
			Modified:    fnattr.Mtime.Time(),
			MFTModified: fnattr.MFTmtime.Time(),
			Accessed:    fnattr.Atime.Time(),
		}
	}
	if attr := record.FindAttribute(MFTAttributes.StandardInformation); attr != nil {
		siattr := attr.(*MFTAttributes.SIAttribute)
		rec.Times = FS.Timestamps{
			Created:     siattr.Crtime.Time(),
			Modified:    siattr.Mtime.Time(),
			MFTModified: siattr.MFTmtime.Time(),
			Accessed:    siattr.Atime.Time(),
		}
	}

	data := record.GetUnnamedData()
	if data == nil {
		return rec
	}
	rec.Size = data.GetRealSize()
	if !data.IsNoNResident() {
		rec.Resident = data.Content
		return rec
	}
	if vol.boundary.OffsetKnown() {
		rec.Extents = vol.extents(data.GetRunList(), rec.Size)
	}
	return rec
}

// extents converts clusters to image byte ranges, cut at the logical size.
func (vol volume) extents(runlist MFTAttributes.RunList, size uint64) []FS.Extent {
	var extents []FS.Extent
	remaining := int64(size)
	for _, run := range runlist {
		if remaining <= 0 {
			break
		}
		length := int64(run.Length) * vol.clusterSize
		if length > remaining {
			length = remaining
		}
		extent := FS.Extent{Length: length, Sparse: run.Sparse}
		if !run.Sparse {
			extent.Offset = vol.boundary.Offset + run.Offset*vol.clusterSize
		}
		extents = append(extents, extent)
		remaining -= length
	}
	return extents
}

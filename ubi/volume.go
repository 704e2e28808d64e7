package ubi

import (
	"fmt"
	"log"
	"sort"
)

// MissingPEB is the sentinel stored in Volume.LEBs for a logical erase
// block with no surviving physical copy; LEBStream fabricates a 0xFF fill
// for it (spec §4.5/§4.6).
const MissingPEB = -1

// Volume is a named collection of LEBs belonging to one image, spec §3.
type Volume struct {
	Name         string
	VolID        uint32
	ReservedPEBs uint32
	Alignment    uint32
	DataPad      uint32
	VolType      uint8
	AutoResize   bool

	LEBs []int64 // peb index per leb_num, MissingPEB if absent

	dataOffset int64 // EC header's data_offset, same across one image

	src  *Source
	pebs map[int64]*PEB // pebNum -> descriptor, for LEBStream
}

// Image is a coherent set of PEBs sharing one image_seq field, spec §3.
type Image struct {
	Seq     uint32
	Volumes []*Volume
}

const vtblFlagAutoresize = 0x1

// AssembleVolumes partitions descriptors into layout/internal/data/unknown,
// groups layout PEBs into images by image_seq, and resolves per-volume
// freshness, per spec §4.5.
func AssembleVolumes(src *Source, pebs []*PEB, opts ...Option) ([]*Image, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}

	var layout, data []*PEB
	for _, p := range pebs {
		switch p.Kind {
		case KindLayout:
			layout = append(layout, p)
		case KindData:
			data = append(data, p)
		case KindInternal:
			// internal (non-layout) volumes carry no file-extractable
			// content for this spec's purposes; recorded but not grouped.
		}
	}

	groups := groupByImageSeq(layout, cfg.ubootFix)
	dataGroups := groupByImageSeq(data, cfg.ubootFix)

	var seqs []uint32
	for seq := range groups {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	var images []*Image
	for _, seq := range seqs {
		vtbl, err := resolveLayout(groups[seq])
		if err != nil {
			log.Printf("ubi: image_seq=0x%x: %s", seq, err)
			continue
		}

		vols := buildVolumes(src, vtbl, dataGroups[seq])
		images = append(images, &Image{Seq: seq, Volumes: vols})
	}

	return images, nil
}

// groupByImageSeq keys descriptors by their EC header's ImageSeq. With
// ubootFix, PEBs whose ImageSeq is 0 are folded into every resulting group
// (spec §4.5 "u-boot fix").
func groupByImageSeq(pebs []*PEB, ubootFix bool) map[uint32][]*PEB {
	groups := map[uint32][]*PEB{}
	var zero []*PEB
	for _, p := range pebs {
		if p.EC == nil {
			continue
		}
		if ubootFix && p.EC.ImageSeq == 0 {
			zero = append(zero, p)
			continue
		}
		groups[p.EC.ImageSeq] = append(groups[p.EC.ImageSeq], p)
	}
	if len(zero) > 0 {
		if len(groups) == 0 {
			groups[0] = zero
			return groups
		}
		for seq := range groups {
			groups[seq] = append(groups[seq], zero...)
		}
	}
	return groups
}

// resolveLayout picks, per leb_num, the freshest layout PEB (by VID
// sequence number) and returns the volume-table records of the freshest
// of those copies, spec §4.5 "Layout freshness". Records are not merged
// across copies.
func resolveLayout(pebs []*PEB) ([]VTblRecord, error) {
	if len(pebs) == 0 {
		return nil, ErrNoLayout
	}

	byLnum := map[uint32]*PEB{}
	for _, p := range pebs {
		if p.VID == nil {
			continue
		}
		cur, ok := byLnum[p.VID.LNum]
		if !ok || p.VID.Sqnum > cur.VID.Sqnum {
			byLnum[p.VID.LNum] = p
		}
	}

	// the winning layout copy with the highest sqnum overall carries the
	// authoritative table; ties are broken by lnum 0 having priority.
	var best *PEB
	var lnums []uint32
	for l := range byLnum {
		lnums = append(lnums, l)
	}
	sort.Slice(lnums, func(i, j int) bool { return lnums[i] < lnums[j] })
	for _, l := range lnums {
		p := byLnum[l]
		if best == nil || p.VID.Sqnum > best.VID.Sqnum {
			best = p
		}
	}
	if best == nil || len(best.VTbl) == 0 {
		return nil, ErrNoLayout
	}
	return best.VTbl, nil
}

// buildVolumes constructs one Volume per non-empty volume-table record,
// resolving per-(volume,leb) duplicate PEBs among dataPebs per spec §4.5.
func buildVolumes(src *Source, vtbl []VTblRecord, dataPebs []*PEB) []*Volume {
	byVolID := map[uint32][]*PEB{}
	for _, p := range dataPebs {
		if p.VID == nil {
			continue
		}
		byVolID[p.VID.VolID] = append(byVolID[p.VID.VolID], p)
	}

	var vols []*Volume
	for idx, rec := range vtbl {
		volID := uint32(idx)
		v := &Volume{
			Name:         rec.Name,
			VolID:        volID,
			ReservedPEBs: rec.ReservedPEBs,
			Alignment:    rec.Alignment,
			DataPad:      rec.DataPad,
			VolType:      rec.VolType,
			AutoResize:   rec.Flags&vtblFlagAutoresize != 0,
			src:          src,
			pebs:         map[int64]*PEB{},
		}

		byLnum := map[uint32][]*PEB{}
		for _, p := range byVolID[volID] {
			byLnum[p.VID.LNum] = append(byLnum[p.VID.LNum], p)
		}

		n := int(rec.ReservedPEBs)
		if n == 0 {
			// size not declared ahead of time (e.g. auto-resize volume
			// seen before resize): size to the highest observed lnum+1.
			for l := range byLnum {
				if int(l)+1 > n {
					n = int(l) + 1
				}
			}
		}

		v.LEBs = make([]int64, n)
		for i := range v.LEBs {
			v.LEBs[i] = MissingPEB
		}

		for lnum, cands := range byLnum {
			if int(lnum) >= len(v.LEBs) {
				continue
			}
			winner := resolveDuplicate(cands)
			v.LEBs[lnum] = winner.PebNum
			v.pebs[winner.PebNum] = winner
			if v.dataOffset == 0 && winner.EC != nil {
				v.dataOffset = int64(winner.EC.DataOffset)
			}
		}

		vols = append(vols, v)
	}

	return vols
}

// resolveDuplicate implements the four-step resolution of spec §4.5 for
// PEBs competing to provide the same (volume_id, leb_num).
func resolveDuplicate(cands []*PEB) *PEB {
	if len(cands) == 1 {
		return cands[0]
	}

	// 1. prefer copy_flag clear (original, not a wear-leveling copy)
	var originals []*PEB
	for _, p := range cands {
		if p.VID.CopyFlag == 0 {
			originals = append(originals, p)
		}
	}
	if len(originals) == 1 {
		return originals[0]
	}
	pool := cands
	if len(originals) > 1 {
		pool = originals
	}

	// 2. prefer stored data CRC matching the recomputed CRC
	var crcOk []*PEB
	for _, p := range pool {
		if !p.Advisory && p.VID.DataCRC == p.DataCRC {
			crcOk = append(crcOk, p)
		}
	}
	if len(crcOk) == 1 {
		return crcOk[0]
	}
	if len(crcOk) > 1 {
		pool = crcOk
	}

	// 3. prefer higher VID sequence number
	var best *PEB
	tiedHigh := 0
	for _, p := range pool {
		if best == nil || p.VID.Sqnum > best.VID.Sqnum {
			best = p
			tiedHigh = 1
		} else if p.VID.Sqnum == best.VID.Sqnum {
			tiedHigh++
		}
	}
	if tiedHigh == 1 {
		return best
	}

	// 4. total deadlock: keep the lower peb_num, warn
	sort.Slice(pool, func(i, j int) bool { return pool[i].PebNum < pool[j].PebNum })
	log.Printf("ubi: unresolved duplicate for volume %d leb %d among %d candidates, keeping peb %d",
		pool[0].VID.VolID, pool[0].VID.LNum, len(pool), pool[0].PebNum)
	return pool[0]
}

// AbsoluteOffset translates a (leb, within-leb offset) address into an
// absolute byte offset within the volume's underlying Source, for lazy
// re-reads of compressed node payloads (spec §4.9 step 5, §9 "Avoiding
// full-image residency"). ok is false if the LEB has no surviving PEB.
func (v *Volume) AbsoluteOffset(lnum uint32, offs uint32) (off int64, ok bool) {
	if int64(lnum) >= int64(len(v.LEBs)) {
		return 0, false
	}
	pebNum := v.LEBs[lnum]
	if pebNum == MissingPEB {
		return 0, false
	}
	return pebNum*int64(v.src.BlockSize()) + v.dataOffset + int64(offs), true
}

// Source returns the volume's underlying byte source, for lazy re-reads.
func (v *Volume) Source() *Source {
	return v.src
}

func (v *Volume) String() string {
	return fmt.Sprintf("Volume(%q id=%d lebs=%d)", v.Name, v.VolID, len(v.LEBs))
}

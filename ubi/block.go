package ubi

import (
	"encoding/binary"
	"log"
)

// Kind classifies a parsed PEB, the terminal states of spec §4.12's
// per-PEB state machine.
type Kind int

const (
	KindUnknown Kind = iota
	KindLayout
	KindInternal
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindLayout:
		return "layout"
	case KindInternal:
		return "internal"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// PEB is a parsed physical erase block descriptor, spec §3.
type PEB struct {
	FileOffset int64
	PebNum     int64
	Size       int64

	EC  *ECHeader
	VID *VIDHeader

	// VTbl holds up to 128 decoded volume-table records, populated only
	// for layout PEBs (VID.IsLayout() && non-empty table).
	VTbl []VTblRecord

	// DataCRC is the recomputed CRC of the data region, used for
	// freshness comparison in AssembleVolumes (spec §4.4/§4.5). Advisory
	// is true for dynamic volumes per spec §9 open question (a).
	DataCRC  uint32
	Advisory bool

	Kind Kind
	Err  error
}

// Scan reads src one PEB-sized chunk at a time and returns a descriptor per
// chunk, spec §4.4. Chunks lacking the UBI magic still produce a
// KindUnknown descriptor (with Err set to ErrNoMagic) rather than being
// silently skipped, so callers can tell "before the UBI area" apart from a
// corrupt block.
func Scan(src *Source) ([]*PEB, error) {
	var out []*PEB
	firstPeb := int64(0)

	for idx, chunk := range src.Blocks() {
		p := &PEB{
			FileOffset: idx * int64(src.BlockSize()),
			Size:       int64(src.BlockSize()),
		}

		magic := binary.BigEndian.Uint32(chunk[:4])
		if magic != ecHdrMagic {
			p.Kind = KindUnknown
			p.Err = ErrNoMagic
			p.PebNum = -1 // not yet part of the UBI area
			firstPeb = idx + 1
			out = append(out, p)
			continue
		}

		p.PebNum = idx - firstPeb

		ec := &ECHeader{}
		if err := ec.UnmarshalBinary(chunk[:ecHdrSize]); err != nil {
			p.Err = err
			p.Kind = KindUnknown
			out = append(out, p)
			continue
		}
		p.EC = ec

		if !ec.CRCOk {
			herr := &HeaderError{Peb: p.PebNum, Off: p.FileOffset, Err: ErrHeaderCRC}
			if !src.ignoreHdrErrs() {
				p.Err = herr
				p.Kind = KindUnknown
				if !src.warnOnly() {
					return out, herr
				}
				log.Printf("%s", herr)
				out = append(out, p)
				continue
			}
			log.Printf("ubi: ignoring bad EC header CRC on peb %d", p.PebNum)
		}

		if !ec.Valid(uint32(src.BlockSize())) {
			p.Err = &HeaderError{Peb: p.PebNum, Off: p.FileOffset, Err: ErrInvalidSource}
			p.Kind = KindUnknown
			out = append(out, p)
			continue
		}

		vidOff := int64(ec.VidHdrOffset)
		if vidOff+vidHdrSize > int64(len(chunk)) {
			p.Err = ErrShortRead
			p.Kind = KindUnknown
			out = append(out, p)
			continue
		}
		vid := &VIDHeader{}
		if err := vid.UnmarshalBinary(chunk[vidOff : vidOff+vidHdrSize]); err != nil {
			p.Err = err
			p.Kind = KindUnknown
			out = append(out, p)
			continue
		}

		if vid.Magic != vidHdrMagic || (!vid.CRCOk && !src.ignoreHdrErrs()) {
			// no VID header yet, or it's corrupt and we're not told to
			// ignore that: the PEB is still "valid" at the EC layer but
			// carries no volume membership.
			p.Kind = KindUnknown
			if vid.Magic == vidHdrMagic {
				herr := &HeaderError{Peb: p.PebNum, Off: p.FileOffset, Err: ErrHeaderCRC}
				if !src.warnOnly() {
					return out, herr
				}
				log.Printf("%s", herr)
			}
			out = append(out, p)
			continue
		}
		p.VID = vid

		dataOff := int64(ec.DataOffset)
		dataRegion := chunk[dataOff:]

		if vid.IsLayout() {
			recs, err := parseVTbl(dataRegion)
			if err != nil {
				log.Printf("ubi: peb %d: vtbl parse: %s", p.PebNum, err)
			}
			if len(recs) > 0 {
				p.VTbl = recs
				p.Kind = KindLayout
			} else {
				p.Kind = KindInternal
			}
		} else {
			p.Kind = KindData
		}

		// data-region CRC for later freshness comparisons; only meaningful
		// (non-advisory) for static volumes (spec §9 open question a).
		dataLen := int64(vid.DataSize)
		if dataLen > 0 && dataOff+dataLen <= int64(len(chunk)) {
			p.DataCRC = crc32IEEE(chunk[dataOff : dataOff+dataLen])
			p.Advisory = vid.VolType != VolTypeStatic
		} else {
			p.Advisory = true
		}

		out = append(out, p)
	}

	return out, nil
}

// parseVTbl decodes up to 128 volume-table records from a layout PEB's
// data region (spec §3 "Layout volume").
func parseVTbl(data []byte) ([]VTblRecord, error) {
	var recs []VTblRecord
	for i := 0; i < 128; i++ {
		off := i * vtblRecSz
		if off+vtblRecSz > len(data) {
			break
		}
		var rec VTblRecord
		if err := rec.UnmarshalBinary(data[off : off+vtblRecSz]); err != nil {
			return recs, err
		}
		if rec.Empty {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

package ubi

import (
	"bytes"
	"encoding/binary"
)

// Magic numbers, big-endian, per the upstream kernel's ubi-media.h (spec §6).
const (
	ecHdrMagic  = 0x55424923 // "UBI#"
	vidHdrMagic = 0x55424921 // "UBI!"

	ecHdrSize  = 64
	vidHdrSize = 64
	vtblRecSz  = 172

	layoutVolIDStart = 0x7FFFEFFF // volumes with id >= this are layout/internal
)

// ECHeader is the 64-byte erase-count header at offset 0 of every PEB.
type ECHeader struct {
	Magic        uint32
	Version      uint8
	EC           uint64
	VidHdrOffset uint32
	DataOffset   uint32
	ImageSeq     uint32
	HdrCRC       uint32

	CRCOk bool
}

// UnmarshalBinary decodes a 64-byte EC header. Field order follows
// ubi-media.h exactly, including the two reserved padding runs, the same
// way the teacher's Superblock.UnmarshalBinary consumes a header field by
// field against a bytes.Reader (super.go).
func (h *ECHeader) UnmarshalBinary(data []byte) error {
	if len(data) < ecHdrSize {
		return ErrShortRead
	}
	r := bytes.NewReader(data)

	if err := binary.Read(r, binary.BigEndian, &h.Magic); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.Version); err != nil {
		return err
	}
	var pad1 [3]byte
	if err := binary.Read(r, binary.BigEndian, &pad1); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.EC); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.VidHdrOffset); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.DataOffset); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.ImageSeq); err != nil {
		return err
	}
	var pad2 [32]byte
	if err := binary.Read(r, binary.BigEndian, &pad2); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.HdrCRC); err != nil {
		return err
	}

	h.CRCOk = crc32IEEE(data[:ecHdrSize-4]) == h.HdrCRC
	return nil
}

// Valid reports whether the EC header has the UBI magic and a sane offset
// ordering, per spec §3's PEB invariants.
func (h *ECHeader) Valid(pebSize uint32) bool {
	if h.Magic != ecHdrMagic {
		return false
	}
	return h.VidHdrOffset+vidHdrSize <= h.DataOffset && h.DataOffset <= pebSize
}

// VIDHeader is the 64-byte volume-ID header, located at the EC header's
// VidHdrOffset.
type VIDHeader struct {
	Magic    uint32
	Version  uint8
	VolType  uint8
	CopyFlag uint8
	Compat   uint8
	VolID    uint32
	LNum     uint32
	DataSize uint32
	UsedEBs  uint32
	DataPad  uint32
	DataCRC  uint32
	Sqnum    uint64
	HdrCRC   uint32

	CRCOk bool
}

const (
	VolTypeDynamic = 1
	VolTypeStatic  = 2
)

func (h *VIDHeader) UnmarshalBinary(data []byte) error {
	if len(data) < vidHdrSize {
		return ErrShortRead
	}
	r := bytes.NewReader(data)

	if err := binary.Read(r, binary.BigEndian, &h.Magic); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.Version); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.VolType); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.CopyFlag); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.Compat); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.VolID); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.LNum); err != nil {
		return err
	}
	var pad1 [4]byte
	if err := binary.Read(r, binary.BigEndian, &pad1); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.DataSize); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.UsedEBs); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.DataPad); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.DataCRC); err != nil {
		return err
	}
	var pad2 [4]byte
	if err := binary.Read(r, binary.BigEndian, &pad2); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.Sqnum); err != nil {
		return err
	}
	var pad3 [12]byte
	if err := binary.Read(r, binary.BigEndian, &pad3); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.HdrCRC); err != nil {
		return err
	}

	h.CRCOk = crc32IEEE(data[:vidHdrSize-4]) == h.HdrCRC
	return nil
}

// IsLayout reports whether this VID header belongs to a layout/internal
// volume (spec §3's "Layout volume").
func (h *VIDHeader) IsLayout() bool {
	return h.VolID >= layoutVolIDStart
}

// VTblRecord is one 172-byte volume-table record.
type VTblRecord struct {
	ReservedPEBs uint32
	Alignment    uint32
	DataPad      uint32
	VolType      uint8
	UpdMarker    uint8
	NameLen      uint16
	Name         string
	Flags        uint8
	CRC          uint32

	CRCOk bool
	Empty bool // true when NameLen == 0: slot unused, not an error (spec §4.2)
}

func (v *VTblRecord) UnmarshalBinary(data []byte) error {
	if len(data) < vtblRecSz {
		return ErrShortRead
	}
	r := bytes.NewReader(data)

	if err := binary.Read(r, binary.BigEndian, &v.ReservedPEBs); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &v.Alignment); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &v.DataPad); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &v.VolType); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &v.UpdMarker); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &v.NameLen); err != nil {
		return err
	}
	nameBuf := make([]byte, 128)
	if err := binary.Read(r, binary.BigEndian, nameBuf); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &v.Flags); err != nil {
		return err
	}
	var pad [23]byte
	if err := binary.Read(r, binary.BigEndian, &pad); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &v.CRC); err != nil {
		return err
	}

	if v.NameLen == 0 {
		v.Empty = true
		return nil
	}
	n := int(v.NameLen)
	if n > len(nameBuf) {
		n = len(nameBuf)
	}
	v.Name = string(nameBuf[:n])
	v.CRCOk = crc32IEEE(data[:vtblRecSz-4]) == v.CRC
	return nil
}

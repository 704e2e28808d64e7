package ubifs

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
)

// Magic is the UBIFS common-header magic, little-endian (spec §3/§6).
const Magic = 0x06101831

// Node type tags, ubifs-media.h. The core only interprets the eight kinds
// named in spec §3; the remaining four (commit-start, orphan, trunc,
// reference) are only ever skipped by declared length.
const (
	NodeIno  = 0
	NodeData = 1
	NodeDent = 2
	NodeXent = 3
	NodeTrun = 4
	NodePad  = 5
	NodeSb   = 6
	NodeMst  = 7
	NodeRef  = 8
	NodeIdx  = 9
	NodeCS   = 10
	NodeOrph = 11

	chSize = 24
)

// CommonHeader is the 24-byte prefix on every UBIFS node, spec §3/§6.
type CommonHeader struct {
	Magic     uint32
	CRC       uint32
	Sqnum     uint64
	Len       uint32
	NodeType  uint8
	GroupType uint8

	CRCOk bool
}

// UnmarshalBinary decodes a 24-byte common header. It does not check the
// CRC: call VerifyCRC once the body has been read, since the header alone
// doesn't contain the body to check against.
func (h *CommonHeader) UnmarshalBinary(data []byte) error {
	if len(data) < chSize {
		return ErrIO
	}
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &h.Magic); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.CRC); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.Sqnum); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.Len); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.NodeType); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.GroupType); err != nil {
		return err
	}
	var pad [2]byte
	if err := binary.Read(r, binary.LittleEndian, &pad); err != nil {
		return err
	}
	return nil
}

// VerifyCRC checks h.CRC against the node body that followed this header
// (everything in the node after the first 8 bytes of the common header,
// i.e. crc32(sqnum..body), matching ubifs_check_node's convention of
// CRC-ing from byte 8 onward).
func (h *CommonHeader) VerifyCRC(fromSqnumOn []byte) {
	h.CRCOk = crc32.ChecksumIEEE(fromSqnumOn) == h.CRC
}

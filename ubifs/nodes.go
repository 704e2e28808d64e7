package ubifs

import (
	"bytes"
	"encoding/binary"
)

// Fixed body sizes (bytes following the 24-byte common header) for the
// node kinds the core interprets, spec §3/§4.8/§6. Field order is taken
// from the upstream kernel's ubifs-media.h; a few large reserved runs
// (per-node HMAC/hash fields used only by authenticated images, which
// this core never verifies per spec §1) are collapsed into a single
// trailing padding read rather than named field-by-field, since nothing
// downstream ever reads them.
const (
	sbBodySz      = 4072 // UBIFS_SB_NODE body, excluding the 24-byte common header
	sbFixedSz     = 104  // key_hash .. ro_compat_version
	mstBodySz     = 488
	mstFixedSz    = 104
	keyFieldSz    = 16 // on-flash key field width in ino/dent/data nodes (UBIFS_MAX_KEY_LEN)
	shortKeySz    = 8  // packed key width used standalone and inside index branches
	inoFixedSz    = 136
	dataFixedSz   = 24
	dentFixedSz   = 32
	idxHeaderSz   = 4
	branchFixedSz = 20
	padFixedSz    = 4
)

// Superblock is the decoded body of the UBIFS_SB_NODE at LEB 0, offset 0,
// spec §4.7.
type Superblock struct {
	KeyHash         uint8
	KeyFmt          uint8
	Flags           uint32
	MinIOSize       uint32
	LEBSize         uint32
	LEBCnt          uint32
	MaxLEBCnt       uint32
	MaxBudBytes     uint64
	LogLebs         uint32
	LptLebs         uint32
	OrphLebs        uint32
	JheadCnt        uint32
	Fanout          uint32
	LsaveCnt        uint32
	FmtVersion      uint32
	DefaultCompr    uint16
	RpUID           uint32
	RpGID           uint32
	RpSize          uint64
	TimeGran        uint32
	UUID            [16]byte
	RoCompatVersion uint32
}

func (s *Superblock) UnmarshalBinary(body []byte) error {
	if len(body) < sbBodySz {
		return ErrIO
	}
	r := bytes.NewReader(body)
	var pad [2]byte
	if err := binary.Read(r, binary.LittleEndian, &pad); err != nil {
		return err
	}
	fields := []any{
		&s.KeyHash, &s.KeyFmt, &s.Flags, &s.MinIOSize, &s.LEBSize, &s.LEBCnt,
		&s.MaxLEBCnt, &s.MaxBudBytes, &s.LogLebs, &s.LptLebs, &s.OrphLebs,
		&s.JheadCnt, &s.Fanout, &s.LsaveCnt, &s.FmtVersion, &s.DefaultCompr,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	var pad1 [2]byte
	if err := binary.Read(r, binary.LittleEndian, &pad1); err != nil {
		return err
	}
	fields2 := []any{&s.RpUID, &s.RpGID, &s.RpSize, &s.TimeGran, &s.UUID, &s.RoCompatVersion}
	for _, f := range fields2 {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	// remaining bytes (hmac/hash/reserved) intentionally unparsed.
	return nil
}

// Master is the decoded body of a UBIFS_MST_NODE, spec §4.7.
type Master struct {
	HighestInum uint64
	CmtNo       uint64
	Flags       uint32
	LogLnum     uint32
	RootLnum    uint32
	RootOffs    uint32
	RootLen     uint32
	GCLnum      uint32
	IheadLnum   uint32
	IheadOffs   uint32
	IndexSize   uint64
	TotalFree   uint64
	TotalDirty  uint64
	TotalUsed   uint64
	TotalDead   uint64
	TotalDark   uint64
	LeafCnt     uint32
	LogLebs     uint32
}

func (m *Master) UnmarshalBinary(body []byte) error {
	if len(body) < mstBodySz {
		return ErrIO
	}
	r := bytes.NewReader(body)
	fields := []any{
		&m.HighestInum, &m.CmtNo, &m.Flags, &m.LogLnum, &m.RootLnum,
		&m.RootOffs, &m.RootLen, &m.GCLnum, &m.IheadLnum, &m.IheadOffs,
		&m.IndexSize, &m.TotalFree, &m.TotalDirty, &m.TotalUsed,
		&m.TotalDead, &m.TotalDark, &m.LeafCnt, &m.LogLebs,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// InodeNode is the decoded fixed body of a UBIFS_INO_NODE; Data holds the
// trailing inline payload (symlink target or small-file content) sized by
// DataLen, spec §3 "Inode".
type InodeNode struct {
	Key         Key
	CreatSqnum  uint64
	Size        uint64
	AtimeSec    uint64
	CtimeSec    uint64
	MtimeSec    uint64
	AtimeNsec   uint32
	CtimeNsec   uint32
	MtimeNsec   uint32
	Nlink       uint32
	UID         uint32
	GID         uint32
	Mode        uint32
	Flags       uint32
	DataLen     uint32
	XattrCnt    uint32
	XattrSize   uint32
	XattrNames  uint32
	ComprType   uint16
	Data        []byte
}

func (n *InodeNode) UnmarshalBinary(body []byte) error {
	if len(body) < inoFixedSz {
		return ErrIO
	}
	var keyBuf [shortKeySz]byte
	copy(keyBuf[:], body[:shortKeySz])
	n.Key = DecodeKey(keyBuf[:])

	r := bytes.NewReader(body[keyFieldSz:])
	fields := []any{
		&n.CreatSqnum, &n.Size, &n.AtimeSec, &n.CtimeSec, &n.MtimeSec,
		&n.AtimeNsec, &n.CtimeNsec, &n.MtimeNsec, &n.Nlink, &n.UID, &n.GID,
		&n.Mode, &n.Flags, &n.DataLen, &n.XattrCnt, &n.XattrSize,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	var pad1 [4]byte
	if err := binary.Read(r, binary.LittleEndian, &pad1); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &n.XattrNames); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &n.ComprType); err != nil {
		return err
	}
	var pad2 [26]byte
	if err := binary.Read(r, binary.LittleEndian, &pad2); err != nil {
		return err
	}
	if n.DataLen > 0 {
		trailer := body[inoFixedSz:]
		if int(n.DataLen) > len(trailer) {
			return ErrIO
		}
		n.Data = append([]byte(nil), trailer[:n.DataLen]...)
	}
	return nil
}

// DataNode is the decoded fixed body of a UBIFS_DATA_NODE. The compressed
// payload is not held here: the walker records (file offset, ComprLen)
// and the reassembler re-reads it lazily (spec §4.9 step 5, §9 "Avoiding
// full-image residency").
type DataNode struct {
	Key       Key
	Size      uint32 // uncompressed length of this block
	ComprType uint16
	ComprLen  int // filled in by the caller from the common header's Len
}

func (n *DataNode) UnmarshalBinary(body []byte) error {
	if len(body) < dataFixedSz {
		return ErrIO
	}
	var keyBuf [shortKeySz]byte
	copy(keyBuf[:], body[:shortKeySz])
	n.Key = DecodeKey(keyBuf[:])

	r := bytes.NewReader(body[keyFieldSz:])
	if err := binary.Read(r, binary.LittleEndian, &n.Size); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &n.ComprType); err != nil {
		return err
	}
	var pad [2]byte
	if err := binary.Read(r, binary.LittleEndian, &pad); err != nil {
		return err
	}
	return nil
}

// DentNode is the decoded UBIFS_DENT_NODE / UBIFS_XENT_NODE (identical
// layout, spec §3 "Directory entry"). Name is the raw (possibly
// hash-only-addressable) filename carried in the node body; the walker
// never needs to reverse Key.Hash() to get it (spec §9).
type DentNode struct {
	Key   Key
	Inum  uint64
	Type  uint8
	Name  string
}

func (n *DentNode) UnmarshalBinary(body []byte) error {
	if len(body) < dentFixedSz {
		return ErrIO
	}
	var keyBuf [shortKeySz]byte
	copy(keyBuf[:], body[:shortKeySz])
	n.Key = DecodeKey(keyBuf[:])

	r := bytes.NewReader(body[keyFieldSz : keyFieldSz+8])
	if err := binary.Read(r, binary.LittleEndian, &n.Inum); err != nil {
		return err
	}
	var pad1 uint8
	if err := binary.Read(bytes.NewReader(body[24:25]), binary.LittleEndian, &pad1); err != nil {
		return err
	}
	n.Type = body[25]
	nlen := binary.LittleEndian.Uint16(body[26:28])
	// body[28:32] is reserved padding.
	trailer := body[dentFixedSz:]
	if int(nlen) > len(trailer) {
		return ErrIO
	}
	n.Name = string(trailer[:nlen])
	return nil
}

// Branch is one entry of a UBIFS_IDX_NODE's branch array; Key is the
// branch's separator key (used only for debugging here, since the walker
// performs a full descent rather than a point lookup, spec §4.9).
type Branch struct {
	Key  Key
	Lnum uint32
	Offs uint32
	Len  uint32
}

// IndexNode is the decoded UBIFS_IDX_NODE. Branch stride auto-sizing
// (spec §4.8) tolerates authenticated images appending a per-branch hash
// after the fixed 20 bytes; those trailing bytes are never interpreted.
type IndexNode struct {
	ChildCnt uint16
	Level    uint16
	Branches []Branch
}

func (n *IndexNode) UnmarshalBinary(body []byte, declaredLen uint32) error {
	if len(body) < idxHeaderSz {
		return ErrIO
	}
	n.ChildCnt = binary.LittleEndian.Uint16(body[0:2])
	n.Level = binary.LittleEndian.Uint16(body[2:4])

	if n.ChildCnt == 0 {
		return nil
	}
	available := int64(declaredLen) - chSize - idxHeaderSz
	if available <= 0 {
		return ErrParse
	}
	stride := available / int64(n.ChildCnt)
	if stride < branchFixedSz {
		return ErrParse
	}

	n.Branches = make([]Branch, 0, n.ChildCnt)
	off := idxHeaderSz
	for i := uint16(0); i < n.ChildCnt; i++ {
		end := off + int(stride)
		if end > len(body) {
			return ErrIO
		}
		b := body[off:end]
		var br Branch
		br.Lnum = binary.LittleEndian.Uint32(b[0:4])
		br.Offs = binary.LittleEndian.Uint32(b[4:8])
		br.Len = binary.LittleEndian.Uint32(b[8:12])
		var keyBuf [shortKeySz]byte
		copy(keyBuf[:], b[12:12+shortKeySz])
		br.Key = DecodeKey(keyBuf[:])
		n.Branches = append(n.Branches, br)
		off = end
	}
	return nil
}

// PadNode is the decoded UBIFS_PAD_NODE: declares a tail length to skip,
// spec §3 "Padding nodes declare a tail length to skip".
type PadNode struct {
	PadLen uint32
}

func (n *PadNode) UnmarshalBinary(body []byte) error {
	if len(body) < padFixedSz {
		return ErrIO
	}
	n.PadLen = binary.LittleEndian.Uint32(body[0:4])
	return nil
}

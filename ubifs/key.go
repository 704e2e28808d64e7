package ubifs

import "encoding/binary"

// Key types, spec §3 "Key".
const (
	KeyInode = 0
	KeyData  = 1
	KeyDent  = 2
	KeyXent  = 3
)

const keyHashMask = (1 << 29) - 1

// Key is the 8-byte packed UBIFS key: low 29 bits are the block hash (data
// block index, or hashed name for dents), next 3 bits are the key type,
// upper 32 bits are the inode number (spec §3).
type Key uint64

// DecodeKey reads an 8-byte on-flash key: two little-endian u32 words,
// low word first (type+hash), then the inode number.
func DecodeKey(b []byte) Key {
	low := binary.LittleEndian.Uint32(b[0:4])
	inum := binary.LittleEndian.Uint32(b[4:8])
	return Key(uint64(inum)<<32 | uint64(low))
}

// NewKey packs an inode number, key type, and 29-bit hash into a Key.
func NewKey(inum uint32, typ uint8, hash uint32) Key {
	low := (uint32(typ&0x7) << 29) | (hash & keyHashMask)
	return Key(uint64(inum)<<32 | uint64(low))
}

// Inum returns the inode number encoded in the key's upper 32 bits.
func (k Key) Inum() uint32 {
	return uint32(k >> 32)
}

// low returns the key's low 32-bit word (type + hash).
func (k Key) low() uint32 {
	return uint32(k & 0xffffffff)
}

// Type returns the key's type (KeyInode/KeyData/KeyDent/KeyXent).
func (k Key) Type() uint8 {
	return uint8((k.low() >> 29) & 0x7)
}

// Hash returns the key's low 29 bits: a data node's block index, or a
// dent/xent's hashed name.
func (k Key) Hash() uint32 {
	return k.low() & keyHashMask
}

// blockOrderKey returns the (type<<29 | hash) value used to order data
// nodes within one inode for reassembly (spec §4.10), independent of
// Inum since all data nodes being ordered already share one inode.
func (k Key) blockOrderKey() uint32 {
	return k.low()
}

// dataStartKey is "UBIFS_DATA_KEY << 29" per spec §4.10 step 2: the
// block-order key immediately preceding block 0 of a file's data.
const dataStartKey = uint32(KeyData) << 29

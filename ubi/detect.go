package ubi

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
)

// ubifsMagic is the UBIFS common-header magic, little-endian (spec §6).
const ubifsMagic = 0x06101831

var ecMagicBytes = []byte{0x55, 0x42, 0x49, 0x23} // "UBI#", big-endian encoding of ecHdrMagic

// DetectBlockSize scans r for successive occurrences of the UBI magic and
// returns the modal delta between them, per spec §6: "PEB size is the most
// frequent delta between successive occurrences of the UBI magic bytes".
// This is brittle on heavily fragmented images (spec §9 open question c);
// callers should prefer an explicit block_size when known.
func DetectBlockSize(r io.ReaderAt, size int64) (int, error) {
	const chunkSize = 1 << 20
	var offsets []int64
	buf := make([]byte, chunkSize+3)

	for off := int64(0); off < size; off += chunkSize {
		n := chunkSize + 3
		if off+int64(n) > size {
			n = int(size - off)
		}
		if n <= 0 {
			break
		}
		nr, err := r.ReadAt(buf[:n], off)
		if err != nil && err != io.EOF {
			return 0, err
		}
		data := buf[:nr]
		idx := 0
		for {
			i := bytes.Index(data[idx:], ecMagicBytes)
			if i < 0 {
				break
			}
			offsets = append(offsets, off+int64(idx+i))
			idx += i + 1
		}
	}

	if len(offsets) < 2 {
		return 0, ErrNoMagic
	}

	counts := map[int64]int{}
	for i := 1; i < len(offsets); i++ {
		delta := offsets[i] - offsets[i-1]
		if delta <= 0 {
			continue
		}
		counts[delta]++
	}

	var best int64
	bestCount := 0
	var deltas []int64
	for d := range counts {
		deltas = append(deltas, d)
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })
	for _, d := range deltas {
		if counts[d] > bestCount {
			best = d
			bestCount = counts[d]
		}
	}
	if best == 0 {
		return 0, ErrNoMagic
	}
	return int(best), nil
}

// ImageType identifies whether start_offset points at a bare UBI image or
// an already-unwrapped UBIFS volume, spec §6 "File type is decided by the
// first 4 bytes at start_offset".
type ImageType int

const (
	TypeUnknown ImageType = iota
	TypeUBI
	TypeUBIFS
)

// DetectImageType reads the 4 bytes at off and classifies them.
func DetectImageType(r io.ReaderAt, off int64) (ImageType, error) {
	var buf [4]byte
	if _, err := r.ReadAt(buf[:], off); err != nil {
		return TypeUnknown, err
	}
	switch binary.BigEndian.Uint32(buf[:]) {
	case ecHdrMagic:
		return TypeUBI, nil
	}
	if binary.LittleEndian.Uint32(buf[:]) == ubifsMagic {
		return TypeUBIFS, nil
	}
	return TypeUnknown, nil
}

// DetectLEBSize scans r for the first UBIFS magic and decodes enough of
// the superblock node that follows to read its leb_size field, spec §6.
// The common header is 24 bytes; leb_size sits at a fixed offset within
// the superblock body (see ubifs.Superblock).
func DetectLEBSize(r io.ReaderAt, size int64) (int, error) {
	const chunkSize = 1 << 20
	magicBytes := []byte{0x31, 0x18, 0x10, 0x06} // little-endian encoding of ubifsMagic
	buf := make([]byte, chunkSize+3)

	for off := int64(0); off < size; off += chunkSize {
		n := chunkSize + 3
		if off+int64(n) > size {
			n = int(size - off)
		}
		if n <= 0 {
			break
		}
		nr, err := r.ReadAt(buf[:n], off)
		if err != nil && err != io.EOF {
			return 0, err
		}
		data := buf[:nr]
		i := bytes.Index(data, magicBytes)
		if i < 0 {
			continue
		}
		// common header (24B) + superblock body: 2 bytes padding,
		// key_hash(1), key_fmt(1), flags(4), min_io_size(4), then
		// leb_size(4) — see ubifs.Superblock for the authoritative layout.
		const lebSizeRelOffset = 24 + 12
		sbOff := off + int64(i)
		var sb [lebSizeRelOffset + 4]byte
		if _, err := r.ReadAt(sb[:], sbOff); err != nil {
			return 0, err
		}
		return int(binary.LittleEndian.Uint32(sb[lebSizeRelOffset:])), nil
	}
	return 0, ErrNoMagic
}

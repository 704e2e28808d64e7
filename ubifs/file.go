package ubifs

import (
	"bytes"
	"io"
	"sort"
)

// DataBlockSize is the fixed uncompressed block size a regular file's
// data is chunked into before compression, spec §3 "Data node": block i
// covers file bytes [i*4096, (i+1)*4096).
const DataBlockSize = 4096

// Reassemble implements the five-step file-reassembly algorithm of spec
// §4.10: sort by block hash, sparse-hole fill, lazy re-read + decompress
// of each block, and final size padding. The whole result is built in
// memory and handed back as an io.Reader — satisfying spec §5's "at most
// one file's worth of bytes" budget, since the caller discards it before
// reassembling the next file (the teacher's File wraps a single
// *io.SectionReader the same way, file.go).
func (ino *Inode) Reassemble(src io.ReaderAt) (io.Reader, error) {
	if ino.Ino == nil {
		return nil, ErrStructural
	}

	blocks := append([]DataRef(nil), ino.Data...)
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Key.blockOrderKey() < blocks[j].Key.blockOrderKey()
	})

	var buf bytes.Buffer
	last := int64(dataStartKey) - 1

	for _, b := range blocks {
		cur := int64(b.Key.blockOrderKey())
		if cur-last > 1 {
			gap := cur - last - 1
			writeZeros(&buf, gap*DataBlockSize)
		}

		compressed := make([]byte, b.ComprLen)
		if err := readExact(src, b.AbsOffset, compressed); err != nil {
			// decode error path per spec §4.13: replace with zeros of the
			// declared uncompressed size and keep going.
			writeZeros(&buf, int64(b.Size))
			last = cur
			continue
		}
		buf.Write(decompress(b.ComprType, compressed, int(b.Size)))
		last = cur
	}

	if int64(buf.Len()) < int64(ino.Ino.Size) {
		writeZeros(&buf, int64(ino.Ino.Size)-int64(buf.Len()))
	}

	return bytes.NewReader(buf.Bytes()), nil
}

// SymlinkTarget returns a symlink inode's inline target with the trailing
// NUL stripped, spec §4.10 "Symlinks".
func (ino *Inode) SymlinkTarget() string {
	if ino.Ino == nil {
		return ""
	}
	d := ino.Ino.Data
	if len(d) > 0 && d[len(d)-1] == 0 {
		d = d[:len(d)-1]
	}
	return string(d)
}

func writeZeros(buf *bytes.Buffer, n int64) {
	if n <= 0 {
		return
	}
	const chunk = 4096
	zeros := make([]byte, chunk)
	for n > 0 {
		k := int64(chunk)
		if n < k {
			k = n
		}
		buf.Write(zeros[:k])
		n -= k
	}
}

func readExact(src io.ReaderAt, off int64, buf []byte) error {
	n, err := src.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

package ubifs

import (
	"bytes"
	"io"
	"log"

	lzo "github.com/anchore/go-lzo"
	"github.com/klauspost/compress/flate"
)

// Compression type ids carried in DataNode.ComprType / InodeNode.ComprType
// (ubifs-media.h), spec §4.3.
const (
	ComprNone = 0
	ComprLZO  = 1
	ComprZlib = 2
)

// decompress dispatches on kind and returns exactly outLen bytes on
// success. On any codec error it returns outLen zero bytes and logs a
// warning rather than failing the call, so sibling blocks in the same
// file can still be recovered (spec §4.3, §4.13).
func decompress(kind uint16, in []byte, outLen int) []byte {
	switch kind {
	case ComprNone:
		return padOrTrim(in, outLen)
	case ComprLZO:
		// go-lzo needs the declared uncompressed length as a hint since
		// the LZO1X stream doesn't embed it (spec §4.3).
		out, err := lzo.Decompress1X(bytes.NewReader(in), outLen, outLen)
		if err != nil {
			log.Printf("ubifs: lzo decompress failed: %s", err)
			return make([]byte, outLen)
		}
		return padOrTrim(out, outLen)
	case ComprZlib:
		// UBIFS's "zlib" compression type is raw deflate (zlib configured
		// with negative windowBits, i.e. no zlib container); klauspost's
		// flate reader decodes the identical raw-deflate bitstream.
		r := flate.NewReader(bytes.NewReader(in))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			log.Printf("ubifs: zlib(raw deflate) decompress failed: %s", err)
			return make([]byte, outLen)
		}
		return padOrTrim(out, outLen)
	default:
		log.Printf("ubifs: unknown compression type %d", kind)
		return make([]byte, outLen)
	}
}

func padOrTrim(b []byte, n int) []byte {
	if len(b) == n {
		return b
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

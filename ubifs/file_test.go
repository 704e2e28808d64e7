package ubifs_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/flashbox/ubireader/ubifs"
)

// mockSource is a fixed in-memory io.ReaderAt standing in for an
// ubi.Source's absolute address space, the same mock-reader shape the
// teacher uses for its own header-decode tests.
type mockSource struct {
	data []byte
}

func (m *mockSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func TestReassembleFillsSparseHoleAndPadsTail(t *testing.T) {
	block0 := bytes.Repeat([]byte{0xAA}, 4096)
	// block 1 deliberately absent: a hole.
	block2 := bytes.Repeat([]byte{0xBB}, 4096)

	src := &mockSource{data: append(append([]byte{}, block0...), block2...)}

	ino := &ubifs.Inode{
		Ino: &ubifs.InodeNode{Size: 4096*3 + 10}, // trailing partial block too
		Data: []ubifs.DataRef{
			{Key: ubifs.NewKey(5, ubifs.KeyData, 2), AbsOffset: 4096, ComprLen: 4096, ComprType: ubifs.ComprNone, Size: 4096},
			{Key: ubifs.NewKey(5, ubifs.KeyData, 0), AbsOffset: 0, ComprLen: 4096, ComprType: ubifs.ComprNone, Size: 4096},
		},
	}

	r, err := ino.Reassemble(src)
	if err != nil {
		t.Fatalf("Reassemble: %s", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %s", err)
	}

	if int64(len(out)) != int64(ino.Ino.Size) {
		t.Fatalf("expected length %d, got %d", ino.Ino.Size, len(out))
	}
	if !bytes.Equal(out[0:4096], block0) {
		t.Errorf("block 0 mismatch")
	}
	for _, b := range out[4096:8192] {
		if b != 0 {
			t.Fatalf("expected hole block to be all zero")
		}
	}
	if !bytes.Equal(out[8192:12288], block2) {
		t.Errorf("block 2 mismatch")
	}
	for _, b := range out[12288:] {
		if b != 0 {
			t.Errorf("expected zero tail padding")
		}
	}
}

func TestSymlinkTargetStripsTrailingNul(t *testing.T) {
	ino := &ubifs.Inode{Ino: &ubifs.InodeNode{Data: append([]byte("target/path"), 0)}}
	if got := ino.SymlinkTarget(); got != "target/path" {
		t.Errorf("got %q", got)
	}
}

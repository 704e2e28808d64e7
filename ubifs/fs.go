package ubifs

import (
	"io"

	"github.com/flashbox/ubireader/ubi"
)

// lebWindow adapts a single LEB of a LEBStream to io.ReaderAt, so the
// superblock/master readers (which expect a plain random-access reader)
// can be reused unchanged for node reads inside one known LEB.
type lebWindow struct {
	ls   *ubi.LEBStream
	lnum uint32
}

func (w *lebWindow) ReadAt(p []byte, off int64) (int, error) {
	if err := w.ls.ReadAt(w.lnum, uint32(off), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// FS is an opened UBIFS instance: superblock and master read, ready to be
// walked (spec §4.12 "Per UBIFS instance" state machine: Opened -> SbOk ->
// MstOk here; Walked/Frozen happen in Walk/the Tree it returns).
type FS struct {
	vol    *ubi.Volume
	stream *ubi.LEBStream

	Superblock *Superblock
	Master     *Master

	cfg *config
}

var _ io.ReaderAt = (*lebWindow)(nil)

// Open locates and validates the superblock and master records of the
// UBIFS instance living in vol, spec §4.7. Both are fatal on failure
// regardless of warn/strict mode (spec §4.12, §4.13 "Missing master
// nodes: abort" in both columns).
func Open(vol *ubi.Volume, opts ...Option) (*FS, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}

	stream := vol.NewLEBStream()

	sb, err := readSuperblock(&lebWindow{stream, 0})
	if err != nil {
		return nil, err
	}

	master, err := readMaster(&lebWindow{stream, 1}, &lebWindow{stream, 2}, stream.LEBSize())
	if err != nil {
		return nil, err
	}

	return &FS{vol: vol, stream: stream, Superblock: sb, Master: master, cfg: cfg}, nil
}

// Volume returns the underlying UBI volume this instance was opened on,
// for callers that need lazy re-reads (e.g. cmd/ubireader's cat/extract).
func (fs *FS) Volume() *ubi.Volume {
	return fs.vol
}

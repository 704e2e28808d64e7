package ubi

import (
	"fmt"
	"io"
	"log"
)

// Source is a random-access reader bounded to [start, end), block-aligned.
// It is owned by the top-level driver and may be shared sequentially between
// the block scanner and any LEBStream built on top of an assembled volume
// (spec §5): callers must serialize their reads, the Source keeps no
// internal mutex.
type Source struct {
	r         io.ReaderAt
	start     int64
	end       int64
	blockSize int

	lastOff int64 // last-read-offset recall, spec §4.1
	cfg     *config
}

// NewSource validates bounds/alignment and returns a Source. size is the
// total size of the underlying reader, used only for the start<end<=size
// check; pass -1 if unknown to skip that half of the validation.
func NewSource(r io.ReaderAt, start, end int64, blockSize int, size int64, opts ...Option) (*Source, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: start=%d end=%d", ErrInvalidSource, start, end)
	}
	if size >= 0 && end > size {
		return nil, fmt.Errorf("%w: end=%d exceeds size=%d", ErrInvalidSource, end, size)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: block size must be positive", ErrInvalidSource)
	}
	if (end-start)%int64(blockSize) != 0 {
		if !cfg.warnOnly {
			return nil, fmt.Errorf("%w: [%d,%d) not aligned to block size %d", ErrInvalidSource, start, end, blockSize)
		}
		log.Printf("ubi: source [%d,%d) misaligned to block size %d, continuing (warn mode)", start, end, blockSize)
	}

	return &Source{r: r, start: start, end: end, blockSize: blockSize, cfg: cfg}, nil
}

// Len returns the usable length of the source, end-start.
func (s *Source) Len() int64 {
	return s.end - s.start
}

// BlockSize returns the configured block size.
func (s *Source) BlockSize() int {
	return s.blockSize
}

// BlockCount returns the number of block-sized chunks in [start,end).
func (s *Source) BlockCount() int64 {
	return s.Len() / int64(s.blockSize)
}

// ReadAt reads exactly len(buf) bytes at the given offset, relative to
// start. A short read past end is a bad-read error (spec §4.1), except
// under WarnOnly where the bytes past end are zero-filled instead.
func (s *Source) ReadAt(buf []byte, off int64) error {
	abs := s.start + off
	if abs+int64(len(buf)) > s.end {
		if !s.cfg.warnOnly {
			return fmt.Errorf("%w: off=%d len=%d end=%d", ErrShortRead, off, len(buf), s.end-s.start)
		}
		// warn mode: truncate the read to what's available
		avail := s.end - abs
		if avail < 0 {
			avail = 0
		}
		if avail > 0 {
			if _, err := s.r.ReadAt(buf[:avail], abs); err != nil && err != io.EOF {
				return err
			}
		}
		for i := avail; i < int64(len(buf)); i++ {
			buf[i] = 0
		}
		s.lastOff = off
		return nil
	}
	n, err := s.r.ReadAt(buf, abs)
	if err != nil && !(err == io.EOF && n == len(buf)) {
		return err
	}
	s.lastOff = off
	return nil
}

// LastOffset recalls the offset of the most recent successful ReadAt call,
// relative to start.
func (s *Source) LastOffset() int64 {
	return s.lastOff
}

// Block reads the PEB-sized chunk at the given zero-based block index.
func (s *Source) Block(index int64) ([]byte, error) {
	buf := make([]byte, s.blockSize)
	if err := s.ReadAt(buf, index*int64(s.blockSize)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Blocks returns an iterator over successive block-aligned chunks until
// end, each paired with its zero-based block index. Matches spec §4.1's
// "generator that yields successive block-aligned chunks".
func (s *Source) Blocks() func(yield func(int64, []byte) bool) {
	return func(yield func(int64, []byte) bool) {
		n := s.BlockCount()
		for i := int64(0); i < n; i++ {
			buf, err := s.Block(i)
			if err != nil {
				// under strict mode Block already returned an error the
				// caller of Blocks has no channel to report; warn and stop.
				log.Printf("ubi: block %d: %s", i, err)
				return
			}
			if !yield(i, buf) {
				return
			}
		}
	}
}

// AsReaderAt adapts the Source's (buf, off) error signature to the
// standard io.ReaderAt interface, for callers (like ubifs's file
// reassembler) that need a plain random-access reader rather than
// Source's warn-mode-aware ReadAt.
func (s *Source) AsReaderAt() io.ReaderAt {
	return sourceReaderAtAdapter{s}
}

type sourceReaderAtAdapter struct{ s *Source }

func (a sourceReaderAtAdapter) ReadAt(p []byte, off int64) (int, error) {
	if err := a.s.ReadAt(p, off); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *Source) warnOnly() bool      { return s.cfg.warnOnly }
func (s *Source) ignoreHdrErrs() bool { return s.cfg.ignoreHdrErrs }
func (s *Source) ubootFix() bool      { return s.cfg.ubootFix }

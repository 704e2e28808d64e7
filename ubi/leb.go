package ubi

import (
	"errors"
	"io"
)

// LEBStream presents a Volume as bytes [0, leb_count*leb_size), spec §4.6.
// It borrows the volume's Source and block-index list; it owns nothing
// beyond a one-LEB read cache, per spec §3 "Ownership".
type LEBStream struct {
	v       *Volume
	lebSize int64
	off     int64 // current read position

	cachedLeb int64
	cachedBuf []byte
}

// NewLEBStream builds a virtual contiguous stream over v.
func (v *Volume) NewLEBStream() *LEBStream {
	return &LEBStream{
		v:         v,
		lebSize:   v.LebSize(),
		cachedLeb: -1,
	}
}

// LebSize returns the per-LEB usable payload size: PEB size minus the data
// offset and the volume's payload pad.
func (v *Volume) LebSize() int64 {
	return int64(v.src.BlockSize()) - v.dataOffset - int64(v.DataPad)
}

// Len returns the total virtual stream length.
func (s *LEBStream) Len() int64 {
	return int64(len(s.v.LEBs)) * s.lebSize
}

// Seek implements io.Seeker.
func (s *LEBStream) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.off + offset
	case io.SeekEnd:
		abs = s.Len() + offset
	default:
		return 0, errors.New("ubi: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("ubi: negative seek")
	}
	s.off = abs
	return abs, nil
}

// Read implements io.Reader, translating the virtual offset into
// (leb, within-leb offset) and filling missing LEBs with 0xFF (spec §4.6).
func (s *LEBStream) Read(p []byte) (int, error) {
	if s.off >= s.Len() {
		return 0, io.EOF
	}
	total := 0
	for total < len(p) {
		if s.off >= s.Len() {
			break
		}
		lebIdx := s.off / s.lebSize
		within := s.off % s.lebSize
		buf, err := s.lebBuf(lebIdx)
		if err != nil {
			return total, err
		}
		n := copy(p[total:], buf[within:])
		total += n
		s.off += int64(n)
	}
	if total == 0 {
		return 0, io.EOF
	}
	return total, nil
}

// lebBuf returns the data region of the PEB backing the given LEB index,
// using the one-LEB cache for locality on sequential walks (spec §4.6).
func (s *LEBStream) lebBuf(lebIdx int64) ([]byte, error) {
	if s.cachedLeb == lebIdx {
		return s.cachedBuf, nil
	}

	pebNum := s.v.LEBs[lebIdx]
	if pebNum == MissingPEB {
		buf := make([]byte, s.lebSize)
		for i := range buf {
			buf[i] = 0xFF
		}
		s.cachedLeb = lebIdx
		s.cachedBuf = buf
		return buf, nil
	}

	buf := make([]byte, s.lebSize)
	if err := s.v.src.ReadAt(buf, pebNum*int64(s.v.src.BlockSize())+s.v.dataOffset); err != nil {
		return nil, err
	}
	s.cachedLeb = lebIdx
	s.cachedBuf = buf
	return buf, nil
}

// ReadAt reads len(buf) bytes from within a specific LEB at a within-LEB
// byte offset, used by the UBIFS layer to address nodes by (lnum, offs)
// without disturbing the stream's own Seek/Read cursor.
func (s *LEBStream) ReadAt(lnum uint32, offs uint32, buf []byte) error {
	if int64(lnum) >= int64(len(s.v.LEBs)) {
		return io.ErrUnexpectedEOF
	}
	data, err := s.lebBuf(int64(lnum))
	if err != nil {
		return err
	}
	if int64(offs)+int64(len(buf)) > int64(len(data)) {
		return io.ErrUnexpectedEOF
	}
	copy(buf, data[offs:])
	return nil
}

// LEBCount returns the number of logical erase blocks in the volume.
func (s *LEBStream) LEBCount() int {
	return len(s.v.LEBs)
}

// LEBSize returns the per-LEB usable payload size.
func (s *LEBStream) LEBSize() int64 {
	return s.lebSize
}

// Chunks returns an iterator over sequential leb-sized chunks of the
// stream, starting with the whole LEB that holds the current position and
// running to the end. It does not move the stream's position.
func (s *LEBStream) Chunks() func(yield func(int64, []byte) bool) {
	return func(yield func(int64, []byte) bool) {
		n := int64(len(s.v.LEBs))
		for i := s.off / s.lebSize; i < n; i++ {
			buf, err := s.lebBuf(i)
			if err != nil {
				return
			}
			if !yield(i, buf) {
				return
			}
		}
	}
}

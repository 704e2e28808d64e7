package ubifs

import (
	"io"
	"log"
)

// readNode reads a node's 24-byte common header at (r, off) plus its
// declared body, verifying the header CRC over everything after the
// magic+crc fields. Returns the raw node bytes (header+body) and the
// decoded header.
func readNode(r io.ReaderAt, off int64, expectMagic uint32) (CommonHeader, []byte, error) {
	var chBuf [chSize]byte
	if _, err := r.ReadAt(chBuf[:], off); err != nil {
		return CommonHeader{}, nil, err
	}

	var ch CommonHeader
	if err := ch.UnmarshalBinary(chBuf[:]); err != nil {
		return ch, nil, err
	}
	if ch.Magic != expectMagic {
		return ch, nil, ErrParse
	}
	if ch.Len < chSize {
		return ch, nil, ErrParse
	}

	raw := make([]byte, ch.Len)
	copy(raw, chBuf[:])
	if ch.Len > chSize {
		if _, err := r.ReadAt(raw[chSize:], off+chSize); err != nil {
			return ch, nil, err
		}
	}

	ch.VerifyCRC(raw[8:])
	return ch, raw, nil
}

// readSuperblock reads the superblock node at LEB 0, offset 0, spec §4.7.
func readSuperblock(r io.ReaderAt) (*Superblock, error) {
	ch, raw, err := readNode(r, 0, Magic)
	if err != nil {
		return nil, err
	}
	if ch.NodeType != NodeSb {
		return nil, ErrBadSuperblock
	}
	if !ch.CRCOk {
		return nil, ErrBadSuperblock
	}

	sb := &Superblock{}
	if err := sb.UnmarshalBinary(raw[chSize:]); err != nil {
		return nil, err
	}
	return sb, nil
}

// readMasterSlot iterates nodes within one LEB (honoring pad-node tails)
// until the first common-header CRC mismatch, decoding every master
// node attempt it finds and returning the one with the highest cmt_no
// (spec §4.7).
func readMasterSlot(r io.ReaderAt, lebSize int64) (*Master, error) {
	var best *Master
	off := int64(0)

	for off+chSize <= lebSize {
		var chBuf [chSize]byte
		if _, err := r.ReadAt(chBuf[:], off); err != nil {
			break
		}
		var ch CommonHeader
		if err := ch.UnmarshalBinary(chBuf[:]); err != nil || ch.Magic != Magic {
			break
		}
		if ch.Len < chSize || off+int64(ch.Len) > lebSize {
			break
		}

		raw := make([]byte, ch.Len)
		copy(raw, chBuf[:])
		if ch.Len > chSize {
			if _, err := r.ReadAt(raw[chSize:], off+chSize); err != nil {
				break
			}
		}
		ch.VerifyCRC(raw[8:])
		if !ch.CRCOk {
			break
		}

		switch ch.NodeType {
		case NodePad:
			var pn PadNode
			if err := pn.UnmarshalBinary(raw[chSize:]); err != nil {
				break
			}
			off += int64(ch.Len) + int64(pn.PadLen)
			continue
		case NodeMst:
			m := &Master{}
			if err := m.UnmarshalBinary(raw[chSize:]); err == nil {
				if best == nil || m.CmtNo > best.CmtNo {
					best = m
				}
			}
		}
		off += int64(ch.Len)
	}

	return best, nil
}

// readMaster implements the two-slot freshest-master selection of spec
// §4.7, including the slot-0-bad/slot-1-good promotion.
func readMaster(leb1, leb2 io.ReaderAt, lebSize int64) (*Master, error) {
	m0, _ := readMasterSlot(leb1, lebSize)
	m1, _ := readMasterSlot(leb2, lebSize)

	if m0 == nil && m1 != nil {
		log.Printf("ubifs: master slot 0 invalid, promoting slot 1 (cmt_no=%d)", m1.CmtNo)
		return m1, nil
	}
	if m0 == nil {
		return nil, ErrNoMaster
	}
	if m1 != nil && m1.CmtNo > m0.CmtNo {
		return m1, nil
	}
	return m0, nil
}

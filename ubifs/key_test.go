package ubifs_test

import (
	"encoding/binary"
	"testing"

	"github.com/flashbox/ubireader/ubifs"
)

func TestKeyRoundTrip(t *testing.T) {
	k := ubifs.NewKey(42, ubifs.KeyData, 7)
	if k.Inum() != 42 {
		t.Errorf("Inum: got %d want 42", k.Inum())
	}
	if k.Type() != ubifs.KeyData {
		t.Errorf("Type: got %d want %d", k.Type(), ubifs.KeyData)
	}
	if k.Hash() != 7 {
		t.Errorf("Hash: got %d want 7", k.Hash())
	}
}

func TestDecodeKeyMatchesOnDiskLayout(t *testing.T) {
	var buf [8]byte
	low := uint32(ubifs.KeyDent)<<29 | 123
	binary.LittleEndian.PutUint32(buf[0:4], low)
	binary.LittleEndian.PutUint32(buf[4:8], 99)

	k := ubifs.DecodeKey(buf[:])
	if k.Inum() != 99 || k.Type() != ubifs.KeyDent || k.Hash() != 123 {
		t.Errorf("decoded key mismatch: inum=%d type=%d hash=%d", k.Inum(), k.Type(), k.Hash())
	}
}

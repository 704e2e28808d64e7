package ubifs

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
)

// Decryption support for fscrypt-style encrypted UBIFS images, spec §9
// "Filename and data encryption". Open, Walk and Reassemble do not call
// these functions, so names and data of encrypted images are returned as
// stored on flash. Grounded on the common AES-XTS/CBC-CTS
// scheme fscrypt uses, reimplemented over stdlib block ciphers since no
// pack dependency exposes either mode directly.

const aesBlockSize = 16

// deriveFileKey derives a per-inode key from the volume master key and the
// inode's 16-byte nonce: the master key is encrypted with AES-128-ECB using
// the nonce as the AES key, block by block, so a 64-byte master key yields
// a 64-byte derived key. Trailing master-key bytes short of a whole AES
// block are not encrypted and are left out of the result.
func deriveFileKey(masterKey, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(nonce)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(masterKey)/aesBlockSize*aesBlockSize)
	for off := 0; off < len(out); off += aesBlockSize {
		block.Encrypt(out[off:off+aesBlockSize], masterKey[off:off+aesBlockSize])
	}
	return out, nil
}

// decryptName reverses AES-CBC-CTS encryption of a directory entry name,
// spec §9. Names shorter than one AES block are not encrypted by fscrypt
// and are returned unchanged.
func decryptName(key, name []byte) ([]byte, error) {
	if len(name) < aesBlockSize {
		return name, nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(name))
	cbcCTSDecrypt(block, out, name)
	return out, nil
}

// cbcCTSDecrypt implements CBC with ciphertext stealing (CS3 variant) for
// a buffer whose length need not be block-aligned. Go's stdlib only
// exposes plain block-aligned CBC, so the final two blocks are handled by
// hand per the standard CTS construction.
func cbcCTSDecrypt(block cipher.Block, dst, src []byte) {
	n := len(src)
	if n <= aesBlockSize {
		block.Decrypt(dst[:n], src[:n])
		return
	}

	full := (n / aesBlockSize) * aesBlockSize
	if n%aesBlockSize == 0 {
		full -= aesBlockSize
	}

	iv := make([]byte, aesBlockSize)
	for off := 0; off < full-aesBlockSize; off += aesBlockSize {
		var tmp [aesBlockSize]byte
		block.Decrypt(tmp[:], src[off:off+aesBlockSize])
		xorBlock(dst[off:off+aesBlockSize], tmp[:], iv)
		copy(iv, src[off:off+aesBlockSize])
	}

	// last full block + stolen tail, per CS3: swap the roles of the final
	// two ciphertext segments before the standard two-block CBC decrypt.
	tailLen := n - full
	secondLast := src[full-aesBlockSize : full]
	lastPartial := src[full : full+tailLen]

	var dn [aesBlockSize]byte
	block.Decrypt(dn[:], secondLast)
	stolen := dn[tailLen:]
	copy(dst[full:full+tailLen], xorBytes(dn[:tailLen], lastPartial))

	cFull := append(append([]byte{}, lastPartial...), stolen...)
	var pn [aesBlockSize]byte
	block.Decrypt(pn[:], cFull)
	xorBlock(dst[full-aesBlockSize:full], pn[:], iv)
}

func xorBlock(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	xorBlock(out, a, b)
	return out
}

// decryptDataBlock reverses AES-XTS encryption of one 4096-byte file data
// block. iv is the little-endian 16-byte block index per spec §9
// ("IV = LE(block_id, 0)").
func decryptDataBlock(key []byte, blockIndex uint64, ciphertext []byte) ([]byte, error) {
	half := len(key) / 2
	block1, err := aes.NewCipher(key[:half])
	if err != nil {
		return nil, err
	}
	block2, err := aes.NewCipher(key[half:])
	if err != nil {
		return nil, err
	}

	var iv [aesBlockSize]byte
	binary.LittleEndian.PutUint64(iv[:8], blockIndex)
	var tweak [aesBlockSize]byte
	block2.Encrypt(tweak[:], iv[:])

	out := make([]byte, len(ciphertext))
	for off := 0; off+aesBlockSize <= len(ciphertext); off += aesBlockSize {
		var tmp [aesBlockSize]byte
		xorBlock(tmp[:], ciphertext[off:off+aesBlockSize], tweak[:])
		block1.Decrypt(tmp[:], tmp[:])
		xorBlock(out[off:off+aesBlockSize], tmp[:], tweak[:])
		gfDouble(tweak[:])
	}
	return out, nil
}

// gfDouble multiplies the 128-bit tweak by the polynomial x in GF(2^128),
// the XTS tweak update step (NIST SP 800-38E), little-endian byte order.
func gfDouble(t []byte) {
	var carry byte
	for i := 0; i < len(t); i++ {
		next := t[i] >> 7
		t[i] = (t[i] << 1) | carry
		carry = next
	}
	if carry != 0 {
		t[0] ^= 0x87
	}
}

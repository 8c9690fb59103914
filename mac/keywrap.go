package mac

import (
	"crypto/aes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// kekInfo is the HKDF info string fixed by ISO 32004 for deriving the
// key encryption key from the document key material.
var kekInfo = []byte("PDFMAC")

// DeriveKEK derives the 256 bit key encryption key from the document's
// file encryption key and the KDF salt using HKDF-SHA256.
func DeriveKEK(fileEncryptionKey, salt []byte) ([]byte, error) {
	if len(fileEncryptionKey) == 0 {
		return nil, ErrMissingKeyMaterial
	}

	kek := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, fileEncryptionKey, salt, kekInfo), kek); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return kek, nil
}

// keyWrapIV is the integrity check value of RFC 3394.
var keyWrapIV = [8]byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

// aesKeyWrap wraps key material under kek per RFC 3394.
func aesKeyWrap(kek, plaintext []byte) ([]byte, error) {
	if len(plaintext)%8 != 0 || len(plaintext) < 16 {
		return nil, errors.New("key wrap input must be a multiple of 8 bytes, at least 16")
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(plaintext) / 8
	a := make([]byte, 8)
	copy(a, keyWrapIV[:])
	r := make([]byte, len(plaintext))
	copy(r, plaintext)

	var b [16]byte
	var t [8]byte
	for j := 0; j <= 5; j++ {
		for i := 1; i <= n; i++ {
			copy(b[:8], a)
			copy(b[8:], r[(i-1)*8:i*8])
			block.Encrypt(b[:], b[:])

			binary.BigEndian.PutUint64(t[:], uint64(n*j+i))
			for k := 0; k < 8; k++ {
				a[k] = b[k] ^ t[k]
			}
			copy(r[(i-1)*8:i*8], b[8:])
		}
	}

	return append(a, r...), nil
}

// aesKeyUnwrap reverses aesKeyWrap, failing when the integrity check
// value does not match.
func aesKeyUnwrap(kek, wrapped []byte) ([]byte, error) {
	if len(wrapped)%8 != 0 || len(wrapped) < 24 {
		return nil, errors.New("wrapped key must be a multiple of 8 bytes, at least 24")
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(wrapped)/8 - 1
	a := make([]byte, 8)
	copy(a, wrapped[:8])
	r := make([]byte, n*8)
	copy(r, wrapped[8:])

	var b [16]byte
	var t [8]byte
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			binary.BigEndian.PutUint64(t[:], uint64(n*j+i))
			for k := 0; k < 8; k++ {
				a[k] ^= t[k]
			}

			copy(b[:8], a)
			copy(b[8:], r[(i-1)*8:i*8])
			block.Decrypt(b[:], b[:])

			copy(a, b[:8])
			copy(r[(i-1)*8:i*8], b[8:])
		}
	}

	if subtle.ConstantTimeCompare(a, keyWrapIV[:]) != 1 {
		return nil, errors.New("key unwrap integrity check failed")
	}
	return r, nil
}

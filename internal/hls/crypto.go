package hls

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
)

// KeySize is the AES-128 key length in bytes.
const KeySize = 16

// DecryptionError indicates a malformed key or ciphertext. It is fatal for
// the affected video: retrying the same bytes cannot succeed.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("segment decryption: %v", e.Err)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// SegmentIV derives the CBC initialization vector for a segment: its media
// sequence number as a 16-byte big-endian unsigned integer (RFC 8216 §5.2).
func SegmentIV(sequence uint64) [aes.BlockSize]byte {
	var iv [aes.BlockSize]byte
	binary.BigEndian.PutUint64(iv[8:], sequence)
	return iv
}

// DecryptSegment decrypts one AES-128-CBC segment and strips its PKCS#7
// padding. The same plaintext is produced regardless of which streaming
// session fetched the ciphertext.
func DecryptSegment(key []byte, sequence uint64, ciphertext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, &DecryptionError{Err: fmt.Errorf("key is %d bytes, want %d", len(key), KeySize)}
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, &DecryptionError{Err: fmt.Errorf("ciphertext length %d is not a positive multiple of %d", len(ciphertext), aes.BlockSize)}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &DecryptionError{Err: err}
	}

	iv := SegmentIV(sequence)
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(plaintext, ciphertext)

	return stripPKCS7(plaintext)
}

func stripPKCS7(data []byte) ([]byte, error) {
	padding := int(data[len(data)-1])
	if padding == 0 || padding > aes.BlockSize || padding > len(data) {
		return nil, &DecryptionError{Err: fmt.Errorf("invalid padding length %d", padding)}
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, &DecryptionError{Err: fmt.Errorf("inconsistent padding bytes")}
		}
	}
	return data[:len(data)-padding], nil
}

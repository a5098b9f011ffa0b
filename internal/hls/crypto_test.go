package hls

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"testing"
)

// encryptSegment is the test-side inverse of DecryptSegment.
func encryptSegment(t *testing.T, key []byte, sequence uint64, plaintext []byte) []byte {
	t.Helper()

	padding := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(append([]byte{}, plaintext...), bytes.Repeat([]byte{byte(padding)}, padding)...)

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	iv := SegmentIV(sequence)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(ciphertext, padded)
	return ciphertext
}

func TestSegmentIV(t *testing.T) {
	tests := []struct {
		sequence uint64
		want     [16]byte
	}{
		{0, [16]byte{}},
		{1, [16]byte{15: 0x01}},
		{0x0102, [16]byte{14: 0x01, 15: 0x02}},
		{0x1122334455667788, [16]byte{8: 0x11, 9: 0x22, 10: 0x33, 11: 0x44, 12: 0x55, 13: 0x66, 14: 0x77, 15: 0x88}},
	}

	for _, tt := range tests {
		if got := SegmentIV(tt.sequence); got != tt.want {
			t.Errorf("SegmentIV(%d) = %x, want %x", tt.sequence, got, tt.want)
		}
	}
}

func TestDecryptSegmentRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	plaintexts := [][]byte{
		[]byte("transport stream payload"),
		bytes.Repeat([]byte{0x47}, aes.BlockSize), // exact block multiple forces a full padding block
		{0x47},
	}

	for _, plaintext := range plaintexts {
		for _, sequence := range []uint64{0, 7, 1 << 33} {
			ciphertext := encryptSegment(t, key, sequence, plaintext)
			got, err := DecryptSegment(key, sequence, ciphertext)
			if err != nil {
				t.Fatalf("DecryptSegment(seq=%d): %v", sequence, err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Errorf("DecryptSegment(seq=%d) = %x, want %x", sequence, got, plaintext)
			}
		}
	}
}

func TestDecryptSegmentIVMatters(t *testing.T) {
	key := []byte("0123456789abcdef")
	plaintext := []byte("same bytes, different sequence")

	ciphertext := encryptSegment(t, key, 3, plaintext)
	if got, err := DecryptSegment(key, 4, ciphertext); err == nil && bytes.Equal(got, plaintext) {
		t.Error("Expected a different sequence number to corrupt decryption")
	}
}

func TestDecryptSegmentErrors(t *testing.T) {
	key := []byte("0123456789abcdef")
	good := encryptSegment(t, key, 0, []byte("payload"))

	tests := []struct {
		name       string
		key        []byte
		ciphertext []byte
	}{
		{"short key", key[:8], good},
		{"empty ciphertext", key, nil},
		{"partial block", key, good[:10]},
		{"corrupt padding", key, append(bytes.Repeat([]byte{0}, 16), bytes.Repeat([]byte{0xff}, 16)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptSegment(tt.key, 0, tt.ciphertext)
			if err == nil {
				t.Fatal("Expected an error")
			}
			var decErr *DecryptionError
			if !errors.As(err, &decErr) {
				t.Errorf("Expected *DecryptionError, got %T", err)
			}
		})
	}
}

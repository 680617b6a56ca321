// Package obscure reveals and produces rclone "obscured" secrets.
//
// An obscured secret is the unpadded URL-safe base64 encoding of a 16 byte
// IV followed by the plaintext encrypted with AES-256 in counter mode under
// a fixed, publicly known key. It is obfuscation only: anyone holding the
// string can recover the plaintext.
package obscure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/eugenetaranov/cloudbuilder/internal/termtext"
)

// ErrFormat is returned when a string is not a well-formed obscured secret.
var ErrFormat = errors.New("malformed obscured secret")

// key is the fixed key rclone uses for every obscured value.
var key = []byte{
	0x9c, 0x93, 0x5b, 0x48, 0x73, 0x0a, 0x55, 0x4d,
	0x6b, 0xfd, 0x7c, 0x63, 0xc8, 0x86, 0xa9, 0x2b,
	0xd3, 0x90, 0x19, 0x8e, 0xb8, 0x12, 0x8a, 0xfb,
	0xf4, 0xde, 0x16, 0x2b, 0x8b, 0x95, 0xf6, 0x38,
}

// Reveal decodes an obscured secret into text. Byte sequences that are not
// valid UTF-8 are replaced with U+FFFD rather than failing.
func Reveal(obscured string) (string, error) {
	plain, err := RevealBytes(obscured)
	if err != nil {
		return "", err
	}
	return termtext.Decode(plain), nil
}

// RevealBytes decodes an obscured secret into the raw plaintext bytes.
func RevealBytes(obscured string) ([]byte, error) {
	if n := len(obscured) % 4; n != 0 {
		obscured += strings.Repeat("=", 4-n)
	}

	data, err := base64.URLEncoding.DecodeString(obscured)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode failed: %v", ErrFormat, err)
	}
	if len(data) < aes.BlockSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the %d byte IV", ErrFormat, len(data), aes.BlockSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv, ciphertext := data[:aes.BlockSize], data[aes.BlockSize:]
	plain := make([]byte, len(ciphertext))
	xorKeyStream(block, iv, plain, ciphertext)
	return plain, nil
}

// Obscure encrypts plaintext under a random IV and returns the encoding
// Reveal accepts.
func Obscure(plaintext string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}
	return obscureWithIV([]byte(plaintext), iv)
}

func obscureWithIV(plaintext, iv []byte) (string, error) {
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("IV must be %d bytes, got %d", aes.BlockSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	out := make([]byte, aes.BlockSize+len(plaintext))
	copy(out, iv)
	xorKeyStream(block, iv, out[aes.BlockSize:], plaintext)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// xorKeyStream applies the counter-mode keystream to src and writes the
// result to dst. The first half of the IV is a nonce that is never touched;
// the second half is a big-endian 64-bit counter advanced by the block
// index and allowed to wrap.
func xorKeyStream(block cipher.Block, iv, dst, src []byte) {
	var (
		counter   [aes.BlockSize]byte
		keystream [aes.BlockSize]byte
	)
	copy(counter[:8], iv[:8])
	initial := binary.BigEndian.Uint64(iv[8:aes.BlockSize])

	for i := 0; i*aes.BlockSize < len(src); i++ {
		binary.BigEndian.PutUint64(counter[8:], initial+uint64(i))
		block.Encrypt(keystream[:], counter[:])

		start := i * aes.BlockSize
		end := min(start+aes.BlockSize, len(src))
		for j := start; j < end; j++ {
			dst[j] = src[j] ^ keystream[j-start]
		}
	}
}

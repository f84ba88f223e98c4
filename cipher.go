package jdfs

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"
)

// counterStream is AES counter mode as stored objects expect it: block i of
// the keystream is E(iv + i) where only the low 64 bits of the IV count and
// wrap without carrying into the high half.
type counterStream struct {
	block  cipher.Block
	iv     [aes.BlockSize]byte
	ctr    [aes.BlockSize]byte
	ks     [aes.BlockSize]byte
	index  uint64
	offset int
}

// NewCounterStream returns a cipher.Stream over block starting at iv. The
// same stream both encrypts and decrypts.
func NewCounterStream(block cipher.Block, iv []byte) (cipher.Stream, error) {
	if block.BlockSize() != aes.BlockSize {
		return nil, fmt.Errorf("counter stream requires a %d-byte block cipher, got %d", aes.BlockSize, block.BlockSize())
	}
	if err := ValidateIV(iv, aes.BlockSize); err != nil {
		return nil, err
	}
	s := &counterStream{block: block}
	copy(s.iv[:], iv)
	return s, nil
}

func (s *counterStream) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("jdfs: output smaller than input")
	}
	for i, b := range src {
		if s.offset == 0 {
			s.ctr = s.iv
			low := binary.BigEndian.Uint64(s.iv[8:]) + s.index
			binary.BigEndian.PutUint64(s.ctr[8:], low)
			s.block.Encrypt(s.ks[:], s.ctr[:])
			s.index++
		}
		dst[i] = b ^ s.ks[s.offset]
		s.offset = (s.offset + 1) % aes.BlockSize
	}
}

// NewContentStream keys a counter stream for an object encrypted with secret
// under the per-request salt.
func NewContentStream(secret, salt string) (cipher.Stream, error) {
	key, iv := ContentKey(secret, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	return NewCounterStream(block, iv)
}

// EncryptReader returns a reader producing the ciphertext of r.
func EncryptReader(r io.Reader, secret, salt string) (io.Reader, error) {
	stream, err := NewContentStream(secret, salt)
	if err != nil {
		return nil, err
	}
	return &cipher.StreamReader{S: stream, R: r}, nil
}

// decryptingBody decrypts a response body and closes it on Close.
type decryptingBody struct {
	io.Reader
	body io.Closer
}

func (d *decryptingBody) Close() error {
	return d.body.Close()
}

// DecryptReadCloser wraps rc so reads return plaintext. Closing the result
// closes rc.
func DecryptReadCloser(rc io.ReadCloser, secret, salt string) (io.ReadCloser, error) {
	stream, err := NewContentStream(secret, salt)
	if err != nil {
		return nil, err
	}
	return &decryptingBody{
		Reader: &cipher.StreamReader{S: stream, R: rc},
		body:   rc,
	}, nil
}

package jdfs

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// FilenameCipher handles encryption and decryption of pointer names. Each
// name is bound to the marker of the node it names.
type FilenameCipher interface {
	// EncryptName encrypts a plaintext name for the node marker
	EncryptName(name, marker string) (string, error)

	// DecryptName decrypts an encoded name for the node marker
	DecryptName(ciphertext, marker string) (string, error)
}

// noOpFilenameCipher passes through names without encryption
type noOpFilenameCipher struct{}

func (noOpFilenameCipher) EncryptName(name, _ string) (string, error) {
	return name, nil
}

func (noOpFilenameCipher) DecryptName(ciphertext, _ string) (string, error) {
	return ciphertext, nil
}

// cbcFilenameCipher encrypts names with AES-CBC keyed by the filename key and
// an IV taken from the marker. Names are zero padded to the block size.
type cbcFilenameCipher struct {
	block cipher.Block
	codec *Codec
}

// NewCBCFilenameCipher creates a filename cipher from a 32-byte filename key
func NewCBCFilenameCipher(key []byte) (FilenameCipher, error) {
	if err := ValidateKey(key, KeySize); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	return &cbcFilenameCipher{block: block, codec: KeyCodec}, nil
}

func (c *cbcFilenameCipher) EncryptName(name, marker string) (string, error) {
	iv, err := markerIV(marker)
	if err != nil {
		return "", err
	}

	// Round out to the block size with NULs
	n := len(name)
	if rem := n % aes.BlockSize; rem != 0 {
		n += aes.BlockSize - rem
	}
	buf := make([]byte, n)
	copy(buf, name)

	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(buf, buf)
	return c.codec.Encode(buf), nil
}

func (c *cbcFilenameCipher) DecryptName(ciphertext, marker string) (string, error) {
	iv, err := markerIV(marker)
	if err != nil {
		return "", err
	}

	raw, err := c.codec.Decode(ciphertext)
	if err != nil {
		return "", NewCryptographicError(ciphertext, err)
	}
	if len(raw)%aes.BlockSize != 0 {
		return "", &CryptographicError{
			Path:    ciphertext,
			Message: fmt.Sprintf("encrypted name is %d bytes, not a multiple of %d", len(raw), aes.BlockSize),
		}
	}

	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(raw, raw)
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw), nil
}

// NewFilenameCipher returns the cipher matching a bucket's key file. A nil
// key file or one without filename encryption yields a pass-through cipher.
func NewFilenameCipher(kf *KeyFile) (FilenameCipher, error) {
	if kf == nil || !kf.EncryptFilenames {
		return noOpFilenameCipher{}, nil
	}
	return NewCBCFilenameCipher(FilenameKey(kf.EncryptionKey))
}

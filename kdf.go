package jdfs

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
)

const (
	// KeySize is the AES-256 key size used for content and filenames
	KeySize = 32

	// MasterKeySize is the number of random bytes behind a KeyFile encryption key
	MasterKeySize = 32

	saltEntropy   = 16
	keyHashPrefix = "aes_salted_"
	keyHashLen    = 8 + 2*md5.Size
)

// BytesToKey stretches data and salt into a key and IV with a
// single-iteration MD5 chain: D_1 = MD5(data || salt),
// D_i = MD5(D_{i-1} || data || salt). Digest bytes fill the key first, then
// the IV. This is OpenSSL's EVP_BytesToKey with MD5 and count 1.
func BytesToKey(data, salt []byte, keyLen, ivLen int) (key, iv []byte) {
	key = make([]byte, 0, keyLen)
	iv = make([]byte, 0, ivLen)

	var prev []byte
	buf := make([]byte, 0, md5.Size+len(data)+len(salt))
	for len(key) < keyLen || len(iv) < ivLen {
		buf = append(buf[:0], prev...)
		buf = append(buf, data...)
		buf = append(buf, salt...)
		sum := md5.Sum(buf)
		prev = sum[:]

		d := prev
		if n := keyLen - len(key); n > 0 {
			n = min(n, len(d))
			key = append(key, d[:n]...)
			d = d[n:]
		}
		if n := ivLen - len(iv); n > 0 && len(d) > 0 {
			n = min(n, len(d))
			iv = append(iv, d[:n]...)
		}
	}
	return key, iv
}

// ContentKey derives the AES key and counter IV for an object encrypted with
// secret under the per-request salt.
func ContentKey(secret, salt string) (key, iv []byte) {
	key, _ = BytesToKey([]byte(secret+salt), nil, KeySize, 0)
	sum := md5.Sum([]byte(salt))
	return key, sum[:]
}

// FilenameKey derives the filename key from a KeyFile encryption key.
func FilenameKey(encryptionKey string) []byte {
	key, _ := BytesToKey([]byte(encryptionKey), nil, KeySize, 0)
	return key
}

// NewSalt returns a fresh per-request salt: the hex MD5 of random bytes.
func NewSalt() (string, error) {
	b := make([]byte, saltEntropy)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:]), nil
}

// GenerateEncryptionKey returns a random master key rendered with KeyCodec.
func GenerateEncryptionKey() (string, error) {
	b := make([]byte, MasterKeySize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return KeyCodec.Encode(b), nil
}

// SaltOrder selects how the 32-bit hash salt is laid out before hashing.
type SaltOrder uint8

const (
	// NetworkOrder is the big-endian layout used for new objects
	NetworkOrder SaltOrder = iota
	// SwappedOrder is the byte-swapped layout written by some older
	// clients. Objects in the wild use both; lookups try each.
	SwappedOrder
)

// SaltedKeyHash fingerprints password under salt: eight hex digits of salt
// followed by the hex MD5 of the salt bytes and the password.
func SaltedKeyHash(salt uint32, password string, order SaltOrder) string {
	buf := make([]byte, 4, 4+len(password))
	if order == SwappedOrder {
		binary.LittleEndian.PutUint32(buf, salt)
	} else {
		binary.BigEndian.PutUint32(buf, salt)
	}
	buf = append(buf, password...)
	sum := md5.Sum(buf)
	return fmt.Sprintf("%08x", salt) + hex.EncodeToString(sum[:])
}

// NewKeyHash fingerprints password under a random salt.
func NewKeyHash(password string) (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("failed to generate hash salt: %w", err)
	}
	return SaltedKeyHash(binary.LittleEndian.Uint32(b[:]), password, NetworkOrder), nil
}

// parseKeyHash extracts the salt of a salted key hash.
func parseKeyHash(keyHash string) (uint32, error) {
	if len(keyHash) != keyHashLen {
		return 0, fmt.Errorf("invalid encryption hash length %d", len(keyHash))
	}
	salt, err := strconv.ParseUint(keyHash[:8], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid encryption hash salt: %w", err)
	}
	return uint32(salt), nil
}

// MatchKeyHash reports whether password produced keyHash in either salt order.
func MatchKeyHash(keyHash, password string) (bool, error) {
	salt, err := parseKeyHash(keyHash)
	if err != nil {
		return false, err
	}
	for _, order := range []SaltOrder{NetworkOrder, SwappedOrder} {
		if SaltedKeyHash(salt, password, order) == keyHash {
			return true, nil
		}
	}
	return false, nil
}

package jdfs

import (
	"fmt"
	"slices"
	"sync"
)

// BucketPasswordHint is passed to the password callback when unlocking 0.key.
const BucketPasswordHint = "Bucket Password"

// KeyRing caches candidate passwords for one connection. Passwords are only
// ever appended and never persisted. It is safe for concurrent use.
type KeyRing struct {
	mu      sync.Mutex
	keys    []string
	prompt  PasswordFunc
	metrics *Metrics
}

// NewKeyRing creates a key ring that falls back to prompt on a miss.
// A nil prompt declines every request.
func NewKeyRing(prompt PasswordFunc, metrics *Metrics) *KeyRing {
	return &KeyRing{prompt: prompt, metrics: metrics}
}

// Add caches passwords. Empty and duplicate entries are ignored.
func (k *KeyRing) Add(passwords ...string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, p := range passwords {
		if p != "" && !slices.Contains(k.keys, p) {
			k.keys = append(k.keys, p)
		}
	}
}

// Len returns the number of cached passwords
func (k *KeyRing) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.keys)
}

// Lookup returns the password that produced keyHash. On a cache miss the
// password callback is asked once with hint; its answer is cached and the
// search retried once.
//
// A declined or empty prompt yields ErrKeyNotFound. A supplied password that still
// does not match yields a CryptographicError wrapping ErrWrongPassword.
func (k *KeyRing) Lookup(keyHash, hint string) (string, error) {
	if _, err := parseKeyHash(keyHash); err != nil {
		return "", &CryptographicError{Path: hint, Message: err.Error(), Err: err}
	}

	if key, ok := k.find(keyHash); ok {
		return key, nil
	}

	if k.prompt == nil {
		return "", fmt.Errorf("%s: %w", hint, ErrKeyNotFound)
	}
	password, ok := k.prompt(hint)
	if !ok || password == "" {
		k.metrics.recordPrompt("declined")
		return "", fmt.Errorf("%s: %w", hint, ErrKeyNotFound)
	}
	k.metrics.recordPrompt("supplied")
	k.Add(password)

	if key, ok := k.find(keyHash); ok {
		return key, nil
	}
	return "", &CryptographicError{
		Path:    hint,
		Message: "supplied password does not decrypt this object",
		Err:     ErrWrongPassword,
	}
}

func (k *KeyRing) find(keyHash string) (string, bool) {
	k.mu.Lock()
	keys := slices.Clone(k.keys)
	k.mu.Unlock()

	for _, key := range keys {
		if ok, _ := MatchKeyHash(keyHash, key); ok {
			return key, true
		}
	}
	return "", false
}

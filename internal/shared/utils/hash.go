package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// HashAlgorithm represents the hashing algorithm to use
type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "sha256"
	BLAKE3 HashAlgorithm = "blake3"
)

// Hasher provides keyed or plain hashing. A keyed BLAKE3 hasher is used to
// digest session tokens so the token table never holds a raw credential.
type Hasher struct {
	algorithm HashAlgorithm
	key       []byte
}

// NewHasher creates a new hasher with the specified algorithm
func NewHasher(algorithm HashAlgorithm) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// NewKeyedHasher creates a BLAKE3 hasher keyed with a 32-byte secret.
// Keys of any other length fall back to an unkeyed BLAKE3 hasher.
func NewKeyedHasher(key []byte) *Hasher {
	h := &Hasher{algorithm: BLAKE3}
	if len(key) == 32 {
		h.key = append([]byte(nil), key...)
	}
	return h
}

// DefaultHasher returns a hasher with the default algorithm
func DefaultHasher() *Hasher {
	return NewHasher(SHA256)
}

// Hash computes a hex digest of the input data
func (h *Hasher) Hash(data []byte) string {
	switch h.algorithm {
	case BLAKE3:
		if h.key != nil {
			hasher, err := blake3.NewKeyed(h.key)
			if err == nil {
				_, _ = hasher.Write(data)
				return hex.EncodeToString(hasher.Sum(nil))
			}
		}
		sum := blake3.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}

// HashString computes a hash of a string
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// HashFields computes an order-independent hash from multiple fields
func (h *Hasher) HashFields(fields ...string) string {
	sorted := make([]string, len(fields))
	copy(sorted, fields)
	sort.Strings(sorted)

	return h.HashString(strings.Join(sorted, "|"))
}

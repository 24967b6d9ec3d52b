package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher provides SHA-256 content hashing
type Hasher struct{}

// DefaultHasher returns the content hasher
func DefaultHasher() *Hasher {
	return &Hasher{}
}

// Hash computes a hash of the input data
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString computes a hash of a string
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// ETag returns a strong HTTP entity tag for content
func (h *Hasher) ETag(content string) string {
	return `"` + h.HashString(content)[:32] + `"`
}

// MatchesETag reports whether an If-None-Match header value matches etag
func MatchesETag(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

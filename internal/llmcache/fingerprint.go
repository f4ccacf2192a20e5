package llmcache

import (
	"crypto/sha256"
	"encoding/hex"
)

// KeyPrefix is the root namespace of every cache key.
const KeyPrefix = "llmcache:"

// Namespace returns the key prefix for one request kind, e.g. "llmcache:chat:".
// Operators can scan or evict a single kind with it.
func Namespace(kind Kind) string {
	return KeyPrefix + string(kind) + ":"
}

// Fingerprint hashes canonical bytes into a cache key of the form
// llmcache:<kind>:<64 hex chars>. The kind is hashed in as well, so identical
// bytes under different kinds never share a digest.
func Fingerprint(kind Kind, canonical []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(canonical)
	return Namespace(kind) + hex.EncodeToString(h.Sum(nil))
}

// Key canonicalizes a request and returns its fingerprint.
func Key(r Request) (string, error) {
	canonical, err := Encode(r)
	if err != nil {
		return "", err
	}
	return Fingerprint(r.Kind(), canonical), nil
}

package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// Fingerprint identifies a completion request by its semantically relevant
// fields. Two requests with equal fingerprints are interchangeable for
// caching: same message, same context, same generation parameters.
// Caller identity is deliberately excluded; it scopes rate limiting only.
type Fingerprint struct {
	// Model is the upstream model name.
	Model string

	// Message is the user message text.
	Message string

	// Context is the optional conversation context.
	Context string

	// Temperature and MaxTokens affect the output and therefore the key.
	Temperature float64
	MaxTokens   int
}

// String generates a deterministic cache key string.
// Format: chat:<model>:<sha256 hex of the canonical field encoding>
//
// Fields are length-prefixed before hashing so that no two distinct
// field combinations can produce the same byte stream. The derivation
// uses no timestamps and no randomness.
func (f Fingerprint) String() string {
	h := sha256.New()

	writeField := func(s string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}

	writeField(f.Model)
	writeField(f.Message)
	writeField(f.Context)

	var num [8]byte
	binary.BigEndian.PutUint64(num[:], math.Float64bits(f.Temperature))
	h.Write(num[:])
	binary.BigEndian.PutUint64(num[:], uint64(f.MaxTokens))
	h.Write(num[:])

	return fmt.Sprintf("chat:%s:%s", f.Model, hex.EncodeToString(h.Sum(nil)))
}

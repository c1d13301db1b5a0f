package hash

import "github.com/cespare/xxhash/v2"

// HashFunction maps a key to a 64-bit hash. A persisted table must be reopened
// with the same function it was built with, or probes start in the wrong place.
type HashFunction[K any] func(key K) uint64

// NewHashFunction hashes the codec encoding of the key with xxhash, which
// gives the same result in every process.
func NewHashFunction[K any](codec Codec[K]) HashFunction[K] {
	size := codec.Size()
	return func(key K) uint64 {
		buf := make([]byte, size)
		codec.Encode(buf, key)
		return xxhash.Sum64(buf)
	}
}

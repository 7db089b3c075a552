// hash.go -- seeded n-gram hashing and band fingerprints

package dedup

import (
	"github.com/dchest/siphash"
	"github.com/opencoff/go-fasthash"
)

// gramHash hashes one n-gram under the run seed, reduced to the
// configured width. The same bytes under the same seed produce the same
// value across runs.
func gramHash(seed uint64, g []byte, bits uint8) uint64 {
	h := fasthash.Hash64(seed, g)
	switch bits {
	case 16:
		return uint64(uint16(h))
	case 32:
		return uint64(uint32(h))
	default:
		return h
	}
}

// bandFingerprint hashes the serialized rows of one band. The band index
// is part of the siphash key, so identical rows in different bands cannot
// produce colliding bucket keys.
func bandFingerprint(salt uint64, band uint32, rows []byte) uint64 {
	return siphash.Hash(salt, uint64(band), rows)
}

// splitmix64 is used to derive independent salts from the run seed.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// perm.go -- universal-hash permutation bank

package dedup

import (
	"math/rand"
	"os"
)

// Per-width constants for h(x) = ((a*x + b) mod P) & maxHash.
// The 64-bit legacy mode carries 32-bit data in 64-bit slots; its
// Mersenne modulus admits a shift-based reduction.
const (
	maxHash64 uint64 = 1<<32 - 1
	prime64   uint64 = 1<<61 - 1

	maxHash32 uint64 = 1<<32 - 1
	prime32   uint64 = 1<<32 - 5

	maxHash16 uint64 = 1<<16 - 1
	prime16   uint64 = 1<<16 - 15
)

// widthParams returns (maxHash, prime) for a supported hash width.
func widthParams(bits uint8) (uint64, uint64) {
	switch bits {
	case 16:
		return maxHash16, prime16
	case 32:
		return maxHash32, prime32
	default:
		return maxHash64, prime64
	}
}

// Permutations holds the coefficient pairs of the universal hash family
// h_i(x) = ((A[i]*x + B[i]) mod P) & maxHash. The bank is read-only once
// built and is freely shared across workers.
type Permutations struct {
	A, B []uint64

	bits  uint8
	prime uint64
	mask  uint64
}

// NewPermutations draws num coefficient pairs from rng, with a in [1, P)
// and b in [0, P). When deterministic is set the bank is instead seeded
// as a[i] = b[i] = 2^(bits/2) + i, which makes runs reproducible without
// an RNG.
func NewPermutations(num int, bits uint8, rng *rand.Rand, deterministic bool) *Permutations {
	mask, prime := widthParams(bits)
	p := &Permutations{
		A:     make([]uint64, num),
		B:     make([]uint64, num),
		bits:  bits,
		prime: prime,
		mask:  mask,
	}

	if deterministic {
		base := uint64(1) << (bits / 2)
		for i := range p.A {
			p.A[i] = base + uint64(i)
			p.B[i] = base + uint64(i)
		}
		return p
	}

	for i := range p.A {
		p.A[i] = 1 + rng.Uint64()%(prime-1)
		p.B[i] = rng.Uint64() % prime
	}
	return p
}

// Len returns the number of permutations in the bank.
func (p *Permutations) Len() int {
	return len(p.A)
}

// deterministicEnv reports whether the DETERMINISTIC environment flag
// forces deterministic permutation seeding.
func deterministicEnv() bool {
	return os.Getenv("DETERMINISTIC") == "1"
}

// embed.go -- MinHash signature embedding

package dedup

import (
	"math/bits"

	"github.com/cespare/xxhash/v2"
	"github.com/opencoff/golang-lru"
)

// embedder computes MinHash signatures for one run. It owns the
// permutation bank; signatures are written into a flat row-major buffer
// owned by the driver.
type embedder[E SigElem] struct {
	perms *Permutations
	seed  uint64
	ngram int

	// exact-duplicate short circuit: content hash -> signature copy.
	// Identical texts hash to identical signatures anyway; the cache just
	// skips the n-gram loop for them.
	cache *lru.ARCCache
}

func newEmbedder[E SigElem](perms *Permutations, seed uint64, ngram, cacheSize int) *embedder[E] {
	e := &embedder[E]{
		perms: perms,
		seed:  seed,
		ngram: ngram,
	}
	if cacheSize > 0 {
		// NewARC only fails on a non-positive size
		e.cache, _ = lru.NewARC(cacheSize)
	}
	return e
}

// embed computes the signature of one document into sig, which must have
// exactly perms.Len() entries.
func (e *embedder[E]) embed(text string, toks []string, sig []E) {
	if e.cache == nil {
		e.embedTokens(toks, sig)
		return
	}

	key := xxhash.Sum64String(text)
	if v, ok := e.cache.Get(key); ok {
		copy(sig, v.([]E))
		return
	}

	e.embedTokens(toks, sig)
	cp := make([]E, len(sig))
	copy(cp, sig)
	e.cache.Add(key, cp)
}

// embedTokens fills sig with the element-wise minimum of the permuted
// n-gram hashes. An empty n-gram set leaves every entry at maxHash.
func (e *embedder[E]) embedTokens(toks []string, sig []E) {
	mask := e.perms.mask
	for i := range sig {
		sig[i] = E(mask)
	}

	grams := tokenNGrams(toks, e.ngram)
	if len(grams) == 0 {
		return
	}

	a, b := e.perms.A, e.perms.B
	if e.perms.prime == prime64 {
		// legacy 64-bit mode: Mersenne modulus, shift-based reduction
		for _, g := range grams {
			h := modMersenne61(gramHash(e.seed, g, 64))
			for i := range sig {
				if v := E(mulAddMod61(a[i], h, b[i]) & mask); v < sig[i] {
					sig[i] = v
				}
			}
		}
		return
	}

	// 32/16-bit modes: operands stay below 2^32, the product fits uint64
	prime := e.perms.prime
	for _, g := range grams {
		h := gramHash(e.seed, g, e.perms.bits)
		for i := range sig {
			if v := E(((a[i]*h + b[i]) % prime) & mask); v < sig[i] {
				sig[i] = v
			}
		}
	}
}

// modMersenne61 reduces x modulo 2^61-1. Valid for any x below 2^64.
func modMersenne61(x uint64) uint64 {
	x = (x >> 61) + (x & prime64)
	if x >= prime64 {
		x -= prime64
	}
	return x
}

// mulAddMod61 computes (a*h + b) mod 2^61-1 for a, h, b < 2^61. The
// 128-bit product is folded with 2^64 = 8 (mod 2^61-1).
func mulAddMod61(a, h, b uint64) uint64 {
	hi, lo := bits.Mul64(a, h)
	lo, c := bits.Add64(lo, b, 0)
	hi += c

	return modMersenne61((lo & prime64) + (hi<<3 | lo>>61))
}

// embed_test.go -- test suite for the MinHash embedder

package dedup

import (
	"math/big"
	"math/rand"
	"testing"
)

func testEmbedder[E SigElem](numPerm int, bits uint8) *embedder[E] {
	perms := NewPermutations(numPerm, bits, rand.New(rand.NewSource(42)), false)
	return newEmbedder[E](perms, 42, 2, 0)
}

func embedText[E SigElem](e *embedder[E], text string) []E {
	sig := make([]E, e.perms.Len())
	e.embed(text, Tokens(text), sig)
	return sig
}

func TestEmbedDeterminism(t *testing.T) {
	assert := newAsserter(t)

	const text = "the quick brown fox jumps over the lazy dog"
	e1 := testEmbedder[uint64](128, 64)
	e2 := testEmbedder[uint64](128, 64)

	s1 := embedText(e1, text)
	s2 := embedText(e2, text)
	for i := range s1 {
		assert(s1[i] == s2[i], "entry %d differs: %d vs %d", i, s1[i], s2[i])
	}
}

func TestEmbedBounds(t *testing.T) {
	assert := newAsserter(t)

	const text = "one two three four five six seven eight"

	e64 := testEmbedder[uint64](128, 64)
	for i, v := range embedText(e64, text) {
		assert(v <= maxHash64, "64-bit entry %d = %d exceeds maxHash", i, v)
	}

	e32 := testEmbedder[uint32](128, 32)
	for i, v := range embedText(e32, text) {
		assert(uint64(v) <= maxHash32, "32-bit entry %d = %d exceeds maxHash", i, v)
	}

	e16 := testEmbedder[uint16](128, 16)
	for i, v := range embedText(e16, text) {
		assert(uint64(v) <= maxHash16, "16-bit entry %d = %d exceeds maxHash", i, v)
	}
}

func TestEmbedEmpty(t *testing.T) {
	assert := newAsserter(t)

	e := testEmbedder[uint64](64, 64)
	for _, text := range []string{"", "..!?", "single"} {
		for i, v := range embedText(e, text) {
			assert(v == maxHash64, "%q entry %d: exp maxHash, saw %d", text, i, v)
		}
	}
}

func TestEmbedIdenticalTexts(t *testing.T) {
	assert := newAsserter(t)

	const text = "hello world foo bar"
	e := testEmbedder[uint64](64, 64)

	s1 := embedText(e, text)
	s2 := embedText(e, text)
	for i := range s1 {
		assert(s1[i] == s2[i], "identical texts disagree at entry %d", i)
	}
}

func TestEmbedCacheTransparent(t *testing.T) {
	assert := newAsserter(t)

	const text = "hello world foo bar baz"
	perms := NewPermutations(64, 64, rand.New(rand.NewSource(42)), false)

	plain := newEmbedder[uint64](perms, 42, 2, 0)
	cached := newEmbedder[uint64](perms, 42, 2, 128)

	want := embedText(plain, text)
	for round := 0; round < 3; round++ {
		got := embedText(cached, text)
		for i := range want {
			assert(got[i] == want[i],
				"round %d entry %d: cache changed the signature", round, i)
		}
	}
}

func TestEmbedSimilarity(t *testing.T) {
	assert := newAsserter(t)

	// one word changed out of nine: bigram jaccard 0.6, so well over a
	// third of the entries should agree
	e := testEmbedder[uint64](256, 64)
	s1 := embedText(e, "the quick brown fox jumps over the lazy dog")
	s2 := embedText(e, "the quick brown fox leaps over the lazy dog")

	same := 0
	for i := range s1 {
		if s1[i] == s2[i] {
			same++
		}
	}
	assert(same > len(s1)/3, "similar docs agree on only %d/%d entries", same, len(s1))

	s3 := embedText(e, "completely unrelated text about gardening tips")
	diff := 0
	for i := range s1 {
		if s1[i] != s3[i] {
			diff++
		}
	}
	assert(diff > len(s1)*3/4, "unrelated docs agree on %d/%d entries", len(s1)-diff, len(s1))
}

func TestMulAddMod61(t *testing.T) {
	assert := newAsserter(t)

	rng := rand.New(rand.NewSource(1))
	P := new(big.Int).SetUint64(prime64)

	for i := 0; i < 1000; i++ {
		a := rng.Uint64() % prime64
		h := rng.Uint64() % prime64
		b := rng.Uint64() % prime64

		got := mulAddMod61(a, h, b)

		want := new(big.Int).SetUint64(a)
		want.Mul(want, new(big.Int).SetUint64(h))
		want.Add(want, new(big.Int).SetUint64(b))
		want.Mod(want, P)

		assert(got == want.Uint64(),
			"(%d*%d+%d) mod 2^61-1: exp %d, saw %d", a, h, b, want.Uint64(), got)
	}
}

func TestModMersenne61(t *testing.T) {
	assert := newAsserter(t)

	cases := map[uint64]uint64{
		0:             0,
		1:             1,
		prime64:       0,
		prime64 + 1:   1,
		prime64 - 1:   prime64 - 1,
		^uint64(0):    ^uint64(0) % prime64,
		1 << 62:       (1 << 62) % prime64,
		1<<63 + 12345: (1<<63 + 12345) % prime64,
	}
	for x, want := range cases {
		assert(modMersenne61(x) == want,
			"mod(%d): exp %d, saw %d", x, want, modMersenne61(x))
	}
}

// config.go -- run configuration and validation

package dedup

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
)

// Config controls a dedup run. Zero values select the documented
// defaults.
type Config struct {
	// NumPerm is the number of MinHash permutations (default 200).
	// When B and R are derived, the effective count becomes exactly B*R.
	NumPerm int

	// B and R are the LSH band count and rows per band. When either is
	// zero, both are derived from Threshold via OptimalParam. When both
	// are given, B*R must equal NumPerm.
	B, R int

	// NGram is the n-gram size in tokens (default 2).
	NGram int

	// Threshold is the Jaccard threshold the parameter optimizer
	// targets (default 0.5). Must lie in (0, 1).
	Threshold float64

	// FPWeight and FNWeight weight the optimizer's false-positive and
	// false-negative areas (default 0.5 each).
	FPWeight, FNWeight float64

	// MinLength drops documents with fewer tokens before embedding.
	MinLength int

	// HashBits selects the signature element width: 16, 32 or 64.
	// The default 64 is the legacy mode carrying 32-bit data.
	HashBits uint8

	// BatchSize is the number of documents per embed batch (default
	// 10000). Cancellation is checked between batches.
	BatchSize int

	// NumThreads is the worker count (default: host CPU count).
	NumThreads int

	// Seed feeds the permutation bank RNG and the n-gram hash seed
	// (default 42).
	Seed uint64

	// CacheSize bounds the exact-duplicate signature cache; 0 selects
	// the default (8192), negative disables the cache.
	CacheSize int

	// Deterministic forces the fixed permutation seeding. DETERMINISTIC=1
	// in the environment has the same effect.
	Deterministic bool

	// UFOutput, when set, dumps the union-find there during the Save
	// phase. A ".json" suffix selects the JSON format.
	UFOutput string

	// Logger receives per-phase progress events; nil disables logging.
	Logger *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.NumPerm == 0 {
		c.NumPerm = 200
	}
	if c.NGram == 0 {
		c.NGram = 2
	}
	if c.Threshold == 0 {
		c.Threshold = 0.5
	}
	if c.FPWeight == 0 {
		c.FPWeight = 0.5
	}
	if c.FNWeight == 0 {
		c.FNWeight = 0.5
	}
	if c.HashBits == 0 {
		c.HashBits = 64
	}
	if c.BatchSize == 0 {
		c.BatchSize = 10000
	}
	if c.NumThreads == 0 {
		c.NumThreads = runtime.NumCPU()
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	if c.CacheSize == 0 {
		c.CacheSize = 8192
	}
	if !c.Deterministic {
		c.Deterministic = deterministicEnv()
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	return c
}

func (c Config) validate() error {
	switch c.HashBits {
	case 16, 32, 64:
	default:
		return fmt.Errorf("%w: hash_bits must be 16, 32 or 64 (got %d)", ErrConfig, c.HashBits)
	}
	if c.NumPerm < 1 {
		return fmt.Errorf("%w: num_perm must be positive (got %d)", ErrConfig, c.NumPerm)
	}
	if c.NGram < 1 {
		return fmt.Errorf("%w: ngram must be positive (got %d)", ErrConfig, c.NGram)
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("%w: threshold must lie in (0, 1) (got %g)", ErrConfig, c.Threshold)
	}
	if c.B < 0 || c.R < 0 {
		return fmt.Errorf("%w: b and r cannot be negative", ErrConfig)
	}
	if c.B > 0 && c.R > 0 && c.B*c.R != c.NumPerm {
		return fmt.Errorf("%w: b*r = %d does not equal num_perm = %d",
			ErrConfig, c.B*c.R, c.NumPerm)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch_size must be positive (got %d)", ErrConfig, c.BatchSize)
	}
	if c.NumThreads < 1 {
		return fmt.Errorf("%w: num_threads must be positive (got %d)", ErrConfig, c.NumThreads)
	}
	if c.MinLength < 0 {
		return fmt.Errorf("%w: min_length cannot be negative (got %d)", ErrConfig, c.MinLength)
	}
	return nil
}

// run.go -- pipeline driver
//
// Phases run in order: Load -> Filter -> Embed -> Band -> Group ->
// Union -> Keep -> Save. Embed and Band are data-parallel over document
// batches; Group is parallel over fixed fingerprint shards whose edges
// drain, in shard order, into the single union consumer.

// Package dedup detects near-duplicate documents in large text corpora
// using MinHash signatures, banded locality-sensitive hashing and
// transitive clustering through a union-find structure. Two documents
// land in the same cluster when their estimated Jaccard similarity over
// token n-grams exceeds the configured threshold with high probability.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// Document is one input record. Ids are caller-assigned and opaque to
// the pipeline apart from their ordering.
type Document struct {
	ID   uint64
	Text string
}

// Source yields documents in input order. Next returns io.EOF after the
// last document.
type Source interface {
	Next() (Document, error)
}

// SliceSource adapts an in-memory document slice to the Source interface.
type SliceSource struct {
	docs []Document
	pos  int
}

func NewSliceSource(docs []Document) *SliceSource {
	return &SliceSource{docs: docs}
}

func (s *SliceSource) Next() (Document, error) {
	if s.pos >= len(s.docs) {
		return Document{}, io.EOF
	}
	d := s.docs[s.pos]
	s.pos++
	return d, nil
}

// Summary reports corpus counts and per-phase wall-clock times for one
// run. Before counts documents surviving the min-length filter; After
// counts cluster representatives; Edges counts unions that actually
// merged two components (star edges, not clique edges).
type Summary struct {
	Before    uint64            `json:"before"`
	After     uint64            `json:"after"`
	Edges     uint64            `json:"edges"`
	ElapsedMS map[string]uint64 `json:"elapsed_ms"`
}

// Result is the full output of a run: the summary, the kept document
// ids in input order, and the union-find that produced them.
type Result struct {
	Summary Summary
	Kept    []uint64
	UF      *UnionFind
}

// Run executes the dedup pipeline over the documents of src.
//
// If the Save phase fails, Run returns the in-memory Result alongside
// the error so the caller can retry persistence; every other error
// returns a nil Result. Errors are discriminated with errors.Is against
// ErrConfig, ErrInput, ErrCancelled and ErrInternal.
func Run(ctx context.Context, cfg Config, src Source) (*Result, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.B == 0 || cfg.R == 0 {
		b, r := OptimalParam(cfg.Threshold, cfg.NumPerm, cfg.FPWeight, cfg.FNWeight)
		cfg.Logger.Info().
			Int("b", b).Int("r", r).Float64("threshold", cfg.Threshold).
			Msg("derived banding parameters")
		cfg.B, cfg.R, cfg.NumPerm = b, r, b*r
	}

	switch cfg.HashBits {
	case 16:
		return run[uint16](ctx, cfg, src)
	case 32:
		return run[uint32](ctx, cfg, src)
	default:
		return run[uint64](ctx, cfg, src)
	}
}

func run[E SigElem](ctx context.Context, cfg Config, src Source) (*Result, error) {
	sw := newStopwatch()
	log := cfg.Logger
	np := cfg.NumPerm

	// Load
	stop := sw.phase("load")
	docs, err := loadAll(ctx, cfg, src)
	if err != nil {
		return nil, err
	}
	stop()
	log.Info().Int("documents", len(docs)).Msg("corpus loaded")

	// Filter by minimum token count
	stop = sw.phase("filter")
	if cfg.MinLength > 0 {
		docs, err = filterShort(ctx, cfg, docs)
		if err != nil {
			return nil, err
		}
	}
	stop()
	before := uint64(len(docs))

	// Embed
	stop = sw.phase("embed")
	det := cfg.Deterministic
	rng := rand.New(rand.NewSource(int64(cfg.Seed)))
	perms := NewPermutations(np, cfg.HashBits, rng, det)
	emb := newEmbedder[E](perms, cfg.Seed, cfg.NGram, cfg.CacheSize)

	sigs := make([]E, len(docs)*np)
	err = forEachBatch(ctx, len(docs), cfg.BatchSize, cfg.NumThreads, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			emb.embed(docs[i].Text, Tokens(docs[i].Text), sigs[i*np:(i+1)*np])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	stop()
	log.Info().Int("signatures", len(docs)).Int("num_perm", np).Msg("embedding done")

	// Band
	stop = sw.phase("band")
	ids := make([]uint64, len(docs))
	for i := range docs {
		ids[i] = docs[i].ID
	}

	bb := &bander[E]{b: cfg.B, r: cfg.R, salt: splitmix64(cfg.Seed)}
	recs := make([]bandRec, len(docs)*cfg.B)
	err = forEachBatch(ctx, len(docs), cfg.BatchSize, cfg.NumThreads, func(lo, hi int) error {
		return bb.bandSigs(ids[lo:hi], sigs[lo*np:hi*np], np, recs[lo*cfg.B:hi*cfg.B])
	})
	if err != nil {
		return nil, fmt.Errorf("band: %w", err)
	}
	stop()

	// Group + Union: shard workers feed the single union consumer; a
	// reorder buffer applies shards in index order so the merge sequence
	// does not depend on scheduling.
	stop = sw.phase("group")
	uf := NewUnionFind()
	shards := partitionRecords(recs)

	type shardEdges struct {
		shard int
		edges []Edge
	}
	edgeCh := make(chan shardEdges, groupShards)
	done := make(chan struct{})

	var merges uint64
	go func() {
		defer close(done)
		pending := make(map[int][]Edge)
		next := 0
		for se := range edgeCh {
			pending[se.shard] = se.edges
			for {
				edges, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				for _, e := range edges {
					if uf.Union(e.A, e.B) {
						merges++
					}
				}
			}
		}
	}()

	err = forEachBatch(ctx, groupShards, 1, cfg.NumThreads, func(lo, hi int) error {
		for s := lo; s < hi; s++ {
			edgeCh <- shardEdges{shard: s, edges: groupShard(shards[s])}
		}
		return nil
	})
	close(edgeCh)
	<-done
	if err != nil {
		return nil, fmt.Errorf("group: %w", err)
	}
	stop()
	log.Info().Uint64("merges", merges).Msg("clustering done")

	// Keep: a document survives iff it represents its own cluster.
	stop = sw.phase("keep")
	kept := make([]uint64, 0, len(docs))
	for i := range docs {
		if uf.Find(docs[i].ID) == docs[i].ID {
			kept = append(kept, docs[i].ID)
		}
	}
	stop()

	res := &Result{
		Summary: Summary{
			Before: before,
			After:  uint64(len(kept)),
			Edges:  merges,
		},
		Kept: kept,
		UF:   uf,
	}

	// Save
	stop = sw.phase("save")
	if cfg.UFOutput != "" {
		if err := uf.Dump(cfg.UFOutput); err != nil {
			res.Summary.ElapsedMS = sw.report()
			return res, fmt.Errorf("save %s: %w", cfg.UFOutput, err)
		}
	}
	stop()

	res.Summary.ElapsedMS = sw.report()
	log.Info().
		Uint64("before", res.Summary.Before).
		Uint64("after", res.Summary.After).
		Uint64("edges", res.Summary.Edges).
		Uint64("total_ms", res.Summary.ElapsedMS["total"]).
		Msg("run complete")
	return res, nil
}

// loadAll drains the source. Source failures other than io.EOF are
// input errors.
func loadAll(ctx context.Context, cfg Config, src Source) ([]Document, error) {
	var docs []Document
	for {
		if len(docs)%cfg.BatchSize == 0 && ctx.Err() != nil {
			return nil, fmt.Errorf("load: %w", ErrCancelled)
		}

		d, err := src.Next()
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			if errors.Is(err, ErrInput) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrInput, err)
		}
		docs = append(docs, d)
	}
}

// filterShort drops documents with fewer than MinLength tokens. The
// survivors keep their input order.
func filterShort(ctx context.Context, cfg Config, docs []Document) ([]Document, error) {
	keep := make([]bool, len(docs))
	err := forEachBatch(ctx, len(docs), cfg.BatchSize, cfg.NumThreads, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			keep[i] = len(Tokens(docs[i].Text)) >= cfg.MinLength
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}

	out := docs[:0]
	for i := range docs {
		if keep[i] {
			out = append(out, docs[i])
		}
	}
	return out, nil
}

// forEachBatch runs fn over [lo, hi) batch spans of [0, n) on a worker
// pool. Cancellation is checked before each batch. Batches are claimed
// through an atomic counter, so writes indexed by position race with
// nothing.
func forEachBatch(ctx context.Context, n, batch, workers int, fn func(lo, hi int) error) error {
	if n == 0 {
		return nil
	}

	nspans := (n + batch - 1) / batch
	if workers > nspans {
		workers = nspans
	}

	var (
		next atomic.Int64
		wg   sync.WaitGroup
		mu   sync.Mutex
		ferr error
	)
	fail := func(err error) {
		mu.Lock()
		if ferr == nil {
			ferr = err
		}
		mu.Unlock()
	}

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= nspans {
					return
				}
				if ctx.Err() != nil {
					fail(ErrCancelled)
					return
				}

				lo := i * batch
				hi := lo + batch
				if hi > n {
					hi = n
				}
				if err := fn(lo, hi); err != nil {
					fail(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	return ferr
}

// stopwatch accumulates per-phase wall-clock milliseconds.
type stopwatch struct {
	t0     time.Time
	phases map[string]uint64
}

func newStopwatch() *stopwatch {
	return &stopwatch{
		t0:     time.Now(),
		phases: make(map[string]uint64),
	}
}

// phase starts timing a named phase; the returned func stops it.
func (s *stopwatch) phase(name string) func() {
	start := time.Now()
	return func() {
		s.phases[name] = uint64(time.Since(start).Milliseconds())
	}
}

// report returns the phase timings plus a "total" entry covering the
// whole run so far.
func (s *stopwatch) report() map[string]uint64 {
	out := make(map[string]uint64, len(s.phases)+1)
	for k, v := range s.phases {
		out[k] = v
	}
	out["total"] = uint64(time.Since(s.t0).Milliseconds())
	return out
}

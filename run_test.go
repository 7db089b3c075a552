// run_test.go -- end-to-end pipeline scenarios

package dedup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func smallConfig() Config {
	return Config{
		NumPerm: 64,
		B:       16,
		R:       4,
		NGram:   2,
	}
}

func runDocs(t *testing.T, cfg Config, docs []Document) *Result {
	t.Helper()
	res, err := Run(context.Background(), cfg, NewSliceSource(docs))
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestRunIdenticalDocuments(t *testing.T) {
	docs := []Document{
		{ID: 1, Text: "hello world foo bar"},
		{ID: 2, Text: "hello world foo bar"},
		{ID: 3, Text: "hello world foo bar"},
	}

	res := runDocs(t, smallConfig(), docs)
	require.Equal(t, uint64(3), res.Summary.Before)
	require.Equal(t, uint64(1), res.Summary.After)
	require.Equal(t, uint64(2), res.Summary.Edges)
	require.Equal(t, []uint64{1}, res.Kept)

	root := res.UF.Find(1)
	require.Equal(t, root, res.UF.Find(2))
	require.Equal(t, root, res.UF.Find(3))
}

func TestRunDisjointDocuments(t *testing.T) {
	docs := []Document{
		{ID: 1, Text: "alpha beta gamma"},
		{ID: 2, Text: "one two three"},
	}

	res := runDocs(t, smallConfig(), docs)
	require.Equal(t, uint64(2), res.Summary.Before)
	require.Equal(t, uint64(2), res.Summary.After)
	require.Equal(t, uint64(0), res.Summary.Edges)
	require.Equal(t, []uint64{1, 2}, res.Kept)
}

func TestRunNearDuplicates(t *testing.T) {
	docs := []Document{
		{ID: 1, Text: "the quick brown fox jumps over the lazy dog"},
		{ID: 2, Text: "the quick brown fox leaps over the lazy dog"},
	}

	cfg := Config{NumPerm: 256, B: 64, R: 4, NGram: 2}
	res := runDocs(t, cfg, docs)
	require.Equal(t, uint64(1), res.Summary.After, "near-duplicates were not merged")
	require.Equal(t, res.UF.Find(1), res.UF.Find(2))
}

func TestRunMinLengthFilter(t *testing.T) {
	docs := []Document{
		{ID: 1, Text: "a b"},
		{ID: 2, Text: "this document clearly has enough tokens to survive"},
	}

	cfg := smallConfig()
	cfg.MinLength = 5
	res := runDocs(t, cfg, docs)

	require.Equal(t, uint64(1), res.Summary.Before)
	require.Equal(t, []uint64{2}, res.Kept)
	require.Equal(t, 0, res.UF.Len(), "dropped document leaked into the union-find")
}

func TestRunDeterministicDumps(t *testing.T) {
	t.Setenv("DETERMINISTIC", "1")

	docs := []Document{
		{ID: 1, Text: "hello world foo bar"},
		{ID: 2, Text: "hello world foo bar"},
		{ID: 3, Text: "something else entirely different"},
	}

	dir := t.TempDir()
	var dumps [2][]byte
	for i := range dumps {
		cfg := smallConfig()
		cfg.UFOutput = filepath.Join(dir, fmt.Sprintf("uf%d.json", i))
		runDocs(t, cfg, docs)

		data, err := os.ReadFile(cfg.UFOutput)
		require.NoError(t, err)
		dumps[i] = data
	}
	require.Equal(t, dumps[0], dumps[1], "deterministic runs produced different dumps")
}

func TestRunEmptyCorpus(t *testing.T) {
	res := runDocs(t, smallConfig(), nil)
	require.Equal(t, uint64(0), res.Summary.Before)
	require.Equal(t, uint64(0), res.Summary.After)
	require.Equal(t, uint64(0), res.Summary.Edges)
	require.Empty(t, res.Kept)
}

func TestRunOrderInvariantPartition(t *testing.T) {
	docs := []Document{
		{ID: 1, Text: "hello world foo bar"},
		{ID: 2, Text: "totally different content here"},
		{ID: 3, Text: "hello world foo bar"},
		{ID: 4, Text: "yet another unrelated document body"},
		{ID: 5, Text: "totally different content here"},
	}

	reversed := make([]Document, len(docs))
	for i := range docs {
		reversed[i] = docs[len(docs)-1-i]
	}

	r1 := runDocs(t, smallConfig(), docs)
	r2 := runDocs(t, smallConfig(), reversed)

	require.Equal(t, partition(r1.UF, docs), partition(r2.UF, docs),
		"partition changed under input permutation")
	require.Equal(t, r1.Summary.After, r2.Summary.After)
	require.Equal(t, r1.Summary.Edges, r2.Summary.Edges)
}

// partition canonicalizes the equivalence classes as min-member -> members.
func partition(u *UnionFind, docs []Document) map[uint64][]uint64 {
	classes := make(map[uint64][]uint64)
	for _, d := range docs {
		root := u.Find(d.ID)
		classes[root] = append(classes[root], d.ID)
	}

	out := make(map[uint64][]uint64, len(classes))
	for _, members := range classes {
		min := members[0]
		for _, id := range members {
			if id < min {
				min = id
			}
		}
		out[min] = members
	}
	return out
}

func TestRunHashWidths(t *testing.T) {
	docs := []Document{
		{ID: 1, Text: "hello world foo bar"},
		{ID: 2, Text: "hello world foo bar"},
		{ID: 3, Text: "unrelated text about other things"},
	}

	for _, bits := range []uint8{16, 32, 64} {
		cfg := smallConfig()
		cfg.HashBits = bits
		res := runDocs(t, cfg, docs)
		require.Equal(t, uint64(2), res.Summary.After, "hash_bits=%d", bits)
		require.Equal(t, res.UF.Find(1), res.UF.Find(2), "hash_bits=%d", bits)
	}
}

func TestRunDerivedParams(t *testing.T) {
	docs := []Document{
		{ID: 1, Text: "hello world foo bar"},
		{ID: 2, Text: "hello world foo bar"},
	}

	cfg := Config{NumPerm: 128, NGram: 2, Threshold: 0.5}
	res := runDocs(t, cfg, docs)
	require.Equal(t, uint64(1), res.Summary.After)
}

func TestRunConfigErrors(t *testing.T) {
	docs := []Document{{ID: 1, Text: "x y z"}}

	cases := []Config{
		{NumPerm: 64, B: 3, R: 4},        // b*r != num_perm
		{Threshold: 1.5},                 // threshold out of range
		{HashBits: 33},                   // unsupported width
		{NumPerm: 10, B: -1, R: 2},       // negative band count
	}
	for i, cfg := range cases {
		_, err := Run(context.Background(), cfg, NewSliceSource(docs))
		require.ErrorIs(t, err, ErrConfig, "case %d", i)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	docs := []Document{{ID: 1, Text: "hello world foo bar"}}
	res, err := Run(ctx, smallConfig(), NewSliceSource(docs))
	require.ErrorIs(t, err, ErrCancelled)
	require.Nil(t, res)
}

type failingSource struct{ after int }

func (f *failingSource) Next() (Document, error) {
	if f.after <= 0 {
		return Document{}, errors.New("record 17: missing text column")
	}
	f.after--
	return Document{ID: uint64(f.after), Text: "some text here"}, nil
}

func TestRunSourceError(t *testing.T) {
	_, err := Run(context.Background(), smallConfig(), &failingSource{after: 3})
	require.ErrorIs(t, err, ErrInput)
}

func TestRunSaveFailureReturnsResult(t *testing.T) {
	docs := []Document{
		{ID: 1, Text: "hello world foo bar"},
		{ID: 2, Text: "hello world foo bar"},
	}

	cfg := smallConfig()
	cfg.UFOutput = filepath.Join(t.TempDir(), "no", "such", "dir", "uf.json")

	res, err := Run(context.Background(), cfg, NewSliceSource(docs))
	require.Error(t, err)
	require.NotNil(t, res, "save failure must still return the in-memory result")
	require.Equal(t, uint64(1), res.Summary.After)
}

func TestRunElapsedPhases(t *testing.T) {
	res := runDocs(t, smallConfig(), []Document{{ID: 1, Text: "a b c d"}})
	for _, phase := range []string{"load", "filter", "embed", "band", "group", "keep", "save", "total"} {
		_, ok := res.Summary.ElapsedMS[phase]
		require.True(t, ok, "missing phase timing %q", phase)
	}
}

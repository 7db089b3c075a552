// group.go -- candidate grouping and star-edge emission

package dedup

// groupShards fixes the number of fingerprint shards the grouper is
// partitioned into. It is independent of the worker count so the edge
// stream is a pure function of the input.
const groupShards = 64

// Edge is one candidate duplicate pair. A is always the bucket root.
type Edge struct {
	A, B uint64
}

// bandKey identifies one LSH bucket.
type bandKey struct {
	band uint32
	fp   uint64
}

// partitionRecords scatters band records into groupShards slices by
// fingerprint. Records keep their relative order within a shard.
func partitionRecords(recs []bandRec) [][]bandRec {
	shards := make([][]bandRec, groupShards)
	counts := make([]int, groupShards)
	for i := range recs {
		counts[recs[i].fp%groupShards]++
	}
	for s := range shards {
		shards[s] = make([]bandRec, 0, counts[s])
	}
	for i := range recs {
		s := recs[i].fp % groupShards
		shards[s] = append(shards[s], recs[i])
	}
	return shards
}

// groupShard buckets one shard's records by (band, fingerprint) and
// emits a spanning star for every bucket with at least two documents.
// The star is rooted at the minimum id, so the edges produced for a
// given bucket do not depend on input order. Buckets are visited in
// first-seen order, which keeps the whole edge stream reproducible.
func groupShard(recs []bandRec) []Edge {
	buckets := make(map[bandKey][]uint64)
	var order []bandKey

	for i := range recs {
		k := bandKey{band: recs[i].band, fp: recs[i].fp}
		ids, ok := buckets[k]
		if !ok {
			order = append(order, k)
		}
		buckets[k] = append(ids, recs[i].id)
	}

	var edges []Edge
	for _, k := range order {
		ids := buckets[k]
		if len(ids) < 2 {
			continue
		}

		root := ids[0]
		for _, id := range ids[1:] {
			if id < root {
				root = id
			}
		}
		for _, id := range ids {
			if id != root {
				edges = append(edges, Edge{A: root, B: id})
			}
		}
	}
	return edges
}

// unionfind.go -- weighted disjoint-set over document ids

package dedup

import "sort"

// UnionFind maintains equivalence classes of document ids. Ids that were
// never unioned are implicit singletons: Find returns them unchanged and
// stores nothing, so the structure stays proportional to the number of
// documents that actually collided.
type UnionFind struct {
	parent map[uint64]uint64
	rank   map[uint64]uint32
}

// NewUnionFind returns an empty union-find.
func NewUnionFind() *UnionFind {
	return &UnionFind{
		parent: make(map[uint64]uint64),
		rank:   make(map[uint64]uint32),
	}
}

// NewUnionFindN returns a union-find pre-populated with ids [0, n), each
// its own root with rank 1.
func NewUnionFindN(n uint64) *UnionFind {
	u := &UnionFind{
		parent: make(map[uint64]uint64, n),
		rank:   make(map[uint64]uint32, n),
	}
	for i := uint64(0); i < n; i++ {
		u.parent[i] = i
		u.rank[i] = 1
	}
	return u
}

// Len returns the number of ids known to the structure.
func (u *UnionFind) Len() int {
	return len(u.parent)
}

// Find returns the representative of x, compressing the path by halving
// as it walks. Unknown ids are their own representative.
func (u *UnionFind) Find(x uint64) uint64 {
	p, ok := u.parent[x]
	if !ok {
		return x
	}
	for p != x {
		gp := u.parent[p]
		u.parent[x] = gp
		x, p = gp, u.parent[gp]
	}
	return x
}

func (u *UnionFind) ensure(x uint64) {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		u.rank[x] = 1
	}
}

// Union joins the classes of x and y, by rank, and reports whether a
// merge happened. Rank ties attach the numerically larger root under the
// smaller one, so representatives are reproducible.
func (u *UnionFind) Union(x, y uint64) bool {
	u.ensure(x)
	u.ensure(y)

	rx, ry := u.Find(x), u.Find(y)
	if rx == ry {
		return false
	}

	switch {
	case u.rank[rx] < u.rank[ry]:
		rx, ry = ry, rx
	case u.rank[rx] == u.rank[ry]:
		if ry < rx {
			rx, ry = ry, rx
		}
		u.rank[rx]++
	}

	u.parent[ry] = rx
	return true
}

// Iter calls fn with every known id and its representative, in ascending
// id order. Iteration stops early if fn returns false.
func (u *UnionFind) Iter(fn func(id, root uint64) bool) {
	ids := make([]uint64, 0, len(u.parent))
	for id := range u.parent {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if !fn(id, u.Find(id)) {
			return
		}
	}
}

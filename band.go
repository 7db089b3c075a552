// band.go -- LSH banding of signatures

package dedup

import "fmt"

// bandRec is one (band, fingerprint) -> document tuple. Grouping keys on
// the pair; the band index rides along so buckets from different bands
// can never merge.
type bandRec struct {
	fp   uint64
	id   uint64
	band uint32
}

// bander splits signatures into b bands of r rows and fingerprints each
// band over its native little-endian serialization.
type bander[E SigElem] struct {
	b, r int
	salt uint64
}

// bandSigs emits the b records for each of the documents in sigs, a flat
// row-major buffer of len(ids) signatures, into out (len(ids)*b records).
// The slice [i*b, (i+1)*b) of out belongs to document i, so concurrent
// callers can band disjoint document ranges in place.
func (bb *bander[E]) bandSigs(ids []uint64, sigs []E, numPerm int, out []bandRec) error {
	if len(sigs) != len(ids)*numPerm {
		return fmt.Errorf("%w: banding: signature buffer holds %d entries, want %d",
			ErrInternal, len(sigs), len(ids)*numPerm)
	}

	for i, id := range ids {
		sig := sigs[i*numPerm : (i+1)*numPerm]
		recs := out[i*bb.b : (i+1)*bb.b]
		for b := 0; b < bb.b; b++ {
			rows := sig[b*bb.r : (b+1)*bb.r]
			recs[b] = bandRec{
				fp:   bandFingerprint(bb.salt, uint32(b), asBytes(rows)),
				id:   id,
				band: uint32(b),
			}
		}
	}
	return nil
}

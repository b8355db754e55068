package rrd

import (
	"github.com/biogo/store/llrb"
)

// archiveIndex is an in-memory-only ordered index over a database's
// archives, one llrb.Tree per consolidation function, keyed by arcStep
// (step*steps). Database.findMatchingArchive walks it, instead of
// db.arcDefs directly, to get the candidate archives for one
// consolidation function in arcStep order; it is rebuilt from the
// persisted archives on every Create/Open and never itself touches the
// backend.
//
// Grounded on encoding/bampair/shard_info.go's ShardInfo, which indexes
// bam shards by a composite key in an llrb.Tree.
type archiveIndex struct {
	byCf map[string]*llrb.Tree
}

// archiveKey orders entries by (arcStep, declOrder); declOrder breaks
// ties between archives sharing the same consolidation function and
// arcStep, preserving spec.md §4.6's "declaration order" tiebreak.
type archiveKey struct {
	arcStep    int64
	declOrder  int64
	archiveIdx int
}

func (k archiveKey) Compare(c2 llrb.Comparable) int {
	o := c2.(archiveKey)
	switch {
	case k.arcStep < o.arcStep:
		return -1
	case k.arcStep > o.arcStep:
		return 1
	case k.declOrder < o.declOrder:
		return -1
	case k.declOrder > o.declOrder:
		return 1
	default:
		return 0
	}
}

func newArchiveIndex() *archiveIndex {
	return &archiveIndex{byCf: make(map[string]*llrb.Tree)}
}

func (x *archiveIndex) add(cf string, arcStep int64, declOrder int64, archiveIdx int) {
	t, ok := x.byCf[cf]
	if !ok {
		t = &llrb.Tree{}
		x.byCf[cf] = t
	}
	t.Insert(archiveKey{arcStep: arcStep, declOrder: declOrder, archiveIdx: archiveIdx})
}

// forCf returns every archive index registered under cf, in ascending
// arcStep order, via an in-order llrb.Tree.Do traversal. Database.
// findMatchingArchive uses this instead of a linear scan over every
// archive definition to narrow down to the candidate set for one
// consolidation function.
func (x *archiveIndex) forCf(cf string) []int {
	t, ok := x.byCf[cf]
	if !ok {
		return nil
	}
	var out []int
	t.Do(func(c llrb.Comparable) bool {
		out = append(out, c.(archiveKey).archiveIdx)
		return false
	})
	return out
}

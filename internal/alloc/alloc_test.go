package alloc

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestAllocateAdvancesMonotonically(t *testing.T) {
	var a Allocator
	expect.EQ(t, int64(0), a.Allocate(8))
	expect.EQ(t, int64(8), a.Allocate(4))
	expect.EQ(t, int64(12), a.Allocate(128))
	expect.EQ(t, int64(140), a.Size())
}

func TestAllocateOrderIsDeterministic(t *testing.T) {
	// Two allocators fed the identical declaration order must agree, since
	// reopening a database must reproduce the same offsets as creating it.
	widths := []int64{8, 8, 8, 8, 128, 20, 4, 8, 8, 8, 8, 8}

	var a, b Allocator
	offsetsA := make([]int64, len(widths))
	offsetsB := make([]int64, len(widths))
	for i, w := range widths {
		offsetsA[i] = a.Allocate(w)
	}
	for i, w := range widths {
		offsetsB[i] = b.Allocate(w)
	}
	expect.EQ(t, offsetsA, offsetsB)
}

func TestAllocateRejectsNonPositiveWidth(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero width")
		}
	}()
	var a Allocator
	a.Allocate(0)
}

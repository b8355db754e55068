// Package alloc provides the byte-offset allocator used while laying
// out a database's on-disk schema.
//
// Allocation only happens while building a database in memory, either
// from a fresh RrdDef (Create) or by replaying the same declaration
// order against an already-sized backend (Open). There is no freeing:
// the layout is the schema, and the schema never shrinks or grows after
// creation.
package alloc

// Allocator hands out monotonically increasing byte offsets. It is not
// safe for concurrent use; construction is single-threaded by contract
// (spec.md §5).
type Allocator struct {
	next int64
}

// Allocate returns the current offset and advances the cursor by width
// bytes. width must be > 0.
func (a *Allocator) Allocate(width int64) int64 {
	if width <= 0 {
		panic("alloc: width must be positive")
	}
	offset := a.next
	a.next += width
	return offset
}

// Size returns the total number of bytes allocated so far. Used to
// size the backend before writing any cell.
func (a *Allocator) Size() int64 {
	return a.next
}

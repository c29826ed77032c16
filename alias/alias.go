// Package alias implements the aliasing suballocator shared by the
// job-local buffer and image allocators. It packs allocations with
// disjoint usage ranges into as little virtual space as possible across
// an ordered list of backing regions.
package alias

import "math"

// UsageRange is a closed interval of command indices within a job,
// [firstUse, lastUse], over which a resource is referenced.
// Two ranges alias only when they do not overlap.
type UsageRange struct {
	First int
	Last  int
}

// Overlaps reports whether r and o share any command index.
func (r UsageRange) Overlaps(o UsageRange) bool {
	return r.First <= o.Last && o.First <= r.Last
}

// everyRange is the usage range of a backing-boundary sentinel: it
// overlaps every real usage range, so the walk always advances past a
// sentinel rather than aliasing across it.
var everyRange = UsageRange{First: math.MinInt, Last: math.MaxInt}

// NotFit is the backing index returned by Allocate when a request does
// not fit any supplied backing region. The caller must create a new
// backing of at least the requested size and retry.
const NotFit = -1

type entry struct {
	offset   int // offset in the concatenated address space
	size     int
	usage    UsageRange
	sentinel bool
}

// Allocator packs allocations with disjoint usage ranges into the
// concatenation of a list of backing regions. It is deterministic: for a
// fixed backing size list and a fixed sequence of Allocate calls, the
// returned (backingIndex, offset) sequence is always the same.
type Allocator struct {
	backingSizes []int
	entries      []entry
	usedSize     int
}

// New returns an allocator over the concatenation of backingSizes, with
// a zero-sized sentinel inserted at each boundary between regions.
func New(backingSizes []int) *Allocator {
	a := &Allocator{backingSizes: append([]int(nil), backingSizes...)}
	cum := 0
	for i := 0; i < len(backingSizes)-1; i++ {
		cum += backingSizes[i]
		a.entries = append(a.entries, entry{offset: cum, usage: everyRange, sentinel: true})
	}
	return a
}

// UsedSize returns the high-water mark of bytes used across the entire
// concatenated address space (not the sum of backing sizes).
func (a *Allocator) UsedSize() int {
	return a.usedSize
}

// roundUpPow2 rounds size up to the next multiple of align, where align
// is expected to be a power of two (or 1, a no-op).
func roundUpPow2(size, align int) int {
	if align <= 1 {
		return size
	}
	return (size + align - 1) &^ (align - 1)
}

// Allocate finds a position for size bytes with the given usage range
// and alignment. It returns (backingIndex, offset) into that backing
// region, or (NotFit, 0) when the request does not fit within the
// supplied backings; the caller must then create a new backing of at
// least size bytes and call AddBacking before retrying (or handle it
// out of band, as job-local allocators do when batching leftovers).
func (a *Allocator) Allocate(size int, usage UsageRange, alignment int) (backingIndex, offset int) {
	o := 0
	backingIndex = 0
	backingBase := 0

	for _, e := range a.entries {
		if !e.usage.Overlaps(usage) {
			continue
		}
		if o+size <= e.offset {
			break
		}
		end := e.offset + e.size - backingBase
		o = backingBase + roundUpPow2(end, alignment)
		if e.sentinel {
			backingIndex++
			backingBase = e.offset
		}
	}

	if backingIndex >= len(a.backingSizes) {
		return NotFit, 0
	}
	local := o - backingBase
	if local+size > a.backingSizes[backingIndex] {
		return NotFit, 0
	}

	a.insert(entry{offset: o, size: size, usage: usage})
	if o+size > a.usedSize {
		a.usedSize = o + size
	}
	return backingIndex, local
}

// insert keeps a.entries sorted ascending by offset.
func (a *Allocator) insert(e entry) {
	pos := 0
	for pos < len(a.entries) && a.entries[pos].offset < e.offset {
		pos++
	}
	a.entries = append(a.entries, entry{})
	copy(a.entries[pos+1:], a.entries[pos:])
	a.entries[pos] = e
}

// AddBacking appends a new backing region of the given size, usable by
// subsequent Allocate calls. It does not retroactively reconsider
// allocations that already returned NotFit; the caller retries those.
func (a *Allocator) AddBacking(size int) (backingIndex int) {
	if len(a.backingSizes) > 0 {
		cum := 0
		for _, s := range a.backingSizes {
			cum += s
		}
		a.entries = append(a.entries, entry{offset: cum, usage: everyRange, sentinel: true})
	}
	a.backingSizes = append(a.backingSizes, size)
	return len(a.backingSizes) - 1
}

// BackingSizes returns the current list of backing region sizes.
func (a *Allocator) BackingSizes() []int {
	return append([]int(nil), a.backingSizes...)
}

package tephra

import "github.com/tephra-gpu/tephra/internal/ordmap"

// PreinitializedBuffer is a job-local buffer whose storage is allocated
// eagerly against a ring, so the host may write into it before the job
// that uses it runs (Glossary "Preinitialized buffer"). Unlike
// JobLocalBuffer, its backing offset is known immediately at allocation
// time, not deferred to enqueue.
type PreinitializedBuffer struct {
	Buffer *Buffer
	Offset uint64
	Size   uint64

	key      preinitKey
	ringIdx  int
}

type preinitKey struct {
	usage BufferUsage
	pref  string
	slot  int // distinguishes rings of the same (usage, pref) bound to different jobs
}

// preinitRing is one key's growable set of ring buffers (§4.4); each
// buffer records the memory location it was allocated in.
//
// Grounded on vgpu/membuff.go's MemBuff.AllocHost: a host-visible staging
// buffer with a mapped pointer, generalized here into a ring that grows
// by appending backing buffers, instead of the teacher's single fixed
// staging buffer. A ring never shrinks: its buffers are kept once created.
type preinitRing struct {
	buffers []*preinitRingBuffer

	recordingJobID int64 // -1 when not currently bound to a job
}

type preinitRingBuffer struct {
	buffer   *Buffer
	location MemoryLocation
	cursor   uint64 // next free offset
	pushed   []uint64
}

// push attempts to reserve size bytes at the ring's current cursor,
// aligned to align; false if it does not fit in the remaining capacity.
func (rb *preinitRingBuffer) push(size, align uint64) (uint64, bool) {
	off := roundUp(rb.cursor, align)
	if off+size > rb.buffer.Size() {
		return 0, false
	}
	rb.cursor = off + size
	rb.pushed = append(rb.pushed, off)
	return off, true
}

// pop releases the oldest outstanding allocation, so pops run in exactly
// the order pushed, per §4.4 "Free." Once every allocation has been
// popped the cursor returns to the start of the buffer.
func (rb *preinitRingBuffer) pop() {
	if len(rb.pushed) == 0 {
		return
	}
	rb.pushed = rb.pushed[1:]
	if len(rb.pushed) == 0 {
		rb.cursor = 0
	}
}

func roundUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// preinitAllocator owns every (usage, preference) keyed ring (C4), kept in
// an insertion-ordered map so finalizeJob's scan-all sweep visits keys in
// a fixed, reproducible order (D.3).
type preinitAllocator struct {
	device *Device
	rings  *ordmap.Map[preinitKey, *preinitRing]
}

func newPreinitAllocator(d *Device) *preinitAllocator {
	return &preinitAllocator{device: d, rings: ordmap.New[preinitKey, *preinitRing]()}
}

// allocate reserves size bytes for usage/pref, binding the chosen key to
// jobID for the duration of the job's recording (§4.4 step "the key
// records recording_job_id"). If a key's ring is bound to a different
// job, allocate moves on to the key's next slot, taking the first slot
// whose ring is unbound or bound to jobID, or creating a fresh ring in
// the first unused slot; rings bound to other jobs are left in place.
func (a *preinitAllocator) allocate(jobID int64, size uint64, usage BufferUsage, pref MemoryPreference) (*PreinitializedBuffer, error) {
	key := preinitKey{usage: usage, pref: prefKey(pref)}
	ring, ok := a.rings.ValueByKeyTry(key)
	for ok && ring.recordingJobID != jobID && ring.recordingJobID != -1 {
		key.slot++
		ring, ok = a.rings.ValueByKeyTry(key)
	}
	if !ok {
		ring = &preinitRing{recordingJobID: jobID}
		a.rings.Add(key, ring)
	}
	ring.recordingJobID = jobID

	align := alignmentFor(a.device, usage, true)

	for _, rb := range ring.buffers {
		if off, ok := rb.push(size, align); ok {
			return &PreinitializedBuffer{Buffer: rb.buffer, Offset: off, Size: size, key: key, ringIdx: indexOf(ring.buffers, rb)}, nil
		}
	}

	// None of the existing ring buffers had room; grow by one, sized by
	// overallocation, created with this key's usage and preference
	// (§4.4 step 2). The new buffer carries only this key's usage bits,
	// not the union of every preinitialized-buffer usage.
	poolSize := ringPoolSize(ring)
	newSize := a.device.config.Overallocation.Size(size, poolSize)
	buf, loc, err := a.device.createPreferredBuffer(newSize, usage, pref, "preinit-ring-backing")
	if err != nil {
		return nil, err
	}
	rb := &preinitRingBuffer{buffer: buf, location: loc}
	ring.buffers = append(ring.buffers, rb)
	off, ok := rb.push(size, align)
	if !ok {
		return nil, invalidArgument("preinitAllocator.allocate", "request does not fit its own newly created ring buffer")
	}
	return &PreinitializedBuffer{Buffer: rb.buffer, Offset: off, Size: size, key: key, ringIdx: len(ring.buffers) - 1}, nil
}

func indexOf(bufs []*preinitRingBuffer, target *preinitRingBuffer) int {
	for i, b := range bufs {
		if b == target {
			return i
		}
	}
	return -1
}

func ringPoolSize(ring *preinitRing) uint64 {
	var total uint64
	for _, rb := range ring.buffers {
		total += rb.buffer.Size()
	}
	return total
}

// finalizeJob detaches every ring currently bound to jobID from
// recording, per §4.4 "Finalize (on enqueue): detach the key from
// recording_job_id."
func (a *preinitAllocator) finalizeJob(jobID int64) {
	for i := 0; i < a.rings.Len(); i++ {
		ring := a.rings.ValueByIndex(i)
		if ring.recordingJobID == jobID {
			ring.recordingJobID = -1
		}
	}
}

// freeJob pops one slot for each of a job's allocations, in the order
// given, matching §4.4 "Free ... pop exactly as many slots as the job
// pushed; order must match." It looks up each allocation's own key, so
// allocations spread across several keys are all released; it does not
// scan the other keys.
func (a *preinitAllocator) freeJob(allocs []*PreinitializedBuffer) {
	for _, alloc := range allocs {
		ring, ok := a.rings.ValueByKeyTry(alloc.key)
		if !ok || alloc.ringIdx < 0 || alloc.ringIdx >= len(ring.buffers) {
			continue
		}
		ring.buffers[alloc.ringIdx].pop()
	}
}

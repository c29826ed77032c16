package tephra

import (
	"sync"

	"github.com/tephra-gpu/tephra/vk"
)

// destroyFunc releases a driver handle. Bound at lifeguard creation time
// so the destructor queue never needs to know what kind of object it is
// destroying (§4.9).
type destroyFunc func(vk.Handle)

// lifeguard owns (or, if non-owning, merely references) a driver handle
// and binds its destruction to a timeline threshold (§3, §4.9, §9
// "Lifeguard / RAII"). The zero value is an invalid lifeguard.
type lifeguard struct {
	device  *Device
	handle  vk.Handle
	destroy destroyFunc
	owning  bool

	once sync.Once
}

// newLifeguard wraps handle as an owning lifeguard.
func newLifeguard(d *Device, handle vk.Handle, destroy destroyFunc) *lifeguard {
	return &lifeguard{device: d, handle: handle, destroy: destroy, owning: true}
}

// newNonOwningLifeguard wraps a handle the caller (or another subsystem)
// retains ownership of — e.g. swapchain images.
func newNonOwningLifeguard(d *Device, handle vk.Handle) *lifeguard {
	return &lifeguard{device: d, handle: handle, owning: false}
}

// release enqueues the handle for destruction at the device's latest
// tracked timestamp across its queues, or destroys it immediately if the
// device is already idle (§4.9 "Fast path"). Safe to call more than once;
// only the first call has an effect.
func (lg *lifeguard) release() {
	if !lg.owning || lg.destroy == nil {
		return
	}
	lg.once.Do(func() {
		if lg.device.timeline.allIdle() {
			lg.destroy(lg.handle)
			return
		}
		lg.device.lifeguardQueue.enqueue(deferredEntry{
			handle:    lg.handle,
			destroy:   lg.destroy,
			threshold: lg.device.timeline.latestTrackedTimestamp(),
		})
	})
}

// deferredEntry is one FIFO entry in the destructor queue (§3 "Deferred
// destruction queue").
type deferredEntry struct {
	handle    vk.Handle
	destroy   destroyFunc
	threshold queueTimestamps
}

// queueTimestamps records, per queue index, the timestamp that must be
// reached before an entry may be destroyed — the entry is safe to drain
// once every recorded queue has reached at least its corresponding value.
type queueTimestamps map[int]uint64

// reached reports whether every queue in t has been reached according
// to reached.
func (t queueTimestamps) reached(reached func(queue int) uint64) bool {
	for q, want := range t {
		if reached(q) < want {
			return false
		}
	}
	return true
}

// deferredDestructionQueue is the FIFO of (handle, destroy_fn, timestamp)
// from §3, guarded by a mutex per §5 ("the destructor queue is guarded by
// a mutex"), draining strictly in FIFO order per the invariant in §3.
type deferredDestructionQueue struct {
	mu      sync.Mutex
	entries []deferredEntry
	device  *Device
}

func newDeferredDestructionQueue(d *Device) *deferredDestructionQueue {
	return &deferredDestructionQueue{device: d}
}

func (q *deferredDestructionQueue) enqueue(e deferredEntry) {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	q.mu.Unlock()
}

// destroyUpTo drains entries from the front of the FIFO whose threshold
// is fully reached, per §4.9. Because it is FIFO-ordered but entries are
// not necessarily in non-decreasing threshold order across different
// queues, an entry whose threshold is not yet reached blocks ones behind
// it from being considered in the same pass — consistent with "entries
// are drained in FIFO order" in §3.
func (q *deferredDestructionQueue) destroyUpTo(reached func(queue int) uint64) {
	q.mu.Lock()
	i := 0
	for i < len(q.entries) {
		e := q.entries[i]
		if !e.threshold.reached(reached) {
			break
		}
		i++
	}
	ready := append([]deferredEntry(nil), q.entries[:i]...)
	q.entries = q.entries[i:]
	q.mu.Unlock()

	for _, e := range ready {
		e.destroy(e.handle)
	}
}

// destroyAll unconditionally drains and destroys every entry; used when
// the device is known to be idle (Device.WaitForIdle).
func (q *deferredDestructionQueue) destroyAll() {
	q.mu.Lock()
	ready := q.entries
	q.entries = nil
	q.mu.Unlock()
	for _, e := range ready {
		e.destroy(e.handle)
	}
}

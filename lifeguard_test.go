package tephra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tephra-gpu/tephra/vk"
	"github.com/tephra-gpu/tephra/vk/fake"
)

// §4.9 fast path — releasing a lifeguard while the device is idle destroys
// the handle immediately, without going through the deferred queue.
func TestLifeguardReleaseFastPathWhenIdle(t *testing.T) {
	d := NewDevice(fake.New(), 1, DefaultDeviceConfig)
	_, err := d.CreateQueue(1, 0)
	require.NoError(t, err)

	var destroyed vk.Handle
	lg := newLifeguard(d, vk.Handle(42), func(h vk.Handle) { destroyed = h })

	lg.release()
	assert.Equal(t, vk.Handle(42), destroyed)
	assert.Empty(t, d.lifeguardQueue.entries)
}

// §4.9 — with work in flight, release enqueues into the deferred
// destruction queue instead of destroying immediately.
func TestLifeguardReleaseDefersWhenNotIdle(t *testing.T) {
	d := NewDevice(fake.New(), 1, DefaultDeviceConfig)
	q, err := d.CreateQueue(1, 0)
	require.NoError(t, err)

	j := d.CreateJob(q)
	require.NoError(t, d.EnqueueJob(j)) // assigns a timestamp without reaching it

	var destroyed bool
	lg := newLifeguard(d, vk.Handle(7), func(h vk.Handle) { destroyed = true })
	lg.release()

	assert.False(t, destroyed)
	assert.Len(t, d.lifeguardQueue.entries, 1)
}

// release is idempotent: a second call after the first has no effect.
func TestLifeguardReleaseIsIdempotent(t *testing.T) {
	d := NewDevice(fake.New(), 1, DefaultDeviceConfig)
	_, err := d.CreateQueue(1, 0)
	require.NoError(t, err)

	calls := 0
	lg := newLifeguard(d, vk.Handle(1), func(h vk.Handle) { calls++ })
	lg.release()
	lg.release()
	assert.Equal(t, 1, calls)
}

// a non-owning lifeguard's release is a no-op: it never calls destroy.
func TestNonOwningLifeguardReleaseIsNoop(t *testing.T) {
	d := NewDevice(fake.New(), 1, DefaultDeviceConfig)
	_, err := d.CreateQueue(1, 0)
	require.NoError(t, err)

	lg := newNonOwningLifeguard(d, vk.Handle(9))
	lg.release()
	assert.Empty(t, d.lifeguardQueue.entries)
}

// deferredDestructionQueue.destroyUpTo drains only entries whose
// threshold has been fully reached, preserving FIFO order across calls.
func TestDeferredDestructionQueueDrainsUpToThreshold(t *testing.T) {
	d := NewDevice(fake.New(), 1, DefaultDeviceConfig)
	dq := newDeferredDestructionQueue(d)

	var order []int
	dq.enqueue(deferredEntry{handle: 1, destroy: func(vk.Handle) { order = append(order, 1) }, threshold: queueTimestamps{0: 1}})
	dq.enqueue(deferredEntry{handle: 2, destroy: func(vk.Handle) { order = append(order, 2) }, threshold: queueTimestamps{0: 2}})

	dq.destroyUpTo(func(q int) uint64 { return 1 })
	assert.Equal(t, []int{1}, order)
	assert.Len(t, dq.entries, 1)

	dq.destroyUpTo(func(q int) uint64 { return 2 })
	assert.Equal(t, []int{1, 2}, order)
	assert.Empty(t, dq.entries)
}

func TestDeferredDestructionQueueDestroyAllIgnoresThreshold(t *testing.T) {
	d := NewDevice(fake.New(), 1, DefaultDeviceConfig)
	dq := newDeferredDestructionQueue(d)

	var destroyed int
	dq.enqueue(deferredEntry{handle: 1, destroy: func(vk.Handle) { destroyed++ }, threshold: queueTimestamps{0: 1000}})
	dq.destroyAll()
	assert.Equal(t, 1, destroyed)
	assert.Empty(t, dq.entries)
}

package tephra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tephra-gpu/tephra/vk/fake"
)

func newTestPreinitDevice(t *testing.T) *Device {
	t.Helper()
	return NewDevice(fake.New(), 1, DefaultDeviceConfig)
}

// §4.4 — two allocations under the same (usage, preference) key from the
// same recording job pack into one ring buffer at increasing offsets.
func TestPreinitAllocatorPacksSameJobIntoOneRing(t *testing.T) {
	d := newTestPreinitDevice(t)
	a := newPreinitAllocator(d)

	a1, err := a.allocate(1, 128, UsageUniform, PreferenceHost)
	require.NoError(t, err)
	a2, err := a.allocate(1, 128, UsageUniform, PreferenceHost)
	require.NoError(t, err)

	assert.Same(t, a1.Buffer, a2.Buffer)
	assert.Less(t, a1.Offset, a2.Offset)
}

// §4.4 — a key already bound to a different recording job gets a fresh
// ring rather than reusing the first job's.
func TestPreinitAllocatorSeparatesConcurrentlyRecordingJobs(t *testing.T) {
	d := newTestPreinitDevice(t)
	a := newPreinitAllocator(d)

	a1, err := a.allocate(1, 128, UsageUniform, PreferenceHost)
	require.NoError(t, err)
	a2, err := a.allocate(2, 128, UsageUniform, PreferenceHost)
	require.NoError(t, err)

	assert.NotSame(t, a1.Buffer, a2.Buffer)
}

// §4.4 Free — popping releases exactly the slots a job pushed, in pushed
// order, leaving the ring's cursor position intact for capacity checks
// but freeing the slot count for reuse by the bookkeeping in `pushed`.
func TestPreinitAllocatorFreeJobPopsInPushedOrder(t *testing.T) {
	d := newTestPreinitDevice(t)
	a := newPreinitAllocator(d)

	a1, err := a.allocate(1, 64, UsageUniform, PreferenceHost)
	require.NoError(t, err)
	a2, err := a.allocate(1, 64, UsageUniform, PreferenceHost)
	require.NoError(t, err)

	key := a1.key
	ring, ok := a.rings.ValueByKeyTry(key)
	require.True(t, ok)
	rb := ring.buffers[a1.ringIdx]
	require.Len(t, rb.pushed, 2)

	a.freeJob([]*PreinitializedBuffer{a1, a2})
	assert.Empty(t, rb.pushed)
}

// finalizeJob detaches every ring bound to jobID, letting a later job
// reuse the same (usage, pref) key.
func TestPreinitAllocatorFinalizeJobDetachesRecording(t *testing.T) {
	d := newTestPreinitDevice(t)
	a := newPreinitAllocator(d)

	a1, err := a.allocate(1, 64, UsageUniform, PreferenceHost)
	require.NoError(t, err)
	a.finalizeJob(1)

	ring, ok := a.rings.ValueByKeyTry(a1.key)
	require.True(t, ok)
	assert.Equal(t, int64(-1), ring.recordingJobID)

	a2, err := a.allocate(2, 64, UsageUniform, PreferenceHost)
	require.NoError(t, err)
	assert.Same(t, a1.Buffer, a2.Buffer, "a finalized key is free for the next job to bind")
}

func TestRingBufferPushRejectsOversizeAndAligns(t *testing.T) {
	d := newTestPreinitDevice(t)
	buf, err := d.createBackingBuffer(256, UsageUniform, PreferenceHost, "test-ring")
	require.NoError(t, err)
	rb := &preinitRingBuffer{buffer: buf}

	off, ok := rb.push(10, 1)
	require.True(t, ok)
	assert.Equal(t, uint64(0), off)

	off2, ok := rb.push(16, 16)
	require.True(t, ok)
	assert.Equal(t, uint64(16), off2)

	_, ok = rb.push(1000, 1)
	assert.False(t, ok, "a request that exceeds remaining capacity must fail")
}

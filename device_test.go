package tephra_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tephra-gpu/tephra"
	"github.com/tephra-gpu/tephra/swapchain"
	"github.com/tephra-gpu/tephra/vk"
	"github.com/tephra-gpu/tephra/vk/fake"
)

func newTestDevice(t *testing.T) (*tephra.Device, *tephra.Queue) {
	t.Helper()
	driver := fake.New()
	d := tephra.NewDevice(driver, vk.Handle(1), tephra.DefaultDeviceConfig)
	q, err := d.CreateQueue(vk.Handle(1), 0)
	require.NoError(t, err)
	return d, q
}

// S4 — per-queue timeline: consecutive jobs on one queue get strictly
// increasing signal timestamps (§8 invariant 4).
func TestEnqueueJobAssignsIncreasingTimestamps(t *testing.T) {
	d, q := newTestDevice(t)

	j1 := d.CreateJob(q)
	require.NoError(t, d.EnqueueJob(j1))
	j2 := d.CreateJob(q)
	require.NoError(t, d.EnqueueJob(j2))

	assert.Greater(t, j2.Signal().Timestamp, j1.Signal().Timestamp)
	assert.Equal(t, tephra.JobEnqueued, j1.State())
}

// S5 — deferred destruction: a buffer destroyed while work is still
// in-flight is not freed until every queue reaches the recorded
// threshold.
func TestBufferDestroyDefersUntilTimelineReached(t *testing.T) {
	driver := fake.New()
	d := tephra.NewDevice(driver, vk.Handle(1), tephra.DefaultDeviceConfig)
	q, err := d.CreateQueue(vk.Handle(1), 0)
	require.NoError(t, err)

	buf, err := d.CreateBuffer(tephra.BufferSetup{Size: 256, Usage: tephra.UsageStorage, Preference: tephra.PreferenceDevice})
	require.NoError(t, err)

	j := d.CreateJob(q)
	require.NoError(t, d.EnqueueJob(j))
	require.NoError(t, d.SubmitQueuedJobs(q, nil, nil, nil))

	buf.Destroy() // still in-flight: must not free immediately

	sig := j.Signal()
	signalled, err := d.WaitForJobSemaphores([]tephra.JobSemaphore{sig}, true, tephra.Seconds(1))
	require.NoError(t, err)
	assert.True(t, signalled)
	assert.True(t, d.IsJobSemaphoreSignalled(sig))

	require.NoError(t, d.UpdateDeviceProgress())
}

// S6 — swapchain acquire/present round-trip: image count 3, pool 4 pairs.
// Acquiring 4 times without presenting returns 3 distinct indices then a
// fourth zero-timeout acquire returns ok=false.
func TestSwapchainAcquirePresentRoundTrip(t *testing.T) {
	driver := fake.New()
	d := tephra.NewDevice(driver, vk.Handle(1), tephra.DefaultDeviceConfig)
	q, err := d.CreateQueue(vk.Handle(1), 0)
	require.NoError(t, err)

	sc, err := d.CreateSwapchain(3)
	require.NoError(t, err)

	seen := map[uint32]bool{}
	for i := 0; i < 3; i++ {
		acq, ok, err := sc.AcquireNextImage(0)
		require.NoError(t, err)
		require.True(t, ok)
		seen[acq.ImageIndex] = true
	}
	assert.Len(t, seen, 3)

	_, ok, err := sc.AcquireNextImage(0)
	require.NoError(t, err)
	assert.False(t, ok, "fourth acquire with zero timeout must return none")

	statuses, err := d.SubmitPresentImages(q, []*swapchain.Swapchain{sc}, []uint32{firstOf(seen)})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, swapchain.Optimal, statuses[0])

	// the presented pair is back in the free pool, so a fifth acquire
	// (zero timeout) now succeeds using the recycled pair.
	_, ok, err = sc.AcquireNextImage(0)
	require.NoError(t, err)
	assert.True(t, ok)
}

// firstOf is a tiny test helper pulling an arbitrary key out of a set.
func firstOf(m map[uint32]bool) uint32 {
	for k := range m {
		return k
	}
	return 0
}

// S7 — sticky DeviceLost: once any driver call surfaces a device-lost
// result, the Device latches it and every later operation fails with the
// same error without re-touching the driver (§7, §A.2).
func TestDeviceLostLatchesAndShortCircuits(t *testing.T) {
	driver := fake.New()
	d := tephra.NewDevice(driver, vk.Handle(1), tephra.DefaultDeviceConfig)
	_, err := d.CreateQueue(vk.Handle(1), 0)
	require.NoError(t, err)

	driver.FailNextWaitIdle = vk.FromVkResult(-4, "DeviceWaitIdle") // VK_ERROR_DEVICE_LOST

	err = d.WaitForIdle()
	require.Error(t, err)
	var lost *tephra.Error
	require.ErrorAs(t, err, &lost)
	assert.Equal(t, tephra.KindDeviceLost, lost.Kind)

	// a second WaitForIdle would succeed at the driver (FailNextWaitIdle was
	// consumed above), but the latch must short-circuit before reaching it.
	err2 := d.WaitForIdle()
	require.Error(t, err2)
	assert.Same(t, err, err2)

	_, err3 := d.CreateBuffer(tephra.BufferSetup{Size: 256, Usage: tephra.UsageStorage, Preference: tephra.PreferenceDevice})
	require.Error(t, err3)
	assert.Same(t, err, err3)
}

package swapchain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tephra-gpu/tephra/swapchain"
	"github.com/tephra-gpu/tephra/vk"
	"github.com/tephra-gpu/tephra/vk/fake"
)

// presenter adapts a *fake.Driver directly into swapchain.Presenter,
// bypassing any queue-level serialization since these tests only exercise
// the swapchain package's own bookkeeping.
type presenter struct {
	driver *fake.Driver
	device vk.Handle
	queue  vk.Handle
}

func (p presenter) QueuePresent(swapchains []vk.Handle, indices []uint32, waits []vk.Handle) ([]vk.SwapchainStatus, error) {
	return p.driver.QueuePresent(p.device, p.queue, swapchains, indices, waits)
}

func newTestSwapchain(t *testing.T, imageCount int) (*fake.Driver, presenter, *swapchain.Swapchain) {
	t.Helper()
	driver := fake.New()
	device := vk.Handle(1)
	handle, images, err := driver.CreateSwapchain(device, imageCount)
	require.NoError(t, err)
	sc, err := swapchain.New(driver, device, handle, images)
	require.NoError(t, err)
	return driver, presenter{driver: driver, device: device, queue: vk.Handle(2)}, sc
}

// §4.11 S6 — image count 3: three acquires succeed with distinct indices,
// a fourth (zero timeout) fails, presenting one recycles a pair for a
// fifth acquire.
func TestAcquirePresentRoundTrip(t *testing.T) {
	_, pres, sc := newTestSwapchain(t, 3)
	defer sc.Close()

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
	assert.False(t, ok)

	var first uint32
	for k := range seen {
		first = k
		break
	}
	statuses, err := swapchain.Present(pres, []*swapchain.Swapchain{sc}, []uint32{first})
	require.NoError(t, err)
	assert.Equal(t, []swapchain.Status{swapchain.Optimal}, statuses)

	_, ok, err = sc.AcquireNextImage(0)
	require.NoError(t, err)
	assert.True(t, ok)
}

// §4.11/§4.12 — status is sticky: once Suboptimal is observed, a later
// Optimal result from the driver must not move it back.
func TestStatusEscalationIsSticky(t *testing.T) {
	driver, _, sc := newTestSwapchain(t, 2)
	defer sc.Close()

	driver.FailNextAcquire[sc.Handle()] = vk.Suboptimal
	acq, ok, err := sc.AcquireNextImage(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, swapchain.Suboptimal, sc.Status())

	_, ok, err = sc.AcquireNextImage(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, swapchain.Suboptimal, sc.Status(), "status must not regress to Optimal")
	_ = acq
}

// §4.12 — OutOfDate is sticky and terminal: AcquireNextImage reports the
// error and the status never moves past it.
func TestOutOfDateIsTerminalForAcquire(t *testing.T) {
	driver, _, sc := newTestSwapchain(t, 2)
	defer sc.Close()

	driver.FailNextAcquire[sc.Handle()] = vk.OutOfDate
	_, ok, err := sc.AcquireNextImage(0)
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Equal(t, swapchain.OutOfDate, sc.Status())
}

// Retire prevents further acquires but does not disturb already-acquired
// images (§4.12).
func TestRetirePreventsFurtherAcquire(t *testing.T) {
	_, _, sc := newTestSwapchain(t, 2)
	defer sc.Close()

	sc.Retire()
	_, ok, err := sc.AcquireNextImage(0)
	assert.False(t, ok)
	assert.Error(t, err)
}

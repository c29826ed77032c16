package tephra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tephra-gpu/tephra/vk"
	"github.com/tephra-gpu/tephra/vk/fake"
)

func newTestDescriptorDevice(t *testing.T) *Device {
	t.Helper()
	return NewDevice(fake.New(), 1, DefaultDeviceConfig)
}

// §4.5 — consecutive same-layout requests coalesce into one
// AllocateDescriptorSets call; a different layout starts a new batch.
func TestDescriptorAllocatorCoalescesConsecutiveSameLayoutRuns(t *testing.T) {
	d := newTestDescriptorDevice(t)
	a := newDescriptorAllocator(d)

	layoutA := vk.Handle(1)
	layoutB := vk.Handle(2)
	j := &Job{
		descriptorRequests: []pendingSetRequest{
			{layout: layoutA, count: 2},
			{layout: layoutA, count: 3},
			{layout: layoutB, count: 1},
		},
	}

	require.NoError(t, a.allocatePrepared(j))

	assert.Len(t, j.descriptorRequests[0].cells, 2)
	assert.Len(t, j.descriptorRequests[1].cells, 3)
	assert.Len(t, j.descriptorRequests[2].cells, 1)
}

// §4.5 — descriptor sets are returned to the pool (and capacity released)
// when a job's sets are released.
func TestDescriptorAllocatorReleaseJobSetsFreesCapacity(t *testing.T) {
	d := newTestDescriptorDevice(t)
	a := newDescriptorAllocator(d)

	j := &Job{descriptorRequests: []pendingSetRequest{{layout: vk.Handle(1), count: 2}}}
	require.NoError(t, a.allocatePrepared(j))
	require.Len(t, j.descriptorRequests[0].cells, 2)

	a.releaseJobSets(j)

	// capacity is fully returned: a request for the whole pool must now
	// succeed without blocking.
	j2 := &Job{descriptorRequests: []pendingSetRequest{{layout: vk.Handle(1), count: descriptorPoolMaxSets}}}
	require.NoError(t, a.allocatePrepared(j2))
	assert.Len(t, j2.descriptorRequests[0].cells, descriptorPoolMaxSets)
}

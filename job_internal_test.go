package tephra

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tephra-gpu/tephra/vk/fake"
)

// §4.6 — a job-local buffer's usage range grows to cover every command
// index that references it, and ignores commands that don't.
func TestJobTouchUsageCoversReferencingCommandsOnly(t *testing.T) {
	d := NewDevice(fake.New(), 1, DefaultDeviceConfig)
	q, err := d.CreateQueue(1, 0)
	assert.NoError(t, err)
	j := d.CreateJob(q)

	buf := j.AllocateLocalBuffer(BufferSetup{Size: 64, Usage: UsageStorage})
	view := buf.View(0, 64)

	j.DebugLabel("start")  // index 0, no reference
	j.ClearBuffer(view)    // index 1
	j.DebugLabel("middle") // index 2, no reference
	j.DiscardBuffer(view)  // index 3

	assert.Equal(t, 1, j.localBuffers[0].usage.First)
	assert.Equal(t, 3, j.localBuffers[0].usage.Last)
	assert.Len(t, j.commands, 4)
}

// a request never referenced by any command keeps its sentinel (-1, -1)
// usage range.
func TestJobTouchUsageUnreferencedStaysSentinel(t *testing.T) {
	d := NewDevice(fake.New(), 1, DefaultDeviceConfig)
	q, err := d.CreateQueue(1, 0)
	assert.NoError(t, err)
	j := d.CreateJob(q)

	j.AllocateLocalBuffer(BufferSetup{Size: 64, Usage: UsageStorage})

	assert.Equal(t, -1, j.localBuffers[0].usage.First)
	assert.Equal(t, -1, j.localBuffers[0].usage.Last)
}

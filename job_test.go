package tephra_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tephra-gpu/tephra"
	"github.com/tephra-gpu/tephra/vk"
)

// §4.6 — a job records a mixed stream of commands referencing job-local
// buffers and still enqueues cleanly.
func TestJobRecordsCommandsAgainstLocalBuffer(t *testing.T) {
	d, q := newTestDevice(t)
	j := d.CreateJob(q)

	buf := j.AllocateLocalBuffer(tephra.BufferSetup{Size: 64, Usage: tephra.UsageStorage})
	view := buf.View(0, 64)

	j.DebugLabel("start")
	j.ClearBuffer(view)
	j.DebugLabel("middle")
	j.DiscardBuffer(view)

	require.NoError(t, d.EnqueueJob(j))
	assert.Equal(t, tephra.JobEnqueued, j.State())
}

// §4.7 — a released job body is handed back out on the next CreateJob,
// with a fresh state.
func TestResourcePoolReusesReleasedJobBody(t *testing.T) {
	d, q := newTestDevice(t)

	j1 := d.CreateJob(q)
	require.NoError(t, d.EnqueueJob(j1))
	require.NoError(t, d.SubmitQueuedJobs(q, nil, nil, nil))

	sig := j1.Signal()
	signalled, err := d.WaitForJobSemaphores([]tephra.JobSemaphore{sig}, true, tephra.Seconds(1))
	require.NoError(t, err)
	require.True(t, signalled)
	require.NoError(t, d.UpdateDeviceProgress())
	assert.Equal(t, tephra.JobSignalled, j1.State())

	j2 := d.CreateJob(q)
	assert.Same(t, j1, j2)
	assert.Equal(t, tephra.JobRecording, j2.State())
}

// §4.5 — a descriptor set requested on a job resolves to a nonzero handle
// only once the job has been enqueued.
func TestJobDescriptorSetResolvesAfterEnqueue(t *testing.T) {
	d, q := newTestDevice(t)
	j := d.CreateJob(q)

	view := j.RequestDescriptorSet(vk.Handle(1), 1, "test-set")
	assert.Equal(t, vk.Handle(0), view.Handle(), "unresolved before enqueue")

	require.NoError(t, d.EnqueueJob(j))
	assert.NotEqual(t, vk.Handle(0), view.Handle(), "resolved after enqueue")
}

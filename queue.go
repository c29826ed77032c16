package tephra

import (
	"sync"

	"github.com/tephra-gpu/tephra/vk"
)

// Queue is a logical device queue (§5: "not internally synchronized").
// Logical Queues of the same queue family share one physicalMu mutex, so
// callers' "different queue" assumption still holds for the underlying
// submit/present calls.
//
// Grounded on vgpu/renderframe.go's SubmitRender, which builds one
// vk.SubmitInfo per frame; generalized here to N jobs flattened into one
// submit call per §4.10.
type Queue struct {
	device     *Device
	index      int // timeline queue index
	handle     vk.Handle // underlying driver queue handle, for QueueSubmit
	timelineSemaphore vk.Handle
	family     uint32
	physicalMu *sync.Mutex

	mu      sync.Mutex
	pending []*Job
}

func newQueue(d *Device, handle, timelineSemaphore vk.Handle, family uint32, physicalMu *sync.Mutex) *Queue {
	return &Queue{device: d, handle: handle, timelineSemaphore: timelineSemaphore, family: family, physicalMu: physicalMu}
}

// enqueueJob assigns the job's signal timestamp, runs its resource
// allocation pass, installs lifeguard-release callbacks and hands it to
// this queue's pending list (C12's enqueue_job, routed through C10).
func (q *Queue) enqueueJob(j *Job) error {
	if err := q.device.checkLost(); err != nil {
		return err
	}
	if j.state != JobRecording {
		return invalidArgument("Queue.enqueueJob", "job is not in Recording state")
	}

	ts := q.device.timeline.assignNextTimestamp(q.index)
	j.signal = JobSemaphore{Queue: q, Timestamp: ts}
	signalThreshold := queueTimestamps{q.index: ts}

	if err := q.device.pools[q.index].buffers.allocateForJob(toBufferPtrs(j.localBuffers), signalThreshold); err != nil {
		return err
	}
	if err := q.device.pools[q.index].images.allocateForJob(toImagePtrs(j.localImages), signalThreshold); err != nil {
		return err
	}
	q.device.pools[q.index].preinit.finalizeJob(int64(j.id))
	if err := q.device.pools[q.index].descriptors.allocatePrepared(j); err != nil {
		return err
	}

	q.device.timeline.addCleanupCallback(signalThreshold, func() {
		q.device.pools[q.index].preinit.freeJob(j.preinitAllocs)
		q.device.pools[q.index].descriptors.releaseJobSets(j)
		for _, pool := range j.commandPools {
			q.device.driver.DestroyCommandPool(q.device.handle, pool)
		}
		j.state = JobSignalled
		q.device.pools[q.index].releaseJob(j)
	})

	j.state = JobEnqueued
	q.mu.Lock()
	q.pending = append(q.pending, j)
	q.mu.Unlock()
	return nil
}

// QueuePresent submits a present batch under this queue's physical-queue
// mutex, satisfying swapchain.Presenter (C11, routed through C10 per §5's
// "different queue" serialization contract).
func (q *Queue) QueuePresent(swapchains []vk.Handle, indices []uint32, waits []vk.Handle) ([]vk.SwapchainStatus, error) {
	q.physicalMu.Lock()
	statuses, err := q.device.driver.QueuePresent(q.device.handle, q.handle, swapchains, indices, waits)
	q.physicalMu.Unlock()
	if err != nil {
		return statuses, q.device.fromDriverErr("Queue.QueuePresent", err)
	}
	return statuses, nil
}

func toBufferPtrs(bufs []JobLocalBuffer) []*JobLocalBuffer {
	out := make([]*JobLocalBuffer, len(bufs))
	for i := range bufs {
		out[i] = &bufs[i]
	}
	return out
}

func toImagePtrs(imgs []JobLocalImage) []*JobLocalImage {
	out := make([]*JobLocalImage, len(imgs))
	for i := range imgs {
		out[i] = &imgs[i]
	}
	return out
}

// submitQueuedJobs implements §4.10: runs every job's inline callbacks in
// order, flattens submit entries, and calls the underlying queue submit
// once under the physical queue's mutex.
func (q *Queue) submitQueuedJobs(lastToSubmit *Job, extraWaits []JobSemaphore, extraWaitsExternal []ExternalSemaphore) error {
	if err := q.device.checkLost(); err != nil {
		return err
	}
	q.mu.Lock()
	n := len(q.pending)
	if lastToSubmit != nil {
		for i, j := range q.pending {
			if j == lastToSubmit {
				n = i + 1
				break
			}
		}
	}
	batch := q.pending[:n]
	q.pending = q.pending[n:]
	q.mu.Unlock()

	entries := make([]vk.SubmitEntry, 0, len(batch))
	for i, j := range batch {
		for _, cmd := range j.commands {
			if cmd.inline != nil {
				cmd.inline()
			}
		}
		j.state = JobSubmitted

		var e vk.SubmitEntry
		if i == 0 {
			for _, w := range extraWaits {
				e.Waits = append(e.Waits, vk.SubmitWait{Semaphore: w.Queue.timelineSemaphore, Value: w.Timestamp})
			}
			for _, w := range extraWaitsExternal {
				e.Waits = append(e.Waits, vk.SubmitWait{Semaphore: w.Handle, Value: w.Value})
			}
		}
		for _, w := range j.jobSemaphoreWaits {
			e.Waits = append(e.Waits, vk.SubmitWait{Semaphore: w.Queue.timelineSemaphore, Value: w.Timestamp})
		}
		for _, w := range j.externalWaits {
			e.Waits = append(e.Waits, vk.SubmitWait{Semaphore: w.Handle, Value: w.Value})
		}
		e.Signals = append(e.Signals, vk.SubmitSignal{Semaphore: q.timelineSemaphore, Value: j.signal.Timestamp})
		for _, s := range j.externalSignals {
			e.Signals = append(e.Signals, vk.SubmitSignal{Semaphore: s.Handle, Value: s.Value})
		}
		entries = append(entries, e)
	}

	if len(entries) == 0 {
		return nil
	}

	q.physicalMu.Lock()
	err := q.device.driver.QueueSubmit(q.device.handle, q.handle, entries, 0)
	q.physicalMu.Unlock()
	if err != nil {
		return q.device.fromDriverErr("Queue.submitQueuedJobs", err)
	}
	return nil
}

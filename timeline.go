package tephra

import (
	"sync"

	"github.com/tephra-gpu/tephra/vk"
)

// timelineManager tracks one monotonic counter per logical queue,
// realized as a driver timeline semaphore, plus the cleanup callbacks
// registered against those counters (§3 "Timeline", §4.8).
//
// Grounded on vgpu/renderframe.go's WaitForFences/ResetFences pattern,
// generalized from a single per-frame fence to one timeline semaphore
// per queue, counting monotonically instead of resetting each frame.
type timelineManager struct {
	device *Device

	mu        sync.RWMutex
	queues    []*timelineQueue
	callbacks []cleanupCallback
}

type timelineQueue struct {
	semaphore vk.Handle
	assigned  uint64 // last timestamp handed out by assignNextTimestamp
	reached   uint64 // last value update() observed from the driver
}

type cleanupCallback struct {
	threshold queueTimestamps
	fn        func()
	done      bool
}

func newTimelineManager(d *Device) *timelineManager {
	return &timelineManager{device: d}
}

// addQueue registers a new logical queue backed by sem, returning its
// queue index for use in JobSemaphore/queueTimestamps.
func (t *timelineManager) addQueue(sem vk.Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queues = append(t.queues, &timelineQueue{semaphore: sem})
	return len(t.queues) - 1
}

// assignNextTimestamp increments and returns queue q's counter. Per
// invariant 4 (§8), the returned value is strictly greater than any
// value previously assigned to q.
func (t *timelineManager) assignNextTimestamp(q int) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queues[q].assigned++
	return t.queues[q].assigned
}

// lastAssigned returns the most recently handed-out timestamp for q.
func (t *timelineManager) lastAssigned(q int) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.queues[q].assigned
}

// lastReached returns the last value update() observed for q; never
// decreases (§3 invariant).
func (t *timelineManager) lastReached(q int) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.queues[q].reached
}

// update polls every queue's counter semaphore and runs cleanup
// callbacks whose threshold is now fully reached, in registration order
// (§4.8, §5).
func (t *timelineManager) update() error {
	t.mu.Lock()
	for _, q := range t.queues {
		v, err := t.device.driver.SemaphoreCounterValue(t.device.handle, q.semaphore)
		if err != nil {
			t.mu.Unlock()
			return t.device.fromDriverErr("Timeline.update", err)
		}
		if v > q.reached {
			q.reached = v
		}
	}
	reached := t.reachedLocked
	var ready []func()
	for i := range t.callbacks {
		cb := &t.callbacks[i]
		if cb.done {
			continue
		}
		if cb.threshold.reached(reached) {
			cb.done = true
			ready = append(ready, cb.fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range ready {
		fn()
	}
	t.pruneDone()
	return nil
}

func (t *timelineManager) reachedLocked(q int) uint64 {
	return t.queues[q].reached
}

func (t *timelineManager) pruneDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.callbacks[:0]
	for _, cb := range t.callbacks {
		if !cb.done {
			out = append(out, cb)
		}
	}
	t.callbacks = out
}

// addCleanupCallback registers fn to run once every queue in threshold
// has reached its recorded value, in registration order relative to
// other callbacks (§4.12 add_cleanup_callback, §5 ordering guarantee).
func (t *timelineManager) addCleanupCallback(threshold queueTimestamps, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cleanupCallback{threshold: threshold, fn: fn})
}

// wait reduces the input by queue (max when waitAll, min when not) then
// blocks on the corresponding counter semaphores, per §4.8. Indefinite
// timeouts loop across spurious wake-ups; finite timeouts return false
// on expiry without re-polling.
func (t *timelineManager) wait(queues []int, values []uint64, waitAll bool, timeout Timeout) (bool, error) {
	t.mu.RLock()
	sems := make([]vk.Handle, len(queues))
	for i, q := range queues {
		sems[i] = t.queues[q].semaphore
	}
	t.mu.RUnlock()

	if timeout.IsIndefinite() {
		for {
			ok, err := t.device.driver.WaitSemaphores(t.device.handle, sems, values, waitAll, IndefiniteNs)
			if err != nil {
				return false, t.device.fromDriverErr("Timeline.wait", err)
			}
			if ok {
				t.update()
				return true, nil
			}
		}
	}
	ok, err := t.device.driver.WaitSemaphores(t.device.handle, sems, values, waitAll, timeout.Nanoseconds())
	if err != nil {
		return false, t.device.fromDriverErr("Timeline.wait", err)
	}
	if ok {
		t.update()
	}
	return ok, nil
}

// latestTrackedTimestamp snapshots the most recently assigned value for
// every registered queue, used as a lifeguard's destruction threshold
// (§4.9): the handle cannot be freed before every queue whose timeline
// could have referenced it reaches that snapshot.
func (t *timelineManager) latestTrackedTimestamp() queueTimestamps {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(queueTimestamps, len(t.queues))
	for i, q := range t.queues {
		out[i] = q.assigned
	}
	return out
}

// allIdle reports whether every queue has reached its last assigned
// timestamp — used by the lifeguard fast path (§4.9) to destroy
// immediately rather than enqueueing.
func (t *timelineManager) allIdle() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, q := range t.queues {
		if q.reached < q.assigned {
			return false
		}
	}
	return true
}

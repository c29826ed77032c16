package tephra

import "sync"

// ResourcePool owns a queue's job-local allocators (C2-C5) and a pool of
// reusable Job bodies (C7). One ResourcePool and every Job created from
// it form a single synchronization domain: at most one thread may be
// inside any operation on that domain at a time (§5).
//
// Grounded on vgpu/system.go's System struct owning Memory/Vars/Pipelines
// as one cohesive unit; the release-queue mutex follows the teacher's
// general one-mutex-per-shared-resource style seen across the vgpu
// engine layer.
type ResourcePool struct {
	device *Device
	queue  int

	buffers     *localBufferAllocator
	images      *localImageAllocator
	preinit     *preinitAllocator
	descriptors *descriptorAllocator

	mu       sync.Mutex
	nextJob  uint64
	free     []*Job
	toRelease []*Job // release queue, drained on the next acquire (§4.7)
}

// newResourcePool constructs a pool bound to a logical queue, with the
// suballocation/aliasing options the device config specifies.
func newResourcePool(d *Device, queue int) *ResourcePool {
	cfg := d.config
	return &ResourcePool{
		device:      d,
		queue:       queue,
		buffers:     newLocalBufferAllocator(d, cfg.EnableBufferSuballocation),
		images:      newLocalImageAllocator(d, cfg.EnableImageSuballocation, cfg.AliasImagesByFormatClass),
		preinit:     newPreinitAllocator(d),
		descriptors: newDescriptorAllocator(d),
	}
}

// CreateJob acquires a Job, reusing a released body if one is available
// (draining the release queue first), per §4.7.
func (p *ResourcePool) CreateJob() *Job {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.drainReleaseQueueLocked()

	var j *Job
	if n := len(p.free); n > 0 {
		j = p.free[n-1]
		p.free = p.free[:n-1]
		*j = Job{pool: p}
	} else {
		j = &Job{pool: p}
	}
	p.nextJob++
	j.id = p.nextJob
	j.state = JobRecording
	j.queue = p.queue
	return j
}

// releaseJob returns a completed job's body to the pool for reuse,
// thread-safely via the lock-protected release queue (§4.7).
func (p *ResourcePool) releaseJob(j *Job) {
	p.mu.Lock()
	p.toRelease = append(p.toRelease, j)
	p.mu.Unlock()
}

func (p *ResourcePool) drainReleaseQueueLocked() {
	if len(p.toRelease) == 0 {
		return
	}
	p.free = append(p.free, p.toRelease...)
	p.toRelease = nil
}

// trim forwards to C2 and C3 (§4.7); the C4 preinit rings are not
// trimmed.
func (p *ResourcePool) trim(reached func(queue int) uint64) {
	p.buffers.trim(reached)
	p.images.trim(reached)
}

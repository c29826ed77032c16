package tephra

import (
	"sort"

	"github.com/tephra-gpu/tephra/alias"
)

// JobLocalBuffer is a transient buffer whose backing storage is assigned
// only once its owning job is enqueued (§3 "Job-local buffer").
type JobLocalBuffer struct {
	setup   BufferSetup
	usage   UsageRange
	backing *Buffer // nil until enqueue
	backingOffset uint64

	job   *Job
	index int

	pendingViews []func(b *Buffer, offset uint64)
}

// UsageRange is the (first_use_index, last_use_index) interval over a
// job's command stream (§3).
type UsageRange = alias.UsageRange

// localBufferAllocator owns one job's set of job-local buffer requests
// and the shared pool of backing buffers they alias into (C2).
//
// Grounded on vgpu/memory.go's AllocHostStorageBuff value bin-packing,
// generalized from size-only packing to the usage-range aliasing C1
// provides.
type localBufferAllocator struct {
	device        *Device
	suballocation bool

	backings []*localBufferBacking
}

type localBufferBacking struct {
	buffer   *Buffer
	packer   *alias.Allocator
	lastUsed queueTimestamps
}

// leftover is a job-local buffer request that didn't fit any existing
// backing and needs a freshly created one.
type leftover struct {
	req   *JobLocalBuffer
	align uint64
}

func newLocalBufferAllocator(d *Device, suballocation bool) *localBufferAllocator {
	return &localBufferAllocator{device: d, suballocation: suballocation}
}

// allocateForJob assigns backing buffers to every request in reqs,
// mutating each JobLocalBuffer's backing/backingOffset fields in place,
// per §4.2's algorithm.
func (a *localBufferAllocator) allocateForJob(reqs []*JobLocalBuffer, signal queueTimestamps) error {
	if !a.suballocation {
		return a.allocateOneToOne(reqs, signal)
	}

	order := make([]int, len(reqs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return reqs[order[i]].setup.Size > reqs[order[j]].setup.Size })

	var leftovers []leftover

	for _, i := range order {
		req := reqs[i]
		align := alignmentFor(a.device, req.setup.Usage, true)
		placed := false
		for _, bk := range a.backings {
			bi, off := bk.packer.Allocate(int(req.setup.Size), req.usage, int(align))
			if bi != alias.NotFit {
				req.backing = bk.buffer
				req.backingOffset = uint64(off)
				bk.lastUsed = signal
				placed = true
				break
			}
		}
		if !placed {
			leftovers = append(leftovers, leftover{req: req, align: align})
		}
	}

	if len(leftovers) > 0 {
		var total uint64
		for _, l := range leftovers {
			total += l.req.setup.Size
		}
		size := a.device.config.Overallocation.Size(total, a.poolSize())
		buf, err := a.device.createBackingBuffer(size, unionUsage(leftovers), PreferenceDevice, "joblocal-buffer-backing")
		if err != nil {
			return err
		}
		bk := &localBufferBacking{buffer: buf, packer: alias.New([]int{int(size)}), lastUsed: signal}
		a.backings = append(a.backings, bk)
		for _, l := range leftovers {
			bi, off := bk.packer.Allocate(int(l.req.setup.Size), l.req.usage, int(l.align))
			if bi == alias.NotFit {
				return invalidArgument("localBufferAllocator.allocateForJob", "leftover does not fit its own newly created backing")
			}
			l.req.backing = bk.buffer
			l.req.backingOffset = uint64(off)
		}
	}
	return nil
}

func unionUsage(leftovers []leftover) BufferUsage {
	var u BufferUsage
	for _, l := range leftovers {
		u |= l.req.setup.Usage
	}
	return u
}

func (a *localBufferAllocator) poolSize() uint64 {
	var total uint64
	for _, bk := range a.backings {
		total += bk.buffer.Size()
	}
	return total
}

// allocateOneToOne is the suballocation-disabled path: one backing
// buffer per request, reusing the largest-first existing backing whose
// size suffices (§4.2).
func (a *localBufferAllocator) allocateOneToOne(reqs []*JobLocalBuffer, signal queueTimestamps) error {
	sort.Slice(a.backings, func(i, j int) bool { return a.backings[i].buffer.Size() > a.backings[j].buffer.Size() })
	used := make(map[*localBufferBacking]bool)
	for _, req := range reqs {
		var reuse *localBufferBacking
		for _, bk := range a.backings {
			if !used[bk] && bk.buffer.Size() >= req.setup.Size {
				reuse = bk
				break
			}
		}
		if reuse != nil {
			req.backing = reuse.buffer
			req.backingOffset = 0
			reuse.lastUsed = signal
			used[reuse] = true
			continue
		}
		size := a.device.config.Overallocation.Size(req.setup.Size, a.poolSize())
		buf, err := a.device.createBackingBuffer(size, req.setup.Usage, PreferenceDevice, "joblocal-buffer-backing")
		if err != nil {
			return err
		}
		bk := &localBufferBacking{buffer: buf, lastUsed: signal}
		a.backings = append(a.backings, bk)
		used[bk] = true
		req.backing = buf
		req.backingOffset = 0
	}
	return nil
}

// trim removes and destroys any backing buffer whose last-used timestamps
// have all been reached according to reached, per §4.2 "Trim".
func (a *localBufferAllocator) trim(reached func(queue int) uint64) {
	kept := a.backings[:0]
	for _, bk := range a.backings {
		if bk.lastUsed.reached(reached) {
			bk.buffer.Destroy()
			continue
		}
		kept = append(kept, bk)
	}
	a.backings = kept
}

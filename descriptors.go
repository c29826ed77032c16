package tephra

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/tephra-gpu/tephra/vk"
)

// DescriptorKind tags a future descriptor's payload variant (§4.5,
// §9 "Variant types").
type DescriptorKind int

const (
	DescriptorNone DescriptorKind = iota
	DescriptorSampler
	DescriptorImage
	DescriptorCombinedImageSampler
	DescriptorBuffer
	DescriptorTexelBufferView
	DescriptorAccelerationStructure
)

// futureDescriptor is one of the five carrier payloads a descriptor-set
// write can resolve to, possibly referencing an unresolved job-local
// view (§4.5, §9 tagged union over five carrier payloads).
type futureDescriptor struct {
	kind DescriptorKind

	sampler vk.Handle
	image   *ImageView
	buffer  *BufferView
	as      vk.Handle
}

func (fd futureDescriptor) resolve() (resolvedDescriptor, error) {
	switch fd.kind {
	case DescriptorNone:
		return resolvedDescriptor{}, nil
	case DescriptorSampler:
		return resolvedDescriptor{kind: fd.kind, handle: fd.sampler}, nil
	case DescriptorImage, DescriptorCombinedImageSampler:
		h, layer, err := fd.image.resolve()
		if err != nil {
			return resolvedDescriptor{}, err
		}
		return resolvedDescriptor{kind: fd.kind, handle: h, baseLayer: layer, sampler: fd.sampler}, nil
	case DescriptorBuffer, DescriptorTexelBufferView:
		h, off, err := fd.buffer.resolve()
		if err != nil {
			return resolvedDescriptor{}, err
		}
		return resolvedDescriptor{kind: fd.kind, handle: h, offset: off}, nil
	case DescriptorAccelerationStructure:
		return resolvedDescriptor{kind: fd.kind, handle: fd.as}, nil
	default:
		return resolvedDescriptor{}, invalidArgument("futureDescriptor.resolve", "unknown descriptor kind")
	}
}

type resolvedDescriptor struct {
	kind      DescriptorKind
	handle    vk.Handle
	sampler   vk.Handle
	offset    uint64
	baseLayer uint32
}

// pendingSetRequest is one requested descriptor set, plus the slice of
// the job's flat future-descriptor list it owns (§4.5).
type pendingSetRequest struct {
	layout    vk.Handle
	count     int
	debugName string

	firstDescriptor int
	numDescriptors  int

	// cells is the stable, caller-visible handle storage the job's
	// DescriptorSetView values point into; never reallocated after
	// creation (§9 "Cyclic ownership" — views are indices, not pointers,
	// but the cells backing a request are fixed-size from the start so a
	// *DescriptorSetView is safe to hand out before resolution).
	cells []vk.Handle

	// resolved holds this request's slice of the job's resolved future
	// descriptors (§4.5 step 3), kept so allocateBatch doesn't throw the
	// resolution result away; writing the per-binding contents into the
	// allocated sets still requires the shader reflection / layout
	// binding map this package doesn't carry (out of scope).
	resolved []resolvedDescriptor
}

// DescriptorSetView is a caller-visible handle to a descriptor set that
// may not yet have underlying allocations (§3 View).
type DescriptorSetView struct {
	job *Job
	req int
}

// Handle returns the concrete descriptor set handle once the owning job
// has been enqueued and allocatePrepared has run; zero beforehand.
func (v DescriptorSetView) Handle() vk.Handle {
	req := &v.job.descriptorRequests[v.req]
	if len(req.cells) == 0 {
		return 0
	}
	return req.cells[0]
}

// descriptorAllocator batches a job's pending descriptor-set requests by
// layout at enqueue time (C5).
//
// Grounded on vgpu/system.go's SetVals, which builds vk.WriteDescriptorSet
// batches from named variables; generalized here to job-local "future"
// descriptors that may reference resources not yet backed by a concrete
// handle until enqueue. The pool's capacity is enforced by a
// golang.org/x/sync/semaphore.Weighted rather than letting the
// underlying vkAllocateDescriptorSets call fail on exhaustion — cheaper
// to back-pressure callers than to retry a failed allocation.
type descriptorAllocator struct {
	device *Device

	pool     vk.Handle
	maxSets  uint32
	capacity *semaphore.Weighted
}

// descriptorPoolMaxSets bounds one resource pool's descriptor-set
// capacity; large enough for typical per-frame job counts without
// growing unboundedly, matching the fixed-capacity-pool assumption in
// §4.5 ("batches allocation by layout").
const descriptorPoolMaxSets = 4096

func newDescriptorAllocator(d *Device) *descriptorAllocator {
	return &descriptorAllocator{device: d, maxSets: descriptorPoolMaxSets, capacity: semaphore.NewWeighted(descriptorPoolMaxSets)}
}

func (a *descriptorAllocator) ensurePool() error {
	if a.pool != 0 {
		return nil
	}
	pool, err := a.device.driver.CreateDescriptorPool(a.device.handle, a.maxSets)
	if err != nil {
		return a.device.fromDriverErr("descriptorAllocator.ensurePool", err)
	}
	a.pool = pool
	return nil
}

// allocatePrepared implements §4.5's operation: resolve every future
// descriptor, then coalesce consecutive same-layout requests into one
// batch call into the descriptor pool, writing resolved handles into
// each request's stable cells.
func (a *descriptorAllocator) allocatePrepared(j *Job) error {
	if err := a.ensurePool(); err != nil {
		return err
	}
	resolved := make([]resolvedDescriptor, len(j.futureDescriptors))
	for i, fd := range j.futureDescriptors {
		r, err := fd.resolve()
		if err != nil {
			return err
		}
		resolved[i] = r
	}

	reqs := j.descriptorRequests
	i := 0
	for i < len(reqs) {
		batchEnd := i + 1
		for batchEnd < len(reqs) && reqs[batchEnd].layout == reqs[i].layout {
			batchEnd++
		}
		if err := a.allocateBatch(reqs[i:batchEnd], resolved); err != nil {
			return err
		}
		i = batchEnd
	}
	return nil
}

func (a *descriptorAllocator) allocateBatch(batch []pendingSetRequest, resolved []resolvedDescriptor) error {
	total := 0
	for _, req := range batch {
		total += req.count
	}
	n := int64(total)
	if err := a.capacity.Acquire(context.Background(), n); err != nil {
		return a.device.fromDriverErr("descriptorAllocator.allocateBatch", err)
	}
	sets, err := a.device.driver.AllocateDescriptorSets(a.device.handle, a.pool, batch[0].layout, total)
	if err != nil {
		a.capacity.Release(n)
		return a.device.fromDriverErr("descriptorAllocator.allocateBatch", err)
	}
	for bi := range batch {
		req := &batch[bi]
		req.cells = sets[:req.count:req.count]
		sets = sets[req.count:]
		if req.debugName != "" {
			for _, h := range req.cells {
				a.device.driver.SetDebugName(a.device.handle, h, req.debugName)
			}
		}
		if req.numDescriptors > 0 {
			req.resolved = resolved[req.firstDescriptor : req.firstDescriptor+req.numDescriptors]
		}
	}
	return nil
}

// releaseJobSets returns every descriptor set a job holds back to the
// descriptor pool, per §4.5 "Descriptor sets are returned to the
// descriptor pool when the job completes."
func (a *descriptorAllocator) releaseJobSets(j *Job) {
	for _, req := range j.descriptorRequests {
		if len(req.cells) == 0 {
			continue
		}
		a.device.driver.FreeDescriptorSets(a.device.handle, a.pool, req.cells)
		a.capacity.Release(int64(len(req.cells)))
	}
}

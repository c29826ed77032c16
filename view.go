package tephra

import "github.com/tephra-gpu/tephra/vk"

// BufferView is a non-owning reference to a sub-range of a Buffer or
// JobLocalBuffer (§3). Resolving a job-local view to a concrete handle
// is only valid once the owning job has been enqueued.
type BufferView struct {
	// persistent path
	buffer *Buffer
	// job-local path: localIndex is an index into the owning Job's
	// localBuffers slice, never a raw pointer, so the view survives the
	// slice growing (§9 "Cyclic ownership").
	job        *Job
	localIndex int

	offset uint64
	size   uint64
	format Format
}

// View returns a view over [offset, offset+size) of a persistent Buffer
// (§3 View).
func (b *Buffer) View(offset, size uint64) BufferView {
	return BufferView{buffer: b, offset: offset, size: size}
}

// View returns a view over [offset, offset+size) of a job-local buffer
// (§3 View). Valid to call before the owning job is enqueued; resolving
// the view to a concrete handle is not.
func (lb *JobLocalBuffer) View(offset, size uint64) BufferView {
	return BufferView{job: lb.job, localIndex: lb.index, offset: offset, size: size}
}

// resolve returns the concrete driver handle and the absolute byte
// offset this view refers to. Returns an error if the job-local resource
// has no underlying assignment yet (not enqueued).
func (v BufferView) resolve() (vk.Handle, uint64, error) {
	if v.job == nil {
		return v.buffer.Handle(), v.offset, nil
	}
	lb := &v.job.localBuffers[v.localIndex]
	if lb.backing == nil {
		return 0, 0, invalidArgument("BufferView.resolve", "job-local buffer not yet assigned (job not enqueued)")
	}
	return lb.backing.Handle(), lb.backingOffset + v.offset, nil
}

// ImageView is a non-owning reference to a sub-range of an Image or
// JobLocalImage, carrying its own reinterpretation format (§3). It has
// no component swizzle.
type ImageView struct {
	image *Image

	job        *Job
	localIndex int

	baseMip, mipCount     uint32
	baseLayer, layerCount uint32
	format                Format
}

// View returns a view over a persistent Image's given mip/layer range and
// reinterpretation format (§3 View).
func (img *Image) View(baseMip, mipCount, baseLayer, layerCount uint32, format Format) ImageView {
	return ImageView{image: img, baseMip: baseMip, mipCount: mipCount, baseLayer: baseLayer, layerCount: layerCount, format: format}
}

// View returns a view over a job-local image's given mip/layer range and
// reinterpretation format.
func (li *JobLocalImage) View(baseMip, mipCount, baseLayer, layerCount uint32, format Format) ImageView {
	return ImageView{job: li.job, localIndex: li.index, baseMip: baseMip, mipCount: mipCount, baseLayer: baseLayer, layerCount: layerCount, format: format}
}

func (v ImageView) resolve() (vk.Handle, uint32, error) {
	if v.job == nil {
		return v.image.Handle(), v.baseLayer, nil
	}
	li := &v.job.localImages[v.localIndex]
	if li.backing == nil {
		return 0, 0, invalidArgument("ImageView.resolve", "job-local image not yet assigned (job not enqueued)")
	}
	return li.backing.Handle(), li.baseArrayLayer + v.baseLayer, nil
}

package tephra

import "github.com/tephra-gpu/tephra/vk"

// JobState mirrors §3's Job state machine.
type JobState int

const (
	JobRecording JobState = iota
	JobEnqueued
	JobSubmitted
	JobSignalled
)

func (s JobState) String() string {
	switch s {
	case JobRecording:
		return "recording"
	case JobEnqueued:
		return "enqueued"
	case JobSubmitted:
		return "submitted"
	default:
		return "signalled"
	}
}

// CommandKind tags one entry in a Job's command stream (§4.6).
type CommandKind int

const (
	CmdCopy CommandKind = iota
	CmdClear
	CmdDiscard
	CmdExport
	CmdBuildAccelerationStructure
	CmdExecuteComputePass
	CmdExecuteRenderPass
	CmdDebugLabel
	CmdTimestampWrite
	CmdImportExternal
)

// command is one entry in the job's append-only command list (§4.6).
// Inline compute/render-pass callbacks are stored and invoked later, at
// submit time, per §4.10 step 1a.
type command struct {
	kind CommandKind

	// resources referenced by this command, for usage-range tracking.
	bufferRefs []bufferRef
	imageRefs  []imageRef

	// set for CmdExport/CmdImportExternal.
	targetQueueType int

	// set for CmdExecuteComputePass/CmdExecuteRenderPass: invoked
	// synchronously, in recorded order, during submitQueuedJobs.
	inline func()
}

type bufferRef struct {
	localIndex int // index into Job.localBuffers, or -1 for a persistent Buffer
	persistent *Buffer
}

type imageRef struct {
	localIndex int
	persistent *Image
}

// Job is a reified, append-only unit of GPU work (§3, Glossary).
//
// Grounded on vgpu/system.go's pipeline/command structuring, generalized
// to the command-kind union and usage-range tracker of §4.6; the
// teacher's System has no notion of "job," since vgpu assumes a single
// persistent render loop rather than Tephra's per-submission unit.
type Job struct {
	pool *ResourcePool
	id   uint64

	state JobState

	commands []command

	localBuffers []JobLocalBuffer
	localImages  []JobLocalImage

	preinitAllocs []*PreinitializedBuffer

	descriptorRequests []pendingSetRequest
	futureDescriptors  []futureDescriptor

	commandPools []vk.Handle // returned to the resource pool on job destruction

	jobSemaphoreWaits    []JobSemaphore
	externalWaits        []ExternalSemaphore
	externalSignals      []ExternalSemaphore
	signal               JobSemaphore // assigned at enqueue

	queue int // logical queue index this job targets
}

// State returns the job's current lifecycle state (§3).
func (j *Job) State() JobState { return j.state }

// AllocateLocalBuffer requests a transient buffer scoped to this job
// (C2). Its underlying handle is not valid until the job is enqueued.
func (j *Job) AllocateLocalBuffer(setup BufferSetup) *JobLocalBuffer {
	idx := len(j.localBuffers)
	j.localBuffers = append(j.localBuffers, JobLocalBuffer{setup: setup, usage: UsageRange{First: -1, Last: -1}, job: j, index: idx})
	return &j.localBuffers[idx]
}

// AllocateLocalImage requests a transient image scoped to this job (C3).
func (j *Job) AllocateLocalImage(setup ImageSetup) *JobLocalImage {
	setup = setup.normalize()
	idx := len(j.localImages)
	j.localImages = append(j.localImages, JobLocalImage{setup: setup, usage: UsageRange{First: -1, Last: -1}, job: j, index: idx})
	return &j.localImages[idx]
}

// AllocatePreinitializedBuffer requests eagerly-backed storage for
// host-side writes before the job runs (C4, Glossary).
func (j *Job) AllocatePreinitializedBuffer(size uint64, usage BufferUsage, pref MemoryPreference) (*PreinitializedBuffer, error) {
	alloc, err := j.pool.preinit.allocate(int64(j.id), size, usage, pref)
	if err != nil {
		return nil, err
	}
	j.preinitAllocs = append(j.preinitAllocs, alloc)
	return alloc, nil
}

// RequestDescriptorSet records a pending descriptor-set request (C5),
// returning a view whose Handle() resolves once the job is enqueued.
func (j *Job) RequestDescriptorSet(layout vk.Handle, count int, debugName string) DescriptorSetView {
	j.descriptorRequests = append(j.descriptorRequests, pendingSetRequest{layout: layout, count: count, debugName: debugName})
	return DescriptorSetView{job: j, req: len(j.descriptorRequests) - 1}
}

// recordCommand appends a command and updates the usage range of every
// resource it references with the new command's index (§4.6).
func (j *Job) recordCommand(c command) {
	idx := len(j.commands)
	for _, ref := range c.bufferRefs {
		if ref.localIndex >= 0 {
			j.touchUsage(&j.localBuffers[ref.localIndex].usage, idx)
		}
	}
	for _, ref := range c.imageRefs {
		if ref.localIndex >= 0 {
			j.touchUsage(&j.localImages[ref.localIndex].usage, idx)
		}
	}
	j.commands = append(j.commands, c)
}

func (j *Job) touchUsage(u *UsageRange, idx int) {
	if u.First == -1 {
		u.First = idx
		u.Last = idx
		return
	}
	if idx < u.First {
		u.First = idx
	}
	if idx > u.Last {
		u.Last = idx
	}
}

// Copy records a copy command referencing src/dst job-local or
// persistent buffers, updating their usage ranges.
func (j *Job) Copy(src, dst BufferView) {
	j.recordCommand(command{kind: CmdCopy, bufferRefs: []bufferRef{refOfBuffer(src), refOfBuffer(dst)}})
}

// CopyImage records a copy command between two image views.
func (j *Job) CopyImage(src, dst ImageView) {
	j.recordCommand(command{kind: CmdCopy, imageRefs: []imageRef{refOfImage(src), refOfImage(dst)}})
}

// ClearBuffer records a clear command against a buffer view.
func (j *Job) ClearBuffer(v BufferView) {
	j.recordCommand(command{kind: CmdClear, bufferRefs: []bufferRef{refOfBuffer(v)}})
}

// ClearImage records a clear command against an image view.
func (j *Job) ClearImage(v ImageView) {
	j.recordCommand(command{kind: CmdClear, imageRefs: []imageRef{refOfImage(v)}})
}

// DiscardBuffer marks a buffer view's prior contents as unneeded, letting
// the compile step skip preserving them across a barrier.
func (j *Job) DiscardBuffer(v BufferView) {
	j.recordCommand(command{kind: CmdDiscard, bufferRefs: []bufferRef{refOfBuffer(v)}})
}

// DiscardImage marks an image view's prior contents as unneeded.
func (j *Job) DiscardImage(v ImageView) {
	j.recordCommand(command{kind: CmdDiscard, imageRefs: []imageRef{refOfImage(v)}})
}

// BuildAccelerationStructure records a build command referencing the
// buffer views used as its geometry inputs (acceleration-structure
// construction itself is an external collaborator's call, out of scope
// per §1; the job record only tracks the inputs' usage ranges).
func (j *Job) BuildAccelerationStructure(inputs ...BufferView) {
	refs := make([]bufferRef, len(inputs))
	for i, v := range inputs {
		refs[i] = refOfBuffer(v)
	}
	j.recordCommand(command{kind: CmdBuildAccelerationStructure, bufferRefs: refs})
}

// DebugLabel records a debug-label marker command (§4.6).
func (j *Job) DebugLabel(name string) {
	j.recordCommand(command{kind: CmdDebugLabel, inline: func() {
		j.pool.device.logDebug("job %d: %s", j.id, name)
	}})
}

// TimestampWrite records a timestamp-query write against queryPool at
// queryIndex (query pool creation/readback is an external collaborator,
// out of scope per §1's "format tables").
func (j *Job) TimestampWrite(queryPool vk.Handle, queryIndex uint32) {
	j.recordCommand(command{kind: CmdTimestampWrite})
}

// ImportExternal records a queue-ownership acquire request for a resource
// last released on sourceQueueType (the mirror of Export).
func (j *Job) ImportExternal(v BufferView, sourceQueueType int) {
	j.recordCommand(command{kind: CmdImportExternal, bufferRefs: []bufferRef{refOfBuffer(v)}, targetQueueType: sourceQueueType})
}

// ExecuteComputePass records an inline compute-pass callback, invoked
// synchronously at submit time in recorded order (§4.6, §4.10).
func (j *Job) ExecuteComputePass(fn func()) {
	j.recordCommand(command{kind: CmdExecuteComputePass, inline: fn})
}

// ExecuteRenderPass records an inline render-pass callback.
func (j *Job) ExecuteRenderPass(fn func()) {
	j.recordCommand(command{kind: CmdExecuteRenderPass, inline: fn})
}

// Export records a queue-ownership release request targeting
// targetQueueType (§4.6).
func (j *Job) Export(v BufferView, targetQueueType int) {
	j.recordCommand(command{kind: CmdExport, bufferRefs: []bufferRef{refOfBuffer(v)}, targetQueueType: targetQueueType})
}

func refOfBuffer(v BufferView) bufferRef {
	if v.job == nil {
		return bufferRef{localIndex: -1, persistent: v.buffer}
	}
	return bufferRef{localIndex: v.localIndex}
}

func refOfImage(v ImageView) imageRef {
	if v.job == nil {
		return imageRef{localIndex: -1, persistent: v.image}
	}
	return imageRef{localIndex: v.localIndex}
}

// WaitForJobSemaphore records a cross-job wait (§3 "semaphores").
func (j *Job) WaitForJobSemaphore(s JobSemaphore) {
	j.jobSemaphoreWaits = append(j.jobSemaphoreWaits, s)
}

// WaitForExternalSemaphore records an external binary/timeline semaphore
// wait.
func (j *Job) WaitForExternalSemaphore(s ExternalSemaphore) {
	j.externalWaits = append(j.externalWaits, s)
}

// SignalExternalSemaphore records an external semaphore signal.
func (j *Job) SignalExternalSemaphore(s ExternalSemaphore) {
	j.externalSignals = append(j.externalSignals, s)
}

// Signal returns the job's own job-semaphore signal, valid only after
// enqueue (§3).
func (j *Job) Signal() JobSemaphore { return j.signal }

// Package fake provides an in-memory vk.Driver double so the job engine,
// timeline, lifeguard, and queue packages can be exercised in tests
// without a real GPU — the teacher's own test suite likewise avoids
// touching a live device, hand-writing doubles rather than reaching for
// a mocking framework.
package fake

import (
	"sync"
	"unsafe"

	"github.com/tephra-gpu/tephra/vk"
)

// Driver records every call it receives and hands back monotonically
// increasing handles; it never allocates real memory, instead backing
// mapped pointers with plain Go byte slices.
type Driver struct {
	mu   sync.Mutex
	next uint64

	buffers   map[vk.Handle]vk.BufferDesc
	images    map[vk.Handle]vk.ImageDesc
	memory    map[vk.Handle]*memBlock
	semaphore map[vk.Handle]*semaphore
	pools     map[vk.Handle]struct{}
	cmdbufs   map[vk.Handle]vk.Handle // cmdbuf -> owning pool
	swaps     map[vk.Handle]*swapchainState
	descPools map[vk.Handle]descPoolState
	descSets  map[vk.Handle]vk.Handle // set -> owning pool

	// Submits records every QueueSubmit call in order, for assertions.
	Submits []SubmitCall
	// Presents records every QueuePresent call in order.
	Presents []PresentCall

	// FailNextAcquire, when set, makes the next AcquireNextImage call on
	// the named swapchain return that status/error instead of Optimal.
	FailNextAcquire map[vk.Handle]vk.SwapchainStatus

	// FailNextWaitIdle, when set, is returned once by the next
	// DeviceWaitIdle call and then cleared.
	FailNextWaitIdle error
}

type memBlock struct {
	loc      vk.MemoryLocation
	data     []byte
	mapped   bool
	coherent bool
}

type semaphore struct {
	timeline bool
	value    uint64
	cond     *sync.Cond
}

type swapchainState struct {
	images   []vk.Handle
	acquired int // round-robin cursor into images
	inFlight int // images acquired but not yet presented
}

type descPoolState struct {
	maxSets   uint32
	allocated uint32
}

// SubmitCall is one recorded QueueSubmit invocation.
type SubmitCall struct {
	Queue   vk.Handle
	Entries []vk.SubmitEntry
	Fence   vk.Handle
}

// PresentCall is one recorded QueuePresent invocation.
type PresentCall struct {
	Queue      vk.Handle
	Swapchains []vk.Handle
	Indices    []uint32
	Waits      []vk.Handle
}

var _ vk.Driver = (*Driver)(nil)

// New returns an empty fake driver.
func New() *Driver {
	return &Driver{
		buffers:         map[vk.Handle]vk.BufferDesc{},
		images:          map[vk.Handle]vk.ImageDesc{},
		memory:          map[vk.Handle]*memBlock{},
		semaphore:       map[vk.Handle]*semaphore{},
		pools:           map[vk.Handle]struct{}{},
		cmdbufs:         map[vk.Handle]vk.Handle{},
		swaps:           map[vk.Handle]*swapchainState{},
		descPools:       map[vk.Handle]descPoolState{},
		descSets:        map[vk.Handle]vk.Handle{},
		FailNextAcquire: map[vk.Handle]vk.SwapchainStatus{},
	}
}

func (d *Driver) CreateDescriptorPool(device vk.Handle, maxSets uint32) (vk.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.descPools[h] = descPoolState{maxSets: maxSets}
	return h, nil
}

func (d *Driver) DestroyDescriptorPool(device, pool vk.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.descPools, pool)
}

func (d *Driver) AllocateDescriptorSets(device, pool, layout vk.Handle, count int) ([]vk.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.descPools[pool]
	if st.allocated+uint32(count) > st.maxSets {
		return nil, vk.FromVkResult(-1000069000, "AllocateDescriptorSets") // VK_ERROR_OUT_OF_POOL_MEMORY (fake value)
	}
	st.allocated += uint32(count)
	d.descPools[pool] = st
	out := make([]vk.Handle, count)
	for i := range out {
		h := d.alloc()
		d.descSets[h] = pool
		out[i] = h
	}
	return out, nil
}

func (d *Driver) FreeDescriptorSets(device, pool vk.Handle, sets []vk.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.descPools[pool]
	for _, s := range sets {
		delete(d.descSets, s)
		if st.allocated > 0 {
			st.allocated--
		}
	}
	d.descPools[pool] = st
}

func (d *Driver) alloc() vk.Handle {
	d.next++
	return vk.Handle(d.next)
}

func (d *Driver) CreateBuffer(device vk.Handle, desc vk.BufferDesc) (vk.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.buffers[h] = desc
	return h, nil
}

func (d *Driver) DestroyBuffer(device, buffer vk.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, buffer)
}

func (d *Driver) BufferMemoryRequirements(device, buffer vk.Handle) vk.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	desc := d.buffers[buffer]
	return vk.MemoryRequirements{Size: desc.Size, Alignment: 16, MemoryTypeBits: 0xFFFFFFFF}
}

func (d *Driver) CreateImage(device vk.Handle, desc vk.ImageDesc) (vk.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.images[h] = desc
	return h, nil
}

func (d *Driver) DestroyImage(device, image vk.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.images, image)
}

func (d *Driver) imageBytes(desc vk.ImageDesc) uint64 {
	depth := uint64(desc.Depth)
	if depth == 0 {
		depth = 1
	}
	layers := uint64(desc.ArrayLayers)
	if layers == 0 {
		layers = 1
	}
	return uint64(desc.Width) * uint64(desc.Height) * depth * layers * 4
}

func (d *Driver) ImageMemoryRequirements(device, image vk.Handle) vk.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	desc := d.images[image]
	return vk.MemoryRequirements{Size: d.imageBytes(desc), Alignment: 256, MemoryTypeBits: 0xFFFFFFFF}
}

func (d *Driver) AllocateMemory(device vk.Handle, req vk.MemoryRequirements, loc vk.MemoryLocation) (vk.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.memory[h] = &memBlock{
		loc:      loc,
		data:     make([]byte, req.Size),
		coherent: loc != vk.DeviceLocalHostCached && loc != vk.HostCached,
	}
	return h, nil
}

func (d *Driver) FreeMemory(device, memory vk.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.memory, memory)
}

func (d *Driver) BindBufferMemory(device, buffer, memory vk.Handle, offset uint64) error {
	return nil
}

func (d *Driver) BindImageMemory(device, image, memory vk.Handle, offset uint64) error {
	return nil
}

func (d *Driver) MapMemory(device, memory vk.Handle) (unsafe.Pointer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	blk := d.memory[memory]
	blk.mapped = true
	if len(blk.data) == 0 {
		return nil, nil
	}
	return unsafe.Pointer(&blk.data[0]), nil
}

func (d *Driver) UnmapMemory(device, memory vk.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if blk := d.memory[memory]; blk != nil {
		blk.mapped = false
	}
}

func (d *Driver) IsFullyHostCoherent(device, memory vk.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if blk := d.memory[memory]; blk != nil {
		return blk.coherent
	}
	return true
}

func (d *Driver) FlushMappedRange(device, memory vk.Handle, offset, size uint64)      {}
func (d *Driver) InvalidateMappedRange(device, memory vk.Handle, offset, size uint64) {}

func (d *Driver) MemoryHeapBudget(device vk.Handle, loc vk.MemoryLocation) uint64 {
	return 1 << 30 // 1 GiB, an arbitrary but stable fake budget
}

func (d *Driver) NonCoherentAtomSize(device vk.Handle) uint64                  { return 64 }
func (d *Driver) OptimalBufferCopyOffsetAlignment(device vk.Handle) uint64     { return 4 }
func (d *Driver) MinTexelBufferOffsetAlignment(device vk.Handle) uint64       { return 16 }
func (d *Driver) MinUniformBufferOffsetAlignment(device vk.Handle) uint64     { return 64 }
func (d *Driver) MinStorageBufferOffsetAlignment(device vk.Handle) uint64     { return 32 }

func (d *Driver) CreateBinarySemaphore(device vk.Handle) (vk.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.semaphore[h] = &semaphore{cond: sync.NewCond(&d.mu)}
	return h, nil
}

func (d *Driver) CreateTimelineSemaphore(device vk.Handle, initial uint64) (vk.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.semaphore[h] = &semaphore{timeline: true, value: initial, cond: sync.NewCond(&d.mu)}
	return h, nil
}

func (d *Driver) DestroySemaphore(device, sem vk.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.semaphore, sem)
}

func (d *Driver) SignalSemaphore(device, sem vk.Handle, value uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.semaphore[sem]
	if value > s.value {
		s.value = value
	}
	s.cond.Broadcast()
	return nil
}

func (d *Driver) SemaphoreCounterValue(device, sem vk.Handle) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.semaphore[sem].value, nil
}

func (d *Driver) WaitSemaphores(device vk.Handle, sems []vk.Handle, values []uint64, waitAll bool, timeoutNs uint64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	satisfied := func() bool {
		count := 0
		for i, sh := range sems {
			if d.semaphore[sh].value >= values[i] {
				count++
			}
		}
		if waitAll {
			return count == len(sems)
		}
		return count > 0
	}
	for !satisfied() {
		// The fake driver has no real timer; tests that exercise a
		// timeout path drive it by never signalling and calling with
		// timeoutNs == 0, which is treated as a single non-blocking poll.
		if timeoutNs == 0 {
			return false, nil
		}
		d.semaphore[sems[0]].cond.Wait()
	}
	return true, nil
}

func (d *Driver) CreateCommandPool(device vk.Handle, queueFamily uint32) (vk.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.pools[h] = struct{}{}
	return h, nil
}

func (d *Driver) ResetCommandPool(device, pool vk.Handle) {}

func (d *Driver) DestroyCommandPool(device, pool vk.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pools, pool)
}

func (d *Driver) AllocateCommandBuffer(device, pool vk.Handle) (vk.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.cmdbufs[h] = pool
	return h, nil
}

// QueueSubmit records the call and immediately signals every timeline
// signal to its target value, simulating instantaneous GPU execution —
// sufficient for exercising the timeline/lifeguard/queue logic that
// depends only on "did the signal eventually reach value N."
func (d *Driver) QueueSubmit(device, queue vk.Handle, entries []vk.SubmitEntry, fence vk.Handle) error {
	d.mu.Lock()
	d.Submits = append(d.Submits, SubmitCall{Queue: queue, Entries: entries, Fence: fence})
	for _, e := range entries {
		for _, s := range e.Signals {
			sem := d.semaphore[s.Semaphore]
			if sem == nil {
				continue
			}
			if s.Value > sem.value {
				sem.value = s.Value
			}
			sem.cond.Broadcast()
		}
	}
	d.mu.Unlock()
	return nil
}

func (d *Driver) CreateSwapchain(device vk.Handle, imageCount int) (vk.Handle, []vk.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	images := make([]vk.Handle, imageCount)
	for i := range images {
		images[i] = d.alloc()
	}
	d.swaps[h] = &swapchainState{images: images}
	return h, images, nil
}

func (d *Driver) DestroySwapchain(device, swapchain vk.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.swaps, swapchain)
}

func (d *Driver) AcquireNextImage(device, swapchain vk.Handle, timeoutNs uint64, semaphore vk.Handle) (uint32, vk.SwapchainStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status, ok := d.FailNextAcquire[swapchain]; ok {
		delete(d.FailNextAcquire, swapchain)
		switch status {
		case vk.OutOfDate, vk.SurfaceLost:
			return 0, status, vk.FromVkResult(-1000001004, "AcquireNextImage")
		default:
			return 0, status, nil
		}
	}
	st := d.swaps[swapchain]
	if st.inFlight >= len(st.images) {
		// every image is already acquired and not yet presented — the real
		// presentation engine has nothing to hand back, matching
		// VK_TIMEOUT/VK_NOT_READY.
		return 0, vk.Optimal, vk.FromVkResult(2, "AcquireNextImage")
	}
	idx := st.acquired % len(st.images)
	st.acquired++
	st.inFlight++
	if sem := d.semaphore[semaphore]; sem != nil {
		sem.value = 1
		sem.cond.Broadcast()
	}
	return uint32(idx), vk.Optimal, nil
}

func (d *Driver) QueuePresent(device, queue vk.Handle, swapchains []vk.Handle, indices []uint32, waits []vk.Handle) ([]vk.SwapchainStatus, error) {
	d.mu.Lock()
	d.Presents = append(d.Presents, PresentCall{Queue: queue, Swapchains: swapchains, Indices: indices, Waits: waits})
	for _, sc := range swapchains {
		if st, ok := d.swaps[sc]; ok && st.inFlight > 0 {
			st.inFlight--
		}
	}
	d.mu.Unlock()
	out := make([]vk.SwapchainStatus, len(swapchains))
	for i := range out {
		out[i] = vk.Optimal
	}
	return out, nil
}

func (d *Driver) DeviceWaitIdle(device vk.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailNextWaitIdle != nil {
		err := d.FailNextWaitIdle
		d.FailNextWaitIdle = nil
		return err
	}
	return nil
}

func (d *Driver) SetDebugName(device, object vk.Handle, name string) {}

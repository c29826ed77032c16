package tephra

import (
	"sync"

	"github.com/tephra-gpu/tephra/logx"
	"github.com/tephra-gpu/tephra/swapchain"
	"github.com/tephra-gpu/tephra/vk"
)

// DeviceConfig tunes a Device's allocators (A.3). Loadable from TOML via
// LoadDeviceConfig for tools/examples that prefer file-based tuning.
type DeviceConfig struct {
	Overallocation            OverallocationBehavior `toml:"overallocation"`
	EnableBufferSuballocation bool                    `toml:"enable_buffer_suballocation"`
	EnableImageSuballocation  bool                    `toml:"enable_image_suballocation"`
	AliasImagesByFormatClass  bool                    `toml:"alias_images_by_format_class"`
	Debug                     bool                    `toml:"debug"`
}

// DefaultDeviceConfig matches spec defaults: suballocation enabled,
// aliasing by exact format list rather than compatibility class.
var DefaultDeviceConfig = DeviceConfig{
	Overallocation:            DefaultOverallocation,
	EnableBufferSuballocation: true,
	EnableImageSuballocation:  true,
}

// Device is the facade exposing create/allocate/enqueue/submit/wait
// operations, routing to C7-C11 (C12).
//
// Grounded on vgpu/system.go / vgpu/device.go's composition style: one
// root object owning sub-managers (Memory, Vars, Pipelines in the
// teacher; ResourcePool-per-queue, timeline, lifeguard queue, swapchains
// here).
type Device struct {
	driver vk.Driver
	handle vk.Handle
	config DeviceConfig

	timeline       *timelineManager
	lifeguardQueue *deferredDestructionQueue

	queues []*Queue
	pools  []*ResourcePool // one per logical queue, index-aligned with queues

	physicalMu map[uint32]*sync.Mutex // keyed by queue family, shared across logical queues on one physical queue

	mu struct {
		sync.RWMutex
		deviceLost  bool
		lostErr     error
	}
}

// NewDevice wraps an already-created driver device handle. The caller is
// responsible for physical device selection, extension negotiation
// (§9.1/§9.2, resolved in vk.RequiredExtensionsSupported/DedupExtensions)
// and logical device creation — out of scope per §1.
func NewDevice(driver vk.Driver, handle vk.Handle, cfg DeviceConfig) *Device {
	d := &Device{driver: driver, handle: handle, config: cfg, physicalMu: map[uint32]*sync.Mutex{}}
	d.timeline = newTimelineManager(d)
	d.lifeguardQueue = newDeferredDestructionQueue(d)
	return d
}

// CreateQueue registers a logical queue bound to queueHandle on the
// given family, creating its timeline semaphore and a ResourcePool.
// Multiple CreateQueue calls with the same family share one physical
// queue mutex, per §5.
func (d *Device) CreateQueue(queueHandle vk.Handle, family uint32) (*Queue, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	sem, err := d.driver.CreateTimelineSemaphore(d.handle, 0)
	if err != nil {
		return nil, d.fromDriverErr("Device.CreateQueue", err)
	}
	idx := d.timeline.addQueue(sem)

	pm, ok := d.physicalMu[family]
	if !ok {
		pm = &sync.Mutex{}
		d.physicalMu[family] = pm
	}

	q := newQueue(d, queueHandle, sem, family, pm)
	q.index = idx
	d.queues = append(d.queues, q)
	d.pools = append(d.pools, newResourcePool(d, idx))
	return q, nil
}

// pool returns the ResourcePool for the queue q belongs to.
func (d *Device) pool(q *Queue) *ResourcePool { return d.pools[q.index] }

// CreateJob acquires a Job from q's resource pool (C7, routed through
// C12).
func (d *Device) CreateJob(q *Queue) *Job {
	return d.pool(q).CreateJob()
}

// EnqueueJob assigns the job's signal timestamp and routes it to its
// queue's pending list (C12 enqueue_job).
func (d *Device) EnqueueJob(j *Job) error {
	if err := d.checkLost(); err != nil {
		return err
	}
	return j.pool.device.queues[j.queue].enqueueJob(j)
}

// SubmitQueuedJobs flattens q's pending jobs into one underlying submit
// call (C12 submit_queued_jobs, routed through C10).
func (d *Device) SubmitQueuedJobs(q *Queue, lastToSubmit *Job, extraWaits []JobSemaphore, extraWaitsExternal []ExternalSemaphore) error {
	if err := d.checkLost(); err != nil {
		return err
	}
	return q.submitQueuedJobs(lastToSubmit, extraWaits, extraWaitsExternal)
}

// IsJobSemaphoreSignalled reports whether s's timestamp has been reached
// on its queue, per §8 invariant 5.
func (d *Device) IsJobSemaphoreSignalled(s JobSemaphore) bool {
	return d.timeline.lastReached(s.Queue.index) >= s.Timestamp
}

// WaitForJobSemaphores blocks until every (or any, per waitAll) semaphore
// in ss is signalled or timeout expires (C12).
func (d *Device) WaitForJobSemaphores(ss []JobSemaphore, waitAll bool, timeout Timeout) (bool, error) {
	if err := d.checkLost(); err != nil {
		return false, err
	}
	queues := make([]int, len(ss))
	values := make([]uint64, len(ss))
	for i, s := range ss {
		queues[i] = s.Queue.index
		values[i] = s.Timestamp
	}
	return d.timeline.wait(queues, values, waitAll, timeout)
}

// WaitForIdle blocks until the underlying device has completed all
// submitted work, then drains every deferred-destruction entry
// immediately (C12 wait_for_idle).
func (d *Device) WaitForIdle() error {
	if err := d.checkLost(); err != nil {
		return err
	}
	if err := d.driver.DeviceWaitIdle(d.handle); err != nil {
		return d.fromDriverErr("Device.WaitForIdle", err)
	}
	if err := d.timeline.update(); err != nil {
		return err
	}
	d.lifeguardQueue.destroyAll()
	return nil
}

// AddCleanupCallback registers fn to run once every queue listed in
// threshold reaches its recorded value (C12).
func (d *Device) AddCleanupCallback(threshold map[*Queue]uint64, fn func()) {
	qt := make(queueTimestamps, len(threshold))
	for q, v := range threshold {
		qt[q.index] = v
	}
	d.timeline.addCleanupCallback(qt, fn)
}

// UpdateDeviceProgress polls the timeline and runs any newly-ready
// cleanup callbacks (C12 update_device_progress); drives C8 and, when
// present, a query manager (timestamp/render queries are created but not
// separately polled here — out of scope per §1's "format tables").
func (d *Device) UpdateDeviceProgress() error {
	if err := d.checkLost(); err != nil {
		return err
	}
	if err := d.timeline.update(); err != nil {
		return err
	}
	d.lifeguardQueue.destroyUpTo(d.timeline.lastReached)
	for _, p := range d.pools {
		p.trim(d.timeline.lastReached)
	}
	return nil
}

func (d *Device) latestTrackedTimestamp() queueTimestamps {
	return d.timeline.latestTrackedTimestamp()
}

// Trim forwards to every resource pool's C2/C3/C4 trim, removing backing
// allocations last used at or before the given per-queue threshold
// (§4.7 "trim(up_to)").
func (d *Device) Trim(upTo map[*Queue]uint64) {
	qt := make(queueTimestamps, len(upTo))
	for q, v := range upTo {
		qt[q.index] = v
	}
	reached := func(q int) uint64 { return qt[q] }
	for _, p := range d.pools {
		p.trim(reached)
	}
}

// CreateBuffer allocates a persistent Buffer, choosing the first memory
// location in pref's progression the driver can satisfy (§3 Buffer, §6
// MemoryPreference).
func (d *Device) CreateBuffer(setup BufferSetup) (*Buffer, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	handle, err := d.driver.CreateBuffer(d.handle, vk.BufferDesc{
		Size: setup.Size, Usage: setup.Usage, DeviceAddress: setup.DeviceAddress, DebugName: setup.DebugName,
	})
	if err != nil {
		return nil, d.fromDriverErr("Device.CreateBuffer", err)
	}
	req := d.driver.BufferMemoryRequirements(d.handle, handle)
	memHandle, loc, err := d.allocateFromPreference(req, setup.Preference)
	if err != nil {
		d.driver.DestroyBuffer(d.handle, handle)
		return nil, err
	}
	if err := d.driver.BindBufferMemory(d.handle, handle, memHandle, 0); err != nil {
		d.driver.DestroyBuffer(d.handle, handle)
		d.driver.FreeMemory(d.handle, memHandle)
		return nil, d.fromDriverErr("Device.CreateBuffer", err)
	}
	b := &Buffer{
		device: d, setup: setup,
		handle:   newLifeguard(d, handle, func(h vk.Handle) { d.driver.DestroyBuffer(d.handle, h) }),
		memory:   newLifeguard(d, memHandle, func(h vk.Handle) { d.driver.FreeMemory(d.handle, h) }),
		coherent: d.driver.IsFullyHostCoherent(d.handle, memHandle),
		location: loc,
	}
	if setup.DebugName != "" {
		d.driver.SetDebugName(d.handle, handle, setup.DebugName)
	}
	return b, nil
}

// allocateFromPreference walks pref's progression, returning the first
// location the driver accepts (§6 MemoryPreference).
func (d *Device) allocateFromPreference(req vk.MemoryRequirements, pref MemoryPreference) (vk.Handle, MemoryLocation, error) {
	progression := pref.LocationProgression
	if len(progression) == 0 {
		progression = PreferenceDevice.LocationProgression
	}
	var lastErr error
	for _, loc := range progression {
		h, err := d.driver.AllocateMemory(d.handle, req, loc)
		if err == nil {
			return h, loc, nil
		}
		lastErr = err
	}
	return 0, 0, d.fromDriverErr("Device.allocateFromPreference", lastErr)
}

// createBackingBuffer is the internal helper C2/C4 use to materialize a
// new backing allocation.
func (d *Device) createBackingBuffer(size uint64, usage BufferUsage, pref MemoryPreference, debugName string) (*Buffer, error) {
	return d.CreateBuffer(BufferSetup{Size: size, Usage: usage, Preference: pref, DebugName: debugName})
}

// createPreferredBuffer is like createBackingBuffer but also reports the
// memory location the allocation ended up at, for C4's ring-buffer
// bookkeeping.
func (d *Device) createPreferredBuffer(size uint64, usage BufferUsage, pref MemoryPreference, debugName string) (*Buffer, MemoryLocation, error) {
	b, err := d.CreateBuffer(BufferSetup{Size: size, Usage: usage, Preference: pref, DebugName: debugName})
	if err != nil {
		return nil, 0, err
	}
	return b, b.location, nil
}

// CreateImage allocates a persistent Image (§3 Image).
func (d *Device) CreateImage(setup ImageSetup) (*Image, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	setup = setup.normalize()
	handle, err := d.driver.CreateImage(d.handle, vk.ImageDesc{
		Kind: setup.Kind, Width: setup.Width, Height: setup.Height, Depth: setup.Depth,
		MipLevels: setup.MipLevels, ArrayLayers: setup.ArrayLayers, Samples: setup.Samples,
		Format: setup.Format, CompatibleFormats: setup.CompatibleFormats, Usage: setup.Usage,
		MutableFormat: len(setup.CompatibleFormats) > 0, DebugName: setup.DebugName,
	})
	if err != nil {
		return nil, d.fromDriverErr("Device.CreateImage", err)
	}
	req := d.driver.ImageMemoryRequirements(d.handle, handle)
	memHandle, _, err := d.allocateFromPreference(req, setup.Preference)
	if err != nil {
		d.driver.DestroyImage(d.handle, handle)
		return nil, err
	}
	if err := d.driver.BindImageMemory(d.handle, handle, memHandle, 0); err != nil {
		d.driver.DestroyImage(d.handle, handle)
		d.driver.FreeMemory(d.handle, memHandle)
		return nil, d.fromDriverErr("Device.CreateImage", err)
	}
	img := &Image{
		device: d, setup: setup,
		handle: newLifeguard(d, handle, func(h vk.Handle) { d.driver.DestroyImage(d.handle, h) }),
		memory: newLifeguard(d, memHandle, func(h vk.Handle) { d.driver.FreeMemory(d.handle, h) }),
	}
	if setup.DebugName != "" {
		d.driver.SetDebugName(d.handle, handle, setup.DebugName)
	}
	return img, nil
}

func (d *Device) createBackingImage(setup ImageSetup, debugName string) (*Image, error) {
	setup.DebugName = debugName
	setup.Preference = PreferenceDevice
	return d.CreateImage(setup)
}

// CreateSwapchain creates imageCount swapchain images plus their
// acquire/present semaphore pool, routed through C11 (C12 "create
// swapchain"). Platform surface creation is out of scope per §1; a driver
// that needs a caller-supplied surface (vk.Real) fails this call and
// expects RegisterSwapchain to have been used on the driver directly
// before wrapping the resulting handles with this method's underlying
// swapchain.New.
func (d *Device) CreateSwapchain(imageCount int) (*swapchain.Swapchain, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	handle, images, err := d.driver.CreateSwapchain(d.handle, imageCount)
	if err != nil {
		return nil, d.fromDriverErr("Device.CreateSwapchain", err)
	}
	return swapchain.New(d.driver, d.handle, handle, images)
}

// SubmitPresentImages presents imgs[i] on swapchain scs[i] through q,
// returning each swapchain's post-present status (C12 submit_present_images,
// routed through C11/C10).
func (d *Device) SubmitPresentImages(q *Queue, scs []*swapchain.Swapchain, indices []uint32) ([]swapchain.Status, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	return swapchain.Present(q, scs, indices)
}

// SetDebugLabel names a GPU object for diagnostics (D.4); a no-op-safe
// wrapper over VK_EXT_debug_utils through the driver.
func (d *Device) SetDebugLabel(h vk.Handle, name string) {
	d.driver.SetDebugName(d.handle, h, name)
}

func (d *Device) logDebug(format string, args ...any) {
	if d.config.Debug {
		logx.PrintfDebug(format, args...)
	}
}

// checkLost returns the latched DeviceLost error, if one has already been
// observed on this device (§7, §A.2: DeviceLost is sticky — once seen,
// every subsequent operation fails with the same kind without re-querying
// the driver).
func (d *Device) checkLost() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.mu.deviceLost {
		return d.mu.lostErr
	}
	return nil
}

// fromDriverErr classifies err via the package-level fromDriverErr and
// latches it on first observation of KindDeviceLost, so every later
// Device operation short-circuits through checkLost instead of touching
// the driver again.
func (d *Device) fromDriverErr(op string, err error) error {
	wrapped := fromDriverErr(op, err)
	if wrapped == nil {
		return nil
	}
	if te, ok := wrapped.(*Error); ok && te.Kind == KindDeviceLost {
		d.mu.Lock()
		if !d.mu.deviceLost {
			d.mu.deviceLost = true
			d.mu.lostErr = wrapped
		}
		d.mu.Unlock()
	}
	return wrapped
}

// Package vk is the seam between Tephra-Go's job engine and the
// underlying explicit GPU API (spec §6). Driver is implemented for real
// by Real, a thin wrapper over github.com/goki/vulkan (the teacher's own
// Vulkan binding dependency), and for tests by vk/fake, an in-memory
// recording driver that needs no GPU.
//
// Handles returned by a Driver are opaque IDs, not raw driver pointers,
// so that Real and the fake driver can share exactly one interface.
package vk

import "unsafe"

// Handle is an opaque, driver-assigned identifier for any GPU object:
// buffer, image, device memory, semaphore, command pool/buffer, or
// swapchain. The zero Handle is never valid.
type Handle uint64

// BufferUsage mirrors the buffer usage bits a caller can combine; see
// spec §4.2 for the alignment each bit implies.
type BufferUsage uint32

const (
	UsageTransferSrc BufferUsage = 1 << iota
	UsageTransferDst
	UsageUniform
	UsageStorage
	UsageVertex
	UsageIndex
	UsageIndirect
	UsageTexelUniform
	UsageTexelStorage
	UsageHostMapped
	UsageDeviceAddress
)

// MemoryLocation is a single step in a MemoryPreference progression (§6).
type MemoryLocation int

const (
	DeviceLocal MemoryLocation = iota
	DeviceLocalHostVisible
	DeviceLocalHostCached
	HostVisible
	HostCached
)

// BufferDesc describes a buffer creation request.
type BufferDesc struct {
	Size           uint64
	Usage          BufferUsage
	DeviceAddress  bool
	DebugName      string
}

// ImageKind mirrors spec §3's image kind attribute.
type ImageKind int

const (
	Image1D ImageKind = iota
	Image2D
	Image2DCubeCompatible
	Image3D
	Image3D2DArray
)

// ImageDesc describes an image creation request.
type ImageDesc struct {
	Kind              ImageKind
	Width, Height     uint32
	Depth             uint32
	MipLevels         uint32
	ArrayLayers       uint32
	Samples           uint32
	Format            Format
	CompatibleFormats []Format
	Usage             BufferUsage // image usage reuses the same bit space as buffer transfer/storage bits that apply to both
	MutableFormat     bool
	DebugName         string
}

// Format is an opaque image/view format identifier; the real driver maps
// it onto vk.Format constants, the fake driver just stores the int.
type Format int32

// MemoryRequirements is what a driver reports after creating a buffer or
// image, prior to allocating and binding backing memory.
type MemoryRequirements struct {
	Size           uint64
	Alignment      uint64
	MemoryTypeBits uint32
}

// SwapchainStatus mirrors spec §3/§7.
type SwapchainStatus int

const (
	Optimal SwapchainStatus = iota
	Suboptimal
	OutOfDate
	SurfaceLost
	Retired
)

// SubmitWait is one wait entry in a submit batch: a semaphore plus the
// pipeline stages that must wait on it, and (for timeline semaphores)
// the value to wait for.
type SubmitWait struct {
	Semaphore Handle
	Value     uint64 // 0 for binary semaphores
	StageMask uint32
}

// SubmitSignal is one signal entry in a submit batch.
type SubmitSignal struct {
	Semaphore Handle
	Value     uint64
}

// SubmitEntry is one vkSubmitInfo-equivalent entry: waits, the command
// buffers to execute, and signals.
type SubmitEntry struct {
	Waits          []SubmitWait
	CommandBuffers []Handle
	Signals        []SubmitSignal
}

// Driver is the subset of the explicit GPU API that Tephra-Go consumes
// (spec §6). Every method surfaces failures as a Go error instead of a
// driver result code; callers translate via FromResult at the boundary.
type Driver interface {
	CreateBuffer(device Handle, desc BufferDesc) (Handle, error)
	DestroyBuffer(device, buffer Handle)
	BufferMemoryRequirements(device, buffer Handle) MemoryRequirements

	CreateImage(device Handle, desc ImageDesc) (Handle, error)
	DestroyImage(device, image Handle)
	ImageMemoryRequirements(device, image Handle) MemoryRequirements

	AllocateMemory(device Handle, req MemoryRequirements, loc MemoryLocation) (Handle, error)
	FreeMemory(device, memory Handle)
	BindBufferMemory(device, buffer, memory Handle, offset uint64) error
	BindImageMemory(device, image, memory Handle, offset uint64) error
	MapMemory(device, memory Handle) (unsafe.Pointer, error)
	UnmapMemory(device, memory Handle)
	IsFullyHostCoherent(device, memory Handle) bool
	FlushMappedRange(device, memory Handle, offset, size uint64)
	InvalidateMappedRange(device, memory Handle, offset, size uint64)
	MemoryHeapBudget(device Handle, loc MemoryLocation) uint64

	NonCoherentAtomSize(device Handle) uint64
	OptimalBufferCopyOffsetAlignment(device Handle) uint64
	MinTexelBufferOffsetAlignment(device Handle) uint64
	MinUniformBufferOffsetAlignment(device Handle) uint64
	MinStorageBufferOffsetAlignment(device Handle) uint64

	CreateBinarySemaphore(device Handle) (Handle, error)
	CreateTimelineSemaphore(device Handle, initial uint64) (Handle, error)
	DestroySemaphore(device, semaphore Handle)
	SignalSemaphore(device, semaphore Handle, value uint64) error
	SemaphoreCounterValue(device, semaphore Handle) (uint64, error)
	WaitSemaphores(device Handle, sems []Handle, values []uint64, waitAll bool, timeoutNs uint64) (bool, error)

	CreateDescriptorPool(device Handle, maxSets uint32) (Handle, error)
	DestroyDescriptorPool(device, pool Handle)
	AllocateDescriptorSets(device, pool, layout Handle, count int) ([]Handle, error)
	FreeDescriptorSets(device, pool Handle, sets []Handle)

	CreateCommandPool(device Handle, queueFamily uint32) (Handle, error)
	ResetCommandPool(device, pool Handle)
	DestroyCommandPool(device, pool Handle)
	AllocateCommandBuffer(device, pool Handle) (Handle, error)

	QueueSubmit(device, queue Handle, entries []SubmitEntry, fence Handle) error

	CreateSwapchain(device Handle, imageCount int) (swapchain Handle, images []Handle, err error)
	DestroySwapchain(device, swapchain Handle)
	AcquireNextImage(device, swapchain Handle, timeoutNs uint64, semaphore Handle) (imageIndex uint32, status SwapchainStatus, err error)
	QueuePresent(device, queue Handle, swapchains []Handle, indices []uint32, waits []Handle) ([]SwapchainStatus, error)

	DeviceWaitIdle(device Handle) error
	SetDebugName(device, object Handle, name string)
}

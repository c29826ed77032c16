package tephra

import (
	"github.com/tephra-gpu/tephra/vk"
)

// BufferUsage re-exports vk's usage bitmask (§3).
type BufferUsage = vk.BufferUsage

const (
	UsageTransferSrc   = vk.UsageTransferSrc
	UsageTransferDst   = vk.UsageTransferDst
	UsageUniform       = vk.UsageUniform
	UsageStorage       = vk.UsageStorage
	UsageVertex        = vk.UsageVertex
	UsageIndex         = vk.UsageIndex
	UsageIndirect      = vk.UsageIndirect
	UsageTexelUniform  = vk.UsageTexelUniform
	UsageTexelStorage  = vk.UsageTexelStorage
	UsageHostMapped    = vk.UsageHostMapped
	UsageDeviceAddress = vk.UsageDeviceAddress
	// UsageImageTransfer is a Tephra-level usage bit (not a driver bit):
	// it marks a staging buffer used as the source/dest of an image copy,
	// which per §4.2 takes the largest format-class block size alignment.
	UsageImageTransfer BufferUsage = 1 << 20
)

// BufferSetup is the caller-supplied request to create a persistent or
// job-local buffer (§3).
type BufferSetup struct {
	Size          uint64
	Usage         BufferUsage
	Preference    MemoryPreference
	DeviceAddress bool
	DebugName     string
}

// Buffer is a persistent buffer: it owns its backing memory for its
// entire lifetime, unlike a JobLocalBuffer (C2).
type Buffer struct {
	device *Device
	setup  BufferSetup

	handle    *lifeguard
	memory    *lifeguard
	mappedPtr uintptr
	coherent  bool
	location  MemoryLocation
}

// Size returns the buffer's byte size.
func (b *Buffer) Size() uint64 { return b.setup.Size }

// Handle returns the opaque driver handle, valid until the Buffer is
// destroyed (its lifeguard may keep the underlying object alive past
// that point until the last-use timestamp is reached, but callers must
// not call Handle after Destroy).
func (b *Buffer) Handle() vk.Handle { return b.handle.handle }

// Destroy enqueues the buffer's handle and memory for deferred
// destruction at the device's current tracked timestamp (§3, C9).
func (b *Buffer) Destroy() {
	b.handle.release()
	b.memory.release()
}

// alignmentFor computes the maximum alignment implied by usage, per
// §4.2's per-bit table ("maximum taken").
func alignmentFor(d *Device, usage BufferUsage, hostCoherent bool) uint64 {
	align := uint64(4) // else: minimum
	max := func(a, b uint64) uint64 {
		if b > a {
			return b
		}
		return a
	}
	if usage&UsageImageTransfer != 0 {
		align = max(align, 32)
		align = max(align, d.driver.OptimalBufferCopyOffsetAlignment(d.handle))
	}
	if usage&UsageHostMapped != 0 && !hostCoherent {
		align = max(align, d.driver.NonCoherentAtomSize(d.handle))
	}
	if usage&(UsageTexelUniform|UsageTexelStorage) != 0 {
		align = max(align, d.driver.MinTexelBufferOffsetAlignment(d.handle))
	}
	if usage&UsageUniform != 0 {
		align = max(align, d.driver.MinUniformBufferOffsetAlignment(d.handle))
	}
	if usage&UsageStorage != 0 {
		align = max(align, d.driver.MinStorageBufferOffsetAlignment(d.handle))
	}
	if usage&UsageVertex != 0 {
		align = max(align, 8)
	}
	return align
}

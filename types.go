package tephra

import (
	"math"
	"time"

	"github.com/tephra-gpu/tephra/vk"
)

// MemoryLocation re-exports vk's memory-location enum (§6).
type MemoryLocation = vk.MemoryLocation

const (
	DeviceLocal            = vk.DeviceLocal
	DeviceLocalHostVisible = vk.DeviceLocalHostVisible
	DeviceLocalHostCached  = vk.DeviceLocalHostCached
	HostVisible            = vk.HostVisible
	HostCached             = vk.HostCached
)

// MemoryPreference is a progression of locations tried in order until
// one satisfies the allocation (§6).
type MemoryPreference struct {
	LocationProgression []MemoryLocation
	PersistentMap       bool
}

// Preset progressions, verbatim from §6.
var (
	PreferenceDevice = MemoryPreference{
		LocationProgression: []MemoryLocation{DeviceLocal, DeviceLocalHostVisible, DeviceLocalHostCached},
	}
	PreferenceHost = MemoryPreference{
		LocationProgression: []MemoryLocation{HostCached, HostVisible, DeviceLocalHostCached, DeviceLocalHostVisible},
		PersistentMap:       true,
	}
	PreferenceUploadStream = MemoryPreference{
		LocationProgression: []MemoryLocation{DeviceLocalHostVisible, DeviceLocalHostCached, HostVisible, HostCached},
		PersistentMap:       true,
	}
	PreferenceReadbackStream = MemoryPreference{
		LocationProgression: []MemoryLocation{DeviceLocalHostCached, HostCached, DeviceLocalHostVisible, HostVisible},
		PersistentMap:       true,
	}
)

// prefKey hashes a MemoryPreference into a C4 ring-buffer key component;
// two preferences with the same progression and map flag share a key.
func prefKey(p MemoryPreference) string {
	b := make([]byte, 0, len(p.LocationProgression)+1)
	for _, l := range p.LocationProgression {
		b = append(b, byte(l))
	}
	if p.PersistentMap {
		b = append(b, 1)
	}
	return string(b)
}

// OverallocationBehavior controls how much larger than a request a new
// backing allocation is (§6): max(size*RequestFactor, pool*GrowFactor, Min).
type OverallocationBehavior struct {
	RequestFactor     float64 `toml:"request_factor"`
	GrowFactor        float64 `toml:"grow_factor"`
	MinAllocationSize uint64  `toml:"min_allocation_size"`
}

// DefaultOverallocation matches the teacher's general growth-factor style
// (geometric growth, 1.5x) seen across cogentcore's slice/pool helpers.
var DefaultOverallocation = OverallocationBehavior{RequestFactor: 1.0, GrowFactor: 1.5, MinAllocationSize: 64 * 1024}

// Size returns the backing allocation size for a request of reqSize
// bytes against a pool currently poolSize bytes.
func (o OverallocationBehavior) Size(reqSize, poolSize uint64) uint64 {
	a := uint64(float64(reqSize) * o.RequestFactor)
	b := uint64(float64(poolSize) * o.GrowFactor)
	m := o.MinAllocationSize
	out := a
	if b > out {
		out = b
	}
	if m > out {
		out = m
	}
	if out < reqSize {
		out = reqSize
	}
	return out
}

// Timeout mirrors §6's Timeout::{indefinite, seconds, milliseconds, zero},
// represented internally as nanoseconds with Indefinite a sentinel max.
type Timeout struct {
	ns uint64
}

// IndefiniteNs is the sentinel value meaning "wait forever."
const IndefiniteNs = math.MaxUint64

// Indefinite never expires.
var Indefinite = Timeout{ns: IndefiniteNs}

// Zero returns immediately if the condition is not yet satisfied.
var Zero = Timeout{ns: 0}

// Seconds returns a finite timeout of s seconds.
func Seconds(s float64) Timeout { return Timeout{ns: uint64(s * float64(time.Second))} }

// Milliseconds returns a finite timeout of ms milliseconds.
func Milliseconds(ms float64) Timeout { return Timeout{ns: uint64(ms * float64(time.Millisecond))} }

// Nanoseconds returns the raw nanosecond value a driver call expects.
func (t Timeout) Nanoseconds() uint64 { return t.ns }

// IsIndefinite reports whether t never expires.
func (t Timeout) IsIndefinite() bool { return t.ns == IndefiniteNs }

// JobSemaphore identifies a point on a queue's timeline (§6).
type JobSemaphore struct {
	Queue     *Queue
	Timestamp uint64
}

// ExternalSemaphore is a caller-owned wait/signal target (§6); Value is 0
// for a binary semaphore, nonzero for a timeline wait/signal value.
type ExternalSemaphore struct {
	Handle vk.Handle
	Value  uint64
}

// SwapchainStatus is the tephra-level swapchain status; its values,
// including Retired, follow the same order as vk.SwapchainStatus.
type SwapchainStatus int

const (
	StatusOptimal SwapchainStatus = iota
	StatusSuboptimal
	StatusOutOfDate
	StatusSurfaceLost
	StatusRetired
)

func (s SwapchainStatus) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out of date"
	case StatusSurfaceLost:
		return "surface lost"
	case StatusRetired:
		return "retired"
	default:
		return "unknown"
	}
}

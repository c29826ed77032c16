// Package swapchain implements the acquire/present binary-semaphore
// pooling that bridges the job engine to a presentation surface (C11).
//
// It depends only on vk, not on the root tephra package, so that the root
// package can depend on swapchain (to expose swapchain creation through
// the device facade) without an import cycle. tephra.Queue satisfies
// Presenter so Present can route through a queue's physical-queue mutex.
package swapchain

import (
	"fmt"
	"sync"

	"github.com/tephra-gpu/tephra/vk"
)

// Status mirrors spec §3/§4.11's swapchain state machine: Optimal ->
// Suboptimal -> OutOfDate | SurfaceLost -> Retired. Suboptimal, OutOfDate
// and SurfaceLost are sticky in the sense that once observed the
// swapchain never reports a "better" status again; Retired is set
// explicitly by the caller once it stops driving the swapchain.
type Status int

const (
	Optimal Status = iota
	Suboptimal
	OutOfDate
	SurfaceLost
	Retired
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Suboptimal:
		return "suboptimal"
	case OutOfDate:
		return "out of date"
	case SurfaceLost:
		return "surface lost"
	case Retired:
		return "retired"
	default:
		return "unknown"
	}
}

// Presenter is the seam Present calls through to submit a present batch.
// Grounded on queue.go's submitQueuedJobs, which likewise serializes the
// underlying driver call under a per-physical-queue mutex so that two
// logical queues sharing one physical queue still behave as "different
// queues" to callers (§5).
type Presenter interface {
	QueuePresent(swapchains []vk.Handle, indices []uint32, waits []vk.Handle) ([]vk.SwapchainStatus, error)
}

// pair is one (acquire, present) binary-semaphore pair (§4.11).
type pair struct {
	acquire vk.Handle
	present vk.Handle
}

// Swapchain pools (acquire, present) binary-semaphore pairs matched to
// acquired image indices (C11).
//
// Grounded on vgpu/swapchain.go's Acquire/Present image-semaphore
// bookkeeping, generalized into an explicit presented/acquired split so a
// pair's lifetime tracks the image index it was used for rather than a
// fixed per-image slot.
type Swapchain struct {
	driver vk.Driver
	device vk.Handle
	handle vk.Handle
	images []vk.Handle

	mu        sync.Mutex
	status    Status
	presented []pair
	acquired  map[uint32]pair
}

// New wraps an already-created swapchain handle plus its images (surface
// creation and swapchain (re)creation are out of scope per spec §1),
// allocating image_count+1 binary-semaphore pairs (§4.11).
func New(driver vk.Driver, device, handle vk.Handle, images []vk.Handle) (*Swapchain, error) {
	sc := &Swapchain{driver: driver, device: device, handle: handle, images: images, acquired: map[uint32]pair{}}
	n := len(images) + 1
	for i := 0; i < n; i++ {
		a, err := driver.CreateBinarySemaphore(device)
		if err != nil {
			sc.destroyPairsLocked()
			return nil, err
		}
		p, err := driver.CreateBinarySemaphore(device)
		if err != nil {
			driver.DestroySemaphore(device, a)
			sc.destroyPairsLocked()
			return nil, err
		}
		sc.presented = append(sc.presented, pair{acquire: a, present: p})
	}
	return sc, nil
}

func (sc *Swapchain) destroyPairsLocked() {
	for _, p := range sc.presented {
		sc.driver.DestroySemaphore(sc.device, p.acquire)
		sc.driver.DestroySemaphore(sc.device, p.present)
	}
	sc.presented = nil
}

// Close destroys the underlying swapchain object and every pooled
// semaphore pair. Any pairs still in the acquired set are destroyed too;
// the caller is responsible for having presented or abandoned them first.
func (sc *Swapchain) Close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.destroyPairsLocked()
	for _, p := range sc.acquired {
		sc.driver.DestroySemaphore(sc.device, p.acquire)
		sc.driver.DestroySemaphore(sc.device, p.present)
	}
	sc.acquired = map[uint32]pair{}
	sc.driver.DestroySwapchain(sc.device, sc.handle)
}

// Status reports the swapchain's current sticky state.
func (sc *Swapchain) Status() Status {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.status
}

// Retire marks the swapchain Retired, per §4.12: "retired... prevents
// further acquires but does not affect already-acquired images."
func (sc *Swapchain) Retire() {
	sc.mu.Lock()
	sc.status = Retired
	sc.mu.Unlock()
}

// Handle returns the opaque driver handle.
func (sc *Swapchain) Handle() vk.Handle { return sc.handle }

// Image returns the image handle at imageIndex.
func (sc *Swapchain) Image(imageIndex uint32) vk.Handle { return sc.images[imageIndex] }

// ImageCount reports how many images the swapchain owns.
func (sc *Swapchain) ImageCount() int { return len(sc.images) }

// Acquired is what AcquireNextImage returns on success (§4.11 step 4).
type Acquired struct {
	ImageIndex       uint32
	Image            vk.Handle
	AcquireSemaphore vk.Handle
	PresentSemaphore vk.Handle
}

func (sc *Swapchain) setStatusLocked(s Status) {
	if sc.status < s {
		sc.status = s
	}
}

// AcquireNextImage implements §4.11's acquire operation: take the oldest
// free pair, call the underlying acquire, translate the result, and move
// the pair into the acquired set keyed by image index.
//
// ok is false, with a nil error, exactly when no free pair was available
// or the wait expired without a terminal result (§7: "Timeout ...
// returned as a value, not an error"). timeoutNs == Indefinite retries
// internally on a transient not-ready result until a terminal one arrives
// (§7 propagation policy).
func (sc *Swapchain) AcquireNextImage(timeoutNs uint64) (Acquired, bool, error) {
	sc.mu.Lock()
	if sc.status == SurfaceLost || sc.status == Retired {
		s := sc.status
		sc.mu.Unlock()
		return Acquired{}, false, fmt.Errorf("swapchain: AcquireNextImage: swapchain is %s", s)
	}
	if len(sc.presented) == 0 {
		sc.mu.Unlock()
		return Acquired{}, false, nil
	}
	p := sc.presented[0]
	sc.presented = sc.presented[1:]
	sc.mu.Unlock()

	for {
		idx, status, err := sc.driver.AcquireNextImage(sc.device, sc.handle, timeoutNs, p.acquire)
		if err != nil {
			if ve, ok := err.(*vk.Error); ok && ve.Kind == vk.KindTimeout {
				if timeoutNs == Indefinite {
					continue
				}
				sc.mu.Lock()
				sc.presented = append(sc.presented, p)
				sc.mu.Unlock()
				return Acquired{}, false, nil
			}
			sc.mu.Lock()
			switch status {
			case vk.OutOfDate:
				sc.setStatusLocked(OutOfDate)
			case vk.SurfaceLost:
				sc.setStatusLocked(SurfaceLost)
			}
			sc.mu.Unlock()
			return Acquired{}, false, err
		}

		sc.mu.Lock()
		if status == vk.Suboptimal && sc.status == Optimal {
			sc.status = Suboptimal
		}
		sc.acquired[idx] = p
		sc.mu.Unlock()

		return Acquired{
			ImageIndex:       idx,
			Image:            sc.images[idx],
			AcquireSemaphore: p.acquire,
			PresentSemaphore: p.present,
		}, true, nil
	}
}

// Indefinite is the sentinel AcquireNextImage timeout meaning "wait
// forever," matching vk's uint64 nanosecond convention.
const Indefinite = ^uint64(0)

// Present implements §4.11's submit_present_images: for each (swapchain,
// index) pair, find and remove its acquired semaphore pair, collect
// present semaphores as waits, submit one queue_present call, translate
// each per-swapchain result, and return every pair to its swapchain's
// presented pool regardless of outcome.
func Present(p Presenter, swapchains []*Swapchain, indices []uint32) ([]Status, error) {
	if len(swapchains) != len(indices) {
		return nil, fmt.Errorf("swapchain: Present: swapchains and indices length mismatch")
	}
	pairs := make([]pair, len(swapchains))
	for i, sc := range swapchains {
		sc.mu.Lock()
		pr, ok := sc.acquired[indices[i]]
		if ok {
			delete(sc.acquired, indices[i])
		}
		sc.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("swapchain: Present: no acquired pair for image index %d", indices[i])
		}
		pairs[i] = pr
	}

	handles := make([]vk.Handle, len(swapchains))
	waits := make([]vk.Handle, len(swapchains))
	for i, sc := range swapchains {
		handles[i] = sc.handle
		waits[i] = pairs[i].present
	}

	rawStatuses, err := p.QueuePresent(handles, indices, waits)

	out := make([]Status, len(swapchains))
	for i, sc := range swapchains {
		var raw vk.SwapchainStatus
		if i < len(rawStatuses) {
			raw = rawStatuses[i]
		}
		sc.mu.Lock()
		switch raw {
		case vk.OutOfDate:
			sc.setStatusLocked(OutOfDate)
		case vk.SurfaceLost:
			sc.setStatusLocked(SurfaceLost)
		case vk.Suboptimal:
			if sc.status == Optimal {
				sc.status = Suboptimal
			}
		}
		out[i] = sc.status
		sc.presented = append(sc.presented, pairs[i])
		sc.mu.Unlock()
	}

	return out, err
}

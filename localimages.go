package tephra

import (
	"sort"

	"github.com/tephra-gpu/tephra/alias"
	"github.com/tephra-gpu/tephra/internal/ordmap"
)

// JobLocalImage is a transient image whose backing storage and base
// array layer are assigned only once its owning job is enqueued (§3
// "Job-local image").
type JobLocalImage struct {
	setup          ImageSetup
	usage          UsageRange
	backing        *Image // nil until enqueue
	baseArrayLayer uint32

	job   *Job
	index int

	pendingViews []func(img *Image, baseLayer uint32)
}

// localImageAllocator groups a job's image requests into classes (§4.3)
// and aliases each class's requests by array layer via C1.
//
// Grounded on vgpu/memory.go's texture grouping (TransferAllValuesTextures,
// grouping by Role == TextureRole), generalized from "one pool of
// textures" to per-class aliasing pools keyed by the full §4.3 tuple.
type localImageAllocator struct {
	device        *Device
	suballocation bool
	aliasByClass  bool

	classes *ordmap.Map[imageClass, *localImageClassPool]
}

type localImageClassPool struct {
	setup    ImageSetup // representative setup (format/usage/extent), for creating new backings
	backings []*localImageBacking
}

type localImageBacking struct {
	image    *Image
	layers   uint32
	packer   *alias.Allocator
	lastUsed queueTimestamps
}

func newLocalImageAllocator(d *Device, suballocation, aliasByClass bool) *localImageAllocator {
	return &localImageAllocator{device: d, suballocation: suballocation, aliasByClass: aliasByClass, classes: ordmap.New[imageClass, *localImageClassPool]()}
}

// allocateForJob assigns backing images (and base array layer) to every
// request, per §4.3. 3D images always get their own backing (no
// aliasing), matching "3D images skip aliasing (one backing per request)."
func (a *localImageAllocator) allocateForJob(reqs []*JobLocalImage, signal queueTimestamps) error {
	byClass := ordmap.New[imageClass, []*JobLocalImage]()
	var volumes []*JobLocalImage
	for _, req := range reqs {
		if req.setup.Kind == Image3D {
			volumes = append(volumes, req)
			continue
		}
		c := classOf(req.setup, a.aliasByClass)
		existing, _ := byClass.ValueByKeyTry(c)
		byClass.Add(c, append(existing, req))
	}

	for _, req := range volumes {
		img, err := a.device.createBackingImage(req.setup, "joblocal-image-volume")
		if err != nil {
			return err
		}
		req.backing = img
		req.baseArrayLayer = 0
	}

	for i := 0; i < byClass.Len(); i++ {
		class := byClass.KeyByIndex(i)
		classReqs := byClass.ValueByIndex(i)
		pool, ok := a.classes.ValueByKeyTry(class)
		if !ok {
			pool = &localImageClassPool{setup: classReqs[0].setup}
			a.classes.Add(class, pool)
		}
		if err := a.allocateClass(pool, classReqs, signal); err != nil {
			return err
		}
	}
	return nil
}

func (a *localImageAllocator) allocateClass(pool *localImageClassPool, reqs []*JobLocalImage, signal queueTimestamps) error {
	if !a.suballocation {
		return a.allocateClassOneToOne(pool, reqs, signal)
	}

	order := make([]int, len(reqs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return reqs[order[i]].setup.ArrayLayers > reqs[order[j]].setup.ArrayLayers })

	var leftovers []*JobLocalImage
	for _, i := range order {
		req := reqs[i]
		placed := false
		for _, bk := range pool.backings {
			bi, off := bk.packer.Allocate(int(req.setup.ArrayLayers), req.usage, 1)
			if bi != alias.NotFit {
				req.backing = bk.image
				req.baseArrayLayer = uint32(off)
				bk.lastUsed = signal
				placed = true
				break
			}
		}
		if !placed {
			leftovers = append(leftovers, req)
		}
	}

	for _, req := range leftovers {
		setup := pool.setup
		setup.ArrayLayers = req.setup.ArrayLayers
		img, err := a.device.createBackingImage(setup, "joblocal-image-backing")
		if err != nil {
			return err
		}
		bk := &localImageBacking{image: img, layers: setup.ArrayLayers, packer: alias.New([]int{int(setup.ArrayLayers)}), lastUsed: signal}
		pool.backings = append(pool.backings, bk)
		bi, off := bk.packer.Allocate(int(req.setup.ArrayLayers), req.usage, 1)
		if bi == alias.NotFit {
			return invalidArgument("localImageAllocator.allocateClass", "leftover does not fit its own newly created backing")
		}
		req.backing = img
		req.baseArrayLayer = uint32(off)
	}
	return nil
}

// allocateClassOneToOne is the suballocation-disabled path for one image
// class: one backing per request, reusing an existing backing of
// sufficient layer count (§4.3).
func (a *localImageAllocator) allocateClassOneToOne(pool *localImageClassPool, reqs []*JobLocalImage, signal queueTimestamps) error {
	used := make(map[*localImageBacking]bool)
	for _, req := range reqs {
		var reuse *localImageBacking
		for _, bk := range pool.backings {
			if !used[bk] && bk.layers >= req.setup.ArrayLayers {
				reuse = bk
				break
			}
		}
		if reuse != nil {
			req.backing = reuse.image
			req.baseArrayLayer = 0
			reuse.lastUsed = signal
			used[reuse] = true
			continue
		}
		setup := pool.setup
		setup.ArrayLayers = req.setup.ArrayLayers
		img, err := a.device.createBackingImage(setup, "joblocal-image-backing")
		if err != nil {
			return err
		}
		bk := &localImageBacking{image: img, layers: setup.ArrayLayers, lastUsed: signal}
		pool.backings = append(pool.backings, bk)
		used[bk] = true
		req.backing = img
		req.baseArrayLayer = 0
	}
	return nil
}

// trim removes and destroys every backing image, across every class,
// whose last-used timestamp is at or below the reached threshold.
func (a *localImageAllocator) trim(reached func(queue int) uint64) {
	for i := 0; i < a.classes.Len(); i++ {
		pool := a.classes.ValueByIndex(i)
		kept := pool.backings[:0]
		for _, bk := range pool.backings {
			if bk.lastUsed.reached(reached) {
				bk.image.Destroy()
				continue
			}
			kept = append(kept, bk)
		}
		pool.backings = kept
	}
}

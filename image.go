package tephra

import "github.com/tephra-gpu/tephra/vk"

// ImageKind re-exports vk's image kind enum (§3).
type ImageKind = vk.ImageKind

const (
	Image1D               = vk.Image1D
	Image2D               = vk.Image2D
	Image2DCubeCompatible = vk.Image2DCubeCompatible
	Image3D               = vk.Image3D
	Image3D2DArray        = vk.Image3D2DArray
)

// ImageSetup is the caller-supplied request to create a persistent or
// job-local image (§3).
type ImageSetup struct {
	Kind              ImageKind
	Width, Height     uint32
	Depth             uint32
	MipLevels         uint32
	ArrayLayers       uint32
	Samples           uint32
	Format            Format
	CompatibleFormats []Format
	Usage             BufferUsage
	Preference        MemoryPreference
	DebugName         string
}

// normalize fills in the implicit defaults (depth/layers of 1, mip count
// of 1) so downstream code never special-cases a zero value.
func (s ImageSetup) normalize() ImageSetup {
	if s.Depth == 0 {
		s.Depth = 1
	}
	if s.ArrayLayers == 0 {
		s.ArrayLayers = 1
	}
	if s.MipLevels == 0 {
		s.MipLevels = 1
	}
	if s.Samples == 0 {
		s.Samples = 1
	}
	return s
}

// imageClass is the equivalence-class key from §4.3: images sharing one
// class may share backing-image storage, aliased by array layer.
type imageClass struct {
	kind        ImageKind
	usage       BufferUsage
	width       uint32
	height      uint32
	depth       uint32
	mipLevels   uint32
	samples     uint32
	flags       uint32
	formatStamp string
}

// formatStamp computes the format_stamp component of an image class per
// §4.3: a sorted list of ≤4 compatible formats, or the compatibility
// class id when there are more than 4 or the pool aliases by class. A
// format with no registered class always falls back to the sorted list.
func formatStamp(formats []Format, aliasByClass bool) string {
	if aliasByClass && len(formats) > 0 {
		class := FormatCompatibilityClassOf(formats[0])
		if class != classUnknown {
			return "class:" + string(rune('0'+int(class)))
		}
	}
	sorted := append([]Format(nil), formats...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	if len(sorted) > 4 {
		class := FormatCompatibilityClassOf(sorted[0])
		if class != classUnknown {
			return "class:" + string(rune('0'+int(class)))
		}
	}
	out := "fmts:"
	for _, f := range sorted {
		out += string(rune(f)) + ","
	}
	return out
}

func classOf(s ImageSetup, aliasByClass bool) imageClass {
	var flags uint32
	if s.Kind == Image2DCubeCompatible {
		flags |= 1
	}
	return imageClass{
		kind: s.Kind, usage: s.Usage, width: s.Width, height: s.Height,
		depth: s.Depth, mipLevels: s.MipLevels, samples: s.Samples, flags: flags,
		formatStamp: formatStamp(append([]Format{s.Format}, s.CompatibleFormats...), aliasByClass),
	}
}

// Image is a persistent image: it owns its backing memory for its entire
// lifetime, unlike a JobLocalImage (C3).
type Image struct {
	device *Device
	setup  ImageSetup

	handle *lifeguard
	memory *lifeguard
}

// Handle returns the opaque driver handle.
func (img *Image) Handle() vk.Handle { return img.handle.handle }

// Destroy enqueues the image's handle and memory for deferred
// destruction (§3, C9).
func (img *Image) Destroy() {
	img.handle.release()
	img.memory.release()
}

package tephra

import "github.com/tephra-gpu/tephra/vk"

// Format is a caller-facing image/view pixel format, re-exported from vk
// so callers never import the vk package directly for this.
type Format = vk.Format

// FormatCompatibilityClass groups formats that may be reinterpreted on
// the same image storage, per D.2 (original_source's
// format_compatibility.hpp). Tephra-Go carries only the classes the image
// aliasing path (C3, format_stamp) needs to distinguish: formats differing
// only in numeric interpretation of the same bit layout alias freely,
// formats differing in texel size never do.
type FormatCompatibilityClass int

const (
	classUnknown FormatCompatibilityClass = iota
	class8Bit
	class16Bit
	class32Bit
	class64Bit
	class128Bit
)

// formatClassTable maps a Format to its compatibility class. Real format
// enumerants live in vk/real.go's vulkan.Format constants. The table
// starts empty: every format is classUnknown until a caller registers it
// with RegisterFormatCompatibility, and a classUnknown format is never
// aliased by class (its image class falls back to the exact format list).
var formatClassTable = map[Format]FormatCompatibilityClass{}

// FormatCompatibilityClassOf returns the class used to key image-class
// aliasing in C3. Two images alias only if FormatCompatibilityClassOf
// returns the same non-classUnknown value for both format sets, or if
// the caller-supplied compatible-format lists are identical.
func FormatCompatibilityClassOf(f Format) FormatCompatibilityClass {
	if c, ok := formatClassTable[f]; ok {
		return c
	}
	return classUnknown
}

// RegisterFormatCompatibility lets a caller add a format to
// formatClassTable (e.g. compressed formats specific to their renderer);
// it is the only way a format gets a class, matching spec §4.3's "(b) the image's
// format-compatibility-class id" path.
func RegisterFormatCompatibility(f Format, class FormatCompatibilityClass) {
	formatClassTable[f] = class
}

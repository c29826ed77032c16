package vk

import "fmt"

// Kind classifies a driver failure per spec §7's error taxonomy, letting
// callers distinguish conditions such as DeviceLost or OutOfMemory from
// programmer errors without parsing strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindOutOfHostMemory
	KindOutOfDeviceMemory
	KindDeviceLost
	KindSurfaceLost
	KindOutOfDate
	KindTimeout
	KindValidation
)

// Error wraps a driver result with its Kind and the operation that
// produced it, per spec §9's "Exceptions" note generalizing the
// teacher's IfPanic(NewError(ret)) convention into a returned error.
type Error struct {
	Kind Kind
	Op   string
	Code int32
}

func (e *Error) Error() string {
	return fmt.Sprintf("vk: %s: result %d (%s)", e.Op, e.Code, e.Kind)
}

func (k Kind) String() string {
	switch k {
	case KindOutOfHostMemory:
		return "out of host memory"
	case KindOutOfDeviceMemory:
		return "out of device memory"
	case KindDeviceLost:
		return "device lost"
	case KindSurfaceLost:
		return "surface lost"
	case KindOutOfDate:
		return "out of date"
	case KindTimeout:
		return "timeout"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// errTimeout is returned by AcquireNextImage when the driver reports
// VK_TIMEOUT/VK_NOT_READY rather than a hard failure; callers treat it
// distinctly from an OutOfDate/SurfaceLost condition (spec §4.11).
var errTimeout = &Error{Kind: KindTimeout, Op: "AcquireNextImage"}

// resultCoder is implemented by the real goki/vulkan Result type via its
// underlying int32 conversion; kept narrow so this file has no import on
// vulkan itself, letting FromResult serve both Real and any other driver
// that surfaces raw result codes.
type resultCoder interface {
	~int32
}

// FromResult classifies a raw driver result code into a Kind-tagged
// Error. The mapping follows the Vulkan result codes relevant to the
// subset of the API Tephra-Go's Driver interface exposes (spec §6/§7).
func FromResult[T resultCoder](code T, op string) error {
	c := int32(code)
	k := KindUnknown
	switch c {
	case -1: // VK_ERROR_OUT_OF_HOST_MEMORY
		k = KindOutOfHostMemory
	case -2: // VK_ERROR_OUT_OF_DEVICE_MEMORY
		k = KindOutOfDeviceMemory
	case -4: // VK_ERROR_DEVICE_LOST
		k = KindDeviceLost
	case -1000000000: // VK_ERROR_SURFACE_LOST_KHR (goki/vulkan constant value differs; see real.go callers for symbolic use)
		k = KindSurfaceLost
	case -1000001004: // VK_ERROR_OUT_OF_DATE_KHR
		k = KindOutOfDate
	case 2: // VK_TIMEOUT
		k = KindTimeout
	default:
		k = KindUnknown
	}
	return &Error{Kind: k, Op: op, Code: c}
}

// FromVkResult is a concrete, non-generic form of FromResult for call
// sites that hold a plain int32 result code rather than a vulkan.Result
// (e.g. the fake driver), so they can use it without the generic
// instantiation.
func FromVkResult(code int32, op string) error {
	return FromResult(code, op)
}

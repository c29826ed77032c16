package tephra

import (
	"fmt"

	"github.com/tephra-gpu/tephra/vk"
)

// Kind classifies an Error per spec §7's taxonomy (kinds, not type
// names): callers switch on Kind rather than parsing strings, mirroring
// the teacher's IfPanic(NewError(ret)) translation but without the panic.
type Kind int

const (
	KindInvalidArgument Kind = iota
	KindOutOfDeviceMemory
	KindOutOfHostMemory
	KindDeviceLost
	KindSurfaceLost
	KindOutOfDate
	KindUnsupportedOperation
	KindRuntimeError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindOutOfDeviceMemory:
		return "out of device memory"
	case KindOutOfHostMemory:
		return "out of host memory"
	case KindDeviceLost:
		return "device lost"
	case KindSurfaceLost:
		return "surface lost"
	case KindOutOfDate:
		return "out of date"
	case KindUnsupportedOperation:
		return "unsupported operation"
	default:
		return "runtime error"
	}
}

// Error is the one error type the whole package returns; Kind lets
// callers branch, Op/Err keep the underlying cause for diagnostics.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tephra: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("tephra: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func invalidArgument(op, msg string) error {
	return newError(KindInvalidArgument, op, fmt.Errorf("%s", msg))
}

// fromDriverErr classifies an error surfaced by a vk.Driver call into the
// §7 taxonomy. This is the pure classification step; Device.fromDriverErr
// wraps this and additionally latches KindDeviceLost onto the Device
// (see device.go). The swapchain package handles its own OutOfDate/
// SurfaceLost stickiness on the Swapchain directly.
func fromDriverErr(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindRuntimeError
	if ve, ok := err.(*vk.Error); ok {
		switch ve.Kind {
		case vk.KindOutOfDeviceMemory:
			kind = KindOutOfDeviceMemory
		case vk.KindOutOfHostMemory:
			kind = KindOutOfHostMemory
		case vk.KindDeviceLost:
			kind = KindDeviceLost
		case vk.KindSurfaceLost:
			kind = KindSurfaceLost
		case vk.KindOutOfDate:
			kind = KindOutOfDate
		case vk.KindTimeout:
			kind = KindRuntimeError
		}
	}
	return newError(kind, op, err)
}

package compute

import (
	"errors"
	"fmt"
)

var (
	ErrKernelNotFound = errors.New("compute: kernel not found")
	ErrNotBound       = errors.New("compute: resource not bound")
	ErrAllocation     = errors.New("compute: allocation failed")
	ErrBindingKind    = errors.New("compute: binding kind mismatch")
	ErrDispatchLimit  = errors.New("compute: dispatch exceeds device limit")
	ErrReleased       = errors.New("compute: resource already released")
	ErrRecordStride   = errors.New("compute: record stride mismatch")
)

// KernelNotFoundError reports a kernel name that is not a compute entry point
// of the program it was looked up in.
type KernelNotFoundError struct {
	Program string
	Name    string
}

func (e *KernelNotFoundError) Error() string {
	return fmt.Sprintf("compute: kernel %q not found in program %q", e.Name, e.Program)
}

func (e *KernelNotFoundError) Is(target error) bool { return target == ErrKernelNotFound }

// NotBoundError reports an operation on a name with nothing bound to it.
type NotBoundError struct {
	Kernel string
	Name   string
}

func (e *NotBoundError) Error() string {
	return fmt.Sprintf("compute: %q is not bound on kernel %q", e.Name, e.Kernel)
}

func (e *NotBoundError) Is(target error) bool { return target == ErrNotBound }

// AllocationError reports a buffer request the device cannot satisfy.
type AllocationError struct {
	Name   string
	Count  int
	Stride int
	Reason string
	// Err is the device error, when the device itself refused the allocation.
	Err error
}

func (e *AllocationError) Error() string {
	msg := fmt.Sprintf("compute: cannot allocate %q (%d x %d bytes): %s", e.Name, e.Count, e.Stride, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AllocationError) Is(target error) bool { return target == ErrAllocation }

func (e *AllocationError) Unwrap() error { return e.Err }

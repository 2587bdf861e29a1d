package framebuffer

import (
	"errors"
	"fmt"
)

// Frame buffer errors.
var (
	// ErrAllocationFailed matches every *AllocationError.
	ErrAllocationFailed = errors.New("framebuffer: allocation failed")

	// ErrInvalidSize is returned for a size with a zero dimension.
	ErrInvalidSize = errors.New("framebuffer: width and height must be positive")

	// ErrUnbalancedUnlock is returned by Unlock on a buffer with no references.
	ErrUnbalancedUnlock = errors.New("framebuffer: unlock without matching lock")

	// ErrDestroyed is returned when a destroyed buffer is used.
	ErrDestroyed = errors.New("framebuffer: buffer destroyed")

	// ErrBufferInUse is returned when a buffer with live references is
	// returned to a pool.
	ErrBufferInUse = errors.New("framebuffer: buffer still referenced")

	// ErrAlreadyIdle is returned when a buffer already in the pool is released again.
	ErrAlreadyIdle = errors.New("framebuffer: buffer already idle")

	// ErrForeignBuffer is returned when a buffer is released to a pool that did not create it.
	ErrForeignBuffer = errors.New("framebuffer: buffer belongs to another pool")

	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("framebuffer: pool closed")

	// ErrShortFrame is returned when upload data is smaller than the buffer.
	ErrShortFrame = errors.New("framebuffer: frame data too short")
)

// Step identifies a stage of frame buffer creation.
type Step int

// Creation steps, in order.
const (
	StepRenderTarget Step = iota + 1
	StepPixelStorage
	StepTexture
	StepSampler
	StepColorTarget
	StepCompleteness
)

// String returns the step name.
func (s Step) String() string {
	switch s {
	case StepRenderTarget:
		return "render target"
	case StepPixelStorage:
		return "pixel storage"
	case StepTexture:
		return "texture"
	case StepSampler:
		return "sampler"
	case StepColorTarget:
		return "color target"
	case StepCompleteness:
		return "completeness check"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// AllocationError reports a failed frame buffer creation.
//
// The buffer could not be built and every resource allocated before the
// failing step has been released. The error is fatal for that buffer; the
// caller decides whether to stop the pipeline.
type AllocationError struct {
	Step Step
	Tag  string
	Size Size
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("framebuffer: allocate %q %v: %s: %v", e.Tag, e.Size, e.Step, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AllocationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrAllocationFailed) true for every AllocationError.
func (e *AllocationError) Is(target error) bool {
	return target == ErrAllocationFailed
}

// IsFatal reports whether err contains an *AllocationError.
func IsFatal(err error) bool {
	var ae *AllocationError
	return errors.As(err, &ae)
}

// Package framebuffer provides GPU-resident frame buffers with explicit
// reference counting, and the pool they are recycled through.
//
// A FrameBuffer is a BGRA texture plus the CPU/GPU-shared pixel storage it
// is uploaded from, a linear clamp-to-edge sampler, and a color target that
// can be bound for rendering. Buffers are checked out of a Pool with
// Acquire, which hands them out holding one reference. Every stage that keeps
// the buffer calls Lock, and Unlock when done; when the count drops to zero
// the buffer returns to its pool by itself.
//
// All reference-count changes and GPU calls run on the processing context's
// GPU timeline. Methods without a suffix submit themselves there and block.
// Code that is already running on the timeline holds a *processing.Scope and
// must use the In variants (LockIn, UnlockIn, AcquireIn, ...) instead.
//
// Allocation failures are reported as *AllocationError. They are fatal for
// the buffer being created, never for the process.
package framebuffer

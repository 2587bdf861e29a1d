// Package processing is the GPU side of framecap: the processing context
// that owns the GPU timeline.
//
// Every wgpu/hal call made by framecap runs on one goroutine. Callers hand
// work to it with Context.Sync, which blocks until the work is done. The
// work receives a *Scope: the scoped "current context" for that call. The
// scope grants access to the device, the queue, the texture cache and the
// render-target binding, and it expires when the work returns, on every exit
// path including errors and panics.
//
// # Texture Cache
//
// TextureCache derives GPU textures from PixelStorage, a CPU/GPU-shared
// block of BGRA pixels. The host side is a byte slice that capture code
// writes into; the GPU side is a hal.Buffer. Upload pushes the host bytes to
// the buffer and the texture in one step. The cache also shares samplers
// and keeps live-resource counts so leaks show up in Stats.
//
// # Host Integration
//
// FromProvider attaches a Context to a GPU device owned by a host
// application through gpucontext.DeviceProvider, the same way gg shares the
// gogpu device. The host keeps ownership of the device.
package processing

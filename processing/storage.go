package processing

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// BytesPerPixel is the size of one pixel in the canonical BGRA layout.
const BytesPerPixel = 4

// Format is the canonical pixel format of every texture the cache creates.
const Format = gputypes.TextureFormatBGRA8Unorm

// PixelStorage is a block of BGRA pixels shared between the CPU and the GPU.
//
// The host side is a tightly packed byte slice, rows top to bottom. The GPU
// side is a copyable hal.Buffer of the same size. Host writes become visible
// to the GPU on the next TextureCache.Upload.
type PixelStorage struct {
	buffer hal.Buffer
	host   []byte
	width  uint32
	height uint32
	label  string

	released bool
}

// Bytes returns the host pixel memory. Row i starts at i*Stride().
func (p *PixelStorage) Bytes() []byte {
	return p.host
}

// Stride returns the number of bytes per row.
func (p *PixelStorage) Stride() int {
	return int(p.width) * BytesPerPixel
}

// Width returns the width in pixels.
func (p *PixelStorage) Width() uint32 { return p.width }

// Height returns the height in pixels.
func (p *PixelStorage) Height() uint32 { return p.height }

// Len returns the storage size in bytes.
func (p *PixelStorage) Len() int { return len(p.host) }

// Buffer returns the GPU side of the storage.
func (p *PixelStorage) Buffer() hal.Buffer { return p.buffer }

// Label returns the diagnostic label.
func (p *PixelStorage) Label() string { return p.label }

// Texture is a cached GPU texture backed by a PixelStorage, together with
// the view used to sample it or render into it.
type Texture struct {
	texture hal.Texture
	view    hal.TextureView
	storage *PixelStorage
	width   uint32
	height  uint32
	format  gputypes.TextureFormat
	label   string

	released bool
}

// Raw returns the hal texture.
func (t *Texture) Raw() hal.Texture { return t.texture }

// View returns the hal texture view.
func (t *Texture) View() hal.TextureView { return t.view }

// Storage returns the pixel storage the texture was derived from.
func (t *Texture) Storage() *PixelStorage { return t.storage }

// Width returns the width in pixels.
func (t *Texture) Width() uint32 { return t.width }

// Height returns the height in pixels.
func (t *Texture) Height() uint32 { return t.height }

// Format returns the texture format.
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// Label returns the diagnostic label.
func (t *Texture) Label() string { return t.label }

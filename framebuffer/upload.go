package framebuffer

import (
	"fmt"
	"image"

	"github.com/gogpu/framecap/internal/pixel"
	"github.com/gogpu/framecap/processing"
)

// UploadBGRA copies a BGRA frame into the buffer and pushes it to the GPU.
// stride is the number of bytes per source row; rows beyond the buffer's
// width are ignored.
func (fb *FrameBuffer) UploadBGRA(pix []byte, stride int) error {
	return fb.ctx.Sync(func(s *processing.Scope) error {
		return fb.UploadBGRAIn(s, pix, stride)
	})
}

// UploadBGRAIn is UploadBGRA for work already on the GPU timeline.
func (fb *FrameBuffer) UploadBGRAIn(s *processing.Scope, pix []byte, stride int) error {
	if !s.Valid() {
		return processing.ErrScopeExpired
	}
	if fb.res.released {
		return ErrDestroyed
	}
	dst := fb.res.storage
	row := dst.Stride()
	h := int(fb.size.Height)
	if stride < row {
		return fmt.Errorf("%w: stride %d < row %d", ErrShortFrame, stride, row)
	}
	if need := (h-1)*stride + row; len(pix) < need {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrShortFrame, len(pix), need)
	}

	out := dst.Bytes()
	if stride == row {
		copy(out, pix[:row*h])
	} else {
		for y := 0; y < h; y++ {
			copy(out[y*row:(y+1)*row], pix[y*stride:y*stride+row])
		}
	}
	return s.TextureCache().Upload(s, fb.res.texture)
}

// UploadImage scales img to the buffer size with bilinear filtering,
// converts it to BGRA and uploads it. The conversion runs on the calling
// goroutine; only the copy and upload run on the GPU timeline.
func (fb *FrameBuffer) UploadImage(img image.Image) error {
	pix := pixel.BGRA(img, int(fb.size.Width), int(fb.size.Height))
	return fb.UploadBGRA(pix, int(fb.size.Width)*processing.BytesPerPixel)
}

// Package pixel converts images into the canonical tightly packed BGRA
// layout frames and frame buffers use.
package pixel

import (
	"image"

	"golang.org/x/image/draw"
)

// BGRA renders img into a width×height BGRA buffer with 4*width bytes per
// row. An image of a different size is scaled bilinearly.
func BGRA(img image.Image, width, height int) []byte {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if img.Bounds().Size() == dst.Rect.Size() {
		draw.Draw(dst, dst.Rect, img, img.Bounds().Min, draw.Src)
	} else {
		draw.BiLinear.Scale(dst, dst.Rect, img, img.Bounds(), draw.Src, nil)
	}
	SwapRB(dst.Pix)
	return dst.Pix
}

// SwapRB swaps the red and blue channels of packed 4-byte pixels in place,
// turning RGBA into BGRA and back.
func SwapRB(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}

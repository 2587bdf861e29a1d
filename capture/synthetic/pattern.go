package synthetic

var bars = [...][3]byte{ // B, G, R
	{0xff, 0xff, 0xff},
	{0x00, 0xff, 0xff},
	{0xff, 0xff, 0x00},
	{0x00, 0xff, 0x00},
	{0xff, 0x00, 0xff},
	{0x00, 0x00, 0xff},
	{0xff, 0x00, 0x00},
	{0x00, 0x00, 0x00},
}

// Pattern renders color bars shifted left by seq pixels into a tightly
// packed BGRA buffer.
func Pattern(width, height int, seq uint64) []byte {
	stride := width * 4
	pix := make([]byte, stride*height)
	if width == 0 || height == 0 {
		return pix
	}

	// First row, then copy it down.
	shift := int(seq % uint64(width))
	for x := 0; x < width; x++ {
		bar := bars[((x+shift)%width)*len(bars)/width]
		i := x * 4
		pix[i+0] = bar[0]
		pix[i+1] = bar[1]
		pix[i+2] = bar[2]
		pix[i+3] = 0xff
	}
	for y := 1; y < height; y++ {
		copy(pix[y*stride:(y+1)*stride], pix[:stride])
	}
	return pix
}

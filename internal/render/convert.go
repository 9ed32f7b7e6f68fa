package render

import (
	"fmt"
	"image"
)

// BT.601 full-range coefficients scaled by 1024.
const (
	crToR = 1436 // 1.402
	cbToG = 352  // 0.344
	crToG = 731  // 0.714
	cbToB = 1763 // 1.722
)

// NV12ToRGBA converts a two-plane NV12 frame to RGBA, keeping every scale-th
// pixel in both directions. dst is reused when its bounds match, otherwise a
// new image is allocated.
func NV12ToRGBA(f Frame, scale int, dst *image.RGBA) (*image.RGBA, error) {
	if scale < 1 {
		scale = 1
	}
	if len(f.Planes) < 2 {
		return nil, fmt.Errorf("nv12: need 2 planes, got %d", len(f.Planes))
	}
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("nv12: invalid size %dx%d", f.Width, f.Height)
	}

	luma, chroma := f.Planes[0], f.Planes[1]
	yStride := strideOf(luma, f.Width)
	cStride := strideOf(chroma, f.Width)
	if len(luma.Data) < yStride*(f.Height-1)+f.Width {
		return nil, fmt.Errorf("nv12: luma plane too short (%d bytes)", len(luma.Data))
	}
	if len(chroma.Data) < cStride*((f.Height+1)/2-1)+(f.Width+1)&^1 {
		return nil, fmt.Errorf("nv12: chroma plane too short (%d bytes)", len(chroma.Data))
	}

	w, h := f.Width/scale, f.Height/scale
	bounds := image.Rect(0, 0, w, h)
	if dst == nil || dst.Bounds() != bounds {
		dst = image.NewRGBA(bounds)
	}

	for oy := 0; oy < h; oy++ {
		y := oy * scale
		yRow := luma.Data[y*yStride:]
		cRow := chroma.Data[(y/2)*cStride:]
		out := dst.Pix[oy*dst.Stride:]
		for ox := 0; ox < w; ox++ {
			x := ox * scale
			c := x &^ 1
			yy := int(yRow[x])
			cb := int(cRow[c]) - 128
			cr := int(cRow[c+1]) - 128

			o := ox * 4
			out[o] = clamp(yy + (crToR*cr)>>10)
			out[o+1] = clamp(yy - (cbToG*cb+crToG*cr)>>10)
			out[o+2] = clamp(yy + (cbToB*cb)>>10)
			out[o+3] = 0xff
		}
	}
	return dst, nil
}

func strideOf(p Plane, width int) int {
	if p.Stride > 0 {
		return p.Stride
	}
	return width
}

func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

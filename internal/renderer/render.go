package renderer

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// Render draws src into a new w×h frame using a fit transform: the image is
// scaled uniformly until it is fully contained, and the remaining area is
// opaque black. Output is byte-identical for identical inputs.
func Render(src image.Image, w, h int) (*Frame, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no image", ErrImageLoad)
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty image %v", ErrImageLoad, b)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: invalid target size %dx%d", ErrImageLoad, w, h)
	}

	f := newFrame(w, h)
	fillOpaque(f.img, 0)

	dst := FitRect(b.Dx(), b.Dy(), w, h)
	xdraw.CatmullRom.Scale(f.img, dst, src, b, xdraw.Over, nil)
	return f, nil
}

// FitRect returns the centered rectangle a srcW×srcH image occupies when
// fitted into a w×h frame.
func FitRect(srcW, srcH, w, h int) image.Rectangle {
	// Compare aspect ratios in integers: srcW/srcH > w/h.
	if int64(srcW)*int64(h) > int64(srcH)*int64(w) {
		height := int((int64(w)*int64(srcH)*2 + int64(srcW)) / (int64(srcW) * 2))
		if height < 1 {
			height = 1
		}
		y := (h - height) / 2
		return image.Rect(0, y, w, y+height)
	}

	width := int((int64(h)*int64(srcW)*2 + int64(srcH)) / (int64(srcH) * 2))
	if width < 1 {
		width = 1
	}
	x := (w - width) / 2
	return image.Rect(x, 0, x+width, h)
}

// Package renderer rasterizes photos and title cards into fixed-size,
// encoder-ready frame buffers.
package renderer

import (
	"errors"
	"image"
	"sync/atomic"

	"github.com/ivlev/slidecast/internal/system"
)

// ErrImageLoad is returned when a source cannot be decoded or rendered.
var ErrImageLoad = errors.New("image load failed")

var frameSeq atomic.Uint64

// Frame is a rendered, immutable RGBA buffer shared by reference count.
//
// The renderer hands out a Frame holding one reference. Every consumer that
// keeps the frame past the current call (an encoder queue, for instance)
// takes its own reference with Retain and drops it with Release. The pixel
// buffer goes back to the pool when the last reference is released.
type Frame struct {
	id     uint64
	img    *image.RGBA
	refs   atomic.Int32
	pooled bool
}

func newFrame(w, h int) *Frame {
	f := &Frame{
		id:     frameSeq.Add(1),
		img:    system.GetImage(image.Rect(0, 0, w, h)),
		pooled: true,
	}
	f.refs.Store(1)
	return f
}

// NewFrame wraps an existing RGBA image. The image is not returned to the
// pool on release and must not be modified afterwards.
func NewFrame(img *image.RGBA) *Frame {
	f := &Frame{id: frameSeq.Add(1), img: img}
	f.refs.Store(1)
	return f
}

// ID is unique per rendered frame, even when pool buffers are reused.
func (f *Frame) ID() uint64 { return f.id }

// Image returns the pixels for reading. It is nil once the frame is released.
func (f *Frame) Image() *image.RGBA { return f.img }

// Size returns width and height in pixels.
func (f *Frame) Size() (int, int) {
	return f.img.Rect.Dx(), f.img.Rect.Dy()
}

// Retain adds a reference and returns f.
func (f *Frame) Retain() *Frame {
	if f.refs.Add(1) <= 1 {
		panic("renderer: retain of released frame")
	}
	return f
}

// Release drops a reference.
func (f *Frame) Release() {
	n := f.refs.Add(-1)
	switch {
	case n == 0:
		img := f.img
		f.img = nil
		if f.pooled {
			system.PutImage(img)
		}
	case n < 0:
		panic("renderer: frame released too many times")
	}
}

// Refs reports the current reference count.
func (f *Frame) Refs() int { return int(f.refs.Load()) }

// fillOpaque paints the whole buffer in an opaque gray level.
func fillOpaque(img *image.RGBA, v uint8) {
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = v
		pix[i+1] = v
		pix[i+2] = v
		pix[i+3] = 0xff
	}
}

// Black returns a new opaque black frame of the given size.
func Black(w, h int) *Frame {
	f := newFrame(w, h)
	fillOpaque(f.img, 0)
	return f
}

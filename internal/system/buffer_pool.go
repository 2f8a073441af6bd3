package system

import (
	"image"
	"sync"
)

// ImagePool recycles *image.RGBA frame buffers of a given size so that a
// long slideshow does not allocate a fresh frame per photo.
type ImagePool struct {
	pools map[image.Rectangle]*sync.Pool
	mu    sync.RWMutex
}

// NewImagePool creates an empty pool.
func NewImagePool() *ImagePool {
	return &ImagePool{pools: make(map[image.Rectangle]*sync.Pool)}
}

var globalPool = NewImagePool()

// GetImage returns a buffer of the given bounds from the shared pool.
// Its contents are undefined.
func GetImage(rect image.Rectangle) *image.RGBA {
	return globalPool.Get(rect)
}

// PutImage hands a buffer back to the shared pool.
func PutImage(img *image.RGBA) {
	globalPool.Put(img)
}

// Get returns a buffer with exactly rect as its bounds.
func (p *ImagePool) Get(rect image.Rectangle) *image.RGBA {
	p.mu.RLock()
	pool, exists := p.pools[rect]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		pool, exists = p.pools[rect]
		if !exists {
			pool = &sync.Pool{
				New: func() any {
					return image.NewRGBA(rect)
				},
			}
			p.pools[rect] = pool
		}
		p.mu.Unlock()
	}

	return pool.Get().(*image.RGBA)
}

// Put returns img to the pool for its bounds. Sub-images and buffers whose
// layout does not match a fresh image of the same bounds are dropped.
func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil || !packed(img) {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[img.Rect]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
	}
}

// packed reports whether img owns a tightly packed buffer for its bounds, as
// image.NewRGBA would allocate.
func packed(img *image.RGBA) bool {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	return img.Stride == 4*w && len(img.Pix) == 4*w*h
}

// Package source describes the still images a slideshow is built from.
package source

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotStill is returned when a media entry refers to something other than a
// still image, such as a video clip.
var ErrNotStill = errors.New("source is not a still image")

// Source is an opaque, read-only handle to one still image.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string
	// Still reports whether the source is a still image.
	Still() bool
	// Load decodes the image.
	Load() (image.Image, error)
}

// MediaEntry is one photo of the slideshow in caller order.
type MediaEntry struct {
	ID     string
	Source Source
	// Duration overrides the global photo duration when non-zero.
	Duration time.Duration
}

// CheckStill verifies every entry is a still image.
func CheckStill(media []MediaEntry) error {
	for i, m := range media {
		if m.Source == nil {
			return fmt.Errorf("media %d has no source: %w", i, ErrNotStill)
		}
		if !m.Source.Still() {
			return fmt.Errorf("media %d (%s): %w", i, m.Source.Name(), ErrNotStill)
		}
	}
	return nil
}

var videoExtensions = []string{".mp4", ".mov", ".m4v", ".avi", ".mkv", ".webm", ".3gp"}

func isVideoPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range videoExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// MemoryImage is a Source backed by an already decoded image.
type MemoryImage struct {
	ID    string
	Image image.Image
}

func (m *MemoryImage) Name() string { return m.ID }
func (m *MemoryImage) Still() bool  { return true }

func (m *MemoryImage) Load() (image.Image, error) {
	if m.Image == nil {
		return nil, fmt.Errorf("%s: no image data", m.ID)
	}
	return m.Image, nil
}

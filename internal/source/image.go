package source

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ivlev/slidecast/internal/system"
)

// FileImage is a Source read from a file on disk.
type FileImage struct {
	Path string
}

func (f *FileImage) Name() string { return filepath.Base(f.Path) }

func (f *FileImage) Still() bool { return !isVideoPath(f.Path) }

func (f *FileImage) Load() (image.Image, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Name(), err)
	}
	return img, nil
}

// Dimensions reads only the image header.
func (f *FileImage) Dimensions() (int, int, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// Collect turns a path into ordered media entries: a directory yields its
// images sorted by name, a PDF yields one entry per page, any other file
// yields itself.
func Collect(path string, dpi int) ([]MediaEntry, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !fi.IsDir() {
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			return CollectPDF(path, dpi)
		}
		return []MediaEntry{{ID: filepath.Base(path), Source: &FileImage{Path: path}}}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && system.IsImagePath(entry.Name()) {
			paths = append(paths, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(paths)

	media := make([]MediaEntry, 0, len(paths))
	for _, p := range paths {
		media = append(media, MediaEntry{ID: filepath.Base(p), Source: &FileImage{Path: p}})
	}
	return media, nil
}

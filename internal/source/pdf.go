package source

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
)

// DefaultDPI is used when rasterizing PDF pages without an explicit DPI.
const DefaultDPI = 150

// PDFPage is a Source that rasterizes one page of a PDF album.
type PDFPage struct {
	Path  string
	Index int
	DPI   int
}

func (p *PDFPage) Name() string {
	return fmt.Sprintf("%s#%d", filepath.Base(p.Path), p.Index+1)
}

func (p *PDFPage) Still() bool { return true }

// Load opens its own document so pages can be rendered from any goroutine.
func (p *PDFPage) Load() (image.Image, error) {
	doc, err := fitz.New(p.Path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	dpi := p.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return doc.ImageDPI(p.Index, float64(dpi))
}

// CollectPDF returns one media entry per page of the PDF at path.
func CollectPDF(path string, dpi int) ([]MediaEntry, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	n := doc.NumPage()
	media := make([]MediaEntry, 0, n)
	for i := 0; i < n; i++ {
		page := &PDFPage{Path: path, Index: i, DPI: dpi}
		media = append(media, MediaEntry{ID: page.Name(), Source: page})
	}
	return media, nil
}

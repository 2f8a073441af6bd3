package renderer

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Title card geometry at the 1080p reference scale. Other sizes scale by
// the short side.
const (
	refShortSide     = 1080.0
	cardWidthRatio   = 0.7
	cardHeightRef    = 150.0
	cornerRadiusRef  = 20.0
	shadowOffsetRef  = 4.0
	shadowBlurRef    = 20.0
	shadowOpacity    = 0.3
	textInsetRef     = 30.0
	landscapeFontRef = 56.0
	portraitFontRef  = 48.0
	minFontRatio     = 0.5
)

var boldFont = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(gobold.TTF)
})

// FontSize returns the title font size for a frame: landscape frames get the
// larger tier.
func FontSize(w, h int) float64 {
	size := portraitFontRef
	if w > h {
		size = landscapeFontRef
	}
	return size * scaleFor(w, h)
}

func scaleFor(w, h int) float64 {
	return float64(min(w, h)) / refShortSide
}

// RenderIntro draws the title card: a white rounded card with a soft shadow,
// centered on black, holding the word-wrapped text in bold black.
func RenderIntro(text string, w, h int) (*Frame, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: invalid target size %dx%d", ErrImageLoad, w, h)
	}
	fnt, err := boldFont()
	if err != nil {
		return nil, fmt.Errorf("%w: parse font: %v", ErrImageLoad, err)
	}

	s := scaleFor(w, h)
	cw := float64(w) * cardWidthRatio
	ch := cardHeightRef * s
	card := rectF{
		x: (float64(w) - cw) / 2,
		y: (float64(h) - ch) / 2,
		w: cw,
		h: ch,
	}
	radius := cornerRadiusRef * s

	f := newFrame(w, h)
	fillOpaque(f.img, 0)

	shadow := card
	shadow.y += shadowOffsetRef * s
	blur := shadowBlurRef * s
	paintRoundRect(f.img, shadow, radius, blur, color.RGBA{A: 0xff}, shadowOpacity)
	paintRoundRect(f.img, card, radius, 0, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, 1)

	if text = strings.TrimSpace(text); text != "" {
		inset := textInsetRef * s
		if err := drawTitle(f.img, fnt, text, FontSize(w, h), card, inset); err != nil {
			f.Release()
			return nil, err
		}
	}
	return f, nil
}

type rectF struct{ x, y, w, h float64 }

// drawTitle lays out text centered in the card. The font steps down when the
// wrapped text would not fit the card height.
func drawTitle(dst draw.Image, fnt *opentype.Font, text string, size float64, card rectF, inset float64) error {
	maxWidth := fixed.I(int(card.w - 2*inset))
	minSize := size * minFontRatio

	for {
		face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
			Size:    size,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return fmt.Errorf("%w: font face: %v", ErrImageLoad, err)
		}

		lines := WrapText(face, text, maxWidth)
		m := face.Metrics()
		block := m.Height.Mul(fixed.I(len(lines)))
		if block.Ceil() <= int(card.h) || size <= minSize {
			drawLines(dst, face, lines, card)
			return face.Close()
		}
		face.Close()
		size = math.Max(minSize, size*0.9)
	}
}

func drawLines(dst draw.Image, face font.Face, lines []string, card rectF) {
	m := face.Metrics()
	block := m.Height.Mul(fixed.I(len(lines)))
	top := fixed.Int26_6(card.y*64) + (fixed.Int26_6(card.h*64)-block)/2

	d := &font.Drawer{Dst: dst, Src: image.Black, Face: face}
	for i, line := range lines {
		adv := d.MeasureString(line)
		x := fixed.Int26_6(card.x*64) + (fixed.Int26_6(card.w*64)-adv)/2
		y := top + m.Height.Mul(fixed.I(i)) + m.Ascent
		d.Dot = fixed.Point26_6{X: x, Y: y}
		d.DrawString(line)
	}
}

// WrapText breaks text into lines no wider than maxWidth, splitting on
// spaces and, for words that are too long on their own, between runes.
func WrapText(face font.Face, text string, maxWidth fixed.Int26_6) []string {
	var lines []string
	var cur string
	for _, word := range strings.Fields(text) {
		candidate := word
		if cur != "" {
			candidate = cur + " " + word
		}
		if font.MeasureString(face, candidate) <= maxWidth {
			cur = candidate
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
			cur = ""
		}
		for font.MeasureString(face, word) > maxWidth {
			head, tail := splitWord(face, word, maxWidth)
			lines = append(lines, head)
			word = tail
		}
		cur = word
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func splitWord(face font.Face, word string, maxWidth fixed.Int26_6) (string, string) {
	runes := []rune(word)
	n := 1
	for n < len(runes) && font.MeasureString(face, string(runes[:n+1])) <= maxWidth {
		n++
	}
	return string(runes[:n]), string(runes[n:])
}

// paintRoundRect composites a rounded rectangle of color c. A positive blur
// softens the edge over that many pixels, used for the drop shadow.
func paintRoundRect(dst *image.RGBA, r rectF, radius, blur float64, c color.RGBA, opacity float64) {
	pad := blur/2 + 1
	bounds := image.Rect(
		int(math.Floor(r.x-pad)), int(math.Floor(r.y-pad)),
		int(math.Ceil(r.x+r.w+pad)), int(math.Ceil(r.y+r.h+pad)),
	).Intersect(dst.Rect)
	if bounds.Empty() {
		return
	}

	cx, cy := r.x+r.w/2, r.y+r.h/2
	hw, hh := r.w/2, r.h/2
	radius = math.Min(radius, math.Min(hw, hh))

	mask := image.NewAlpha(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			d := roundRectDistance(float64(x)+0.5-cx, float64(y)+0.5-cy, hw, hh, radius)
			var cov float64
			if blur > 0 {
				cov = 1 - smoothstep(-blur/2, blur/2, d)
			} else {
				cov = clamp01(0.5 - d)
			}
			mask.SetAlpha(x, y, color.Alpha{A: uint8(math.Round(cov * opacity * 255))})
		}
	}
	draw.DrawMask(dst, bounds, image.NewUniform(c), image.Point{}, mask, bounds.Min, draw.Over)
}

// roundRectDistance is the signed distance from (px, py), relative to the
// rectangle center, to a rounded rectangle edge. Negative inside.
func roundRectDistance(px, py, hw, hh, radius float64) float64 {
	qx := math.Abs(px) - (hw - radius)
	qy := math.Abs(py) - (hh - radius)
	outside := math.Hypot(math.Max(qx, 0), math.Max(qy, 0))
	inside := math.Min(math.Max(qx, qy), 0)
	return outside + inside - radius
}

func smoothstep(e0, e1, x float64) float64 {
	t := clamp01((x - e0) / (e1 - e0))
	return t * t * (3 - 2*t)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

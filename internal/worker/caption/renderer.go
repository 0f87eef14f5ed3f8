// Package caption rasterizes caption text into a transparent PNG with an
// outlined fill and a blurred drop shadow.
package caption

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"televid/internal/config"
	"televid/internal/pkg/errors"
)

// Asset is a rendered caption raster.
type Asset struct {
	Path string
	// Width and Height are the canvas size, including blur padding.
	Width  int
	Height int
	// TextWidth and TextHeight are the measured text block.
	TextWidth  int
	TextHeight int
}

type Renderer struct {
	cfg     config.Caption
	text    color.Color
	outline color.Color
	shadow  color.Color
	face    font.Face
}

// New validates the configured colors. The font is loaded on first use so a
// missing font fails jobs rather than startup.
func New(cfg config.Caption) (*Renderer, error) {
	text, err := ParseHexColor(cfg.TextColor)
	if err != nil {
		return nil, err
	}
	outline, err := ParseHexColor(cfg.OutlineColor)
	if err != nil {
		return nil, err
	}
	shadow, err := ParseHexColor(cfg.ShadowColor)
	if err != nil {
		return nil, err
	}
	return &Renderer{cfg: cfg, text: text, outline: outline, shadow: shadow}, nil
}

// ParseHexColor accepts #RGB, #RRGGBB and #RRGGBBAA.
func ParseHexColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.NRGBA{}, errors.ValidationField("color", fmt.Sprintf("invalid hex color %q", s))
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, errors.ValidationField("color", fmt.Sprintf("invalid hex color %q", s))
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func (r *Renderer) loadFace() (font.Face, error) {
	if r.face != nil {
		return r.face, nil
	}
	data, err := os.ReadFile(r.cfg.FontPath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeRender, "caption.load_font", "read font").
			WithField("font_path", r.cfg.FontPath)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeRender, "caption.load_font", "parse font").
			WithField("font_path", r.cfg.FontPath)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    r.cfg.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeRender, "caption.load_font", "build face")
	}
	r.face = face
	return face, nil
}

type layout struct {
	lines      []string
	widths     []fixed.Int26_6
	ascent     int
	lineHeight int
	width      int
	height     int
}

func (r *Renderer) measure(face font.Face, lines []string) layout {
	m := face.Metrics()
	l := layout{
		lines:      lines,
		widths:     make([]fixed.Int26_6, len(lines)),
		ascent:     m.Ascent.Ceil(),
		lineHeight: m.Ascent.Ceil() + m.Descent.Ceil(),
	}

	widest := 0
	for i, line := range lines {
		l.widths[i] = font.MeasureString(face, line)
		widest = max(widest, l.widths[i].Ceil())
	}

	stroke := r.cfg.StrokeWidth
	n := len(lines)
	l.width = widest + 2*stroke
	l.height = n*l.lineHeight + (n-1)*r.cfg.LineSpacing + 2*stroke
	return l
}

// Render wraps and rasterizes text and saves the PNG at path.
func (r *Renderer) Render(text, path string) (*Asset, error) {
	face, err := r.loadFace()
	if err != nil {
		return nil, err
	}

	lines := Wrap(text, r.cfg.WrapWidth, r.cfg.TopPaddingLines)
	l := r.measure(face, lines)

	pad := 2 * r.cfg.BlurRadius
	canvas := image.NewNRGBA(image.Rect(0, 0, l.width+2*pad, l.height+2*pad))

	r.drawBlock(canvas, face, l, pad+r.cfg.ShadowOffsetX, pad+r.cfg.ShadowOffsetY, r.shadow, r.shadow)

	layer := canvas
	if r.cfg.BlurRadius > 0 {
		layer = imaging.Blur(canvas, float64(r.cfg.BlurRadius))
	}

	r.drawBlock(layer, face, l, pad, pad, r.text, r.outline)

	if err := imaging.Save(layer, path); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeRender, "caption.save", "write caption png").
			WithField("path", path)
	}

	return &Asset{
		Path:       path,
		Width:      layer.Bounds().Dx(),
		Height:     layer.Bounds().Dy(),
		TextWidth:  l.width,
		TextHeight: l.height,
	}, nil
}

// drawBlock draws every line centered within the block whose top-left is
// (x, y), stroking by offset draws before the fill.
func (r *Renderer) drawBlock(dst *image.NRGBA, face font.Face, l layout, x, y int, fill, stroke color.Color) {
	sw := r.cfg.StrokeWidth
	inner := l.width - 2*sw

	d := &font.Drawer{Dst: dst, Face: face}
	for i, line := range l.lines {
		if line == "" {
			continue
		}
		lx := x + sw + (inner-l.widths[i].Ceil())/2
		baseline := y + sw + l.ascent + i*(l.lineHeight+r.cfg.LineSpacing)

		if sw > 0 {
			d.Src = image.NewUniform(stroke)
			for dy := -sw; dy <= sw; dy++ {
				for dx := -sw; dx <= sw; dx++ {
					if (dx == 0 && dy == 0) || dx*dx+dy*dy > sw*sw {
						continue
					}
					d.Dot = fixed.P(lx+dx, baseline+dy)
					d.DrawString(line)
				}
			}
		}

		d.Src = image.NewUniform(fill)
		d.Dot = fixed.P(lx, baseline)
		d.DrawString(line)
	}
}

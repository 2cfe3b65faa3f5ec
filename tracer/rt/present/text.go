package present

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// TextRenderer draws multi-line debug text onto CPU images.
type TextRenderer struct {
	Face       font.Face
	Color      color.Color
	Background color.Color
	Padding    int
}

// NewTextRenderer loads a TrueType/OpenType font. An empty path uses the
// built-in 7x13 bitmap face.
func NewTextRenderer(fontPath string, fontSize float64) (*TextRenderer, error) {
	tr := &TextRenderer{
		Face:       basicfont.Face7x13,
		Color:      color.White,
		Background: color.RGBA{0, 0, 0, 160},
		Padding:    4,
	}
	if fontPath == "" {
		return tr, nil
	}

	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	f, err := opentype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create face: %w", err)
	}
	tr.Face = face
	return tr, nil
}

func (tr *TextRenderer) LineHeight() int {
	return tr.Face.Metrics().Height.Ceil()
}

// MeasureText returns the pixel size of text, lines split on '\n'.
func (tr *TextRenderer) MeasureText(text string) (int, int) {
	lines := strings.Split(text, "\n")
	maxW := 0
	for _, line := range lines {
		if w := font.MeasureString(tr.Face, line).Ceil(); w > maxW {
			maxW = w
		}
	}
	return maxW, tr.LineHeight() * len(lines)
}

// Annotate draws text with its top-left corner at (x, y) over a translucent backdrop.
func (tr *TextRenderer) Annotate(dst draw.Image, text string, x, y int) {
	if text == "" {
		return
	}
	w, h := tr.MeasureText(text)
	pad := tr.Padding
	box := image.Rect(x, y, x+w+2*pad, y+h+2*pad).Intersect(dst.Bounds())
	if tr.Background != nil {
		draw.Draw(dst, box, image.NewUniform(tr.Background), image.Point{}, draw.Over)
	}

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(tr.Color),
		Face: tr.Face,
	}
	ascent := tr.Face.Metrics().Ascent.Ceil()
	for i, line := range strings.Split(text, "\n") {
		d.Dot = fixed.P(x+pad, y+pad+ascent+i*tr.LineHeight())
		d.DrawString(line)
	}
}

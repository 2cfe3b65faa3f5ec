package present

import (
	"bytes"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestFit(t *testing.T) {
	src := solid(4, 4, color.RGBA{200, 100, 50, 255})
	assert.Same(t, src, Fit(src, 4, 4))
	assert.Same(t, src, Fit(src, 0, 10))

	out := Fit(src, 8, 2)
	assert.Equal(t, image.Rect(0, 0, 8, 2), out.Bounds())
	px := out.RGBAAt(5, 1)
	assert.InDelta(t, 200, int(px.R), 1)
	assert.InDelta(t, 100, int(px.G), 1)
	assert.InDelta(t, 50, int(px.B), 1)
}

func TestFormatFor(t *testing.T) {
	for path, want := range map[string]Format{
		"a.bmp":  FormatBMP,
		"a.TIF":  FormatTIFF,
		"a.tiff": FormatTIFF,
		"a.png":  FormatPNG,
	} {
		got, err := FormatFor(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	_, err := FormatFor("a.jpg")
	assert.Error(t, err)
}

func TestWriteAndReadFile(t *testing.T) {
	src := solid(3, 2, color.RGBA{10, 20, 30, 255})
	src.SetRGBA(2, 1, color.RGBA{255, 0, 0, 255})

	for _, name := range []string{"frame.bmp", "frame.tiff", "frame.png"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteFile(path, src))

			img, err := ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, src.Bounds(), img.Bounds())
			r, g, b, _ := img.At(2, 1).RGBA()
			assert.Equal(t, []uint32{0xffff, 0, 0}, []uint32{r, g, b})
			r, g, b, _ = img.At(0, 0).RGBA()
			assert.Equal(t, []uint32{10 * 0x101, 20 * 0x101, 30 * 0x101}, []uint32{r, g, b})
		})
	}
}

func TestEncodeUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Encode(&buf, solid(1, 1, color.RGBA{}), Format("gif")))
	assert.Error(t, WriteFile(filepath.Join(t.TempDir(), "x.gif"), solid(1, 1, color.RGBA{})))
}

func TestAnnotate(t *testing.T) {
	tr, err := NewTextRenderer("", 0)
	require.NoError(t, err)
	assert.Equal(t, 13, tr.LineHeight())

	w, h := tr.MeasureText("frames 1\ndispatches 1")
	assert.Equal(t, 7*len("dispatches 1"), w)
	assert.Equal(t, 26, h)

	img := solid(120, 40, color.RGBA{0, 0, 0, 255})
	tr.Annotate(img, "frames 1\ndispatches 1", 0, 0)

	lit := 0
	for y := 0; y < 40; y++ {
		for x := 0; x < 120; x++ {
			if img.RGBAAt(x, y).R > 128 {
				lit++
			}
		}
	}
	assert.Greater(t, lit, 0, "glyphs are drawn")
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(119, 39), "outside the text box stays untouched")

	_, err = NewTextRenderer(filepath.Join(t.TempDir(), "missing.ttf"), 12)
	assert.Error(t, err)
}

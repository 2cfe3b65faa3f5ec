// Package present moves finished frames off the device: scaling, debug text
// and image files.
package present

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Fit scales src to width x height with bilinear filtering. Zero or matching
// dimensions return src unchanged.
func Fit(src *image.RGBA, width, height int) *image.RGBA {
	b := src.Bounds()
	if width <= 0 || height <= 0 || (b.Dx() == width && b.Dy() == height) {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	Blit(dst, src)
	return dst
}

// Blit stretches src over all of dst.
func Blit(dst xdraw.Image, src image.Image) {
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
}

type Format string

const (
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatPNG  Format = "png"
)

// FormatFor picks the image format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bmp":
		return FormatBMP, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case ".png":
		return FormatPNG, nil
	}
	return "", fmt.Errorf("present: unsupported image extension %q", filepath.Ext(path))
}

func Encode(w io.Writer, img image.Image, format Format) error {
	switch format {
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatPNG:
		return png.Encode(w, img)
	}
	return fmt.Errorf("present: unknown format %q", format)
}

// WriteFile encodes img into path, choosing the format from the extension.
func WriteFile(path string, img image.Image) (err error) {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("present: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("present: %w", cerr)
		}
	}()
	if err := Encode(f, img, format); err != nil {
		return fmt.Errorf("present: encode %s: %w", path, err)
	}
	return nil
}

// ReadFile decodes an image written by WriteFile.
func ReadFile(path string) (image.Image, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("present: %w", err)
	}
	defer f.Close()
	var img image.Image
	switch format {
	case FormatBMP:
		img, err = bmp.Decode(f)
	case FormatTIFF:
		img, err = tiff.Decode(f)
	default:
		img, err = png.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("present: decode %s: %w", path, err)
	}
	return img, nil
}

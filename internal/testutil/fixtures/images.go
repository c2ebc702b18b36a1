// Package fixtures builds small in-memory images for tests.
package fixtures

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/codr1/Stitchcraft/internal/models"
)

// NRGBA builds an opaque image from rows of colours.
func NRGBA(rows [][]models.RGB) *image.NRGBA {
	h := len(rows)
	w := 0
	if h > 0 {
		w = len(rows[0])
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y, row := range rows {
		for x, c := range row {
			img.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xFF})
		}
	}
	return img
}

// PNG encodes rows of colours as a PNG file.
func PNG(t *testing.T, rows [][]models.RGB) []byte {
	t.Helper()
	return EncodePNG(t, NRGBA(rows))
}

func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// Split returns a width x height image whose left half is left and right
// half is right.
func Split(width, height int, left, right models.RGB) [][]models.RGB {
	rows := make([][]models.RGB, height)
	for y := range rows {
		rows[y] = make([]models.RGB, width)
		for x := range rows[y] {
			if x < width/2 {
				rows[y][x] = left
			} else {
				rows[y][x] = right
			}
		}
	}
	return rows
}

// Gradient returns a width x height image with a smooth two-axis gradient,
// which yields many distinct colours.
func Gradient(width, height int) [][]models.RGB {
	rows := make([][]models.RGB, height)
	for y := range rows {
		rows[y] = make([]models.RGB, width)
		for x := range rows[y] {
			rows[y][x] = models.RGB{
				R: uint8(x * 255 / max(width-1, 1)),
				G: uint8(y * 255 / max(height-1, 1)),
				B: uint8((x + y) * 127 / max(width+height-2, 1)),
			}
		}
	}
	return rows
}

package sampler

import (
	"sort"

	"github.com/codr1/Stitchcraft/internal/models"
)

// Matrix is a row-major grid of colours, one per stitch.
type Matrix struct {
	Width  int
	Height int
	Pix    []models.RGB
}

func NewMatrix(width, height int) Matrix {
	return Matrix{Width: width, Height: height, Pix: make([]models.RGB, width*height)}
}

func (m Matrix) At(x, y int) models.RGB {
	return m.Pix[y*m.Width+x]
}

func (m Matrix) Set(x, y int, c models.RGB) {
	m.Pix[y*m.Width+x] = c
}

// ColorCount is a distinct colour and the number of cells holding it.
type ColorCount struct {
	Color models.RGB
	Count int
}

// Histogram returns the distinct colours sorted by packed RGB value.
func (m Matrix) Histogram() []ColorCount {
	counts := make(map[models.RGB]int)
	for _, c := range m.Pix {
		counts[c]++
	}
	out := make([]ColorCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, ColorCount{Color: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Color.Pack() < out[j].Color.Pack()
	})
	return out
}

// Distinct returns the distinct colours sorted by packed RGB value.
func (m Matrix) Distinct() []models.RGB {
	hist := m.Histogram()
	out := make([]models.RGB, len(hist))
	for i, h := range hist {
		out[i] = h.Color
	}
	return out
}

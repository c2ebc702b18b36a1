// Package quantize reduces a sampled grid to at most k representative colours.
package quantize

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/codr1/Stitchcraft/internal/models"
	"github.com/codr1/Stitchcraft/internal/sampler"
)

const (
	KMeans    = "kmeans"
	MedianCut = "median"
)

var ErrUnknownAlgorithm = errors.New("unknown quantizer")

// Result is a quantized grid. Pix has the same layout as the input matrix,
// Palette lists the distinct output colours sorted by packed value and
// Mapping sends every input colour to its representative.
type Result struct {
	Pix     []models.RGB
	Palette []models.RGB
	Mapping map[models.RGB]models.RGB
}

// Matrix wraps Pix back into a grid of the given width.
func (r Result) Matrix(width, height int) sampler.Matrix {
	return sampler.Matrix{Width: width, Height: height, Pix: r.Pix}
}

type Quantizer interface {
	Quantize(ctx context.Context, m sampler.Matrix, k int) (Result, error)
}

// New returns the quantizer registered under name. An empty name selects
// k-means.
func New(name string) (Quantizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", KMeans:
		return &KMeansQuantizer{MaxIterations: DefaultMaxIterations}, nil
	case MedianCut, "median-cut", "mediancut":
		return &MedianCutQuantizer{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// identity handles the case where the grid already has at most k colours.
func identity(m sampler.Matrix, hist []sampler.ColorCount, k int) (Result, bool) {
	if len(hist) > k {
		return Result{}, false
	}
	palette := make([]models.RGB, len(hist))
	mapping := make(map[models.RGB]models.RGB, len(hist))
	for i, h := range hist {
		palette[i] = h.Color
		mapping[h.Color] = h.Color
	}
	pix := make([]models.RGB, len(m.Pix))
	copy(pix, m.Pix)
	return Result{Pix: pix, Palette: palette, Mapping: mapping}, true
}

func validate(m sampler.Matrix, k int) error {
	if k < 1 {
		return fmt.Errorf("colour count must be at least 1, got %d", k)
	}
	if len(m.Pix) == 0 || len(m.Pix) != m.Width*m.Height {
		return fmt.Errorf("matrix %dx%d has %d pixels", m.Width, m.Height, len(m.Pix))
	}
	return nil
}

// weightedMean rounds the count-weighted mean of the member colours.
func weightedMean(hist []sampler.ColorCount, members []int) models.RGB {
	var r, g, b, n int64
	for _, i := range members {
		c, w := hist[i].Color, int64(hist[i].Count)
		r += int64(c.R) * w
		g += int64(c.G) * w
		b += int64(c.B) * w
		n += w
	}
	return models.RGB{
		R: uint8((r + n/2) / n),
		G: uint8((g + n/2) / n),
		B: uint8((b + n/2) / n),
	}
}

// build turns a cluster assignment over hist into a Result. Empty clusters
// are dropped and clusters that round to the same colour are merged.
func build(m sampler.Matrix, hist []sampler.ColorCount, assign []int, clusters int) Result {
	members := make([][]int, clusters)
	for i, c := range assign {
		members[c] = append(members[c], i)
	}

	mapping := make(map[models.RGB]models.RGB, len(hist))
	seen := make(map[models.RGB]bool, clusters)
	var palette []models.RGB
	for _, idx := range members {
		if len(idx) == 0 {
			continue
		}
		rep := weightedMean(hist, idx)
		for _, i := range idx {
			mapping[hist[i].Color] = rep
		}
		if !seen[rep] {
			seen[rep] = true
			palette = append(palette, rep)
		}
	}
	sort.Slice(palette, func(i, j int) bool { return palette[i].Pack() < palette[j].Pack() })

	pix := make([]models.RGB, len(m.Pix))
	for i, c := range m.Pix {
		pix[i] = mapping[c]
	}
	return Result{Pix: pix, Palette: palette, Mapping: mapping}
}

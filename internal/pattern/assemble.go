package pattern

import (
	"fmt"

	"github.com/codr1/Stitchcraft/internal/sampler"
)

// DefaultBackstitchThreshold is the Euclidean RGB distance above which two
// neighbouring stitches are outlined, provided they also use different
// threads.
const DefaultBackstitchThreshold = 60.0

type AssembleOptions struct {
	Backstitch bool
	// Threshold overrides DefaultBackstitchThreshold when positive.
	Threshold float64
}

func (o AssembleOptions) threshold() float64 {
	if o.Threshold > 0 {
		return o.Threshold
	}
	return DefaultBackstitchThreshold
}

// Assemble builds the cell grid from the matched thread codes. Backstitch
// edges are detected on original, the sampled colours before quantization.
func Assemble(original sampler.Matrix, codes []string, opts AssembleOptions) ([]Cell, error) {
	w, h := original.Width, original.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("grid must be positive, got %dx%d", w, h)
	}
	if len(codes) != w*h || len(original.Pix) != w*h {
		return nil, fmt.Errorf("grid %dx%d has %d codes and %d colours", w, h, len(codes), len(original.Pix))
	}

	cells := make([]Cell, len(codes))
	for i, code := range codes {
		if code == "" {
			return nil, fmt.Errorf("cell %d has no thread code", i)
		}
		cells[i].Code = code
	}
	if !opts.Backstitch {
		return cells, nil
	}

	limit := opts.threshold()
	limitSq := limit * limit
	boundary := func(a, b int) bool {
		if codes[a] == codes[b] {
			return false
		}
		return float64(original.Pix[a].DistanceSq(original.Pix[b])) > limitSq
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if x+1 < w && boundary(i, i+1) {
				cells[i].Edges |= EdgeRight
				cells[i+1].Edges |= EdgeLeft
			}
			if y+1 < h && boundary(i, i+w) {
				cells[i].Edges |= EdgeBottom
				cells[i+w].Edges |= EdgeTop
			}
		}
	}
	return cells, nil
}

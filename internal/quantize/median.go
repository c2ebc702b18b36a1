package quantize

import (
	"context"
	"image"
	"image/color"
	"sort"

	"github.com/soniakeys/quant/median"

	"github.com/codr1/Stitchcraft/internal/models"
	"github.com/codr1/Stitchcraft/internal/sampler"
)

// MedianCutQuantizer builds the palette with median cut, then replaces each
// palette entry by the weighted mean of the colours assigned to it.
type MedianCutQuantizer struct{}

func (q *MedianCutQuantizer) Quantize(ctx context.Context, m sampler.Matrix, k int) (Result, error) {
	if err := validate(m, k); err != nil {
		return Result{}, err
	}
	hist := m.Histogram()
	if res, ok := identity(m, hist, k); ok {
		return res, nil
	}

	img := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	for i, c := range m.Pix {
		img.Pix[i*4] = c.R
		img.Pix[i*4+1] = c.G
		img.Pix[i*4+2] = c.B
		img.Pix[i*4+3] = 0xFF
	}
	paletted := median.Quantizer(k).Paletted(img)

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	palette := paletteRGB(paletted.Palette, k)
	if len(palette) == 0 {
		palette = []models.RGB{hist[0].Color}
	}

	assign := make([]int, len(hist))
	for i, h := range hist {
		best, bestDist := 0, h.Color.DistanceSq(palette[0])
		for p := 1; p < len(palette); p++ {
			if d := h.Color.DistanceSq(palette[p]); d < bestDist {
				best, bestDist = p, d
			}
		}
		assign[i] = best
	}
	return build(m, hist, assign, len(palette)), nil
}

// paletteRGB converts and de-duplicates a palette, sorted by packed value and
// truncated to k entries.
func paletteRGB(p color.Palette, k int) []models.RGB {
	seen := make(map[models.RGB]bool, len(p))
	out := make([]models.RGB, 0, len(p))
	for _, c := range p {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		rgb := models.RGB{R: n.R, G: n.G, B: n.B}
		if !seen[rgb] {
			seen[rgb] = true
			out = append(out, rgb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pack() < out[j].Pack() })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

package sampler

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/Stitchcraft/internal/models"
)

// span lists the source pixels overlapping one output cell along one axis.
// Weights are overlap lengths measured in units of 1/dstLen source pixels,
// so they are exact integers summing to srcLen.
type span struct {
	start   int
	weights []int64
}

func spans(srcLen, dstLen int) []span {
	out := make([]span, dstLen)
	for i := 0; i < dstLen; i++ {
		lo := int64(i) * int64(srcLen)
		hi := int64(i+1) * int64(srcLen)
		first := int(lo / int64(dstLen))
		last := int((hi - 1) / int64(dstLen))
		s := span{start: first, weights: make([]int64, 0, last-first+1)}
		for p := first; p <= last; p++ {
			pLo := int64(p) * int64(dstLen)
			pHi := pLo + int64(dstLen)
			w := min(hi, pHi) - max(lo, pLo)
			s.weights = append(s.weights, w)
		}
		out[i] = s
	}
	return out
}

// Sample resamples img onto a width x height grid. Each cell is the
// area-weighted mean of the source pixels it covers; transparent pixels are
// composited over white. Rows are computed concurrently by at most workers
// goroutines and the result is identical for any worker count.
func Sample(ctx context.Context, img image.Image, width, height, workers int) (Matrix, error) {
	if err := checkBounds(img); err != nil {
		return Matrix{}, err
	}
	if width <= 0 || height <= 0 {
		return Matrix{}, fmt.Errorf("target grid must be positive, got %dx%d", width, height)
	}

	src := imaging.Clone(img)
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	xs := spans(sw, width)
	ys := spans(sh, height)
	total := int64(sw) * int64(sh) * 255

	out := NewMatrix(width, height)

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for y := 0; y < height; y++ {
		y := y
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ySpan := ys[y]
			for x := 0; x < width; x++ {
				xSpan := xs[x]
				var sr, sg, sb int64
				for j, wy := range ySpan.weights {
					row := src.Pix[(ySpan.start+j)*src.Stride:]
					for i, wx := range xSpan.weights {
						off := (xSpan.start + i) * 4
						a := int64(row[off+3])
						bg := 255 * (255 - a)
						w := wx * wy
						sr += (int64(row[off])*a + bg) * w
						sg += (int64(row[off+1])*a + bg) * w
						sb += (int64(row[off+2])*a + bg) * w
					}
				}
				out.Pix[y*width+x] = models.RGB{
					R: uint8((sr + total/2) / total),
					G: uint8((sg + total/2) / total),
					B: uint8((sb + total/2) / total),
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Matrix{}, err
	}
	return out, nil
}

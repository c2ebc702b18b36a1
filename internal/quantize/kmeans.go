package quantize

import (
	"context"

	"github.com/codr1/Stitchcraft/internal/sampler"
)

const DefaultMaxIterations = 32

// KMeansQuantizer clusters the distinct colours of a grid with Lloyd's
// algorithm in RGB space. Every step is ordered, so identical input always
// yields identical output.
type KMeansQuantizer struct {
	MaxIterations int
}

type centroid [3]float64

func (c centroid) distSq(r, g, b float64) float64 {
	dr, dg, db := c[0]-r, c[1]-g, c[2]-b
	return dr*dr + dg*dg + db*db
}

func (q *KMeansQuantizer) Quantize(ctx context.Context, m sampler.Matrix, k int) (Result, error) {
	if err := validate(m, k); err != nil {
		return Result{}, err
	}
	hist := m.Histogram()
	if res, ok := identity(m, hist, k); ok {
		return res, nil
	}

	maxIter := q.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	centers := seed(hist, k)
	assign := make([]int, len(hist))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		changed := false
		for i, h := range hist {
			r, g, b := float64(h.Color.R), float64(h.Color.G), float64(h.Color.B)
			best, bestDist := 0, centers[0].distSq(r, g, b)
			for c := 1; c < len(centers); c++ {
				if d := centers[c].distSq(r, g, b); d < bestDist {
					best, bestDist = c, d
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][4]float64, len(centers))
		for i, h := range hist {
			w := float64(h.Count)
			s := &sums[assign[i]]
			s[0] += float64(h.Color.R) * w
			s[1] += float64(h.Color.G) * w
			s[2] += float64(h.Color.B) * w
			s[3] += w
		}
		for c, s := range sums {
			// An empty cluster keeps its previous centre.
			if s[3] > 0 {
				centers[c] = centroid{s[0] / s[3], s[1] / s[3], s[2] / s[3]}
			}
		}
	}

	return build(m, hist, assign, len(centers)), nil
}

// seed picks k initial centres from hist. The first is the most frequent
// colour; each further centre is the colour with the largest count-weighted
// squared distance to its nearest existing centre. Ties go to the lowest
// index, and hist is sorted by packed value, so seeding is deterministic.
func seed(hist []sampler.ColorCount, k int) []centroid {
	first := 0
	for i, h := range hist {
		if h.Count > hist[first].Count {
			first = i
		}
	}

	centers := make([]centroid, 0, k)
	chosen := make([]bool, len(hist))
	minDist := make([]int64, len(hist))
	add := func(i int) {
		chosen[i] = true
		c := hist[i].Color
		centers = append(centers, centroid{float64(c.R), float64(c.G), float64(c.B)})
		for j, h := range hist {
			d := int64(h.Color.DistanceSq(c))
			if len(centers) == 1 || d < minDist[j] {
				minDist[j] = d
			}
		}
	}
	add(first)

	for len(centers) < k {
		next := -1
		var best int64 = -1
		for i, h := range hist {
			if chosen[i] {
				continue
			}
			if score := minDist[i] * int64(h.Count); score > best {
				next, best = i, score
			}
		}
		if next < 0 {
			break
		}
		add(next)
	}
	return centers
}

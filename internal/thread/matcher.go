package thread

import (
	"context"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/Stitchcraft/internal/models"
)

// matchChunk is the number of colours handed to one worker.
const matchChunk = 64

// Matcher maps arbitrary colours to the nearest thread of one catalog.
// It holds no mutable state and is safe for concurrent use.
type Matcher struct {
	catalog *Catalog
	metric  Metric
	lab     []colorful.Color
}

func NewMatcher(catalog *Catalog, metric Metric) *Matcher {
	if metric == "" {
		metric = MetricRGB
	}
	lab := make([]colorful.Color, len(catalog.threads))
	for i, t := range catalog.threads {
		lab[i] = toColorful(t.RGB)
	}
	return &Matcher{catalog: catalog, metric: metric, lab: lab}
}

func (m *Matcher) Catalog() *Catalog { return m.catalog }

// Nearest returns the closest thread. Threads are scanned in code order and
// only a strictly smaller distance replaces the current best, so ties
// resolve to the lowest code.
func (m *Matcher) Nearest(c models.RGB) models.ThreadColor {
	best := 0
	bestDist := math.MaxFloat64
	cc := toColorful(c)
	for i, t := range m.catalog.threads {
		d := m.metric.distance(c, t.RGB, cc, m.lab[i])
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return m.catalog.threads[best]
}

// MatchAll matches every colour in parallel. The result does not depend on
// the number of workers.
func (m *Matcher) MatchAll(ctx context.Context, colors []models.RGB, workers int) (map[models.RGB]models.ThreadColor, error) {
	matched := make([]models.ThreadColor, len(colors))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for start := 0; start < len(colors); start += matchChunk {
		start := start
		end := min(start+matchChunk, len(colors))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				matched[i] = m.Nearest(colors[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make(map[models.RGB]models.ThreadColor, len(colors))
	for i, c := range colors {
		result[c] = matched[i]
	}
	return result, nil
}

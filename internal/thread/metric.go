package thread

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/codr1/Stitchcraft/internal/models"
)

// Metric names the colour-distance function used for thread matching.
type Metric string

const (
	MetricRGB       Metric = "rgb"
	MetricCIE76     Metric = "cie76"
	MetricCIEDE2000 Metric = "ciede2000"
)

func ParseMetric(value string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(value))); m {
	case "":
		return MetricRGB, nil
	case MetricRGB, MetricCIE76, MetricCIEDE2000:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported color metric: %s", value)
	}
}

func toColorful(c models.RGB) colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
}

// distance returns a comparable distance; for MetricRGB it is the squared
// Euclidean distance so ties are exact.
func (m Metric) distance(a, b models.RGB, ac, bc colorful.Color) float64 {
	switch m {
	case MetricCIE76:
		return ac.DistanceCIE76(bc)
	case MetricCIEDE2000:
		return ac.DistanceCIEDE2000(bc)
	default:
		return float64(a.DistanceSq(b))
	}
}

package sampler

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/codr1/Stitchcraft/internal/models"
	"github.com/codr1/Stitchcraft/internal/testutil/fixtures"
)

var (
	red   = models.RGB{R: 255}
	black = models.RGB{}
	white = models.RGB{R: 255, G: 255, B: 255}
)

func TestDecodePNG(t *testing.T) {
	data := fixtures.PNG(t, [][]models.RGB{{red, black}, {white, red}})
	img, format, err := Decode(data, 0)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if format != "png" {
		t.Fatalf("format = %q, want png", format)
	}
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
}

func TestDecodeRejectsNonImage(t *testing.T) {
	tests := map[string][]byte{
		"empty": nil,
		"text":  []byte("definitely not an image"),
		"truncated_png": func() []byte {
			data := fixtures.PNG(t, [][]models.RGB{{red, black}})
			return data[:20]
		}(),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Decode(data, 0)
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("Decode() error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestDecodeRejectsOversizedImage(t *testing.T) {
	data := fixtures.PNG(t, fixtures.Gradient(20, 20))
	_, _, err := Decode(data, 100)
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("Decode() error = %v, want ErrInvalidImage", err)
	}
}

func TestSampleRejectsEmptyImage(t *testing.T) {
	empty := image.NewNRGBA(image.Rect(0, 0, 0, 4))
	_, err := Sample(context.Background(), empty, 2, 2, 1)
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("Sample() error = %v, want ErrInvalidImage", err)
	}
}

func TestSampleIdentity(t *testing.T) {
	rows := [][]models.RGB{{red, black}, {white, red}}
	m, err := Sample(context.Background(), fixtures.NRGBA(rows), 2, 2, 1)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	want := []models.RGB{red, black, white, red}
	if diff := cmp.Diff(want, m.Pix); diff != "" {
		t.Fatalf("Sample() mismatch (-want +got):\n%s", diff)
	}
}

func TestSampleAreaAverage(t *testing.T) {
	// 2x1 -> 1x1 averages black and white.
	m, err := Sample(context.Background(), fixtures.NRGBA([][]models.RGB{{black, white}}), 1, 1, 1)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if got := m.At(0, 0); got != (models.RGB{R: 128, G: 128, B: 128}) {
		t.Fatalf("average = %+v, want 128 gray", got)
	}
}

func TestSampleFractionalOverlap(t *testing.T) {
	// 3 source columns onto 2 cells: cell 0 covers col0 fully and half of col1.
	src := fixtures.NRGBA([][]models.RGB{{black, white, white}})
	m, err := Sample(context.Background(), src, 2, 1, 1)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	// (0*2 + 255*1) / 3 = 85
	if got := m.At(0, 0); got != (models.RGB{R: 85, G: 85, B: 85}) {
		t.Fatalf("cell 0 = %+v, want 85 gray", got)
	}
	if got := m.At(1, 0); got != white {
		t.Fatalf("cell 1 = %+v, want white", got)
	}
}

func TestSampleSingleOutlierDoesNotDominate(t *testing.T) {
	rows := make([][]models.RGB, 4)
	for y := range rows {
		rows[y] = []models.RGB{white, white, white, white}
	}
	rows[1][1] = black
	m, err := Sample(context.Background(), fixtures.NRGBA(rows), 1, 1, 1)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	// 15 white + 1 black over 16 pixels.
	want := uint8((255*15 + 8) / 16)
	if got := m.At(0, 0); got.R != want {
		t.Fatalf("R = %d, want %d", got.R, want)
	}
}

func TestSampleUpscale(t *testing.T) {
	m, err := Sample(context.Background(), fixtures.NRGBA([][]models.RGB{{red, black}}), 4, 2, 2)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	for y := 0; y < 2; y++ {
		if m.At(0, y) != red || m.At(1, y) != red || m.At(2, y) != black || m.At(3, y) != black {
			t.Fatalf("row %d = %+v", y, m.Pix[y*4:(y+1)*4])
		}
	}
}

func TestSampleTransparentIsWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 0})
	m, err := Sample(context.Background(), img, 1, 1, 1)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if m.At(0, 0) != white {
		t.Fatalf("transparent pixel sampled as %+v, want white", m.At(0, 0))
	}
}

func TestSampleWorkerCountInvariant(t *testing.T) {
	src := fixtures.NRGBA(fixtures.Gradient(97, 61))
	one, err := Sample(context.Background(), src, 23, 17, 1)
	if err != nil {
		t.Fatalf("Sample(1) error = %v", err)
	}
	many, err := Sample(context.Background(), src, 23, 17, 8)
	if err != nil {
		t.Fatalf("Sample(8) error = %v", err)
	}
	if diff := cmp.Diff(one, many); diff != "" {
		t.Fatalf("worker count changed output (-1 +8):\n%s", diff)
	}
}

func TestSampleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Sample(ctx, fixtures.NRGBA(fixtures.Gradient(8, 8)), 4, 4, 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sample() error = %v, want context.Canceled", err)
	}
}

func TestHistogramSorted(t *testing.T) {
	m := NewMatrix(3, 1)
	m.Set(0, 0, white)
	m.Set(1, 0, black)
	m.Set(2, 0, white)
	hist := m.Histogram()
	want := []ColorCount{{Color: black, Count: 1}, {Color: white, Count: 2}}
	if diff := cmp.Diff(want, hist); diff != "" {
		t.Fatalf("Histogram() mismatch (-want +got):\n%s", diff)
	}
}

// cmd/patterngen/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/codr1/Stitchcraft/internal/engine"
	"github.com/codr1/Stitchcraft/internal/pattern"
	"github.com/codr1/Stitchcraft/internal/quantize"
	"github.com/codr1/Stitchcraft/internal/thread"
)

var (
	verbose = kingpin.Flag("verbose", "Enable debug logging.").Short('v').Bool()

	inputFileName  = kingpin.Flag("input", "Image file to convert (PNG, JPEG, GIF, WebP or BMP).").Short('i').Required().ExistingFile()
	outputFileName = kingpin.Flag("output", "Write the pattern JSON here instead of stdout.").Short('o').PlaceHolder("PATTERN.json").String()

	width      = kingpin.Flag("width", "Pattern width in stitches.").Short('w').Default("100").Int()
	height     = kingpin.Flag("height", "Pattern height in stitches.").Short('h').Default("100").Int()
	colors     = kingpin.Flag("colors", "Maximum number of thread colours.").Short('c').Default("30").Int()
	palette    = kingpin.Flag("palette", "Thread manufacturer.").Short('p').Default(thread.DMC).Enum(thread.Names...)
	backstitch = kingpin.Flag("backstitch", "Outline strong colour boundaries with backstitch.").Short('b').Bool()
	fabric     = kingpin.Flag("fabric", "Fabric count, used to report the finished size.").Short('f').Default("14").Int()

	quantizer = kingpin.Flag("quantizer", "Colour reduction algorithm.").Default(quantize.KMeans).Enum(quantize.KMeans, quantize.MedianCut)
	metric    = kingpin.Flag("metric", "Colour distance used for thread matching.").Default(string(thread.MetricRGB)).
			Enum(string(thread.MetricRGB), string(thread.MetricCIE76), string(thread.MetricCIEDE2000))
	threshold = kingpin.Flag("threshold", "Minimum RGB distance between neighbours for a backstitch line.").Default("60").Float64()
	workers   = kingpin.Flag("workers", "Goroutines used for sampling and matching (0 = all CPUs).").Default("0").Int()
)

func main() {
	kingpin.CommandLine.HelpFlag.Short('?')
	kingpin.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *fabric < 1 {
		kingpin.Fatalf("fabric count must be positive, got %d", *fabric)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("Pattern generation failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	opts := engine.DefaultOptions()
	opts.Quantizer = *quantizer
	opts.Metric = *metric
	opts.BackstitchThreshold = *threshold
	opts.Workers = *workers

	eng, err := engine.New(opts)
	if err != nil {
		return err
	}

	image, err := os.ReadFile(*inputFileName)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	p, err := eng.Generate(log.Logger.WithContext(ctx), engine.Request{
		Image:             image,
		Width:             *width,
		Height:            *height,
		MaxColors:         *colors,
		ThreadPalette:     *palette,
		IncludeBackstitch: *backstitch,
	})
	if err != nil {
		return err
	}

	if err := writePattern(*outputFileName, pattern.Encode(p)); err != nil {
		return err
	}

	log.Info().
		Int("width", p.Width).
		Int("height", p.Height).
		Int("colors", len(p.Colors)).
		Str("thread_palette", p.Palette).
		Str("finished_size", fmt.Sprintf("%.1f\" x %.1f\"", float64(p.Width)/float64(*fabric), float64(p.Height)/float64(*fabric))).
		Msg("Pattern written")
	return nil
}

// writePattern writes doc as indented JSON to path, or to stdout when path
// is empty. A failed close is reported as a failed write.
func writePattern(path string, doc pattern.Document) (err error) {
	var out io.Writer = os.Stdout
	if path != "" {
		f, createErr := os.Create(path)
		if createErr != nil {
			return fmt.Errorf("create output: %w", createErr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close output: %w", cerr)
			}
		}()
		out = f
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("write pattern: %w", err)
	}
	return nil
}

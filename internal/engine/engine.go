// Package engine turns an uploaded photo into a cross-stitch pattern.
//
// Generation runs six stages in order: decode and sample, quantize, match
// threads, assemble the grid, allocate symbols and build the pattern. The
// first failing stage aborts the run. An Engine holds only read-only state
// and may be shared by concurrent requests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/Stitchcraft/internal/models"
	"github.com/codr1/Stitchcraft/internal/pattern"
	"github.com/codr1/Stitchcraft/internal/quantize"
	"github.com/codr1/Stitchcraft/internal/sampler"
	"github.com/codr1/Stitchcraft/internal/thread"
)

type Options struct {
	Limits Limits
	// Workers bounds the goroutines used by sampling and matching. Zero
	// means GOMAXPROCS.
	Workers             int
	Quantizer           string
	Metric              string
	BackstitchThreshold float64
}

func DefaultOptions() Options {
	return Options{
		Limits:              DefaultLimits(),
		Quantizer:           quantize.KMeans,
		Metric:              string(thread.MetricRGB),
		BackstitchThreshold: pattern.DefaultBackstitchThreshold,
	}
}

type Engine struct {
	limits    Limits
	workers   int
	quantizer quantize.Quantizer
	matchers  map[string]*thread.Matcher
	threshold float64
}

func New(opts Options) (*Engine, error) {
	q, err := quantize.New(opts.Quantizer)
	if err != nil {
		return nil, err
	}
	metric, err := thread.ParseMetric(opts.Metric)
	if err != nil {
		return nil, err
	}
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	if opts.Limits.MinDimension < 1 || opts.Limits.MaxDimension < opts.Limits.MinDimension || opts.Limits.MaxDimension > pattern.MaxDimension {
		return nil, fmt.Errorf("invalid dimension limits %d-%d", opts.Limits.MinDimension, opts.Limits.MaxDimension)
	}
	if opts.Limits.MinColors < 1 || opts.Limits.MaxColors < opts.Limits.MinColors {
		return nil, fmt.Errorf("invalid colour limits %d-%d", opts.Limits.MinColors, opts.Limits.MaxColors)
	}

	matchers := make(map[string]*thread.Matcher, len(thread.Names))
	for _, name := range thread.Names {
		c, err := thread.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("load %s catalog: %w", name, err)
		}
		matchers[name] = thread.NewMatcher(c, metric)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Engine{
		limits:    opts.Limits,
		workers:   workers,
		quantizer: q,
		matchers:  matchers,
		threshold: opts.BackstitchThreshold,
	}, nil
}

func (e *Engine) Limits() Limits {
	return e.limits
}

// Generate runs the full pipeline for req. Every returned error is an
// *Error; on error the pattern is nil.
func (e *Engine) Generate(ctx context.Context, req Request) (p *pattern.Pattern, err error) {
	logger := log.Ctx(ctx).With().
		Int("width", req.Width).
		Int("height", req.Height).
		Int("max_colors", req.MaxColors).
		Str("thread_palette", req.ThreadPalette).
		Bool("backstitch", req.IncludeBackstitch).
		Int("image_bytes", len(req.Image)).
		Logger()

	stage := StageValidate
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("stage", string(stage)).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Pattern generation panicked")
			p, err = nil, stageError(ErrInternal, stage, fmt.Errorf("panic: %v", r))
			return
		}
		if err != nil {
			p = nil
			logFailure(logger, err)
		}
	}()

	if verr := e.limits.validate(req); verr != nil {
		return nil, verr
	}
	palette := strings.ToLower(strings.TrimSpace(req.ThreadPalette))
	matcher := e.matchers[palette]

	step := func(next Stage) error {
		stage = next
		if cerr := ctx.Err(); cerr != nil {
			return stageError(ErrInternal, next, cerr)
		}
		return nil
	}

	if err := step(StageDecode); err != nil {
		return nil, err
	}
	img, format, derr := sampler.Decode(req.Image, e.limits.MaxSourcePixels)
	if derr != nil {
		if errors.Is(derr, sampler.ErrInvalidImage) {
			return nil, stageError(ErrInvalidImage, StageDecode, derr)
		}
		return nil, &Error{Kind: ErrDecode, Stage: StageDecode, Message: "unsupported or corrupt image data", Err: derr}
	}
	logger.Debug().
		Str("format", format).
		Int("source_width", img.Bounds().Dx()).
		Int("source_height", img.Bounds().Dy()).
		Msg("Decoded source image")

	if err := step(StageSample); err != nil {
		return nil, err
	}
	sampled, serr := sampler.Sample(ctx, img, req.Width, req.Height, e.workers)
	if serr != nil {
		if errors.Is(serr, sampler.ErrInvalidImage) {
			return nil, stageError(ErrInvalidImage, StageSample, serr)
		}
		return nil, stageError(ErrInternal, StageSample, serr)
	}

	if err := step(StageQuantize); err != nil {
		return nil, err
	}
	quantized, qerr := e.quantizer.Quantize(ctx, sampled, req.MaxColors)
	if qerr != nil {
		return nil, stageError(ErrInternal, StageQuantize, qerr)
	}

	if err := step(StageMatch); err != nil {
		return nil, err
	}
	matches, merr := matcher.MatchAll(ctx, quantized.Palette, e.workers)
	if merr != nil {
		return nil, stageError(ErrInternal, StageMatch, merr)
	}
	codes := make([]string, len(quantized.Pix))
	threads := make(map[string]models.ThreadColor, len(matches))
	for i, c := range quantized.Pix {
		t, ok := matches[c]
		if !ok {
			return nil, stageError(ErrInternal, StageMatch, fmt.Errorf("no thread matched for %s", c.Hex()))
		}
		codes[i] = t.Code
		threads[t.Code] = t
	}

	if err := step(StageAssemble); err != nil {
		return nil, err
	}
	cells, aerr := pattern.Assemble(sampled, codes, pattern.AssembleOptions{
		Backstitch: req.IncludeBackstitch,
		Threshold:  e.threshold,
	})
	if aerr != nil {
		return nil, stageError(ErrInternal, StageAssemble, aerr)
	}

	if err := step(StageAllocate); err != nil {
		return nil, err
	}
	alloc, perr := pattern.AllocateSymbols(cells)
	if perr != nil {
		if errors.Is(perr, pattern.ErrPaletteExhausted) {
			return nil, stageError(ErrPaletteExhausted, StageAllocate, perr)
		}
		return nil, stageError(ErrInternal, StageAllocate, perr)
	}

	if err := step(StageEncode); err != nil {
		return nil, err
	}
	p, eerr := pattern.New(req.Width, req.Height, matcher.Catalog().Name(), cells, threads, alloc, req.IncludeBackstitch)
	if eerr != nil {
		return nil, stageError(ErrInternal, StageEncode, eerr)
	}

	logger.Debug().
		Int("sampled_colors", len(quantized.Palette)).
		Int("threads", len(p.Colors)).
		Int("backstitch_edges", p.EdgeCount()).
		Msg("Generated pattern")
	return p, nil
}

func logFailure(logger zerolog.Logger, err error) {
	var gerr *Error
	if !errors.As(err, &gerr) {
		logger.Error().Err(err).Msg("Pattern generation failed")
		return
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Warn().Err(err).Str("stage", string(gerr.Stage)).Msg("Pattern generation cancelled")
	case gerr.Public():
		logger.Debug().Err(err).Str("stage", string(gerr.Stage)).Str("field", gerr.Field).Msg("Pattern request rejected")
	default:
		logger.Error().Err(err).Str("stage", string(gerr.Stage)).Msg("Pattern generation failed")
	}
}

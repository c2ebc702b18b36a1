package engine

import (
	"strings"

	"github.com/codr1/Stitchcraft/internal/pattern"
	"github.com/codr1/Stitchcraft/internal/thread"
)

// Request is one pattern generation job.
type Request struct {
	Image             []byte
	Width             int
	Height            int
	MaxColors         int
	ThreadPalette     string
	IncludeBackstitch bool
}

type Limits struct {
	MinDimension    int
	MaxDimension    int
	MinColors       int
	MaxColors       int
	MaxImageBytes   int
	MaxSourcePixels int
}

func DefaultLimits() Limits {
	return Limits{
		MinDimension:    1,
		MaxDimension:    pattern.MaxDimension,
		MinColors:       2,
		MaxColors:       200,
		MaxImageBytes:   10 << 20,
		MaxSourcePixels: 40_000_000,
	}
}

// validate checks every field before any image work is done.
func (l Limits) validate(req Request) *Error {
	if req.Width < l.MinDimension || req.Width > l.MaxDimension {
		return invalidField("width", "must be between %d and %d, got %d", l.MinDimension, l.MaxDimension, req.Width)
	}
	if req.Height < l.MinDimension || req.Height > l.MaxDimension {
		return invalidField("height", "must be between %d and %d, got %d", l.MinDimension, l.MaxDimension, req.Height)
	}
	if glyphs := pattern.GlyphCount(); req.MaxColors > glyphs {
		return invalidField("maxColors", "must not exceed the %d available chart symbols, got %d", glyphs, req.MaxColors)
	}
	if req.MaxColors < l.MinColors || req.MaxColors > l.MaxColors {
		return invalidField("maxColors", "must be between %d and %d, got %d", l.MinColors, l.MaxColors, req.MaxColors)
	}
	if !thread.IsKnown(req.ThreadPalette) {
		return invalidField("threadPalette", "must be one of %s, got %q", strings.Join(thread.Names, ", "), req.ThreadPalette)
	}
	if len(req.Image) == 0 {
		return invalidField("image", "is required")
	}
	if l.MaxImageBytes > 0 && len(req.Image) > l.MaxImageBytes {
		return invalidField("image", "must be at most %d bytes, got %d", l.MaxImageBytes, len(req.Image))
	}
	return nil
}

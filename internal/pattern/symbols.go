package pattern

import (
	"errors"
	"fmt"
)

var ErrPaletteExhausted = errors.New("not enough chart symbols for the colours used")

// glyphs is the fixed symbol order. Shapes come first because they read best
// on a printed chart.
var glyphs = splitGlyphs(
	"■□●○◆◇▲△▼▽★☆♥♡♦♢♣♧♠♤" +
		"✚✖✱✿❖" +
		"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
		"abcdefghijklmnopqrstuvwxyz" +
		"0123456789" +
		"+×÷=#%&@$?!/\\<>^~*",
)

func splitGlyphs(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// Glyphs returns a copy of the ordered glyph set.
func Glyphs() []string {
	out := make([]string, len(glyphs))
	copy(out, glyphs)
	return out
}

func GlyphCount() int {
	return len(glyphs)
}

var glyphSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(glyphs))
	for _, g := range glyphs {
		set[g] = struct{}{}
	}
	return set
}()

func isGlyph(s string) bool {
	_, ok := glyphSet[s]
	return ok
}

// Allocation maps each thread code to its symbol. Order lists codes by
// first appearance in a raster scan, which is also the legend order.
type Allocation struct {
	Order   []string
	Symbols map[string]string
}

func AllocateSymbols(cells []Cell) (Allocation, error) {
	alloc := Allocation{Symbols: make(map[string]string)}
	for _, c := range cells {
		if _, ok := alloc.Symbols[c.Code]; ok {
			continue
		}
		if len(alloc.Order) == len(glyphs) {
			return Allocation{}, fmt.Errorf("%w: more than %d colours", ErrPaletteExhausted, len(glyphs))
		}
		alloc.Symbols[c.Code] = glyphs[len(alloc.Order)]
		alloc.Order = append(alloc.Order, c.Code)
	}
	return alloc, nil
}

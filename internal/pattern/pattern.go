// Package pattern assembles the stitch grid, allocates chart symbols and
// converts the result to and from its JSON exchange document.
package pattern

import (
	"fmt"

	"github.com/codr1/Stitchcraft/internal/models"
)

// Edge marks the sides of a cell that carry a backstitch line.
type Edge uint8

const (
	EdgeTop Edge = 1 << iota
	EdgeRight
	EdgeBottom
	EdgeLeft

	edgeMask = EdgeTop | EdgeRight | EdgeBottom | EdgeLeft
)

func (e Edge) Has(side Edge) bool {
	return e&side != 0
}

// Cell is one stitch of the chart.
type Cell struct {
	Code   string
	Symbol string
	Edges  Edge
}

// ColorEntry is one legend line: the thread, its chart symbol and how many
// stitches use it.
type ColorEntry struct {
	Thread      models.ThreadColor
	Symbol      string
	SymbolColor string
	Count       int
}

// Pattern is a finished chart. Cells are row-major and Colors holds exactly
// the codes referenced by Cells.
type Pattern struct {
	Width      int
	Height     int
	Palette    string
	Cells      []Cell
	Colors     map[string]ColorEntry
	Order      []string
	Backstitch bool
}

func (p *Pattern) At(x, y int) Cell {
	return p.Cells[y*p.Width+x]
}

// New combines the assembled cells, matched threads and symbol allocation
// into a Pattern, filling in each cell's symbol and the per-colour stitch
// counts.
func New(width, height int, palette string, cells []Cell, threads map[string]models.ThreadColor, alloc Allocation, backstitch bool) (*Pattern, error) {
	if len(cells) != width*height {
		return nil, fmt.Errorf("grid has %d cells, want %dx%d", len(cells), width, height)
	}

	out := make([]Cell, len(cells))
	counts := make(map[string]int, len(alloc.Order))
	for i, c := range cells {
		sym, ok := alloc.Symbols[c.Code]
		if !ok {
			return nil, fmt.Errorf("cell %d: no symbol for code %q", i, c.Code)
		}
		c.Symbol = sym
		if !backstitch {
			c.Edges = 0
		}
		out[i] = c
		counts[c.Code]++
	}

	colors := make(map[string]ColorEntry, len(alloc.Order))
	for _, code := range alloc.Order {
		t, ok := threads[code]
		if !ok {
			return nil, fmt.Errorf("no thread for code %q", code)
		}
		if counts[code] == 0 {
			return nil, fmt.Errorf("code %q is not used by the grid", code)
		}
		colors[code] = ColorEntry{
			Thread:      t,
			Symbol:      alloc.Symbols[code],
			SymbolColor: models.SymbolColor(t.RGB),
			Count:       counts[code],
		}
	}

	order := make([]string, len(alloc.Order))
	copy(order, alloc.Order)

	return &Pattern{
		Width:      width,
		Height:     height,
		Palette:    palette,
		Cells:      out,
		Colors:     colors,
		Order:      order,
		Backstitch: backstitch,
	}, nil
}

// EdgeCount returns the number of distinct backstitch segments.
func (p *Pattern) EdgeCount() int {
	n := 0
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			e := p.At(x, y).Edges
			// Count each shared side once, from its top or left cell.
			if e.Has(EdgeRight) {
				n++
			}
			if e.Has(EdgeBottom) {
				n++
			}
			if x == 0 && e.Has(EdgeLeft) {
				n++
			}
			if y == 0 && e.Has(EdgeTop) {
				n++
			}
		}
	}
	return n
}

package pattern

import (
	"errors"
	"fmt"
	"strings"

	"github.com/codr1/Stitchcraft/internal/models"
	"github.com/codr1/Stitchcraft/internal/thread"
)

var ErrInvalidDocument = errors.New("invalid pattern document")

// MaxDimension is the largest chart side, in stitches, a document may have.
const MaxDimension = 500

// Document is the JSON exchange form of a Pattern consumed by the preview
// and stored by the share endpoints.
type Document struct {
	Width         int                      `json:"width"`
	Height        int                      `json:"height"`
	ThreadPalette string                   `json:"threadPalette"`
	Grid          [][]string               `json:"grid"`
	Colors        map[string]DocumentColor `json:"colors"`
	Legend        []string                 `json:"legend"`
	Backstitch    [][]int                  `json:"backstitch,omitempty"`
}

type DocumentColor struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Hex         string `json:"hex"`
	Symbol      string `json:"symbol"`
	SymbolColor string `json:"symbolColor"`
	Count       int    `json:"count"`
}

// Encode converts p to its exchange document. The backstitch layer is only
// present when backstitch was requested.
func Encode(p *Pattern) Document {
	doc := Document{
		Width:         p.Width,
		Height:        p.Height,
		ThreadPalette: p.Palette,
		Grid:          make([][]string, p.Height),
		Colors:        make(map[string]DocumentColor, len(p.Colors)),
		Legend:        make([]string, len(p.Order)),
	}
	copy(doc.Legend, p.Order)

	if p.Backstitch {
		doc.Backstitch = make([][]int, p.Height)
	}
	for y := 0; y < p.Height; y++ {
		row := make([]string, p.Width)
		var edges []int
		if p.Backstitch {
			edges = make([]int, p.Width)
		}
		for x := 0; x < p.Width; x++ {
			c := p.At(x, y)
			row[x] = c.Code
			if edges != nil {
				edges[x] = int(c.Edges)
			}
		}
		doc.Grid[y] = row
		if p.Backstitch {
			doc.Backstitch[y] = edges
		}
	}

	for code, e := range p.Colors {
		doc.Colors[code] = DocumentColor{
			Code:        e.Thread.Code,
			Name:        e.Thread.Name,
			Color:       e.Thread.RGB.CSS(),
			Hex:         e.Thread.RGB.Hex(),
			Symbol:      e.Symbol,
			SymbolColor: e.SymbolColor,
			Count:       e.Count,
		}
	}
	return doc
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDocument, fmt.Sprintf(format, args...))
}

// Decode validates a document and rebuilds the Pattern it describes.
func Decode(doc Document) (*Pattern, error) {
	if doc.Width <= 0 || doc.Height <= 0 || doc.Width > MaxDimension || doc.Height > MaxDimension {
		return nil, invalid("dimensions must be between 1 and %d, got %dx%d", MaxDimension, doc.Width, doc.Height)
	}
	if len(doc.Grid) != doc.Height {
		return nil, invalid("grid has %d rows, want %d", len(doc.Grid), doc.Height)
	}
	for y, row := range doc.Grid {
		if len(row) != doc.Width {
			return nil, invalid("row %d has %d cells, want %d", y, len(row), doc.Width)
		}
	}
	if len(doc.Colors) == 0 {
		return nil, invalid("colors is empty")
	}
	if len(doc.Colors) > len(glyphs) {
		return nil, invalid("%d colours exceed the %d chart symbols", len(doc.Colors), len(glyphs))
	}
	palette := strings.ToLower(strings.TrimSpace(doc.ThreadPalette))
	if !thread.IsKnown(palette) {
		return nil, invalid("unknown thread palette %q", doc.ThreadPalette)
	}
	backstitch := doc.Backstitch != nil
	if backstitch && len(doc.Backstitch) != doc.Height {
		return nil, invalid("backstitch has %d rows, want %d", len(doc.Backstitch), doc.Height)
	}

	p := &Pattern{
		Width:      doc.Width,
		Height:     doc.Height,
		Palette:    palette,
		Cells:      make([]Cell, 0, doc.Width*doc.Height),
		Colors:     make(map[string]ColorEntry, len(doc.Colors)),
		Backstitch: backstitch,
	}

	symbols := make(map[string]string, len(doc.Colors))
	for key, c := range doc.Colors {
		if c.Code != key {
			return nil, invalid("color %q has code %q", key, c.Code)
		}
		if c.Symbol == "" {
			return nil, invalid("color %q has no symbol", key)
		}
		if !isGlyph(c.Symbol) {
			return nil, invalid("color %q has symbol %q outside the chart set", key, c.Symbol)
		}
		if other, ok := symbols[c.Symbol]; ok {
			return nil, invalid("symbol %q used by %q and %q", c.Symbol, other, key)
		}
		symbols[c.Symbol] = key
		rgb, err := models.ParseHex(c.Hex)
		if err != nil {
			return nil, invalid("color %q: %v", key, err)
		}
		thread := models.ThreadColor{Code: c.Code, Name: c.Name, RGB: rgb}
		if err := thread.Validate(); err != nil {
			return nil, invalid("color %q: %v", key, err)
		}
		p.Colors[key] = ColorEntry{
			Thread:      thread,
			Symbol:      c.Symbol,
			SymbolColor: models.SymbolColor(rgb),
		}
	}

	counts := make(map[string]int, len(doc.Colors))
	for y, row := range doc.Grid {
		if backstitch && len(doc.Backstitch[y]) != doc.Width {
			return nil, invalid("backstitch row %d has %d cells, want %d", y, len(doc.Backstitch[y]), doc.Width)
		}
		for x, code := range row {
			entry, ok := p.Colors[code]
			if !ok {
				return nil, invalid("cell (%d,%d) references unknown code %q", x, y, code)
			}
			cell := Cell{Code: code, Symbol: entry.Symbol}
			if backstitch {
				mask := doc.Backstitch[y][x]
				if mask < 0 || mask > int(edgeMask) {
					return nil, invalid("cell (%d,%d) has edge mask %d", x, y, mask)
				}
				cell.Edges = Edge(mask)
			}
			p.Cells = append(p.Cells, cell)
			counts[code]++
		}
	}

	for code, entry := range p.Colors {
		n := counts[code]
		if n == 0 {
			return nil, invalid("color %q is not used by the grid", code)
		}
		if c := doc.Colors[code].Count; c != 0 && c != n {
			return nil, invalid("color %q count is %d, grid has %d", code, c, n)
		}
		entry.Count = n
		p.Colors[code] = entry
	}

	if len(doc.Legend) != 0 {
		if len(doc.Legend) != len(p.Colors) {
			return nil, invalid("legend has %d entries, want %d", len(doc.Legend), len(p.Colors))
		}
		seen := make(map[string]bool, len(doc.Legend))
		for _, code := range doc.Legend {
			if _, ok := p.Colors[code]; !ok || seen[code] {
				return nil, invalid("legend entry %q is unknown or repeated", code)
			}
			seen[code] = true
		}
		p.Order = append([]string(nil), doc.Legend...)
	} else {
		p.Order = firstAppearance(p.Cells)
	}
	return p, nil
}

func firstAppearance(cells []Cell) []string {
	seen := make(map[string]bool)
	var order []string
	for _, c := range cells {
		if !seen[c.Code] {
			seen[c.Code] = true
			order = append(order, c.Code)
		}
	}
	return order
}

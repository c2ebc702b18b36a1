package pattern

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/codr1/Stitchcraft/internal/models"
	"github.com/codr1/Stitchcraft/internal/sampler"
)

var (
	black = models.RGB{}
	white = models.RGB{R: 255, G: 255, B: 255}
	gray  = models.RGB{R: 250, G: 250, B: 250}

	threads = map[string]models.ThreadColor{
		"310":   {Code: "310", Name: "Black", RGB: black},
		"blanc": {Code: "blanc", Name: "White", RGB: white},
		"ecru":  {Code: "ecru", Name: "Ecru", RGB: models.RGB{R: 240, G: 234, B: 218}},
	}
)

func matrix(w, h int, pix ...models.RGB) sampler.Matrix {
	return sampler.Matrix{Width: w, Height: h, Pix: pix}
}

func build(t *testing.T, original sampler.Matrix, codes []string, backstitch bool) *Pattern {
	t.Helper()
	cells, err := Assemble(original, codes, AssembleOptions{Backstitch: backstitch})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	alloc, err := AllocateSymbols(cells)
	if err != nil {
		t.Fatalf("AllocateSymbols() error = %v", err)
	}
	p, err := New(original.Width, original.Height, "dmc", cells, threads, alloc, backstitch)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestAssembleWithoutBackstitch(t *testing.T) {
	m := matrix(2, 1, black, white)
	cells, err := Assemble(m, []string{"310", "blanc"}, AssembleOptions{})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	want := []Cell{{Code: "310"}, {Code: "blanc"}}
	if diff := cmp.Diff(want, cells); diff != "" {
		t.Fatalf("Assemble() mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleBackstitchBoundary(t *testing.T) {
	// Left column black, right column white.
	m := matrix(2, 2, black, white, black, white)
	cells, err := Assemble(m, []string{"310", "blanc", "310", "blanc"}, AssembleOptions{Backstitch: true})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	want := []Cell{
		{Code: "310", Edges: EdgeRight},
		{Code: "blanc", Edges: EdgeLeft},
		{Code: "310", Edges: EdgeRight},
		{Code: "blanc", Edges: EdgeLeft},
	}
	if diff := cmp.Diff(want, cells); diff != "" {
		t.Fatalf("Assemble() mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleBackstitchNeedsBothConditions(t *testing.T) {
	tests := []struct {
		name  string
		pix   []models.RGB
		codes []string
	}{
		// Far apart originally but merged into one thread.
		{name: "same code", pix: []models.RGB{black, white}, codes: []string{"310", "310"}},
		// Different threads but the original colours were nearly equal.
		{name: "close colours", pix: []models.RGB{white, gray}, codes: []string{"blanc", "ecru"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells, err := Assemble(matrix(2, 1, tt.pix...), tt.codes, AssembleOptions{Backstitch: true})
			if err != nil {
				t.Fatalf("Assemble() error = %v", err)
			}
			for i, c := range cells {
				if c.Edges != 0 {
					t.Fatalf("cell %d has edges %b, want none", i, c.Edges)
				}
			}
		})
	}
}

func TestAssembleThresholdOverride(t *testing.T) {
	m := matrix(1, 2, white, gray)
	cells, err := Assemble(m, []string{"blanc", "ecru"}, AssembleOptions{Backstitch: true, Threshold: 5})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if cells[0].Edges != EdgeBottom || cells[1].Edges != EdgeTop {
		t.Fatalf("edges = %b, %b, want bottom/top", cells[0].Edges, cells[1].Edges)
	}
}

func TestAssembleRejectsMismatchedInput(t *testing.T) {
	if _, err := Assemble(matrix(2, 1, black, white), []string{"310"}, AssembleOptions{}); err == nil {
		t.Fatal("Assemble() accepted short code list")
	}
	if _, err := Assemble(matrix(1, 1, black), []string{""}, AssembleOptions{}); err == nil {
		t.Fatal("Assemble() accepted empty code")
	}
}

func TestGlyphs(t *testing.T) {
	g := Glyphs()
	if len(g) < 100 || len(g) != GlyphCount() {
		t.Fatalf("glyph count = %d, GlyphCount() = %d", len(g), GlyphCount())
	}
	seen := make(map[string]bool)
	for _, s := range g {
		if s == "" || strings.TrimSpace(s) != s {
			t.Fatalf("glyph %q is not printable", s)
		}
		if seen[s] {
			t.Fatalf("glyph %q repeated", s)
		}
		seen[s] = true
	}
	g[0] = "mutated"
	if Glyphs()[0] == "mutated" {
		t.Fatal("Glyphs() exposes the shared slice")
	}
}

func TestAllocateSymbolsFirstAppearance(t *testing.T) {
	cells := []Cell{{Code: "blanc"}, {Code: "310"}, {Code: "blanc"}, {Code: "ecru"}}
	alloc, err := AllocateSymbols(cells)
	if err != nil {
		t.Fatalf("AllocateSymbols() error = %v", err)
	}
	g := Glyphs()
	want := Allocation{
		Order:   []string{"blanc", "310", "ecru"},
		Symbols: map[string]string{"blanc": g[0], "310": g[1], "ecru": g[2]},
	}
	if diff := cmp.Diff(want, alloc); diff != "" {
		t.Fatalf("AllocateSymbols() mismatch (-want +got):\n%s", diff)
	}
}

func TestAllocateSymbolsExhausted(t *testing.T) {
	cells := make([]Cell, GlyphCount()+1)
	for i := range cells {
		cells[i].Code = strings.Repeat("x", i+1)
	}
	if _, err := AllocateSymbols(cells); !errors.Is(err, ErrPaletteExhausted) {
		t.Fatalf("AllocateSymbols() error = %v, want ErrPaletteExhausted", err)
	}
	if _, err := AllocateSymbols(cells[:GlyphCount()]); err != nil {
		t.Fatalf("AllocateSymbols() at capacity error = %v", err)
	}
}

func TestNewPaletteClosure(t *testing.T) {
	p := build(t, matrix(3, 1, black, white, black), []string{"310", "blanc", "310"}, false)

	if len(p.Colors) != 2 {
		t.Fatalf("colours = %d, want 2", len(p.Colors))
	}
	if _, ok := p.Colors["ecru"]; ok {
		t.Fatal("unused thread present in colours")
	}
	if p.Colors["310"].Count != 2 || p.Colors["blanc"].Count != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", p.Colors["310"].Count, p.Colors["blanc"].Count)
	}
	if p.Colors["310"].SymbolColor != "#FFFFFF" || p.Colors["blanc"].SymbolColor != "#000000" {
		t.Fatalf("symbol colours = %s/%s", p.Colors["310"].SymbolColor, p.Colors["blanc"].SymbolColor)
	}
	for i, c := range p.Cells {
		if c.Symbol != p.Colors[c.Code].Symbol {
			t.Fatalf("cell %d symbol %q, legend has %q", i, c.Symbol, p.Colors[c.Code].Symbol)
		}
	}
}

func TestNewRejectsMissingThread(t *testing.T) {
	cells := []Cell{{Code: "999"}}
	alloc, _ := AllocateSymbols(cells)
	if _, err := New(1, 1, "dmc", cells, threads, alloc, false); err == nil {
		t.Fatal("New() accepted a code without thread")
	}
}

func TestEncodeShape(t *testing.T) {
	p := build(t, matrix(2, 2, black, white, black, white), []string{"310", "blanc", "310", "blanc"}, false)
	doc := Encode(p)

	wantGrid := [][]string{{"310", "blanc"}, {"310", "blanc"}}
	if diff := cmp.Diff(wantGrid, doc.Grid); diff != "" {
		t.Fatalf("grid mismatch (-want +got):\n%s", diff)
	}
	if doc.Backstitch != nil {
		t.Fatal("backstitch layer present when disabled")
	}
	entry := doc.Colors["310"]
	if entry.Color != "rgb(0, 0, 0)" || entry.Hex != "#000000" || entry.Name != "Black" || entry.Count != 2 {
		t.Fatalf("colour entry = %+v", entry)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "backstitch") {
		t.Fatalf("JSON contains backstitch: %s", data)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := build(t, matrix(2, 2, black, white, white, black), []string{"310", "blanc", "blanc", "310"}, true)
	if p.EdgeCount() != 4 {
		t.Fatalf("EdgeCount() = %d, want 4", p.EdgeCount())
	}

	data, err := json.Marshal(Encode(p))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	got, err := Decode(doc)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	valid := func() Document {
		p := build(t, matrix(2, 1, black, white), []string{"310", "blanc"}, true)
		return Encode(p)
	}

	tests := []struct {
		name   string
		mutate func(d *Document)
	}{
		{"zero width", func(d *Document) { d.Width = 0 }},
		{"huge width", func(d *Document) { d.Width = 1 << 33 }},
		{"width over limit", func(d *Document) {
			d.Width, d.Height = MaxDimension+1, 1
			d.Grid = d.Grid[:1]
			d.Backstitch = nil
		}},
		{"unknown palette", func(d *Document) { d.ThreadPalette = "cosmo" }},
		{"symbol outside glyph set", func(d *Document) {
			c := d.Colors["blanc"]
			c.Symbol = "🧵"
			d.Colors["blanc"] = c
		}},
		{"too many colours", func(d *Document) {
			for i := 0; i <= GlyphCount(); i++ {
				code := fmt.Sprintf("x%d", i)
				d.Colors[code] = DocumentColor{Code: code, Name: code, Hex: "#102030", Symbol: glyphs[i%len(glyphs)]}
			}
		}},
		{"short grid", func(d *Document) { d.Grid = d.Grid[:0] }},
		{"short row", func(d *Document) { d.Grid[0] = d.Grid[0][:1] }},
		{"unknown code", func(d *Document) { d.Grid[0][0] = "9999" }},
		{"unreferenced colour", func(d *Document) {
			d.Colors["ecru"] = DocumentColor{Code: "ecru", Name: "Ecru", Hex: "#F0EADA", Symbol: "Z"}
		}},
		{"duplicate symbol", func(d *Document) {
			c := d.Colors["blanc"]
			c.Symbol = d.Colors["310"].Symbol
			d.Colors["blanc"] = c
		}},
		{"bad hex", func(d *Document) {
			c := d.Colors["blanc"]
			c.Hex = "white"
			d.Colors["blanc"] = c
		}},
		{"key mismatch", func(d *Document) {
			c := d.Colors["blanc"]
			c.Code = "B5200"
			d.Colors["blanc"] = c
		}},
		{"wrong count", func(d *Document) {
			c := d.Colors["blanc"]
			c.Count = 7
			d.Colors["blanc"] = c
		}},
		{"bad edge mask", func(d *Document) { d.Backstitch[0][0] = 16 }},
		{"short backstitch", func(d *Document) { d.Backstitch = d.Backstitch[:0] }},
		{"legend unknown", func(d *Document) { d.Legend = []string{"310", "ecru"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := valid()
			tt.mutate(&doc)
			if _, err := Decode(doc); !errors.Is(err, ErrInvalidDocument) {
				t.Fatalf("Decode() error = %v, want ErrInvalidDocument", err)
			}
		})
	}
}

func TestDecodeNormalizesPalette(t *testing.T) {
	doc := Encode(build(t, matrix(2, 1, black, white), []string{"310", "blanc"}, false))
	doc.ThreadPalette = " DMC "
	p, err := Decode(doc)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if p.Palette != "dmc" {
		t.Fatalf("Palette = %q, want dmc", p.Palette)
	}
}

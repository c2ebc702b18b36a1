// Package thread holds the manufacturer thread catalogs and the nearest-thread matcher.
package thread

import (
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"

	"github.com/codr1/Stitchcraft/internal/models"
)

const (
	DMC     = "dmc"
	Anchor  = "anchor"
	Madeira = "madeira"
)

// Names lists the supported palettes in display order.
var Names = []string{DMC, Anchor, Madeira}

var ErrUnknownPalette = errors.New("unknown thread palette")

//go:embed catalogs/*.yaml
var catalogFS embed.FS

var (
	catalogs     map[string]*Catalog
	catalogsOnce sync.Once
	catalogsErr  error
)

// Catalog is an immutable, code-sorted list of threads for one manufacturer.
type Catalog struct {
	name    string
	title   string
	threads []models.ThreadColor
	byCode  map[string]int
}

type catalogFile struct {
	Manufacturer string `yaml:"manufacturer"`
	Title        string `yaml:"title"`
	Threads      []struct {
		Code string `yaml:"code"`
		Name string `yaml:"name"`
		Hex  string `yaml:"hex"`
	} `yaml:"threads"`
}

// Lookup returns the catalog registered under name. Catalogs are parsed once,
// on first use, and never mutated afterwards.
func Lookup(name string) (*Catalog, error) {
	catalogsOnce.Do(func() {
		catalogs, catalogsErr = loadCatalogs()
	})
	if catalogsErr != nil {
		return nil, catalogsErr
	}
	c, ok := catalogs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPalette, name)
	}
	return c, nil
}

// IsKnown reports whether name is a supported palette.
func IsKnown(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

func loadCatalogs() (map[string]*Catalog, error) {
	result := make(map[string]*Catalog, len(Names))
	for _, name := range Names {
		data, err := catalogFS.ReadFile("catalogs/" + name + ".yaml")
		if err != nil {
			return nil, fmt.Errorf("open embedded catalog %s: %w", name, err)
		}
		c, err := ParseCatalog(data)
		if err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", name, err)
		}
		if c.name != name {
			return nil, fmt.Errorf("catalog file %s declares manufacturer %q", name, c.name)
		}
		result[name] = c
	}
	return result, nil
}

// ParseCatalog parses a YAML thread catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalog yaml: %w", err)
	}
	name := strings.ToLower(strings.TrimSpace(file.Manufacturer))
	if name == "" {
		return nil, fmt.Errorf("manufacturer is required")
	}
	if len(file.Threads) == 0 {
		return nil, fmt.Errorf("catalog %s has no threads", name)
	}

	threads := make([]models.ThreadColor, 0, len(file.Threads))
	seen := make(map[string]struct{}, len(file.Threads))
	for i, entry := range file.Threads {
		code := strings.TrimSpace(entry.Code)
		if _, dup := seen[code]; dup {
			return nil, fmt.Errorf("duplicate thread code %q at entry %d", code, i+1)
		}
		seen[code] = struct{}{}

		col, err := colorful.Hex(strings.TrimSpace(entry.Hex))
		if err != nil {
			return nil, fmt.Errorf("thread %q: invalid hex %q: %w", code, entry.Hex, err)
		}
		r, g, b := col.RGB255()
		tc := models.ThreadColor{
			Code: code,
			Name: strings.TrimSpace(entry.Name),
			RGB:  models.RGB{R: r, G: g, B: b},
		}
		if err := tc.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		threads = append(threads, tc)
	}

	sort.Slice(threads, func(i, j int) bool {
		return threads[i].Code < threads[j].Code
	})
	byCode := make(map[string]int, len(threads))
	for i, t := range threads {
		byCode[t.Code] = i
	}

	return &Catalog{
		name:    name,
		title:   strings.TrimSpace(file.Title),
		threads: threads,
		byCode:  byCode,
	}, nil
}

func (c *Catalog) Name() string  { return c.name }
func (c *Catalog) Title() string { return c.title }
func (c *Catalog) Len() int      { return len(c.threads) }

// Threads returns a copy of the catalog entries, sorted by code.
func (c *Catalog) Threads() []models.ThreadColor {
	out := make([]models.ThreadColor, len(c.threads))
	copy(out, c.threads)
	return out
}

func (c *Catalog) Get(code string) (models.ThreadColor, bool) {
	i, ok := c.byCode[code]
	if !ok {
		return models.ThreadColor{}, false
	}
	return c.threads[i], true
}

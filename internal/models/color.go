// internal/models/color.go
package models

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const darkTextColor = "#000000"
const lightTextColor = "#FFFFFF"

var hexColorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func IsHexColor(value string) bool {
	return hexColorRegex.MatchString(strings.TrimSpace(value))
}

// RGB is an opaque 8-bit-per-channel colour.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// ParseHex parses a #RRGGBB string.
func ParseHex(hexColor string) (RGB, error) {
	hexColor = strings.TrimSpace(hexColor)
	if !hexColorRegex.MatchString(hexColor) {
		return RGB{}, fmt.Errorf("invalid hex color: %s", hexColor)
	}
	value, err := strconv.ParseUint(strings.TrimPrefix(hexColor, "#"), 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid hex color: %s", hexColor)
	}
	return RGB{
		R: uint8((value >> 16) & 0xFF),
		G: uint8((value >> 8) & 0xFF),
		B: uint8(value & 0xFF),
	}, nil
}

func (c RGB) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// CSS formats the colour the way the pattern preview consumes it.
func (c RGB) CSS() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

// Pack returns 0xRRGGBB, used as a total ordering key.
func (c RGB) Pack() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

func Unpack(v uint32) RGB {
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}
}

// DistanceSq is the squared Euclidean distance in RGB space.
func (c RGB) DistanceSq(o RGB) int {
	dr := int(c.R) - int(o.R)
	dg := int(c.G) - int(o.G)
	db := int(c.B) - int(o.B)
	return dr*dr + dg*dg + db*db
}

func (c RGB) Distance(o RGB) float64 {
	return math.Sqrt(float64(c.DistanceSq(o)))
}

// SymbolColor returns black or white, whichever reads better on top of c.
func SymbolColor(c RGB) string {
	bg := relativeLuminance(c)
	darkRatio := contrastRatio(0, bg)
	lightRatio := contrastRatio(1, bg)
	if darkRatio >= lightRatio {
		return darkTextColor
	}
	return lightTextColor
}

func contrastRatio(textL, backgroundL float64) float64 {
	lightest := math.Max(textL, backgroundL)
	darkest := math.Min(textL, backgroundL)
	return (lightest + 0.05) / (darkest + 0.05)
}

func relativeLuminance(c RGB) float64 {
	rl := srgbToLinear(float64(c.R) / 255)
	gl := srgbToLinear(float64(c.G) / 255)
	bl := srgbToLinear(float64(c.B) / 255)

	return 0.2126*rl + 0.7152*gl + 0.0722*bl
}

func srgbToLinear(value float64) float64 {
	if value <= 0.03928 {
		return value / 12.92
	}
	return math.Pow((value+0.055)/1.055, 2.4)
}

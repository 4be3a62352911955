package choropleth

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Palette is an ordered list of bin colors, one per bin.
type Palette []colorful.Color

// Hex returns the palette as #rrggbb strings.
func (p Palette) Hex() []string {
	out := make([]string, len(p))
	for i, c := range p {
		out[i] = c.Clamped().Hex()
	}
	return out
}

// LabPalette interpolates n colors between start and end in CIE L*a*b*
// space at positions i/(n-1). A single-color palette is just start.
func LabPalette(start, end colorful.Color, n int) Palette {
	if n <= 0 {
		return nil
	}
	p := make(Palette, n)
	if n == 1 {
		p[0] = start
		return p
	}
	for i := 0; i < n; i++ {
		p[i] = start.BlendLab(end, float64(i)/float64(n-1)).Clamped()
	}
	return p
}

// ParseColor accepts #rgb, #rrggbb and rgb(r,g,b) notations.
func ParseColor(s string) (colorful.Color, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "#"):
		c, err := colorful.Hex(s)
		if err != nil {
			return colorful.Color{}, fmt.Errorf("parsing color %q: %w", s, err)
		}
		return c, nil
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		parts := strings.Split(s[len("rgb("):len(s)-1], ",")
		if len(parts) != 3 {
			return colorful.Color{}, fmt.Errorf("parsing color %q: expected 3 components", s)
		}
		var rgb [3]uint8
		for i, part := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || v < 0 || v > 255 {
				return colorful.Color{}, fmt.Errorf("parsing color %q: component %d out of range", s, i)
			}
			rgb[i] = uint8(v)
		}
		return colorful.Color{R: float64(rgb[0]) / 255, G: float64(rgb[1]) / 255, B: float64(rgb[2]) / 255}, nil
	}
	return colorful.Color{}, fmt.Errorf("unsupported color notation %q", s)
}

// mustColor parses a color that has already passed Config.Validate.
func mustColor(s string) colorful.Color {
	c, err := ParseColor(s)
	if err != nil {
		return colorful.Color{}
	}
	return c
}

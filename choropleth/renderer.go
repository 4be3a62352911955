package choropleth

import (
	"fmt"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// Shape is the drawable bound to one region. Shapes are created once per
// load and only restyled afterwards.
type Shape struct {
	Index       string
	Path        orb.MultiPolygon // Canvas coordinates
	Fill        string
	NoData      bool
	Stroke      string
	StrokeWidth float64
	Highlighted bool
}

// Swatch is one legend color rectangle.
type Swatch struct {
	X, Y, Width, Height float64
	Color               string
}

// Label is one legend text label, vertically centered on Y.
type Label struct {
	X, Y float64
	Text string
}

// Legend is the laid out legend panel. When Custom is set it replaces the
// built-in panel and the remaining fields are empty.
type Legend struct {
	X, Y, Width, Height float64
	Swatches            []Swatch
	Labels              []Label
	Custom              string
}

// Renderer keeps shape styles, the legend and the info panel consistent
// with a single Scale per repaint.
type Renderer struct {
	cfg    *Config
	shapes []*Shape
	order  []int // Draw order as positions into shapes; last is on top
	scale  *Scale
	column string
	legend Legend
	info   string
}

// NewRenderer returns a renderer without shapes.
func NewRenderer(cfg *Config) *Renderer {
	return &Renderer{cfg: cfg}
}

// BindShapes creates one shape per region, in store order, projected with
// proj. Strokes start at the normal style for zoom factor k.
func (r *Renderer) BindShapes(store *Store, proj Projection, k float64) {
	regions := store.Regions()
	r.shapes = make([]*Shape, len(regions))
	r.order = make([]int, len(regions))
	for i, reg := range regions {
		r.shapes[i] = &Shape{
			Index:  reg.Index,
			Path:   ProjectGeometry(proj, reg.Geometry, r.cfg.SimplifyTolerance),
			Fill:   r.cfg.Region.NoDataFill,
			NoData: true,
		}
		r.order[i] = i
	}
	r.ResetEmphasis(k)
}

// Paint fills every shape from scale and rebuilds the legend from the same
// scale. values must be in store order.
func (r *Renderer) Paint(column string, values []Value, scale *Scale) error {
	if err := scale.Check(); err != nil {
		return err
	}
	if len(values) != len(r.shapes) {
		return fmt.Errorf("painting %q: %d values for %d shapes", column, len(values), len(r.shapes))
	}
	palette := scale.Colors.Hex()
	for i, s := range r.shapes {
		if bin := scale.BinIndex(values[i]); bin >= 0 {
			s.Fill, s.NoData = palette[bin], false
		} else {
			s.Fill, s.NoData = r.cfg.Region.NoDataFill, true
		}
	}
	r.scale = scale
	r.column = column
	r.legend = r.layoutLegend(scale)
	return nil
}

// Clear resets every fill to the no-data style and drops the legend.
func (r *Renderer) Clear() {
	for _, s := range r.shapes {
		s.Fill, s.NoData = r.cfg.Region.NoDataFill, true
	}
	r.scale = nil
	r.column = ""
	r.legend = Legend{}
}

// SetCustomLegend replaces the built-in legend with caller markup.
func (r *Renderer) SetCustomLegend(markup string) {
	r.legend = Legend{Custom: markup}
}

// layoutLegend lays out one swatch and label per bin of scale. A scale with
// nothing to classify gets a single no-data entry, matching the fills.
func (r *Renderer) layoutLegend(scale *Scale) Legend {
	lc := r.cfg.Legend
	sw := lc.Swatch

	var colors, texts []string
	if scale.Empty() {
		colors = []string{r.cfg.Region.NoDataFill}
		texts = []string{lc.NoDataLabel}
	} else {
		colors = scale.Colors.Hex()
		for _, rng := range scale.Ranges() {
			texts = append(texts, LegendLabel(rng, lc.Decimals, lc.NoDataLabel))
		}
	}
	n := float64(len(colors))

	lg := Legend{X: lc.X}
	lg.Height = n*sw.Height + (n+1)*sw.MarginY
	lg.Y = r.cfg.Canvas.Height - lc.Y - lg.Height

	labelX := lc.X + sw.Width + 2*sw.MarginX
	var textWidth float64
	for i, text := range texts {
		y := lg.Y + sw.MarginY + float64(i)*(sw.MarginY+sw.Height)
		lg.Swatches = append(lg.Swatches, Swatch{
			X: lc.X + sw.MarginX, Y: y, Width: sw.Width, Height: sw.Height,
			Color: colors[i],
		})
		lg.Labels = append(lg.Labels, Label{X: labelX, Y: y + sw.Height/2, Text: text})
		textWidth = max(textWidth, TextWidth(text, lc.FontSize))
	}
	lg.Width = 3*sw.MarginX + sw.Width + textWidth + 2
	return lg
}

// TextWidth estimates the rendered width of s at fontSize pixels from the
// advance widths of the built-in 7x13 face.
func TextWidth(s string, fontSize float64) float64 {
	adv := font.MeasureString(basicfont.Face7x13, s)
	return float64(adv) / 64 * fontSize / float64(basicfont.Face7x13.Height)
}

// ResetEmphasis restores the normal stroke on every shape, scaled for zoom
// factor k, and clears the info panel.
func (r *Renderer) ResetEmphasis(k float64) {
	rc := r.cfg.Region
	for _, s := range r.shapes {
		s.Stroke = rc.StrokeColor.Normal
		s.StrokeWidth = rc.StrokeWidth.Normal / k
		s.Highlighted = false
	}
	r.info = ""
}

// Highlight emphasizes the shape at pos, raises it to the top of the draw
// order and sets the info panel. Callers reset emphasis first.
func (r *Renderer) Highlight(pos int, k float64, info string) {
	rc := r.cfg.Region
	s := r.shapes[pos]
	s.Stroke = rc.StrokeColor.Highlight
	s.StrokeWidth = rc.StrokeWidth.Highlight / k
	s.Highlighted = true

	for i, p := range r.order {
		if p == pos {
			r.order = append(append(r.order[:i:i], r.order[i+1:]...), pos)
			break
		}
	}
	r.info = info
}

// Highlighted returns the highlighted shape, if any.
func (r *Renderer) Highlighted() (*Shape, bool) {
	for _, s := range r.shapes {
		if s.Highlighted {
			return s, true
		}
	}
	return nil, false
}

// Shapes returns the shapes in store order.
func (r *Renderer) Shapes() []*Shape {
	return r.shapes
}

// DrawOrder returns the shapes bottom to top.
func (r *Renderer) DrawOrder() []*Shape {
	out := make([]*Shape, len(r.order))
	for i, p := range r.order {
		out[i] = r.shapes[p]
	}
	return out
}

// Scale returns the scale of the last repaint, nil before the first.
func (r *Renderer) Scale() *Scale {
	return r.scale
}

// Column returns the column of the last repaint.
func (r *Renderer) Column() string {
	return r.column
}

// Legend returns the current legend layout.
func (r *Renderer) Legend() Legend {
	return r.legend
}

// Info returns the info panel markup.
func (r *Renderer) Info() string {
	return r.info
}

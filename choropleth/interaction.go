package choropleth

import (
	"fmt"
	"html"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// View holds the pan/zoom transform of the map layer. The scale factor is
// clamped to [min, max] and the translation keeps the canvas covering the
// viewport, which is the canvas itself.
type View struct {
	width, height float64
	min, max      float64
	t             ViewTransform
}

// NewView returns an identity view for a width x height canvas.
func NewView(width, height float64, zoom ZoomConfig) *View {
	return &View{width: width, height: height, min: zoom.Min, max: zoom.Max, t: IdentityTransform()}
}

// Transform returns the current transform.
func (v *View) Transform() ViewTransform {
	return v.t
}

// K returns the current scale factor.
func (v *View) K() float64 {
	return v.t.K
}

// Reset restores the identity transform.
func (v *View) Reset() {
	v.t = IdentityTransform()
}

// Set applies t after clamping its scale and constraining its translation.
// Non-finite components keep their current value.
func (v *View) Set(t ViewTransform) ViewTransform {
	if !finite(t.K) || t.K <= 0 {
		t.K = v.t.K
	}
	if !finite(t.X) {
		t.X = v.t.X
	}
	if !finite(t.Y) {
		t.Y = v.t.Y
	}
	t.K = math.Max(v.min, math.Min(v.max, t.K))
	v.t = v.constrain(t)
	return v.t
}

// ZoomAt multiplies the scale by factor keeping the canvas point under the
// screen point (cx, cy) fixed.
func (v *View) ZoomAt(factor, cx, cy float64) ViewTransform {
	k := math.Max(v.min, math.Min(v.max, v.t.K*factor))
	ratio := k / v.t.K
	return v.Set(ViewTransform{
		X: cx - (cx-v.t.X)*ratio,
		Y: cy - (cy-v.t.Y)*ratio,
		K: k,
	})
}

// Pan shifts the translation by (dx, dy) screen pixels.
func (v *View) Pan(dx, dy float64) ViewTransform {
	return v.Set(ViewTransform{X: v.t.X + dx, Y: v.t.Y + dy, K: v.t.K})
}

// Invert maps a screen point back into canvas coordinates.
func (v *View) Invert(p orb.Point) orb.Point {
	return orb.Point{(p[0] - v.t.X) / v.t.K, (p[1] - v.t.Y) / v.t.K}
}

// constrain shifts t so the translate extent [[0,0],[width,height]] covers
// the viewport, centering it when it cannot.
func (v *View) constrain(t ViewTransform) ViewTransform {
	dx0 := (0 - t.X) / t.K
	dx1 := (v.width-t.X)/t.K - v.width
	dy0 := (0 - t.Y) / t.K
	dy1 := (v.height-t.Y)/t.K - v.height
	t.X += t.K * constrainShift(dx0, dx1)
	t.Y += t.K * constrainShift(dy0, dy1)
	return t
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func constrainShift(d0, d1 float64) float64 {
	if d1 > d0 {
		return (d0 + d1) / 2
	}
	if s := math.Min(0, d0); s != 0 {
		return s
	}
	return math.Max(0, d1)
}

// hitTest returns the position of the topmost shape containing the canvas
// point p.
func hitTest(r *Renderer, p orb.Point) (int, bool) {
	for i := len(r.order) - 1; i >= 0; i-- {
		pos := r.order[i]
		s := r.shapes[pos]
		if !s.Path.Bound().Contains(p) {
			continue
		}
		if planar.MultiPolygonContains(s.Path, p) {
			return pos, true
		}
	}
	return 0, false
}

// DefaultInfoLabel renders the region's index and its value for column.
func DefaultInfoLabel(r *Region, column string, decimals int, noData string) string {
	value := FormatValue(r.Value(column), decimals)
	if value == "" {
		value = noData
	}
	return "<div><strong>Region:</strong> " + html.EscapeString(r.Index) +
		"</div><div><strong>Value:</strong> " + html.EscapeString(value) + "</div>"
}

// Click highlights the region with the given index value. Any previous
// highlight is cleared first so at most one region is emphasized.
func (w *Widget) Click(index string) error {
	if !w.ready {
		return ErrNotReady
	}
	pos, ok := w.store.Position(index)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRegion, index)
	}
	w.highlight(pos)
	return nil
}

// ClickAt handles a click at screen point (x, y): the topmost region under
// the point is highlighted, and a click on empty canvas clears the highlight.
// It reports the clicked region index, empty for the background.
func (w *Widget) ClickAt(x, y float64) (string, error) {
	if !w.ready {
		return "", ErrNotReady
	}
	pos, ok := hitTest(w.renderer, w.view.Invert(orb.Point{x, y}))
	if !ok {
		w.renderer.ResetEmphasis(w.view.K())
		w.emit(Event{Kind: EventBackgroundClicked})
		return "", nil
	}
	w.highlight(pos)
	return w.renderer.shapes[pos].Index, nil
}

// Background clears the highlight and the info panel.
func (w *Widget) Background() error {
	if !w.ready {
		return ErrNotReady
	}
	w.renderer.ResetEmphasis(w.view.K())
	w.emit(Event{Kind: EventBackgroundClicked})
	return nil
}

func (w *Widget) highlight(pos int) {
	k := w.view.K()
	w.renderer.ResetEmphasis(k)
	region := w.store.Regions()[pos]
	w.renderer.Highlight(pos, k, w.infoLabel(region))
	w.emit(Event{Kind: EventRegionClicked, Region: region.Index, Column: w.shown})
}

func (w *Widget) infoLabel(r *Region) string {
	if w.hooks.InfoLabel != nil {
		return w.hooks.InfoLabel(w, r)
	}
	return DefaultInfoLabel(r, w.shown, w.cfg.Legend.Decimals, w.cfg.Legend.NoDataLabel)
}

// SetTransform applies an absolute view transform, as produced by a drag or
// pinch gesture.
func (w *Widget) SetTransform(t ViewTransform) (ViewTransform, error) {
	if !w.ready {
		return w.view.Transform(), ErrNotReady
	}
	t = w.view.Set(t)
	w.transformed()
	return t, nil
}

// ZoomAt zooms by factor around the screen point (cx, cy), as a wheel does.
func (w *Widget) ZoomAt(factor, cx, cy float64) (ViewTransform, error) {
	if !w.ready {
		return w.view.Transform(), ErrNotReady
	}
	if factor <= 0 || math.IsNaN(factor) {
		return w.view.Transform(), fmt.Errorf("zoom factor must be positive, got %g", factor)
	}
	t := w.view.ZoomAt(factor, cx, cy)
	w.transformed()
	return t, nil
}

// Pan moves the map layer by (dx, dy) screen pixels.
func (w *Widget) Pan(dx, dy float64) (ViewTransform, error) {
	if !w.ready {
		return w.view.Transform(), ErrNotReady
	}
	t := w.view.Pan(dx, dy)
	w.transformed()
	return t, nil
}

// transformed runs after every transform update: strokes are rescaled for
// the new zoom factor and the highlight is dropped.
func (w *Widget) transformed() {
	w.renderer.ResetEmphasis(w.view.K())
	w.emit(Event{Kind: EventTransformed})
}

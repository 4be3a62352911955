package choropleth

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/project"
	"github.com/paulmach/orb/simplify"
)

// Projection maps a lon/lat point in degrees to canvas pixels.
type Projection interface {
	Project(p orb.Point) orb.Point
}

// Mercator is a spherical Mercator projection centered on Center and scaled
// so that one radian of longitude spans Scale pixels. Center projects onto
// Translate.
type Mercator struct {
	Center    orb.Point
	Scale     float64
	Translate orb.Point
}

// unitMercator returns the Mercator coordinates of p on the unit sphere.
func unitMercator(p orb.Point) orb.Point {
	m := project.WGS84.ToMercator(p)
	return orb.Point{m[0] / orb.EarthRadius, m[1] / orb.EarthRadius}
}

// Project implements Projection. Canvas y grows downward.
func (m Mercator) Project(p orb.Point) orb.Point {
	u := unitMercator(p)
	c := unitMercator(m.Center)
	return orb.Point{
		m.Translate[0] + m.Scale*(u[0]-c[0]),
		m.Translate[1] - m.Scale*(u[1]-c[1]),
	}
}

// FitMercator estimates a Mercator projection that fits the geometries
// into a width x height canvas. The scale is the smaller of the canvas to
// extent ratios (extent measured as great-circle angles along the bounding
// box edges) divided by scaling. The center is the bounding box center.
func FitMercator(geoms []orb.Geometry, width, height, scaling float64) Mercator {
	m := Mercator{Translate: orb.Point{width / 2, height / 2}}
	if len(geoms) == 0 {
		m.Scale = math.Min(width, height) / scaling
		return m
	}

	bound := geoms[0].Bound()
	for _, g := range geoms[1:] {
		bound = bound.Union(g.Bound())
	}

	extentX := geo.Distance(bound.Min, orb.Point{bound.Max[0], bound.Min[1]}) / orb.EarthRadius
	extentY := geo.Distance(bound.Min, orb.Point{bound.Min[0], bound.Max[1]}) / orb.EarthRadius

	fit := math.Inf(1)
	if extentX > 0 {
		fit = width / extentX
	}
	if extentY > 0 {
		fit = math.Min(fit, height/extentY)
	}
	if math.IsInf(fit, 1) {
		fit = math.Min(width, height)
	}

	m.Center = bound.Center()
	m.Scale = fit / scaling
	return m
}

// ProjectGeometry projects a Polygon or MultiPolygon into canvas space and,
// when tolerance is positive, drops vertices closer than tolerance pixels to
// the simplified outline. Other geometry types project to nil.
func ProjectGeometry(proj Projection, g orb.Geometry, tolerance float64) orb.MultiPolygon {
	var out orb.MultiPolygon
	switch g := g.(type) {
	case orb.Polygon:
		out = orb.MultiPolygon{projectPolygon(proj, g)}
	case orb.MultiPolygon:
		out = make(orb.MultiPolygon, len(g))
		for i, p := range g {
			out[i] = projectPolygon(proj, p)
		}
	default:
		return nil
	}

	if tolerance > 0 {
		if s, ok := simplify.DouglasPeucker(tolerance).Simplify(out).(orb.MultiPolygon); ok {
			out = s
		}
	}
	return out
}

func projectPolygon(proj Projection, p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		r := make(orb.Ring, len(ring))
		for j, pt := range ring {
			r[j] = proj.Project(pt)
		}
		out[i] = r
	}
	return out
}

package choropleth

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMercator_Project(t *testing.T) {
	m := Mercator{Center: orb.Point{10, 50}, Scale: 1000, Translate: orb.Point{400, 300}}

	c := m.Project(orb.Point{10, 50})
	assert.InDelta(t, 400, c[0], 1e-6)
	assert.InDelta(t, 300, c[1], 1e-6)

	// One degree east moves right by scale * one degree in radians.
	e := m.Project(orb.Point{11, 50})
	assert.InDelta(t, 400+1000*math.Pi/180, e[0], 1e-6)
	assert.InDelta(t, 300, e[1], 1e-6)

	// North is up on the canvas.
	n := m.Project(orb.Point{10, 51})
	assert.Less(t, n[1], 300.0)
}

func TestFitMercator(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Polygon{orb.Ring{{0, 0}, {2, 0}, {2, 1}, {0, 1}, {0, 0}}},
	}
	m := FitMercator(geoms, 800, 600, 1.8)

	assert.Equal(t, orb.Point{400, 300}, m.Translate)
	assert.InDelta(t, 1.0, m.Center[0], 1e-9)
	assert.InDelta(t, 0.5, m.Center[1], 1e-9)

	width := 2 * math.Pi / 180
	height := 1 * math.Pi / 180
	want := math.Min(800/width, 600/height) / 1.8
	assert.InDelta(t, want, m.Scale, want*1e-3)
}

func TestFitMercator_ContentFitsCanvas(t *testing.T) {
	ds := testDataset()
	geoms := make([]orb.Geometry, 0, len(ds.Features.Features))
	for _, f := range ds.Features.Features {
		geoms = append(geoms, f.Geometry)
	}
	m := FitMercator(geoms, 800, 600, 1.8)

	for _, g := range geoms {
		mp := ProjectGeometry(m, g, 0)
		b := mp.Bound()
		assert.GreaterOrEqual(t, b.Min[0], 0.0)
		assert.GreaterOrEqual(t, b.Min[1], 0.0)
		assert.LessOrEqual(t, b.Max[0], 800.0)
		assert.LessOrEqual(t, b.Max[1], 600.0)
	}
}

func TestFitMercator_Degenerate(t *testing.T) {
	m := FitMercator(nil, 800, 600, 2)
	assert.InDelta(t, 300, m.Scale, 1e-9)

	point := []orb.Geometry{orb.Point{5, 5}}
	m = FitMercator(point, 800, 600, 2)
	assert.InDelta(t, 300, m.Scale, 1e-9)
	assert.Equal(t, orb.Point{5, 5}, m.Center)
}

func TestProjectGeometry(t *testing.T) {
	m := Mercator{Center: orb.Point{0, 0}, Scale: 100, Translate: orb.Point{0, 0}}

	poly := orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
	mp := ProjectGeometry(m, poly, 0)
	require.Len(t, mp, 1)
	require.Len(t, mp[0][0], 5)
	assert.Equal(t, orb.Point{0, 0}, poly[0][0], "input untouched")

	multi := orb.MultiPolygon{poly, poly}
	assert.Len(t, ProjectGeometry(m, multi, 0), 2)

	assert.Nil(t, ProjectGeometry(m, orb.LineString{{0, 0}, {1, 1}}, 0))
}

func TestProjectGeometry_Simplify(t *testing.T) {
	m := Mercator{Center: orb.Point{0, 0}, Scale: 1000, Translate: orb.Point{0, 0}}

	// A square with a nearly collinear midpoint on its south edge.
	ring := orb.Ring{{0, 0}, {0.5, 0.0001}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	full := ProjectGeometry(m, orb.Polygon{ring}, 0)
	simplified := ProjectGeometry(m, orb.Polygon{ring}, 1)

	require.Len(t, simplified, 1)
	assert.Len(t, full[0][0], 6)
	assert.Less(t, len(simplified[0][0]), len(full[0][0]))
}

package choropleth

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// squareFeature builds a 1x1 degree square whose west edge sits at lon0.
func squareFeature(lon0 float64, props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(orb.Polygon{orb.Ring{
		{lon0, 0}, {lon0 + 1, 0}, {lon0 + 1, 1}, {lon0, 1}, {lon0, 0},
	}})
	f.Properties = props
	return f
}

// testDataset returns regions A, B and C from west to east with pop
// 10, 20, 30 and gdp 1.5, null, 3.
func testDataset() *Dataset {
	fc := geojson.NewFeatureCollection()
	fc.Append(squareFeature(0, geojson.Properties{"name": "A", "pop": 10.0, "gdp": 1.5}))
	fc.Append(squareFeature(1, geojson.Properties{"name": "B", "pop": 20.0, "gdp": nil}))
	fc.Append(squareFeature(2, geojson.Properties{"name": "C", "pop": 30.0, "gdp": 3.0}))
	return &Dataset{Features: fc}
}

func testMeta() Metadata {
	return Metadata{IndexColumn: "name", Columns: []string{"name", "pop", "gdp"}, DefaultColumn: "pop"}
}

// loadedWidget returns a ready widget over testDataset showing pop.
func loadedWidget(t *testing.T, opts ...Option) *Widget {
	t.Helper()
	w, err := New(DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Load(testDataset(), testMeta()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return w
}

// screenCenter returns the screen position of the center of region index
// under the widget's current projection and view transform.
func screenCenter(t *testing.T, w *Widget, index string) orb.Point {
	t.Helper()
	r, ok := w.Store().Region(index)
	if !ok {
		t.Fatalf("region %s not found", index)
	}
	p := w.Projection().Project(r.Geometry.Bound().Center())
	v := w.View().Transform()
	return orb.Point{v.X + v.K*p[0], v.Y + v.K*p[1]}
}

func highlightedCount(w *Widget) int {
	n := 0
	for _, s := range w.Renderer().Shapes() {
		if s.Highlighted {
			n++
		}
	}
	return n
}

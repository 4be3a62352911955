package choropleth

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nums(vs ...float64) []Value {
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = Num(v)
	}
	return out
}

func TestComputeBins(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		binCount int
		want     []Value
	}{
		{
			name:     "interpolated quartiles",
			values:   []float64{1, 2, 3, 4, 5, 6, 7, 8},
			binCount: 4,
			want:     nums(2.75, 4.5, 6.25),
		},
		{
			name:     "unsorted input",
			values:   []float64{30, 10, 20, 40, 50},
			binCount: 5,
			want:     nums(18, 26, 34, 42),
		},
		{
			name:     "fewer distinct values than bins",
			values:   []float64{10, 20, 30},
			binCount: 5,
			want:     nums(10, 20, 20, 30),
		},
		{
			name:     "single repeated value",
			values:   []float64{7, 7, 7},
			binCount: 3,
			want:     nums(7, 7),
		},
		{
			name:     "empty input",
			values:   nil,
			binCount: 5,
			want:     []Value{Absent, Absent, Absent, Absent},
		},
		{
			name:     "single bin",
			values:   []float64{1, 2, 3},
			binCount: 1,
			want:     []Value{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeBins(tt.values, tt.binCount)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].Valid, got[i].Valid, "boundary %d validity", i)
				assert.InDelta(t, tt.want[i].Num, got[i].Num, 1e-9, "boundary %d", i)
			}
		})
	}
}

func TestComputeBins_DoesNotModifyInput(t *testing.T) {
	values := []float64{3, 1, 2}
	ComputeBins(values, 2)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestScale_BinIndex(t *testing.T) {
	s := &Scale{Boundaries: nums(10, 20, 20, 30), Colors: make(Palette, 5)}

	tests := []struct {
		value Value
		want  int
	}{
		{Num(5), 0},
		{Num(10), 0},
		{Num(15), 1},
		{Num(20), 1},
		{Num(25), 3},
		{Num(30), 3},
		{Num(31), 4},
		{Absent, -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.BinIndex(tt.value), "BinIndex(%+v)", tt.value)
	}
}

func TestScale_EmptyClassification(t *testing.T) {
	start, _ := ParseColor("#000")
	end, _ := ParseColor("#fff")
	s := QuantileScale([]Value{Absent, Absent}, 5, start, end)

	assert.True(t, s.Empty())
	assert.Len(t, s.Colors, 5)
	_, ok := s.ColorFor(Num(3))
	assert.False(t, ok, "nothing to classify")
}

func TestQuantileScale_ScenarioEachRegionOneColor(t *testing.T) {
	start, _ := ParseColor("rgb(201,223,138)")
	end, _ := ParseColor("rgb(54,128,45)")
	s := QuantileScale(nums(10, 20, 30), 5, start, end)

	require.NoError(t, s.Check())
	assert.Len(t, s.Boundaries, 4)
	hex := s.Colors.Hex()
	assert.Equal(t, 0, s.BinIndex(Num(10)))
	assert.Equal(t, 1, s.BinIndex(Num(20)))
	assert.Equal(t, 3, s.BinIndex(Num(30)))
	for _, v := range []float64{10, 20, 30} {
		c, ok := s.ColorFor(Num(v))
		require.True(t, ok)
		assert.Contains(t, hex, c.Clamped().Hex())
	}
}

func TestFixedScale(t *testing.T) {
	start, _ := ParseColor("#000")
	end, _ := ParseColor("#fff")

	s, err := FixedScale([]float64{0, 100}, start, end)
	require.NoError(t, err)
	assert.True(t, s.Fixed)
	assert.Len(t, s.Colors, 3)
	assert.Equal(t, 0, s.BinIndex(Num(-5)))
	assert.Equal(t, 1, s.BinIndex(Num(100)))
	assert.Equal(t, 2, s.BinIndex(Num(101)))

	_, err = FixedScale([]float64{5, 1}, start, end)
	assert.Error(t, err)
}

func TestScale_Check(t *testing.T) {
	assert.Error(t, (*Scale)(nil).Check())
	assert.Error(t, (&Scale{Boundaries: nums(1), Colors: make(Palette, 1)}).Check())
	assert.NoError(t, (&Scale{Boundaries: nums(1), Colors: make(Palette, 2)}).Check())
}

func TestScale_Ranges(t *testing.T) {
	s := &Scale{Boundaries: nums(1, 2), Colors: make(Palette, 3)}
	got := s.Ranges()
	require.Len(t, got, 3)
	assert.Equal(t, Range{Lo: Absent, Hi: Num(1)}, got[0])
	assert.Equal(t, Range{Lo: Num(1), Hi: Num(2)}, got[1])
	assert.Equal(t, Range{Lo: Num(2), Hi: Absent}, got[2])
}

func TestLegendLabel(t *testing.T) {
	tests := []struct {
		name string
		r    Range
		want string
	}{
		{"closed", Range{Num(10), Num(20)}, "[10.00,20.00]"},
		{"open below", Range{Absent, Num(10)}, "<10.00"},
		{"open above", Range{Num(30), Absent}, "30.00<"},
		{"nothing", Range{Absent, Absent}, "no data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LegendLabel(tt.r, 2, "no data"))
		})
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "3.14", FormatValue(Num(3.14159), 2))
	assert.Equal(t, "1234567.9", FormatValue(Num(1234567.891), 1))
	assert.Equal(t, "42", FormatValue(Num(42), 0))
	assert.Equal(t, "", FormatValue(Absent, 2))
}

func TestProperty_Classification(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("non-empty input yields binCount-1 non-decreasing boundaries", prop.ForAll(
		func(first float64, rest []float64, binCount int) bool {
			bounds := ComputeBins(append([]float64{first}, rest...), binCount)
			if len(bounds) != binCount-1 {
				return false
			}
			for i, b := range bounds {
				if !b.Valid {
					return false
				}
				if i > 0 && b.Num < bounds[i-1].Num {
					return false
				}
			}
			return true
		},
		gen.Float64Range(-1e6, 1e6),
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
		gen.IntRange(1, 12),
	))

	properties.Property("bin index is monotonic and within the palette", prop.ForAll(
		func(values []float64, v1, v2 float64, binCount int) bool {
			s := QuantileScale(nums(values...), binCount, colorBlack, colorWhite)
			if v1 > v2 {
				v1, v2 = v2, v1
			}
			i1, i2 := s.BinIndex(Num(v1)), s.BinIndex(Num(v2))
			if len(values) == 0 {
				return i1 == -1 && i2 == -1
			}
			return i1 >= 0 && i1 <= i2 && i2 < len(s.Colors)
		},
		gen.SliceOf(gen.Float64Range(-100, 100)),
		gen.Float64Range(-150, 150),
		gen.Float64Range(-150, 150),
		gen.IntRange(1, 9),
	))

	properties.Property("a value equal to a boundary classifies into the lower bin", prop.ForAll(
		func(first float64, rest []float64, binCount int) bool {
			s := QuantileScale(nums(append([]float64{first}, rest...)...), binCount, colorBlack, colorWhite)
			for i, b := range s.Boundaries {
				got := s.BinIndex(b)
				// Repeated boundaries collapse onto the first of the run.
				if got > i || (got < i && s.Boundaries[got].Num != b.Num) {
					return false
				}
			}
			return true
		},
		gen.Float64Range(-1000, 1000),
		gen.SliceOf(gen.Float64Range(-1000, 1000)),
		gen.IntRange(2, 9),
	))

	properties.TestingRun(t)
}

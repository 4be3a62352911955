package choropleth

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/lucasb-eyer/go-colorful"
)

// ComputeBins partitions values into binCount quantile bins and returns the
// binCount-1 inner boundaries. Boundaries sit at quantiles i/binCount using
// linear interpolation between order statistics. When there are fewer
// distinct values than bins, each boundary snaps to the nearest order
// statistic instead, so repeated boundaries keep the bin count intact.
// Empty input yields boundaries that are all absent.
func ComputeBins(values []float64, binCount int) []Value {
	if binCount <= 1 {
		return []Value{}
	}
	bounds := make([]Value, binCount-1)

	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return bounds
	}
	sort.Float64s(sorted)

	nearest := distinctCount(sorted) < binCount
	last := float64(len(sorted) - 1)
	for i := 1; i < binCount; i++ {
		h := last * float64(i) / float64(binCount)
		if nearest {
			bounds[i-1] = Num(sorted[int(math.Round(h))])
			continue
		}
		lo := math.Floor(h)
		v := sorted[int(lo)]
		if frac := h - lo; frac > 0 {
			v += frac * (sorted[int(lo)+1] - v)
		}
		bounds[i-1] = Num(v)
	}
	return bounds
}

func distinctCount(sorted []float64) int {
	if len(sorted) == 0 {
		return 0
	}
	n := 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			n++
		}
	}
	return n
}

// Scale maps values onto colors. Bin i covers (Boundaries[i-1], Boundaries[i]];
// the first bin is unbounded below and the last unbounded above, so Colors
// always holds one more entry than Boundaries.
type Scale struct {
	Boundaries []Value
	Colors     Palette
	Fixed      bool // Boundaries were supplied by the caller rather than computed
}

// QuantileScale classifies the present entries of values into binCount bins
// colored along a Lab gradient from start to end.
func QuantileScale(values []Value, binCount int, start, end colorful.Color) *Scale {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if v.Valid {
			nums = append(nums, v.Num)
		}
	}
	if binCount < 1 {
		binCount = 1
	}
	return &Scale{
		Boundaries: ComputeBins(nums, binCount),
		Colors:     LabPalette(start, end, binCount),
	}
}

// FixedScale builds a scale over caller supplied pivots. Pivots must be
// non-decreasing; the palette gets len(pivots)+1 Lab-interpolated colors.
func FixedScale(pivots []float64, start, end colorful.Color) (*Scale, error) {
	bounds := make([]Value, len(pivots))
	for i, p := range pivots {
		if math.IsNaN(p) {
			return nil, fmt.Errorf("pivot %d is NaN", i)
		}
		if i > 0 && p < pivots[i-1] {
			return nil, fmt.Errorf("pivots must be non-decreasing: %g after %g", p, pivots[i-1])
		}
		bounds[i] = Num(p)
	}
	return &Scale{
		Boundaries: bounds,
		Colors:     LabPalette(start, end, len(pivots)+1),
		Fixed:      true,
	}, nil
}

// Check reports a scale whose palette does not match its boundaries.
func (s *Scale) Check() error {
	if s == nil {
		return fmt.Errorf("nil color scale")
	}
	if len(s.Colors) != len(s.Boundaries)+1 {
		return fmt.Errorf("color scale has %d colors for %d boundaries", len(s.Colors), len(s.Boundaries))
	}
	return nil
}

// Empty reports whether the scale has nothing to classify, which is the case
// for a quantile scale computed from no values.
func (s *Scale) Empty() bool {
	for _, b := range s.Boundaries {
		if !b.Valid {
			return true
		}
	}
	return false
}

// BinIndex returns the bin containing v, or -1 when v cannot be classified.
// A value equal to a boundary falls into the lower bin.
func (s *Scale) BinIndex(v Value) int {
	if !v.Valid || math.IsNaN(v.Num) || s.Empty() {
		return -1
	}
	return sort.Search(len(s.Boundaries), func(i int) bool {
		return s.Boundaries[i].Num >= v.Num
	})
}

// ColorFor returns the palette color of v's bin. ok is false for values the
// scale cannot classify; callers render those with the no-data fill.
func (s *Scale) ColorFor(v Value) (c colorful.Color, ok bool) {
	i := s.BinIndex(v)
	if i < 0 || i >= len(s.Colors) {
		return colorful.Color{}, false
	}
	return s.Colors[i], true
}

// Range is the span of one bin; an absent end is open.
type Range struct {
	Lo Value
	Hi Value
}

// Ranges returns one Range per bin, in palette order.
func (s *Scale) Ranges() []Range {
	n := len(s.Boundaries)
	ranges := make([]Range, n+1)
	for i := range ranges {
		if i > 0 {
			ranges[i].Lo = s.Boundaries[i-1]
		}
		if i < n {
			ranges[i].Hi = s.Boundaries[i]
		}
	}
	return ranges
}

// FormatValue rounds v to a fixed number of decimals without locale
// grouping. Absent values format as the empty string.
func FormatValue(v Value, decimals int) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Num, 'f', decimals, 64)
}

// LegendLabel renders a bin range as "[lo,hi]", "<hi" or "lo<". A range
// open at both ends renders as noData.
func LegendLabel(r Range, decimals int, noData string) string {
	lo := FormatValue(r.Lo, decimals)
	hi := FormatValue(r.Hi, decimals)
	switch {
	case r.Lo.Valid && r.Hi.Valid:
		return "[" + lo + "," + hi + "]"
	case r.Hi.Valid:
		return "<" + hi
	case r.Lo.Valid:
		return lo + "<"
	}
	return noData
}

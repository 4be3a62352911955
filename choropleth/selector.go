package choropleth

// SelectorOption is one entry of the column selector.
type SelectorOption struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// Selector lists the selectable columns and which one is selected.
// Selected is -1 when no listed column is shown.
type Selector struct {
	Options  []SelectorOption `json:"options"`
	Selected int              `json:"selected"`
}

// BuildSelector lists columns in order, skipping the index column unless
// includeIndex is set. translate, when non-nil, produces option text.
func BuildSelector(columns []string, indexColumn string, includeIndex bool, translate func(string) string) *Selector {
	s := &Selector{Selected: -1}
	for _, c := range columns {
		if c == indexColumn && !includeIndex {
			continue
		}
		text := c
		if translate != nil {
			text = translate(c)
		}
		s.Options = append(s.Options, SelectorOption{Value: c, Text: text})
	}
	return s
}

// Select marks column as selected. It reports false, and selects nothing,
// when column is not listed.
func (s *Selector) Select(column string) bool {
	s.Selected = -1
	for i, o := range s.Options {
		if o.Value == column {
			s.Selected = i
			return true
		}
	}
	return false
}

// Value returns the selected column, empty when nothing is selected.
func (s *Selector) Value() string {
	if s.Selected < 0 || s.Selected >= len(s.Options) {
		return ""
	}
	return s.Options[s.Selected].Value
}

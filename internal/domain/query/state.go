package query

// Direction is a sort direction.
type Direction string

// Sort directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// IsValid checks if the direction is supported.
func (d Direction) IsValid() bool { return d == Asc || d == Desc }

// Sort orders rows by one field.
type Sort struct {
	Field     string
	Direction Direction
}

// ColumnFilter is one active filter keyed by column id.
type ColumnFilter struct {
	ColumnID string
	Value    Value
}

// State is the user-editable query of one table instance.
type State struct {
	SearchTerm  string
	SearchField string // empty means search all searchable fields
	Filters     []ColumnFilter
	Sort        *Sort
	PageIndex   int
	PageSize    int
}

// Filter returns the value of the filter on columnID.
func (s State) Filter(columnID string) (Value, bool) {
	for _, f := range s.Filters {
		if f.ColumnID == columnID {
			return f.Value, true
		}
	}
	return Value{}, false
}

// WithFilter returns a copy with the filter on columnID replaced (last write wins).
// An empty value removes the filter.
func (s State) WithFilter(columnID string, v Value) State {
	if v.IsEmpty() {
		return s.WithoutFilter(columnID)
	}
	out := s.Clone()
	for i, f := range out.Filters {
		if f.ColumnID == columnID {
			out.Filters[i].Value = v
			return out
		}
	}
	out.Filters = append(out.Filters, ColumnFilter{ColumnID: columnID, Value: v})
	return out
}

// WithoutFilter returns a copy without the filter on columnID.
func (s State) WithoutFilter(columnID string) State {
	out := s.Clone()
	var kept []ColumnFilter
	for _, f := range out.Filters {
		if f.ColumnID != columnID {
			kept = append(kept, f)
		}
	}
	out.Filters = kept
	return out
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.Filters != nil {
		out.Filters = make([]ColumnFilter, len(s.Filters))
		copy(out.Filters, s.Filters)
	}
	if s.Sort != nil {
		srt := *s.Sort
		out.Sort = &srt
	}
	return out
}

// Equal compares two states by value.
func (s State) Equal(o State) bool {
	if s.SearchTerm != o.SearchTerm || s.SearchField != o.SearchField ||
		s.PageIndex != o.PageIndex || s.PageSize != o.PageSize {
		return false
	}
	if (s.Sort == nil) != (o.Sort == nil) {
		return false
	}
	if s.Sort != nil && *s.Sort != *o.Sort {
		return false
	}
	if len(s.Filters) != len(o.Filters) {
		return false
	}
	for i := range s.Filters {
		if s.Filters[i].ColumnID != o.Filters[i].ColumnID || !s.Filters[i].Value.Equal(o.Filters[i].Value) {
			return false
		}
	}
	return true
}

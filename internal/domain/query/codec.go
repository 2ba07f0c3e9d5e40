package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Parameter suffixes under a table's sync key.
const (
	paramSearch      = ".q"
	paramSearchField = ".sf"
	paramFilter      = ".f"
	paramSort        = ".s"
	paramPage        = ".p"
	paramPageSize    = ".ps"
)

var paramSuffixes = []string{paramSearch, paramSearchField, paramFilter, paramSort, paramPage, paramPageSize}

// Encode writes s into vals under key, replacing whatever was stored for key before.
// Parameters of other keys are left untouched.
func Encode(key string, s State, vals url.Values) {
	Clear(key, vals)

	if s.SearchTerm != "" {
		vals.Set(key+paramSearch, s.SearchTerm)
	}
	if s.SearchField != "" {
		vals.Set(key+paramSearchField, s.SearchField)
	}
	for _, f := range s.Filters {
		if enc, ok := encodeFilter(f); ok {
			vals.Add(key+paramFilter, enc)
		}
	}
	if s.Sort != nil {
		vals.Set(key+paramSort, s.Sort.Field+":"+string(s.Sort.Direction))
	}
	vals.Set(key+paramPage, strconv.Itoa(s.PageIndex))
	vals.Set(key+paramPageSize, strconv.Itoa(s.PageSize))
}

// Clear removes every parameter stored under key.
func Clear(key string, vals url.Values) {
	for _, suffix := range paramSuffixes {
		vals.Del(key + suffix)
	}
}

// Has reports whether vals holds any parameter for key.
func Has(key string, vals url.Values) bool {
	for _, suffix := range paramSuffixes {
		if _, ok := vals[key+suffix]; ok {
			return true
		}
	}
	return false
}

// Decode reads the state stored under key. Without any parameter for key the defaults
// are returned. Otherwise the fragment is authoritative: absent search, filter and sort
// parameters mean "none", absent paging parameters fall back to defaults.
// Malformed parameters are skipped; the returned state is always usable and the
// error (if any) lists what was skipped.
func Decode(key string, vals url.Values, defaults State) (State, error) {
	if !Has(key, vals) {
		return defaults.Clone(), nil
	}
	s := State{PageIndex: defaults.PageIndex, PageSize: defaults.PageSize}
	var errs []error

	if v, ok := vals[key+paramSearch]; ok && len(v) > 0 {
		s.SearchTerm = v[0]
	}
	if v, ok := vals[key+paramSearchField]; ok && len(v) > 0 {
		s.SearchField = v[0]
	}
	for _, enc := range vals[key+paramFilter] {
		f, err := decodeFilter(enc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s = s.WithFilter(f.ColumnID, f.Value)
	}
	if v := vals.Get(key + paramSort); v != "" {
		srt, err := decodeSort(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			s.Sort = &srt
		}
	}
	if v := vals.Get(key + paramPage); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("invalid page index %q", v))
		} else {
			s.PageIndex = n
		}
	}
	if v := vals.Get(key + paramPageSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("invalid page size %q", v))
		} else {
			s.PageSize = n
		}
	}

	return s, errors.Join(errs...)
}

// encodeFilter renders "<column>:<kind>:<payload>".
func encodeFilter(f ColumnFilter) (string, bool) {
	if f.Value.IsEmpty() {
		return "", false
	}
	prefix := f.ColumnID + ":" + string(f.Value.Kind()) + ":"
	switch f.Value.Kind() {
	case KindExact:
		return prefix + f.Value.ExactValue(), true
	case KindSet:
		data, err := json.Marshal(f.Value.Members())
		if err != nil {
			return "", false
		}
		return prefix + string(data), true
	case KindDateRange:
		return prefix + f.Value.From() + ".." + f.Value.To(), true
	case KindNumeric:
		return prefix + string(f.Value.Op()) + ":" + strconv.FormatFloat(f.Value.Number(), 'g', -1, 64), true
	}
	return "", false
}

func decodeFilter(enc string) (ColumnFilter, error) {
	columnID, rest, ok := strings.Cut(enc, ":")
	if !ok || columnID == "" {
		return ColumnFilter{}, fmt.Errorf("invalid filter %q: missing column", enc)
	}
	kind, payload, ok := strings.Cut(rest, ":")
	if !ok {
		return ColumnFilter{}, fmt.Errorf("invalid filter %q: missing kind", enc)
	}

	var v Value
	switch Kind(kind) {
	case KindExact:
		v = Exact(payload)
	case KindSet:
		var members []string
		if err := json.Unmarshal([]byte(payload), &members); err != nil {
			return ColumnFilter{}, fmt.Errorf("invalid set filter on %s: %w", columnID, err)
		}
		v = Set(members...)
	case KindDateRange:
		from, to, ok := strings.Cut(payload, "..")
		if !ok {
			return ColumnFilter{}, fmt.Errorf("invalid date range on %s: %q", columnID, payload)
		}
		v = DateRange(from, to)
	case KindNumeric:
		op, num, ok := strings.Cut(payload, ":")
		if !ok || !Op(op).IsValid() {
			return ColumnFilter{}, fmt.Errorf("invalid numeric filter on %s: %q", columnID, payload)
		}
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return ColumnFilter{}, fmt.Errorf("invalid number on %s: %w", columnID, err)
		}
		v = Numeric(Op(op), n)
	default:
		return ColumnFilter{}, fmt.Errorf("unknown filter kind %q on %s", kind, columnID)
	}
	if v.IsEmpty() {
		return ColumnFilter{}, fmt.Errorf("empty filter on %s", columnID)
	}
	return ColumnFilter{ColumnID: columnID, Value: v}, nil
}

func decodeSort(v string) (Sort, error) {
	field, dir, ok := strings.Cut(v, ":")
	if !ok || field == "" || !Direction(dir).IsValid() {
		return Sort{}, fmt.Errorf("invalid sort %q", v)
	}
	return Sort{Field: field, Direction: Direction(dir)}, nil
}

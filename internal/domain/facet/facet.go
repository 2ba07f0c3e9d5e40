package facet

import (
	"sort"
	"strings"
)

// Option is one selectable facet value with the number of matching rows.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Normalize drops null and blank values, merges duplicates, orders by count descending
// then value ascending, and truncates to limit (no truncation when limit <= 0).
// Label defaults to the value when label is nil.
func Normalize(options []Option, limit int, label func(string) string) []Option {
	counts := make(map[string]int, len(options))
	order := make([]string, 0, len(options))
	for _, o := range options {
		if strings.TrimSpace(o.Value) == "" {
			continue
		}
		if _, ok := counts[o.Value]; !ok {
			order = append(order, o.Value)
		}
		counts[o.Value] += o.Count
	}

	out := make([]Option, 0, len(order))
	for _, v := range order {
		l := v
		if label != nil {
			l = label(v)
		}
		out = append(out, Option{Value: v, Label: l, Count: counts[v]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

package aggregate

import (
	"fmt"
	"sort"
)

// MaxGroupLimit caps top-N summaries. Complete breakdowns belong in the paginated table.
const MaxGroupLimit = 100

// GroupByConfig declares a top-N breakdown of one aggregate bucketed by a categorical field.
type GroupByConfig struct {
	GroupByField      string   `json:"group_by_field"`
	AggregateField    string   `json:"aggregate_field"`
	AggregateFunction Function `json:"aggregate_function"`
	Limit             int      `json:"limit"`
}

// Validate checks the config is complete and the limit is within (0, MaxGroupLimit].
func (c GroupByConfig) Validate() error {
	if c.GroupByField == "" {
		return fmt.Errorf("group by field is required")
	}
	if c.AggregateField == "" {
		return fmt.Errorf("aggregate field is required")
	}
	if !c.AggregateFunction.IsValid() {
		return fmt.Errorf("invalid aggregate function")
	}
	if c.Limit <= 0 || c.Limit > MaxGroupLimit {
		return fmt.Errorf("group by limit must be between 1 and %d, got %d", MaxGroupLimit, c.Limit)
	}
	return nil
}

// Group is one bucket of a group-by summary.
type Group struct {
	Key   string  `json:"group_key"`
	Value float64 `json:"aggregate_value"`
}

// NormalizeGroups orders groups by value descending, breaking ties by key ascending,
// and truncates to limit. Backends differ in tie ordering; every result passes through here.
func NormalizeGroups(groups []Group, limit int) []Group {
	out := make([]Group, len(groups))
	copy(out, groups)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

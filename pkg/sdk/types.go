package sdk

import (
	"net/url"

	"github.com/kailas-cloud/tablekit/internal/domain/query"
)

// defaultKey is the state key the server reads when a request names none.
const defaultKey = "t"

// Query selects the rows a request applies to.
type Query struct {
	// Key namespaces the state parameters; empty means "t".
	Key string
	// State is encoded under Key. Ignored when Link is set.
	State query.State
	// Link is a raw query string, e.g. a deep link copied from a browser.
	Link string
	// Fields restricts the returned row fields (rows only).
	Fields []string
}

func (q Query) values() (url.Values, error) {
	key := q.Key
	if key == "" {
		key = defaultKey
	}
	var vals url.Values
	if q.Link != "" {
		v, err := url.ParseQuery(q.Link)
		if err != nil {
			return nil, err
		}
		vals = v
	} else {
		vals = url.Values{}
		query.Encode(key, q.State, vals)
	}
	if key != defaultKey {
		vals.Set("key", key)
	}
	return vals, nil
}

// Warning is a filter or state parameter the server skipped.
type Warning struct {
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

// Page is one page of rows.
type Page struct {
	Rows       []map[string]any `json:"rows"`
	TotalCount int              `json:"total_count"`
	PageIndex  int              `json:"page_index"`
	PageSize   int              `json:"page_size"`
	PageCount  int              `json:"page_count"`
	Warnings   []Warning        `json:"warnings,omitempty"`
}

// Aggregates maps "<function>_of_<field>" to its value; nil means no row matched.
type Aggregates struct {
	Values   map[string]*float64 `json:"aggregates"`
	Warnings []Warning           `json:"warnings,omitempty"`
}

// GroupBy asks for the top groups of a field by an aggregate.
type GroupBy struct {
	By string
	// Agg is "<function>:<field>", e.g. "sum:grand_total".
	Agg   string
	Limit int
}

// Group is one group-by bucket.
type Group struct {
	Key   string  `json:"group_key"`
	Value float64 `json:"aggregate_value"`
}

// Groups is the result of a group-by.
type Groups struct {
	Groups   []Group   `json:"groups"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// FacetOption is one distinct value of a field.
type FacetOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Facets is the result of a facet lookup.
type Facets struct {
	Field    string        `json:"field"`
	Options  []FacetOption `json:"options"`
	Warnings []Warning     `json:"warnings,omitempty"`
}

// Field describes one doctype field.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Sortable bool   `json:"sortable"`
}

// Doctype describes one listable record type.
type Doctype struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// HealthStatus represents the aggregated server health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component → "ok"/"error"/"missing"
}

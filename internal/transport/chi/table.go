package chi

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kailas-cloud/tablekit/internal/domain"
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/facet"
	"github.com/kailas-cloud/tablekit/internal/domain/query"
	"github.com/kailas-cloud/tablekit/internal/domain/row"
	tableuc "github.com/kailas-cloud/tablekit/internal/usecase/table"
	"github.com/kailas-cloud/tablekit/internal/usecase/translate"
)

// defaultStateKey is the state key when the request carries no "key" parameter.
const defaultStateKey = "t"

const defaultGroupLimit = 10

// Warning is a dropped filter or a skipped state parameter.
type Warning struct {
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

// FieldInfo describes one doctype field.
type FieldInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Sortable bool   `json:"sortable"`
}

// DoctypeInfo describes one doctype.
type DoctypeInfo struct {
	Name   string      `json:"name"`
	Fields []FieldInfo `json:"fields"`
}

// RowsResponse is the body of GET .../rows.
type RowsResponse struct {
	Rows       []row.Row `json:"rows"`
	TotalCount int       `json:"total_count"`
	PageIndex  int       `json:"page_index"`
	PageSize   int       `json:"page_size"`
	PageCount  int       `json:"page_count"`
	Warnings   []Warning `json:"warnings,omitempty"`
}

// AggregatesResponse is the body of GET .../aggregates. Values are null when no row matched.
type AggregatesResponse struct {
	Aggregates aggregate.Result `json:"aggregates"`
	Warnings   []Warning        `json:"warnings,omitempty"`
}

// GroupByResponse is the body of GET .../group-by.
type GroupByResponse struct {
	Groups   []aggregate.Group `json:"groups"`
	Warnings []Warning         `json:"warnings,omitempty"`
}

// FacetsResponse is the body of GET .../facets/{field}.
type FacetsResponse struct {
	Field    string         `json:"field"`
	Options  []facet.Option `json:"options"`
	Warnings []Warning      `json:"warnings,omitempty"`
}

// ListDoctypes handles GET /api/v1/doctypes.
func (s *Server) ListDoctypes(w http.ResponseWriter, r *http.Request) {
	all := s.tables.Doctypes()
	out := make([]DoctypeInfo, 0, len(all))
	for _, dt := range all {
		info := DoctypeInfo{Name: dt.Name(), Fields: make([]FieldInfo, 0, len(dt.Fields()))}
		for _, f := range dt.Fields() {
			info.Fields = append(info.Fields, FieldInfo{Name: f.Name(), Type: string(f.FieldType()), Sortable: f.Sortable()})
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// Rows handles GET /api/v1/doctypes/{doctype}/rows.
func (s *Server) Rows(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "doctype")
	st, warnings := s.decodeState(r.URL.Query())
	st.PageSize = s.tables.ClampPageSize(st.PageSize)

	params, dropped, err := s.tables.Translate(name, st, nil, "")
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	fields := splitList(r.URL.Query().Get("fields"))
	if len(fields) == 0 {
		dt, err := s.tables.Doctype(name)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		fields = dt.FieldNames()
	}

	page, err := s.tables.Page(r.Context(), tableuc.PageRequest{
		Doctype:   name,
		Fields:    fields,
		Filters:   params.Filters,
		Sort:      params.Sort,
		PageIndex: st.PageIndex,
		PageSize:  st.PageSize,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	rows := page.Rows
	if rows == nil {
		rows = []row.Row{}
	}
	writeJSON(w, http.StatusOK, RowsResponse{
		Rows:       rows,
		TotalCount: page.TotalCount,
		PageIndex:  st.PageIndex,
		PageSize:   st.PageSize,
		PageCount:  row.PageCount(page.TotalCount, st.PageSize),
		Warnings:   append(warnings, toWarnings(dropped)...),
	})
}

// Aggregates handles GET /api/v1/doctypes/{doctype}/aggregates?agg=sum:grand_total.
func (s *Server) Aggregates(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "doctype")
	q := r.URL.Query()

	aggs := make([]aggregate.Config, 0, len(q["agg"]))
	for _, raw := range q["agg"] {
		cfg, err := parseAggregate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
			return
		}
		aggs = append(aggs, cfg)
	}

	st, warnings := s.decodeState(q)
	params, dropped, err := s.tables.Translate(name, st, nil, "")
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	res, err := s.tables.Aggregate(r.Context(), name, params.Filters, aggs)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if res == nil {
		res = aggregate.Result{}
	}
	writeJSON(w, http.StatusOK, AggregatesResponse{Aggregates: res, Warnings: append(warnings, toWarnings(dropped)...)})
}

// GroupBy handles GET /api/v1/doctypes/{doctype}/group-by?by=supplier&agg=sum:grand_total&limit=5.
func (s *Server) GroupBy(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "doctype")
	q := r.URL.Query()

	agg, err := parseAggregate(q.Get("agg"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	limit := defaultGroupLimit
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "limit must be an integer")
			return
		}
	}
	cfg := aggregate.GroupByConfig{
		GroupByField:      q.Get("by"),
		AggregateField:    agg.Field,
		AggregateFunction: agg.Function,
		Limit:             limit,
	}

	st, warnings := s.decodeState(q)
	params, dropped, err := s.tables.Translate(name, st, nil, "")
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	groups, err := s.tables.GroupBy(r.Context(), name, params.Filters, cfg)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if groups == nil {
		groups = []aggregate.Group{}
	}
	writeJSON(w, http.StatusOK, GroupByResponse{Groups: groups, Warnings: append(warnings, toWarnings(dropped)...)})
}

// Facets handles GET /api/v1/doctypes/{doctype}/facets/{field}. The field's own filter is ignored.
func (s *Server) Facets(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "doctype")
	field := chi.URLParam(r, "field")
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	st, warnings := s.decodeState(q)
	params, dropped, err := s.tables.Translate(name, st, nil, field)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	opts, err := s.tables.Facets(r.Context(), tableuc.FacetRequest{
		Doctype: name,
		Field:   field,
		Filters: params.Filters,
		Limit:   limit,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if opts == nil {
		opts = []facet.Option{}
	}
	writeJSON(w, http.StatusOK, FacetsResponse{Field: field, Options: opts, Warnings: append(warnings, toWarnings(dropped)...)})
}

// Invalidate handles POST /api/v1/doctypes/{doctype}/invalidate.
func (s *Server) Invalidate(w http.ResponseWriter, r *http.Request) {
	if err := s.tables.Invalidate(r.Context(), chi.URLParam(r, "doctype")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeState reads the table state stored under the request's key. Malformed parameters are
// skipped and reported as warnings.
func (s *Server) decodeState(q url.Values) (query.State, []Warning) {
	key := q.Get("key")
	if key == "" {
		key = defaultStateKey
	}
	st, err := query.Decode(key, q, query.State{PageSize: s.tables.Limits().DefaultPageSize})
	if err == nil {
		return st, nil
	}
	var warnings []Warning
	for _, e := range unjoin(err) {
		warnings = append(warnings, Warning{Message: e.Error()})
	}
	return st, warnings
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

func toWarnings(ws []translate.Warning) []Warning {
	out := make([]Warning, 0, len(ws))
	for _, w := range ws {
		out = append(out, Warning{Column: w.ColumnID, Message: w.Err.Error()})
	}
	return out
}

// parseAggregate parses "<function>:<field>".
func parseAggregate(raw string) (aggregate.Config, error) {
	fn, field, ok := strings.Cut(raw, ":")
	if !ok || field == "" {
		return aggregate.Config{}, fmt.Errorf("%w: aggregate must be <function>:<field>, got %q", domain.ErrValidation, raw)
	}
	f, err := aggregate.ParseFunction(fn)
	if err != nil {
		return aggregate.Config{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return aggregate.Config{Field: field, Function: f}, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

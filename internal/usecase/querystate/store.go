// Package querystate keeps the user-editable query of a table in sync with a shareable history.
package querystate

import (
	"fmt"
	"net/url"
	"slices"
	"sync"

	"github.com/kailas-cloud/tablekit/internal/domain"
	"github.com/kailas-cloud/tablekit/internal/domain/query"
)

// DefaultPageSize applies when neither the caller nor the configuration sets one.
const DefaultPageSize = 20

// SearchField is a column the search box can be restricted to.
type SearchField struct {
	Name  string
	Label string
	// Default marks the field preselected when nothing else is specified.
	Default bool
}

// Defaults is the caller's initial state. Zero fields fall back to hard-coded defaults.
type Defaults struct {
	SearchField string
	Filters     []query.ColumnFilter
	Sort        *query.Sort
	PageSize    int
}

// Change is a partial update. Nil fields are left unchanged.
type Change struct {
	SearchTerm  *string
	SearchField *string
	// Filters are merged per column; an empty value removes the column's filter.
	Filters      []query.ColumnFilter
	ClearFilters bool
	Sort         *query.Sort
	ClearSort    bool
	PageIndex    *int
	PageSize     *int
}

// Ptr returns a pointer to v, for building a Change.
func Ptr[T any](v T) *T { return &v }

// Store owns one table's query state under a key of a shared History.
type Store struct {
	history      History
	searchFields []SearchField
	pageSize     int

	mu       sync.Mutex
	key      string
	defaults query.State
	state    query.State
	// version counts committed changes
	version uint64
	subs    map[int]func(query.State)
	nextSub int
}

// New creates a store. pageSize is the configured default page size.
func New(history History, searchFields []SearchField, pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Store{
		history:      history,
		searchFields: searchFields,
		pageSize:     pageSize,
		subs:         make(map[int]func(query.State)),
	}
}

// SearchFields returns the searchable columns.
func (s *Store) SearchFields() []SearchField { return s.searchFields }

// Initialize binds the store to key and loads the initial state. The history fragment for key
// wins over the caller's defaults, which win over hard-coded defaults. Malformed history
// parameters are skipped and reported in the error; the returned state is always usable.
func (s *Store) Initialize(key string, d Defaults) (query.State, error) {
	defaults := s.buildDefaults(d)

	st, err := query.Decode(key, s.history.Values(), defaults)
	if err != nil {
		err = fmt.Errorf("%w: query state %s: %w", domain.ErrValidation, key, err)
	}
	if st.SearchField != "" && !s.isSearchField(st.SearchField) {
		st.SearchField = defaults.SearchField
	}

	s.mu.Lock()
	s.key = key
	s.defaults = defaults
	s.state = st
	s.version++
	s.mu.Unlock()

	return st.Clone(), err
}

func (s *Store) buildDefaults(d Defaults) query.State {
	st := query.State{PageSize: s.pageSize}
	if d.PageSize > 0 {
		st.PageSize = d.PageSize
	}
	switch {
	case d.SearchField != "" && s.isSearchField(d.SearchField):
		st.SearchField = d.SearchField
	default:
		for _, f := range s.searchFields {
			if f.Default {
				st.SearchField = f.Name
				break
			}
		}
	}
	for _, f := range d.Filters {
		st = st.WithFilter(f.ColumnID, f.Value)
	}
	if d.Sort != nil {
		srt := *d.Sort
		st.Sort = &srt
	}
	return st
}

func (s *Store) isSearchField(name string) bool {
	return slices.ContainsFunc(s.searchFields, func(f SearchField) bool { return f.Name == name })
}

// State returns a copy of the current state.
func (s *Store) State() query.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Versioned returns a copy of the current state and its version.
func (s *Store) Versioned() (query.State, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), s.version
}

// Key returns the history key the store is bound to.
func (s *Store) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Update merges c into the state, writes it to history and notifies subscribers.
// Changing the search, a filter, the page size or the sort returns to the first page.
func (s *Store) Update(c Change) error {
	_, err := s.update(c, nil)
	return err
}

// UpdateAt applies c only while the state is still at version. It reports whether
// the change was applied; a newer change in between makes it a no-op.
func (s *Store) UpdateAt(version uint64, c Change) (bool, error) {
	return s.update(c, &version)
}

func (s *Store) update(c Change, at *uint64) (bool, error) {
	if err := s.validate(c); err != nil {
		return false, err
	}

	s.mu.Lock()
	if at != nil && *at != s.version {
		s.mu.Unlock()
		return false, nil
	}
	prev := s.state
	next := apply(prev, c)
	if next.Equal(prev) {
		s.mu.Unlock()
		return true, nil
	}
	s.state = next
	s.version++
	// written under mu so history never trails the committed state
	key := s.key
	s.history.Update(func(vals url.Values) { query.Encode(key, next, vals) })
	subs := s.subscribers()
	s.mu.Unlock()

	notify(subs, next)
	return true, nil
}

func (s *Store) validate(c Change) error {
	if c.SearchField != nil && *c.SearchField != "" && !s.isSearchField(*c.SearchField) {
		return domain.NewFieldError("search_field", fmt.Sprintf("%q is not searchable", *c.SearchField))
	}
	if c.PageIndex != nil && *c.PageIndex < 0 {
		return domain.NewFieldError("page_index", "must not be negative")
	}
	if c.PageSize != nil && *c.PageSize <= 0 {
		return domain.NewFieldError("page_size", "must be positive")
	}
	if c.Sort != nil && (c.Sort.Field == "" || !c.Sort.Direction.IsValid()) {
		return domain.NewFieldError("sort", "field and direction asc|desc are required")
	}
	for _, f := range c.Filters {
		if f.ColumnID == "" {
			return domain.NewFieldError("filter", "column id is required")
		}
	}
	return nil
}

func apply(prev query.State, c Change) query.State {
	next := prev.Clone()
	if c.SearchTerm != nil {
		next.SearchTerm = *c.SearchTerm
	}
	if c.SearchField != nil {
		next.SearchField = *c.SearchField
	}
	if c.ClearFilters {
		next.Filters = nil
	}
	for _, f := range c.Filters {
		next = next.WithFilter(f.ColumnID, f.Value)
	}
	if c.ClearSort {
		next.Sort = nil
	}
	if c.Sort != nil {
		srt := *c.Sort
		next.Sort = &srt
	}
	if c.PageSize != nil {
		next.PageSize = *c.PageSize
	}
	if c.PageIndex != nil {
		next.PageIndex = *c.PageIndex
	}

	if resetsPage(prev, next) {
		next.PageIndex = 0
	}
	return next
}

func resetsPage(prev, next query.State) bool {
	if prev.SearchTerm != next.SearchTerm || prev.SearchField != next.SearchField ||
		prev.PageSize != next.PageSize {
		return true
	}
	if (prev.Sort == nil) != (next.Sort == nil) || (prev.Sort != nil && *prev.Sort != *next.Sort) {
		return true
	}
	rest := next
	rest.SearchTerm, rest.SearchField, rest.PageIndex, rest.PageSize, rest.Sort =
		prev.SearchTerm, prev.SearchField, prev.PageIndex, prev.PageSize, prev.Sort
	return !rest.Equal(prev)
}

// Reset restores the defaults and removes the key from history.
func (s *Store) Reset() {
	s.mu.Lock()
	next := s.defaults.Clone()
	s.state = next
	s.version++
	key := s.key
	s.history.Update(func(vals url.Values) { query.Clear(key, vals) })
	subs := s.subscribers()
	s.mu.Unlock()

	notify(subs, next)
}

// Subscribe registers fn for state changes and returns its cancel function.
func (s *Store) Subscribe(fn func(query.State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) subscribers() []func(query.State) {
	out := make([]func(query.State), 0, len(s.subs))
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		out = append(out, s.subs[id])
	}
	return out
}

func notify(subs []func(query.State), st query.State) {
	for _, fn := range subs {
		fn(st.Clone())
	}
}

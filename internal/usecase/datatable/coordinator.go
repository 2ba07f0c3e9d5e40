// Package datatable drives one server-side table: it owns the query state, turns it into
// page, count, aggregate and group-by requests, and keeps only the newest response of each.
package datatable

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tablekit/internal/clock"
	"github.com/kailas-cloud/tablekit/internal/domain"
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
	"github.com/kailas-cloud/tablekit/internal/domain/query"
	"github.com/kailas-cloud/tablekit/internal/domain/row"
	"github.com/kailas-cloud/tablekit/internal/usecase/facet"
	"github.com/kailas-cloud/tablekit/internal/usecase/querystate"
	"github.com/kailas-cloud/tablekit/internal/usecase/translate"
)

// DefaultDebounce is the search term debounce window.
const DefaultDebounce = 300 * time.Millisecond

// Config describes one table instance.
type Config struct {
	Doctype string
	// Columns are the displayed columns in order.
	Columns []string
	// FetchFields are the fields requested per row; empty means Columns.
	FetchFields  []string
	SearchFields []querystate.SearchField
	DateColumns  []string
	// Schema types the columns so mismatched filters are dropped before the request.
	// Nil takes the doctype from the source when it can serve one.
	Schema translate.Schema
	// SyncKey namespaces the state in the shared history; empty gets a private random key.
	SyncKey           string
	AdditionalFilters []filter.Condition
	Aggregates        []aggregate.Config
	GroupBy           *aggregate.GroupByConfig
	DefaultFilters    []query.ColumnFilter
	DefaultSort       *query.Sort
	PageSize          int
}

func (c Config) validate() error {
	if c.Doctype == "" {
		return domain.NewFieldError("doctype", "is required")
	}
	if len(c.Columns) == 0 {
		return domain.NewFieldError("columns", "at least one column is required")
	}
	for _, a := range c.Aggregates {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
	}
	if c.GroupBy != nil {
		if err := c.GroupBy.Validate(); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
	}
	return nil
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithHistory shares a history between tables; each table writes under its own SyncKey.
func WithHistory(h querystate.History) Option { return func(c *Coordinator) { c.history = h } }

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option { return func(c *Coordinator) { c.debounce = d } }

// WithClock sets the clock driving the debounce window.
func WithClock(cl clock.Clock) Option { return func(c *Coordinator) { c.clock = cl } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Coordinator) { c.logger = l } }

// WithRecorder sets the fetch metrics recorder.
func WithRecorder(r Recorder) Option { return func(c *Coordinator) { c.recorder = r } }

type slot struct {
	gen     uint64
	key     string
	issued  bool
	cancel  context.CancelFunc
	loading bool
	err     error
}

// Coordinator keeps a table's data in sync with its query state.
type Coordinator struct {
	source   Source
	cfg      Config
	history  querystate.History
	store    *querystate.Store
	debounce time.Duration
	clock    clock.Clock
	logger   *zap.Logger
	recorder Recorder
	search   *clock.Debouncer

	mu      sync.Mutex
	rawTerm string
	slots   map[Slot]*slot
	// synced is the store version the slots were last issued for
	synced     uint64
	rows       []row.Row
	hasData    bool
	total      int
	hasCount   bool
	aggregates aggregate.Result
	groups     []aggregate.Group
	warnings   []translate.Warning
	inflight   int
	subs       map[int]func(Snapshot)
	nextSub    int
	facets     map[int]*facet.Resolver
	closed     bool

	baseCtx    context.Context
	baseClose  context.CancelFunc
	unsubStore func()
}

// New creates a coordinator and issues the initial fetch. A malformed history fragment
// is logged and skipped; the table starts from what could be decoded.
func New(source Source, cfg Config, opts ...Option) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		source:   source,
		cfg:      cfg,
		debounce: DefaultDebounce,
		clock:    clock.Real{},
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		slots: map[Slot]*slot{
			SlotPage:      {},
			SlotCount:     {},
			SlotAggregate: {},
			SlotGroupBy:   {},
		},
		subs:   make(map[int]func(Snapshot)),
		facets: make(map[int]*facet.Resolver),
	}
	for _, o := range opts {
		o(c)
	}
	if c.cfg.Schema == nil {
		c.cfg.Schema = schemaOf(source, cfg.Doctype)
	}
	if c.history == nil {
		c.history = querystate.NewURLHistory()
	}
	key := cfg.SyncKey
	if key == "" {
		key = "t" + uuid.NewString()[:8]
	}

	c.search = clock.NewDebouncer(c.clock, c.debounce)
	c.baseCtx, c.baseClose = context.WithCancel(context.Background())
	c.store = querystate.New(c.history, cfg.SearchFields, cfg.PageSize)

	st, err := c.store.Initialize(key, querystate.Defaults{
		Filters:  cfg.DefaultFilters,
		Sort:     cfg.DefaultSort,
		PageSize: cfg.PageSize,
	})
	if err != nil {
		c.logger.Warn("Query state partially restored", zap.String("key", key), zap.Error(err))
	}
	c.rawTerm = st.SearchTerm
	c.unsubStore = c.store.Subscribe(func(query.State) { c.sync(false) })

	c.sync(false)
	return c, nil
}

// Key returns the history key the table writes under.
func (c *Coordinator) Key() string { return c.store.Key() }

// History returns the history the table state is written to.
func (c *Coordinator) History() querystate.History { return c.history }

// SetSearchTerm updates the search box. The term is committed after the debounce window;
// only the last term of a burst reaches the query state.
func (c *Coordinator) SetSearchTerm(term string) {
	c.mu.Lock()
	if c.closed || c.rawTerm == term {
		c.mu.Unlock()
		return
	}
	c.rawTerm = term
	c.mu.Unlock()

	c.notify()
	c.search.Trigger(func() {
		if err := c.store.Update(querystate.Change{SearchTerm: &term}); err != nil {
			c.logger.Warn("Search term rejected", zap.Error(err))
		}
	})
}

// SetSearchField restricts the search to one field; empty searches all search fields.
func (c *Coordinator) SetSearchField(name string) error {
	return c.store.Update(querystate.Change{SearchField: &name})
}

// SetFilter sets the filter on columnID. An empty value removes it.
func (c *Coordinator) SetFilter(columnID string, v query.Value) error {
	return c.store.Update(querystate.Change{Filters: []query.ColumnFilter{{ColumnID: columnID, Value: v}}})
}

// ClearFilter removes the filter on columnID.
func (c *Coordinator) ClearFilter(columnID string) error {
	return c.SetFilter(columnID, query.Value{})
}

// ClearFilters removes every filter.
func (c *Coordinator) ClearFilters() error {
	return c.store.Update(querystate.Change{ClearFilters: true})
}

// SetSort orders the table; nil removes the sort.
func (c *Coordinator) SetSort(s *query.Sort) error {
	if s == nil {
		return c.store.Update(querystate.Change{ClearSort: true})
	}
	return c.store.Update(querystate.Change{Sort: s})
}

// SetPage moves to page index i.
func (c *Coordinator) SetPage(i int) error {
	return c.store.Update(querystate.Change{PageIndex: &i})
}

// SetPageSize changes the page size and returns to the first page.
func (c *Coordinator) SetPageSize(n int) error {
	return c.store.Update(querystate.Change{PageSize: &n})
}

// Reset restores the configured defaults and drops the table from history.
func (c *Coordinator) Reset() {
	c.search.Stop()
	c.store.Reset()
	st := c.store.State()
	c.mu.Lock()
	c.rawTerm = st.SearchTerm
	c.mu.Unlock()
	c.sync(false)
}

// Refetch invalidates cached results of the doctype and re-issues every request,
// including those of bound facets. It returns once the requests are issued, before
// their data arrives; use WaitIdle to wait for it.
// The refetch happens even when invalidation fails; that error is returned.
func (c *Coordinator) Refetch(ctx context.Context) error {
	err := c.source.Invalidate(ctx, c.cfg.Doctype)
	if err != nil {
		c.logger.Warn("Invalidate failed", zap.String("doctype", c.cfg.Doctype), zap.Error(err))
	}
	c.sync(true)

	c.mu.Lock()
	resolvers := make([]*facet.Resolver, 0, len(c.facets))
	for _, r := range c.facets {
		resolvers = append(resolvers, r)
	}
	c.mu.Unlock()
	for _, r := range resolvers {
		r.Refetch()
	}
	return err
}

// BindFacet feeds the table's search and filters into r until the returned function is called.
// Refetch also refetches r while it is bound.
func (c *Coordinator) BindFacet(r *facet.Resolver, enabled bool) func() {
	push := func(s Snapshot) {
		r.Update(facet.Input{
			CurrentFilters: s.State.Filters,
			SearchTerm:     s.SearchTerm,
			CommittedTerm:  s.State.SearchTerm,
			SearchField:    s.State.SearchField,
			Enabled:        enabled,
		})
	}
	push(c.Snapshot())
	unsub := c.Subscribe(push)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.facets[id] = r
	c.mu.Unlock()
	return func() {
		unsub()
		c.mu.Lock()
		delete(c.facets, id)
		c.mu.Unlock()
	}
}

// Subscribe registers fn for snapshot changes and returns its cancel function.
func (c *Coordinator) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	subs := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, c.subs[id])
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	st := c.store.State()
	pg := c.slots[SlotPage]
	cn := c.slots[SlotCount]
	ag := c.slots[SlotAggregate]
	gb := c.slots[SlotGroupBy]
	s := Snapshot{
		Rows:            slices.Clone(c.rows),
		HasData:         c.hasData,
		Page:            SlotStatus{Loading: pg.loading, Err: pg.err},
		TotalCount:      c.total,
		PageCount:       row.PageCount(c.total, st.PageSize),
		CountStatus:     SlotStatus{Loading: cn.loading, Err: cn.err},
		AggregateStatus: SlotStatus{Loading: ag.loading, Err: ag.err},
		Groups:          slices.Clone(c.groups),
		GroupStatus:     SlotStatus{Loading: gb.loading, Err: gb.err},
		Warnings:        slices.Clone(c.warnings),
		State:           st,
		SearchTerm:      c.rawTerm,
	}
	if c.aggregates != nil {
		s.Aggregates = make(aggregate.Result, len(c.aggregates))
		for k, v := range c.aggregates {
			s.Aggregates[k] = v
		}
	}
	return s
}

// Table returns the rendering model of the current snapshot.
func (c *Coordinator) Table() TableModel {
	s := c.Snapshot()
	return TableModel{
		columns:   slices.Clone(c.cfg.Columns),
		rows:      s.Rows,
		state:     s.State,
		total:     s.TotalCount,
		pageCount: s.PageCount,
	}
}

// WaitIdle blocks until no debounce is pending and no request is in flight.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		c.mu.Lock()
		idle := c.inflight == 0
		c.mu.Unlock()
		if idle && !c.search.Pending() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close cancels in-flight requests and stops notifications.
func (c *Coordinator) Close() {
	c.search.Stop()
	c.unsubStore()
	c.mu.Lock()
	c.closed = true
	c.subs = make(map[int]func(Snapshot))
	c.facets = make(map[int]*facet.Resolver)
	c.mu.Unlock()
	c.baseClose()
}

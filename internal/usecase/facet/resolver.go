// Package facet resolves the selectable values of one column under the table's other filters.
package facet

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tablekit/internal/clock"
	"github.com/kailas-cloud/tablekit/internal/domain"
	domfacet "github.com/kailas-cloud/tablekit/internal/domain/facet"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
	"github.com/kailas-cloud/tablekit/internal/domain/query"
	"github.com/kailas-cloud/tablekit/internal/usecase/table"
	"github.com/kailas-cloud/tablekit/internal/usecase/translate"
)

// DefaultDebounce is the search term debounce window.
const DefaultDebounce = 300 * time.Millisecond

const slotName = "facet"

// Config describes the faceted column.
type Config struct {
	Doctype      string
	Field        string
	SearchFields []string
	DateColumns  []string
	// Schema drops filters the column types cannot hold; nil asks the source for the doctype.
	Schema            translate.Schema
	AdditionalFilters []filter.Condition
	Limit             int
	// Label renders an option value for display; nil shows the raw value.
	Label func(string) string
}

// Input is the table context the options depend on.
type Input struct {
	CurrentFilters []query.ColumnFilter
	// SearchTerm is the raw search box; CommittedTerm is the term the caller has
	// already debounced, which the resolver applies without waiting again.
	SearchTerm    string
	CommittedTerm string
	SearchField   string
	Enabled       bool
}

// Snapshot is the resolver's observable state.
type Snapshot struct {
	Options   []domfacet.Option
	IsLoading bool
	Error     error
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option { return func(r *Resolver) { r.debounce = d } }

// WithClock sets the clock driving the debounce window.
func WithClock(c clock.Clock) Option { return func(r *Resolver) { r.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(r *Resolver) { r.logger = l } }

// WithRecorder sets the fetch metrics recorder.
func WithRecorder(rec Recorder) Option { return func(r *Resolver) { r.recorder = rec } }

// Resolver keeps the options of one facet in sync with its Input.
// Only a change of the dependency key issues a request; the newest request wins.
type Resolver struct {
	source   Source
	cfg      Config
	debounce time.Duration
	clock    clock.Clock
	logger   *zap.Logger
	recorder Recorder
	search   *clock.Debouncer

	mu        sync.Mutex
	input     Input // SearchTerm holds the committed (debounced) term
	rawTerm   string
	lastKey   string
	gen       uint64
	cancel    context.CancelFunc
	inflight  int
	snap      Snapshot
	subs      map[int]func(Snapshot)
	nextSub   int
	closed    bool
	baseCtx   context.Context
	baseClose context.CancelFunc
}

// New creates a resolver. It issues nothing until the first Update.
func New(source Source, cfg Config, opts ...Option) (*Resolver, error) {
	if cfg.Doctype == "" || cfg.Field == "" {
		return nil, fmt.Errorf("%w: facet doctype and field are required", domain.ErrValidation)
	}
	r := &Resolver{
		source:   source,
		cfg:      cfg,
		debounce: DefaultDebounce,
		clock:    clock.Real{},
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		subs:     make(map[int]func(Snapshot)),
	}
	for _, o := range opts {
		o(r)
	}
	if r.cfg.Schema == nil {
		if ds, ok := source.(doctypeSource); ok {
			if dt, err := ds.Doctype(cfg.Doctype); err == nil {
				r.cfg.Schema = dt
			}
		}
	}
	r.search = clock.NewDebouncer(r.clock, r.debounce)
	r.baseCtx, r.baseClose = context.WithCancel(context.Background())
	return r, nil
}

// Field returns the faceted column.
func (r *Resolver) Field() string { return r.cfg.Field }

// Update sets the table context. Search term changes are debounced; the rest apply immediately.
// The first term, and a term equal to in.CommittedTerm, apply immediately as well.
func (r *Resolver) Update(in Input) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	term := in.SearchTerm
	termChanged := term != r.rawTerm
	settled := term == in.CommittedTerm || r.lastKey == ""
	r.rawTerm = term
	if !settled {
		in.SearchTerm = r.input.SearchTerm
	}
	in.CurrentFilters = slices.Clone(in.CurrentFilters)
	r.input = in
	r.mu.Unlock()

	switch {
	case settled:
		r.search.Stop()
	case termChanged:
		r.search.Trigger(func() { r.commitTerm(term) })
	}
	r.run(false)
}

func (r *Resolver) commitTerm(term string) {
	r.mu.Lock()
	r.input.SearchTerm = term
	r.mu.Unlock()
	r.run(false)
}

// Refetch re-issues the current request even when its key did not change.
func (r *Resolver) Refetch() { r.run(true) }

func (r *Resolver) dependencyKey(in Input) (string, filter.Expression) {
	if !in.Enabled {
		return "disabled", filter.Expression{}
	}
	st := query.State{SearchTerm: in.SearchTerm, SearchField: in.SearchField, Filters: in.CurrentFilters}
	params, warnings := translate.ToServerParams(st, translate.Options{
		Schema:        r.cfg.Schema,
		SearchFields:  r.cfg.SearchFields,
		DateColumns:   r.cfg.DateColumns,
		Static:        r.cfg.AdditionalFilters,
		ExcludeColumn: r.cfg.Field,
	})
	for _, w := range warnings {
		r.logger.Debug("Facet filter dropped", zap.String("field", r.cfg.Field), zap.Error(w))
	}
	return params.Filters.Key(), params.Filters
}

func (r *Resolver) run(force bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	key, filters := r.dependencyKey(r.input)
	if key == r.lastKey && !force {
		r.mu.Unlock()
		return
	}
	r.lastKey = key

	r.gen++
	gen := r.gen
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if !r.input.Enabled {
		r.snap = Snapshot{Options: []domfacet.Option{}}
		r.mu.Unlock()
		r.notify()
		return
	}

	ctx, cancel := context.WithCancel(r.baseCtx)
	r.cancel = cancel
	r.snap.IsLoading = true
	r.inflight++
	req := table.FacetRequest{Doctype: r.cfg.Doctype, Field: r.cfg.Field, Filters: filters, Limit: r.cfg.Limit}
	r.mu.Unlock()

	r.notify()
	go r.fetch(ctx, gen, req)
}

func (r *Resolver) fetch(ctx context.Context, gen uint64, req table.FacetRequest) {
	start := time.Now()
	opts, err := r.source.Facets(ctx, req)
	elapsed := time.Since(start)

	r.mu.Lock()
	r.inflight--
	if gen != r.gen || r.closed {
		r.mu.Unlock()
		r.recorder.Stale(slotName)
		r.logger.Debug("Stale facet response discarded", zap.String("field", r.cfg.Field))
		return
	}
	r.snap.IsLoading = false
	if err != nil {
		r.snap.Error = fmt.Errorf("facet %s: %w", r.cfg.Field, err)
	} else {
		r.snap.Options = domfacet.Normalize(opts, r.cfg.Limit, r.cfg.Label)
		r.snap.Error = nil
	}
	r.mu.Unlock()

	r.recorder.FetchDone(slotName, err, elapsed)
	if err != nil {
		r.logger.Warn("Facet fetch failed",
			zap.String("doctype", r.cfg.Doctype),
			zap.String("field", r.cfg.Field),
			zap.Error(err),
		)
	}
	r.notify()
}

// Snapshot returns a copy of the current state.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Resolver) snapshotLocked() Snapshot {
	s := r.snap
	s.Options = slices.Clone(r.snap.Options)
	return s
}

// Subscribe registers fn for snapshot changes and returns its cancel function.
func (r *Resolver) Subscribe(fn func(Snapshot)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *Resolver) notify() {
	r.mu.Lock()
	snap := r.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// WaitIdle blocks until no debounce is pending and no request is in flight.
func (r *Resolver) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		r.mu.Lock()
		idle := r.inflight == 0
		r.mu.Unlock()
		if idle && !r.search.Pending() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close cancels in-flight work and stops notifications.
func (r *Resolver) Close() {
	r.search.Stop()
	r.mu.Lock()
	r.closed = true
	r.subs = make(map[int]func(Snapshot))
	r.mu.Unlock()
	r.baseClose()
}

package tablekit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tablekit/internal/app"
	"github.com/kailas-cloud/tablekit/internal/config"
	"github.com/kailas-cloud/tablekit/internal/db/memory"
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/query"
	"github.com/kailas-cloud/tablekit/internal/domain/row"
	"github.com/kailas-cloud/tablekit/internal/metrics"
	"github.com/kailas-cloud/tablekit/internal/usecase/datatable"
	"github.com/kailas-cloud/tablekit/internal/usecase/facet"
	"github.com/kailas-cloud/tablekit/internal/usecase/querystate"
	tableuc "github.com/kailas-cloud/tablekit/internal/usecase/table"
)

// Public names of the table types.
type (
	TableConfig     = datatable.Config
	Table           = datatable.Coordinator
	Snapshot        = datatable.Snapshot
	FacetConfig     = facet.Config
	Facet           = facet.Resolver
	FacetSnapshot   = facet.Snapshot
	URLHistory      = querystate.URLHistory
	SearchField     = querystate.SearchField
	State           = query.State
	ColumnFilter    = query.ColumnFilter
	Value           = query.Value
	Op              = query.Op
	Sort            = query.Sort
	Row             = row.Row
	AggregateConfig = aggregate.Config
	GroupByConfig   = aggregate.GroupByConfig
)

// Filter value constructors.
var (
	Exact     = query.Exact
	Set       = query.Set
	DateRange = query.DateRange
	Numeric   = query.Numeric
)

// Numeric comparison operators.
const (
	OpEq  = query.OpEq
	OpNe  = query.OpNe
	OpGt  = query.OpGt
	OpGte = query.OpGte
	OpLt  = query.OpLt
	OpLte = query.OpLte
)

// Aggregate functions.
const (
	Sum   = aggregate.Sum
	Avg   = aggregate.Avg
	Min   = aggregate.Min
	Max   = aggregate.Max
	Count = aggregate.Count
)

// Sort directions.
const (
	Asc  = query.Asc
	Desc = query.Desc
)

// ErrNotMemory is returned by Load on a backend that does not keep rows in process.
var ErrNotMemory = errors.New("tablekit: backend is not in-memory")

// Client is the tablekit SDK entry point. Its tables share one query history.
type Client struct {
	backend *app.Backend
	tables  *tableuc.Service
	history *querystate.URLHistory
	table   config.TableConfig
	logger  *zap.Logger
	metrics bool
}

// New opens the configured backend, prepares the declared doctypes and returns a Client.
func New(opts ...Option) (*Client, error) {
	cc := &clientConfig{}
	for _, o := range opts {
		o(cc)
	}
	if len(cc.errs) > 0 {
		return nil, errors.Join(cc.errs...)
	}
	if err := cc.validate(); err != nil {
		return nil, err
	}

	cfg := config.Config{Database: cc.db, Table: cc.table, Doctypes: cc.doctypes}
	cfg.ApplyDefaults()

	logger := cc.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cc.metrics {
		metrics.RegisterTableMetrics()
	}

	reg, err := app.BuildRegistry(cfg.Doctypes)
	if err != nil {
		return nil, fmt.Errorf("tablekit: %w", err)
	}

	ctx := context.Background()
	backend, err := app.OpenBackend(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("tablekit: %w", err)
	}
	if err := app.Prepare(ctx, backend, reg, cfg.Database.SeedFile, logger); err != nil {
		backend.Close()
		return nil, fmt.Errorf("tablekit: %w", err)
	}

	return &Client{
		backend: backend,
		tables:  app.NewTableService(backend, reg, cfg.Table, logger),
		history: querystate.NewURLHistory(),
		table:   cfg.Table,
		logger:  logger,
		metrics: cc.metrics,
	}, nil
}

func (cc *clientConfig) validate() error {
	switch {
	case cc.db.Driver == "":
		return errors.New("tablekit: backend required (use WithValkey, WithRedis, WithPostgres, WithClickHouse, WithSQLite or WithMemory)")
	case cc.db.IsRedis() && len(cc.db.Addrs) == 0:
		return errors.New("tablekit: database address required")
	case cc.db.IsSQL() && cc.db.DSN == "":
		return errors.New("tablekit: database dsn required")
	case len(cc.doctypes) == 0:
		return errors.New("tablekit: at least one doctype required (use WithDoctype)")
	}
	return nil
}

// Close releases all resources. Tables and facets should be closed first.
func (c *Client) Close() {
	if c.backend != nil {
		c.backend.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.backend.Store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// History returns the query history shared by the client's tables.
// Load restores a deep link; String renders the current one.
func (c *Client) History() *URLHistory { return c.history }

// Load replaces the rows of a doctype on an in-memory backend.
func (c *Client) Load(ctx context.Context, doctype string, rows []map[string]any) error {
	ms, ok := c.backend.Store.(*memory.Store)
	if !ok {
		return ErrNotMemory
	}
	if _, err := c.tables.Doctype(doctype); err != nil {
		return fmt.Errorf("tablekit: %w", err)
	}
	ms.Load(doctype, rows)
	return c.tables.Invalidate(ctx, doctype)
}

// Invalidate drops cached responses of a doctype. Open tables keep their data until Refetch.
func (c *Client) Invalidate(ctx context.Context, doctype string) error {
	if err := c.tables.Invalidate(ctx, doctype); err != nil {
		return fmt.Errorf("tablekit: %w", err)
	}
	return nil
}

// Table opens a table over a declared doctype. Search fields and date columns
// default to the doctype's searchable and date fields.
func (c *Client) Table(cfg TableConfig) (*Table, error) {
	dt, err := c.tables.Doctype(cfg.Doctype)
	if err != nil {
		return nil, fmt.Errorf("tablekit: %w", err)
	}
	if cfg.Schema == nil {
		cfg.Schema = dt
	}
	if cfg.DateColumns == nil {
		cfg.DateColumns = dt.DateColumns()
	}
	if len(cfg.SearchFields) == 0 {
		for i, name := range tableuc.SearchableFields(dt) {
			cfg.SearchFields = append(cfg.SearchFields, SearchField{Name: name, Label: name, Default: i == 0})
		}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = c.table.DefaultPageSize
	}

	opts := []datatable.Option{
		datatable.WithHistory(c.history),
		datatable.WithDebounce(c.table.Debounce()),
		datatable.WithLogger(c.logger.With(zap.String("doctype", cfg.Doctype))),
	}
	if c.metrics {
		opts = append(opts, datatable.WithRecorder(metrics.FetchRecorder{}))
	}
	t, err := datatable.New(c.tables, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("tablekit: %w", err)
	}
	return t, nil
}

// Facet opens a facet resolver. Bind it to a table with Table.BindFacet.
func (c *Client) Facet(cfg FacetConfig) (*Facet, error) {
	dt, err := c.tables.Doctype(cfg.Doctype)
	if err != nil {
		return nil, fmt.Errorf("tablekit: %w", err)
	}
	if cfg.Schema == nil {
		cfg.Schema = dt
	}
	if cfg.DateColumns == nil {
		cfg.DateColumns = dt.DateColumns()
	}
	if cfg.SearchFields == nil {
		cfg.SearchFields = tableuc.SearchableFields(dt)
	}

	opts := []facet.Option{
		facet.WithDebounce(c.table.Debounce()),
		facet.WithLogger(c.logger.With(zap.String("doctype", cfg.Doctype), zap.String("facet", cfg.Field))),
	}
	if c.metrics {
		opts = append(opts, facet.WithRecorder(metrics.FetchRecorder{}))
	}
	f, err := facet.New(c.tables, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("tablekit: %w", err)
	}
	return f, nil
}

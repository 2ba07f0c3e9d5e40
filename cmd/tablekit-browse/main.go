// Command tablekit-browse is a terminal browser over one doctype of a tablekit backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tablekit/internal/app"
	"github.com/kailas-cloud/tablekit/internal/config"
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	logpkg "github.com/kailas-cloud/tablekit/internal/logger"
	"github.com/kailas-cloud/tablekit/internal/metrics"
	"github.com/kailas-cloud/tablekit/internal/usecase/datatable"
	"github.com/kailas-cloud/tablekit/internal/usecase/facet"
	"github.com/kailas-cloud/tablekit/internal/usecase/querystate"
	tableuc "github.com/kailas-cloud/tablekit/internal/usecase/table"
)

type flags struct {
	doctype string
	columns string
	facet   string
	aggs    string
	groupBy string
	link    string
}

func main() {
	var f flags
	flag.StringVar(&f.doctype, "doctype", "", "doctype to browse (default: first declared)")
	flag.StringVar(&f.columns, "columns", "", "comma-separated columns (default: all fields)")
	flag.StringVar(&f.facet, "facet", "", "field whose values are listed as quick filters")
	flag.StringVar(&f.aggs, "agg", "", "comma-separated aggregates, e.g. sum:grand_total,count:name")
	flag.StringVar(&f.groupBy, "group-by", "", "field to group the first aggregate by")
	flag.StringVar(&f.link, "link", "", "query string to restore, e.g. t.p=2&t.q=acme")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintln(os.Stderr, "tablekit-browse:", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The terminal belongs to the UI: log to a file only when asked.
	logger := zap.NewNop()
	if path := os.Getenv("TABLEKIT_BROWSE_LOG"); path != "" {
		logger, err = logpkg.NewFileLogger(path, cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()
	}

	reg, err := app.BuildRegistry(cfg.Doctypes)
	if err != nil {
		return err
	}
	ctx := context.Background()
	backend, err := app.OpenBackend(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer backend.Close()
	if err := app.Prepare(ctx, backend, reg, cfg.Database.SeedFile, logger); err != nil {
		return err
	}
	tables := app.NewTableService(backend, reg, cfg.Table, logger)

	name := f.doctype
	if name == "" {
		name = cfg.Doctypes[0].Name
	}
	dt, err := reg.Get(name)
	if err != nil {
		return err
	}

	tcfg := datatable.Config{
		Doctype:     name,
		Columns:     splitList(f.columns),
		DateColumns: dt.DateColumns(),
		SyncKey:     "t",
		PageSize:    cfg.Table.DefaultPageSize,
	}
	if len(tcfg.Columns) == 0 {
		tcfg.Columns = dt.FieldNames()
	}
	for i, s := range tableuc.SearchableFields(dt) {
		tcfg.SearchFields = append(tcfg.SearchFields, querystate.SearchField{Name: s, Label: s, Default: i == 0})
	}
	if tcfg.Aggregates, err = parseAggregates(f.aggs); err != nil {
		return err
	}
	if f.groupBy != "" {
		if len(tcfg.Aggregates) == 0 {
			return fmt.Errorf("-group-by needs an -agg")
		}
		first := tcfg.Aggregates[0]
		tcfg.GroupBy = &aggregate.GroupByConfig{
			GroupByField:      f.groupBy,
			AggregateField:    first.Field,
			AggregateFunction: first.Function,
			Limit:             10,
		}
	}

	history := querystate.NewURLHistory()
	if err := history.Load(f.link); err != nil {
		return fmt.Errorf("parse -link: %w", err)
	}

	metrics.RegisterTableMetrics()
	table, err := datatable.New(tables, tcfg,
		datatable.WithHistory(history),
		datatable.WithDebounce(cfg.Table.Debounce()),
		datatable.WithLogger(logger),
		datatable.WithRecorder(metrics.FetchRecorder{}),
	)
	if err != nil {
		return err
	}
	defer table.Close()

	var resolver *facet.Resolver
	if f.facet != "" {
		resolver, err = facet.New(tables, facet.Config{
			Doctype:      name,
			Field:        f.facet,
			SearchFields: tableuc.SearchableFields(dt),
			DateColumns:  dt.DateColumns(),
			Limit:        9,
		},
			facet.WithDebounce(cfg.Table.Debounce()),
			facet.WithLogger(logger),
			facet.WithRecorder(metrics.FetchRecorder{}),
		)
		if err != nil {
			return err
		}
		defer resolver.Close()
		defer table.BindFacet(resolver, true)()
	}

	m := newModel(table, resolver)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	m.close()

	if link := history.String(); link != "" {
		fmt.Println("-link", link)
	}
	return nil
}

// parseAggregates parses "fn:field" pairs.
func parseAggregates(s string) ([]aggregate.Config, error) {
	var out []aggregate.Config
	for _, part := range splitList(s) {
		fn, field, ok := strings.Cut(part, ":")
		if !ok || field == "" {
			return nil, fmt.Errorf("aggregate %q must be fn:field", part)
		}
		f, err := aggregate.ParseFunction(fn)
		if err != nil {
			return nil, err
		}
		out = append(out, aggregate.Config{Field: field, Function: f})
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package datatable

import (
	"context"
	"time"

	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
	"github.com/kailas-cloud/tablekit/internal/domain/row"
	"github.com/kailas-cloud/tablekit/internal/usecase/table"
	"github.com/kailas-cloud/tablekit/internal/usecase/translate"
)

// Source serves the coordinator's reads. table.Service implements it.
type Source interface {
	Page(ctx context.Context, req table.PageRequest) (row.Page, error)
	Count(ctx context.Context, doctype string, filters filter.Expression) (int, error)
	Aggregate(ctx context.Context, doctype string, filters filter.Expression, aggs []aggregate.Config) (aggregate.Result, error)
	GroupBy(ctx context.Context, doctype string, filters filter.Expression, cfg aggregate.GroupByConfig) ([]aggregate.Group, error)
	Invalidate(ctx context.Context, doctype string) error
}

// doctypeSource is implemented by sources that know the doctype schemas.
type doctypeSource interface {
	Doctype(name string) (doctype.Doctype, error)
}

func schemaOf(source any, name string) translate.Schema {
	ds, ok := source.(doctypeSource)
	if !ok {
		return nil
	}
	dt, err := ds.Doctype(name)
	if err != nil {
		return nil
	}
	return dt
}

// Recorder observes fetches. metrics.FetchRecorder implements it.
type Recorder interface {
	FetchDone(slot string, err error, d time.Duration)
	Stale(slot string)
}

type nopRecorder struct{}

func (nopRecorder) FetchDone(string, error, time.Duration) {}
func (nopRecorder) Stale(string)                           {}

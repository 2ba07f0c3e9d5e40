package table

import (
	"context"

	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype"
	"github.com/kailas-cloud/tablekit/internal/domain/facet"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
	"github.com/kailas-cloud/tablekit/internal/domain/row"
	"github.com/kailas-cloud/tablekit/internal/repository/listing"
)

// Repository defines the storage contract for table reads.
type Repository interface {
	Page(ctx context.Context, q listing.PageQuery) (row.Page, error)
	Count(ctx context.Context, doctype string, filters filter.Expression) (int, error)
	Aggregate(ctx context.Context, doctype string, filters filter.Expression, aggs []aggregate.Config) (aggregate.Result, error)
	GroupBy(ctx context.Context, doctype string, filters filter.Expression, cfg aggregate.GroupByConfig) ([]aggregate.Group, error)
	Facet(ctx context.Context, doctype, field string, filters filter.Expression, limit int) ([]facet.Option, error)
}

// Invalidator drops cached responses of a doctype.
type Invalidator interface {
	Invalidate(ctx context.Context, doctype string) error
}

// DoctypeReader resolves registered doctypes.
type DoctypeReader interface {
	Get(name string) (doctype.Doctype, error)
	All() []doctype.Doctype
}

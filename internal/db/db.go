package db

import (
	"context"
	"time"

	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
)

// Store is what every backend implements. Consumers depend on the narrow
// interfaces below instead.
type Store interface {
	Pinger
	DocumentSource
	DocumentWriter
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations. Backends without native KV pair with memory.KV.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	Del(ctx context.Context, key string) error
}

// IndexManager provides FT index lifecycle operations. Only search-index backends implement it.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// DocumentSource answers listing, counting and aggregation queries over one doctype.
type DocumentSource interface {
	List(ctx context.Context, q *ListQuery) (*ListResult, error)
	Count(ctx context.Context, doctype string, filters filter.Expression) (int, error)
	Aggregate(ctx context.Context, q *AggregateQuery) (aggregate.Result, error)
	GroupBy(ctx context.Context, q *GroupByQuery) ([]GroupRow, error)
	Facet(ctx context.Context, q *FacetQuery) ([]FacetRow, error)
}

// DocumentWriter loads documents into a doctype.
type DocumentWriter interface {
	PutDocuments(ctx context.Context, doctype string, docs []Document) error
}

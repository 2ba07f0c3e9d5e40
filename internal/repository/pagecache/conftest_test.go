package pagecache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tablekit/internal/db"
	"github.com/kailas-cloud/tablekit/internal/db/memory"
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/facet"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
	"github.com/kailas-cloud/tablekit/internal/domain/row"
	"github.com/kailas-cloud/tablekit/internal/repository/listing"
)

// mockSource implements the decorated interface and counts calls.
type mockSource struct {
	calls atomic.Int32

	pageFn      func(ctx context.Context, q listing.PageQuery) (row.Page, error)
	aggregateFn func(ctx context.Context, aggs []aggregate.Config) (aggregate.Result, error)
}

func (m *mockSource) Page(ctx context.Context, q listing.PageQuery) (row.Page, error) {
	m.calls.Add(1)
	if m.pageFn != nil {
		return m.pageFn(ctx, q)
	}
	return row.Page{Rows: []row.Row{{"name": "PO-1"}}, TotalCount: 1}, nil
}

func (m *mockSource) Count(context.Context, string, filter.Expression) (int, error) {
	m.calls.Add(1)
	return 42, nil
}

func (m *mockSource) Aggregate(
	ctx context.Context, _ string, _ filter.Expression, aggs []aggregate.Config,
) (aggregate.Result, error) {
	m.calls.Add(1)
	if m.aggregateFn != nil {
		return m.aggregateFn(ctx, aggs)
	}
	return aggregate.Result{}, nil
}

func (m *mockSource) GroupBy(
	context.Context, string, filter.Expression, aggregate.GroupByConfig,
) ([]aggregate.Group, error) {
	m.calls.Add(1)
	return []aggregate.Group{{Key: "Acme", Value: 10}}, nil
}

func (m *mockSource) Facet(context.Context, string, string, filter.Expression, int) ([]facet.Option, error) {
	m.calls.Add(1)
	return []facet.Option{{Value: "V1", Label: "V1", Count: 2}}, nil
}

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	incFn func(ctx context.Context, key string, val int64) (int64, error)
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	return nil
}

func (m *mockKVStore) IncrBy(ctx context.Context, key string, val int64) (int64, error) {
	if m.incFn != nil {
		return m.incFn(ctx, key, val)
	}
	return val, nil
}

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
}

func newTestCache(t *testing.T) (*Cache, *mockSource, *prometheus.CounterVec) {
	t.Helper()
	src := &mockSource{}
	counter := newCounter()
	return New(src, memory.NewKV(), counter, zap.NewNop()), src, counter
}

func mustExpr(t *testing.T, key, value string) filter.Expression {
	t.Helper()
	c, err := filter.NewMatch(key, value)
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	e, err := filter.NewExpression([]filter.Condition{c}, nil, nil)
	if err != nil {
		t.Fatalf("NewExpression: %v", err)
	}
	return e
}

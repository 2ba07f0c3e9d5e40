package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/tablekit/internal/db"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
)

// Compile-time checks: Store implements db.Store, db.KVStore and db.IndexManager.
var (
	_ db.Store        = (*Store)(nil)
	_ db.KVStore      = (*Store)(nil)
	_ db.IndexManager = (*Store)(nil)
)

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// Store implements db.Store via rueidis for Redis 8+ and Valkey with the search module.
type Store struct {
	client rueidis.Client

	mu        sync.RWMutex
	tagFields map[string]map[string]bool // index name -> TAG field names
}

// NewStore creates a Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH/FT.AGGREGATE parsing expects RESP2 arrays
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client, tagFields: make(map[string]map[string]bool)}, nil
}

// NewStoreForTest creates a Store with the provided rueidis client (test-only).
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{client: c, tagFields: make(map[string]map[string]bool)}
}

// rememberIndex records which fields of def are TAGs so LIKE queries use tag wildcards.
func (s *Store) rememberIndex(def *db.IndexDefinition) {
	tags := make(map[string]bool)
	for _, f := range def.Fields {
		if f.Type == db.IndexFieldTag {
			tags[f.Name] = true
		}
	}
	s.mu.Lock()
	s.tagFields[def.Name] = tags
	s.mu.Unlock()
}

func (s *Store) queryString(doctype string, expr filter.Expression) string {
	s.mu.RLock()
	tags := s.tagFields[db.IndexName(doctype)]
	s.mu.RUnlock()
	return queryString(expr, func(field string) bool { return tags[field] })
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady pings immediately and then every interval until the store answers or
// timeout expires. The last ping error is reported on timeout.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	const interval = 100 * time.Millisecond
	for {
		err := s.Ping(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not ready after %s: %w", timeout, err)
		case <-time.After(interval):
		}
	}
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

// isRedisErr reports whether err is a server reply containing substr, ignoring case.
// Redis and Valkey differ in the capitalisation of FT error messages.
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}

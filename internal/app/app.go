// Package app assembles stores, repositories and services from configuration.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tablekit/internal/config"
	"github.com/kailas-cloud/tablekit/internal/db"
	"github.com/kailas-cloud/tablekit/internal/db/memory"
	dbRedis "github.com/kailas-cloud/tablekit/internal/db/redis"
	"github.com/kailas-cloud/tablekit/internal/db/sqldb"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype/field"
	"github.com/kailas-cloud/tablekit/internal/metrics"
	doctyperepo "github.com/kailas-cloud/tablekit/internal/repository/doctype"
	"github.com/kailas-cloud/tablekit/internal/repository/listing"
	"github.com/kailas-cloud/tablekit/internal/repository/pagecache"
	tableuc "github.com/kailas-cloud/tablekit/internal/usecase/table"
)

// Backend is an opened remote store with its cache storage.
type Backend struct {
	Store db.Store
	// KV holds cached responses: the store itself for Redis, in-process otherwise.
	KV db.KVStore
	// Indexes is nil for backends without search indexes.
	Indexes db.IndexManager
}

// Close releases the store.
func (b *Backend) Close() { b.Store.Close() }

// BuildRegistry converts declared doctypes into a registry.
func BuildRegistry(decls []config.DoctypeConfig) (*doctype.Registry, error) {
	dts := make([]doctype.Doctype, 0, len(decls))
	for _, d := range decls {
		fields := make([]field.Field, 0, len(d.Fields))
		for _, fc := range d.Fields {
			f, err := field.New(fc.Name, field.Type(fc.Type), fc.Sortable)
			if err != nil {
				return nil, fmt.Errorf("doctype %s: %w", d.Name, err)
			}
			fields = append(fields, f)
		}
		dt, err := doctype.New(d.Name, fields)
		if err != nil {
			return nil, fmt.Errorf("doctype %s: %w", d.Name, err)
		}
		dts = append(dts, dt)
	}
	return doctype.NewRegistry(dts...)
}

// OpenBackend connects to the configured driver and waits until it answers.
func OpenBackend(ctx context.Context, cfg config.DatabaseConfig) (*Backend, error) {
	var b *Backend
	switch cfg.Driver {
	case config.DriverValkey, config.DriverRedis:
		s, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.Addrs, Password: cfg.Password})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
		}
		b = &Backend{Store: s, KV: s, Indexes: s}
	case config.DriverPostgres, config.DriverClickHouse, config.DriverSQLite:
		s, err := openSQL(cfg)
		if err != nil {
			return nil, err
		}
		b = &Backend{Store: s, KV: memory.NewKV()}
	case config.DriverMemory:
		b = &Backend{Store: memory.NewStore(), KV: memory.NewKV()}
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	if err := b.Store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		b.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	return b, nil
}

func openSQL(cfg config.DatabaseConfig) (*sqldb.Store, error) {
	var (
		s   *sqldb.Store
		err error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err = sqldb.OpenPostgres(cfg.DSN)
	case config.DriverClickHouse:
		s, err = sqldb.OpenClickHouse(cfg.DSN)
	default:
		s, err = sqldb.OpenSQLite(cfg.DSN)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	return s, nil
}

// Prepare creates search indexes for every doctype and loads the seed file, if any.
// SQL backends read existing tables and are never seeded.
func Prepare(ctx context.Context, b *Backend, reg *doctype.Registry, seedFile string, logger *zap.Logger) error {
	repo := doctyperepo.New(b.Indexes, b.Store)
	for _, dt := range reg.All() {
		if err := repo.EnsureIndex(ctx, dt); err != nil {
			return err
		}
	}
	if seedFile == "" {
		return nil
	}

	if ms, ok := b.Store.(*memory.Store); ok {
		if err := ms.LoadFile(filepath.Clean(seedFile)); err != nil {
			return err
		}
		logger.Info("Seed loaded", zap.String("file", seedFile))
		return nil
	}
	if b.Indexes == nil {
		logger.Warn("Seed file ignored: backend reads existing tables", zap.String("file", seedFile))
		return nil
	}

	seed, err := ReadSeedFile(seedFile)
	if err != nil {
		return err
	}
	for name, rows := range seed {
		dt, err := reg.Get(name)
		if err != nil {
			logger.Warn("Seed doctype not declared, skipped", zap.String("doctype", name))
			continue
		}
		if err := repo.Seed(ctx, dt, rows); err != nil {
			return err
		}
		logger.Info("Doctype seeded", zap.String("doctype", name), zap.Int("rows", len(rows)))
	}
	return nil
}

// ReadSeedFile parses a JSON seed file shaped {"<doctype>": [{...}, ...]}.
func ReadSeedFile(path string) (map[string][]map[string]any, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed map[string][]map[string]any
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return seed, nil
}

// NewTableService builds the read path: listing over the store, optionally behind the page cache.
func NewTableService(b *Backend, reg *doctype.Registry, cfg config.TableConfig, logger *zap.Logger) *tableuc.Service {
	limits := tableuc.Limits{
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
		FacetLimit:      cfg.FacetLimit,
	}
	repo := listing.New(b.Store, reg)
	if cfg.CacheTTL() <= 0 {
		return tableuc.New(repo, reg, nil, limits)
	}
	cache := pagecache.New(repo, b.KV, metrics.CacheTotal, logger, pagecache.WithTTL(cfg.CacheTTL()))
	return tableuc.New(cache, reg, cache, limits)
}

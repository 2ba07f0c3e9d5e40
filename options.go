package tablekit

import (
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tablekit/internal/config"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	db       config.DatabaseConfig
	table    config.TableConfig
	doctypes []config.DoctypeConfig
	logger   *zap.Logger
	metrics  bool
	errs     []error
}

// WithValkey connects to Valkey at the given addresses.
func WithValkey(addrs ...string) Option {
	return func(c *clientConfig) {
		c.db.Driver = config.DriverValkey
		c.db.Addrs = addrs
	}
}

// WithRedis connects to Redis Stack at the given addresses.
func WithRedis(addrs ...string) Option {
	return func(c *clientConfig) {
		c.db.Driver = config.DriverRedis
		c.db.Addrs = addrs
	}
}

// WithPassword sets the Valkey/Redis password.
func WithPassword(password string) Option {
	return func(c *clientConfig) { c.db.Password = password }
}

// WithPostgres reads existing tables from PostgreSQL.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.db.Driver = config.DriverPostgres
		c.db.DSN = dsn
	}
}

// WithClickHouse reads existing tables from ClickHouse.
func WithClickHouse(dsn string) Option {
	return func(c *clientConfig) {
		c.db.Driver = config.DriverClickHouse
		c.db.DSN = dsn
	}
}

// WithSQLite reads existing tables from a SQLite database file.
func WithSQLite(path string) Option {
	return func(c *clientConfig) {
		c.db.Driver = config.DriverSQLite
		c.db.DSN = path
	}
}

// WithMemory keeps rows in process. Rows come from WithSeedFile or Client.Load.
func WithMemory() Option {
	return func(c *clientConfig) { c.db.Driver = config.DriverMemory }
}

// WithSeedFile loads a JSON file shaped {"<doctype>": [{...}, ...]} on startup.
// SQL backends ignore it.
func WithSeedFile(path string) Option {
	return func(c *clientConfig) { c.db.SeedFile = path }
}

// WithReadinessTimeout bounds the wait for the store to answer.
func WithReadinessTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.db.ReadinessTimeout = int(d.Seconds()) }
}

// WithDoctype declares a listable record type.
func WithDoctype(name string, fields ...FieldSpec) Option {
	return func(c *clientConfig) {
		fcs := make([]config.FieldConfig, len(fields))
		for i, f := range fields {
			fcs[i] = config.FieldConfig{Name: f.name, Type: f.typ, Sortable: f.sortable}
		}
		c.doctypes = append(c.doctypes, config.DoctypeConfig{Name: name, Fields: fcs})
	}
}

// WithDoctypeOf declares a doctype from the tablekit struct tags of T.
func WithDoctypeOf[T any](name string) Option {
	return func(c *clientConfig) {
		meta, err := parseSchema[T]()
		if err != nil {
			c.errs = append(c.errs, err)
			return
		}
		c.doctypes = append(c.doctypes, config.DoctypeConfig{Name: name, Fields: meta.fields})
	}
}

// WithDebounce sets the search debounce window of every table. Zero disables it.
func WithDebounce(d time.Duration) Option {
	return func(c *clientConfig) {
		c.table.DebounceMs = int(d.Milliseconds())
		if d <= 0 {
			c.table.DebounceMs = -1
		}
	}
}

// WithCacheTTL caches responses for ttl. Invalidate drops them early.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *clientConfig) { c.table.CacheTTLSec = int(ttl.Seconds()) }
}

// WithPageSizes sets the default and maximum page size.
func WithPageSizes(defaultSize, maxSize int) Option {
	return func(c *clientConfig) {
		c.table.DefaultPageSize = defaultSize
		c.table.MaxPageSize = maxSize
	}
}

// WithFacetLimit caps the number of options a facet returns.
func WithFacetLimit(n int) Option {
	return func(c *clientConfig) { c.table.FacetLimit = n }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// WithMetrics records fetches into the tablekit_* Prometheus metrics of the default registry.
func WithMetrics() Option {
	return func(c *clientConfig) { c.metrics = true }
}

// FieldSpec declares one field of a doctype.
type FieldSpec struct {
	name     string
	typ      string
	sortable bool
}

// TagField declares an exact-match field.
func TagField(name string) FieldSpec { return FieldSpec{name: name, typ: "tag"} }

// TextField declares a full-text field.
func TextField(name string) FieldSpec { return FieldSpec{name: name, typ: "text"} }

// NumericField declares a number field.
func NumericField(name string) FieldSpec { return FieldSpec{name: name, typ: "numeric"} }

// DateField declares a date field.
func DateField(name string) FieldSpec { return FieldSpec{name: name, typ: "date"} }

// Sortable marks the field as a valid sort key.
func (f FieldSpec) Sortable() FieldSpec {
	f.sortable = true
	return f
}

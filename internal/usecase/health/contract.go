package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// IndexChecker reports whether a search index exists. Only search-index backends have one.
type IndexChecker interface {
	IndexExists(ctx context.Context, name string) (bool, error)
}

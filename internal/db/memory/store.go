package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/kailas-cloud/tablekit/internal/db"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

type document struct {
	id     string
	fields map[string]any
}

// Store is an in-process db.Store that evaluates filters over loaded rows.
type Store struct {
	mu   sync.RWMutex
	docs map[string][]document
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{docs: make(map[string][]document)}
}

// Load replaces the rows of a doctype. A row's id is its "name" field, else its position.
func (s *Store) Load(doctype string, rows []map[string]any) {
	docs := make([]document, len(rows))
	for i, r := range rows {
		fields := make(map[string]any, len(r))
		for k, v := range r {
			fields[k] = v
		}
		id := strconv.Itoa(i)
		if name, ok := r["name"].(string); ok && name != "" {
			id = name
		}
		docs[i] = document{id: id, fields: fields}
	}
	s.mu.Lock()
	s.docs[doctype] = docs
	s.mu.Unlock()
}

// LoadFile loads a JSON seed file shaped {"<doctype>": [{...}, ...]}.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed map[string][]map[string]any
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	for doctype, rows := range seed {
		s.Load(doctype, rows)
	}
	return nil
}

// PutDocuments upserts documents by id.
func (s *Store) PutDocuments(_ context.Context, doctype string, docs []db.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.docs[doctype]
	byID := make(map[string]int, len(existing))
	for i, d := range existing {
		byID[d.id] = i
	}
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("document id is required")
		}
		fields := make(map[string]any, len(d.Fields))
		for k, v := range d.Fields {
			fields[k] = v
		}
		if i, ok := byID[d.ID]; ok {
			existing[i].fields = fields
			continue
		}
		byID[d.ID] = len(existing)
		existing = append(existing, document{id: d.ID, fields: fields})
	}
	s.docs[doctype] = existing
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(context.Context, time.Duration) error { return nil }

// matching returns the rows of doctype satisfying expr.
func (s *Store) matching(doctype string, expr filter.Expression) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, ok := s.docs[doctype]
	if !ok {
		return nil, db.ErrUnknownDoctype
	}
	var out []map[string]any
	for _, d := range docs {
		if matches(d.fields, expr) {
			out = append(out, d.fields)
		}
	}
	return out, nil
}

func sortRows(rows []map[string]any, s *db.Sort) {
	if s == nil {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		c := compare(rows[i][s.Field], rows[j][s.Field])
		if s.Desc {
			return c > 0
		}
		return c < 0
	})
}

package doctype

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/tablekit/internal/db"
	domdt "github.com/kailas-cloud/tablekit/internal/domain/doctype"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype/field"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
)

// indexStore is the consumer interface for index management (ISP).
type indexStore interface {
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
}

// writer is the consumer interface for seeding (ISP).
type writer interface {
	PutDocuments(ctx context.Context, doctype string, docs []db.Document) error
}

// seedBatchSize bounds one PutDocuments round-trip.
const seedBatchSize = 500

// Repo prepares the remote store for registered doctypes.
type Repo struct {
	indexes indexStore
	writer  writer
}

// New creates a doctype repository. indexes may be nil for backends without search indexes.
func New(indexes indexStore, w writer) *Repo {
	return &Repo{indexes: indexes, writer: w}
}

// EnsureIndex creates the search index for dt. An existing index is not an error.
func (r *Repo) EnsureIndex(ctx context.Context, dt domdt.Doctype) error {
	if r.indexes == nil {
		return nil
	}
	def, err := buildIndex(dt)
	if err != nil {
		return fmt.Errorf("build index %s: %w", dt.Name(), err)
	}
	if err := r.indexes.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", dt.Name(), err)
	}
	return nil
}

// Seed writes rows into dt. The row id is its "name" value, or its position when absent.
func (r *Repo) Seed(ctx context.Context, dt domdt.Doctype, rows []map[string]any) error {
	docs := make([]db.Document, 0, len(rows))
	for i, raw := range rows {
		doc, err := rowToDocument(dt, i, raw)
		if err != nil {
			return fmt.Errorf("seed %s row %d: %w", dt.Name(), i, err)
		}
		docs = append(docs, doc)
	}

	for start := 0; start < len(docs); start += seedBatchSize {
		end := min(start+seedBatchSize, len(docs))
		if err := r.writer.PutDocuments(ctx, dt.Name(), docs[start:end]); err != nil {
			return fmt.Errorf("seed %s: %w", dt.Name(), err)
		}
	}
	return nil
}

var indexFieldTypes = map[field.Type]db.IndexFieldType{
	field.Tag:     db.IndexFieldTag,
	field.Text:    db.IndexFieldText,
	field.Numeric: db.IndexFieldNumeric,
	field.Date:    db.IndexFieldDate,
}

// buildIndex maps doctype fields to an FT index over the doctype's hash prefix.
func buildIndex(dt domdt.Doctype) (*db.IndexDefinition, error) {
	b := db.IndexFor(dt.Name())
	for _, f := range dt.Fields() {
		typ, ok := indexFieldTypes[f.FieldType()]
		if !ok {
			return nil, fmt.Errorf("unknown field type: %s", f.FieldType())
		}
		b.Field(f.Name(), typ, f.Sortable())
	}
	return b.Build()
}

func rowToDocument(dt domdt.Doctype, i int, raw map[string]any) (db.Document, error) {
	doc := db.Document{ID: strconv.Itoa(i), Fields: make(map[string]string, len(raw))}
	for k, v := range raw {
		if v == nil {
			continue
		}
		f, ok := dt.FieldByName(k)
		if !ok {
			continue
		}
		s, err := encodeValue(f, v)
		if err != nil {
			return db.Document{}, fmt.Errorf("field %s: %w", k, err)
		}
		doc.Fields[k] = s
	}
	if name, ok := raw["name"].(string); ok && name != "" {
		doc.ID = name
	}
	return doc, nil
}

func encodeValue(f field.Field, v any) (string, error) {
	switch f.FieldType() {
	case field.Numeric:
		switch x := v.(type) {
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case string:
			if _, err := strconv.ParseFloat(x, 64); err != nil {
				return "", fmt.Errorf("not a number: %q", x)
			}
			return x, nil
		}
		return "", fmt.Errorf("not a number: %v", v)
	case field.Date:
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("not a date: %v", v)
		}
		t, err := parseDate(s)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(t.Unix(), 10), nil
	}
	return fmt.Sprint(v), nil
}

var dateLayouts = []string{filter.DateTimeLayout, "2006-01-02", time.RFC3339}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

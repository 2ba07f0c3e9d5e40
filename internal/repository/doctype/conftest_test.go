package doctype

import (
	"context"
	"testing"

	"github.com/kailas-cloud/tablekit/internal/db"
	domdt "github.com/kailas-cloud/tablekit/internal/domain/doctype"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype/field"
)

// mockStore implements both consumer interfaces for tests.
type mockStore struct {
	createIndexFn  func(ctx context.Context, def *db.IndexDefinition) error
	putDocumentsFn func(ctx context.Context, doctype string, docs []db.Document) error
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) PutDocuments(ctx context.Context, doctype string, docs []db.Document) error {
	if m.putDocumentsFn != nil {
		return m.putDocumentsFn(ctx, doctype, docs)
	}
	return nil
}

func purchaseOrder(t *testing.T) domdt.Doctype {
	t.Helper()
	dt, err := domdt.New("purchase_order", []field.Field{
		field.Reconstruct("name", field.Tag, true),
		field.Reconstruct("supplier", field.Tag, true),
		field.Reconstruct("title", field.Text, false),
		field.Reconstruct("grand_total", field.Numeric, true),
		field.Reconstruct("transaction_date", field.Date, true),
	})
	if err != nil {
		t.Fatalf("doctype.New: %v", err)
	}
	return dt
}

package doctype

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/tablekit/internal/db"
)

func TestEnsureIndex_BuildsDefinition(t *testing.T) {
	ms := &mockStore{}
	var got *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		got = def
		return nil
	}

	if err := New(ms, ms).EnsureIndex(context.Background(), purchaseOrder(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "tablekit:idx:purchase_order" {
		t.Errorf("unexpected index name %q", got.Name)
	}
	if got.Prefix != "tablekit:purchase_order:" {
		t.Errorf("unexpected prefix %q", got.Prefix)
	}
	want := map[string]db.IndexFieldType{
		"name":             db.IndexFieldTag,
		"supplier":         db.IndexFieldTag,
		"title":            db.IndexFieldText,
		"grand_total":      db.IndexFieldNumeric,
		"transaction_date": db.IndexFieldDate,
	}
	if len(got.Fields) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(got.Fields))
	}
	for _, f := range got.Fields {
		if want[f.Name] != f.Type {
			t.Errorf("field %s: type %v, want %v", f.Name, f.Type, want[f.Name])
		}
	}
	if !got.Fields[3].Sortable || got.Fields[2].Sortable {
		t.Errorf("sortable flags not carried: %+v", got.Fields)
	}
}

func TestEnsureIndex_ExistingIsOK(t *testing.T) {
	ms := &mockStore{createIndexFn: func(context.Context, *db.IndexDefinition) error {
		return db.ErrIndexExists
	}}
	if err := New(ms, ms).EnsureIndex(context.Background(), purchaseOrder(t)); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestEnsureIndex_Error(t *testing.T) {
	boom := errors.New("boom")
	ms := &mockStore{createIndexFn: func(context.Context, *db.IndexDefinition) error { return boom }}
	if err := New(ms, ms).EnsureIndex(context.Background(), purchaseOrder(t)); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestEnsureIndex_NoIndexBackend(t *testing.T) {
	ms := &mockStore{}
	if err := New(nil, ms).EnsureIndex(context.Background(), purchaseOrder(t)); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestSeed_EncodesValues(t *testing.T) {
	ms := &mockStore{}
	var docs []db.Document
	ms.putDocumentsFn = func(_ context.Context, doctype string, d []db.Document) error {
		if doctype != "purchase_order" {
			t.Errorf("unexpected doctype %s", doctype)
		}
		docs = append(docs, d...)
		return nil
	}

	rows := []map[string]any{
		{"name": "PO-1", "supplier": "Acme", "grand_total": 125.5, "transaction_date": "2024-01-01", "ignored": "x"},
		{"supplier": "Beta", "grand_total": "10", "transaction_date": "2024-01-02 10:00:00", "title": nil},
	}
	if err := New(ms, ms).Seed(context.Background(), purchaseOrder(t), rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	if docs[0].ID != "PO-1" || docs[1].ID != "1" {
		t.Errorf("unexpected ids %q %q", docs[0].ID, docs[1].ID)
	}
	if docs[0].Fields["grand_total"] != "125.5" || docs[0].Fields["transaction_date"] != "1704067200" {
		t.Errorf("unexpected encoding %v", docs[0].Fields)
	}
	if docs[1].Fields["transaction_date"] != "1704189600" {
		t.Errorf("unexpected timestamp %v", docs[1].Fields["transaction_date"])
	}
	if _, ok := docs[0].Fields["ignored"]; ok {
		t.Error("undeclared field must be dropped")
	}
	if _, ok := docs[1].Fields["title"]; ok {
		t.Error("nil value must be dropped")
	}
}

func TestSeed_InvalidValue(t *testing.T) {
	ms := &mockStore{}
	rows := []map[string]any{{"name": "PO-1", "grand_total": "lots"}}
	if err := New(ms, ms).Seed(context.Background(), purchaseOrder(t), rows); err == nil {
		t.Fatal("expected error")
	}
}

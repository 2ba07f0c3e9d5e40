package db

import (
	"slices"
	"strings"
	"testing"
)

func TestIndexFor_Layout(t *testing.T) {
	idx := IndexFor("sales_invoice").
		Field("status", IndexFieldTag, true).
		Field("customer_name", IndexFieldText, false).
		Field("grand_total", IndexFieldNumeric, true).
		Field("posting_date", IndexFieldDate, true).
		MustBuild()

	args, err := idx.Args()
	if err != nil {
		t.Fatalf("args: %v", err)
	}
	want := []string{
		"tablekit:idx:sales_invoice", "ON", "HASH", "PREFIX", "1", "tablekit:sales_invoice:", "SCHEMA",
		"status", "TAG", "SEPARATOR", "|", "SORTABLE",
		"customer_name", "TEXT",
		"grand_total", "NUMERIC", "SORTABLE",
		"posting_date", "NUMERIC", "SORTABLE",
	}
	if !slices.Equal(args, want) {
		t.Errorf("args =\n%v\nwant\n%v", args, want)
	}
	if !strings.HasPrefix(idx.String(), "FT.CREATE tablekit:idx:sales_invoice ON HASH") {
		t.Errorf("String() = %q", idx.String())
	}
}

func TestIndexBuilder_NoPrefix(t *testing.T) {
	args, err := NewIndex("idx").Field("status", IndexFieldTag, false).MustBuild().Args()
	if err != nil {
		t.Fatal(err)
	}
	if slices.Contains(args, "PREFIX") {
		t.Errorf("unexpected PREFIX in %v", args)
	}
}

func TestIndexBuilder_BuildCopiesFields(t *testing.T) {
	b := NewIndex("idx").Field("a", IndexFieldTag, false)
	first := b.MustBuild()
	b.Field("b", IndexFieldText, false)
	if len(first.Fields) != 1 {
		t.Errorf("built definition changed after later Field call: %v", first.Fields)
	}
}

func TestIndexDefinition_Validation(t *testing.T) {
	tests := []struct {
		name    string
		def     IndexDefinition
		wantErr string
	}{
		{"empty name", IndexDefinition{Fields: []IndexField{{Name: "x"}}}, "index name is required"},
		{"no fields", IndexDefinition{Name: "idx"}, "at least one field"},
		{"bad index name", IndexDefinition{Name: "idx with spaces", Fields: []IndexField{{Name: "x"}}}, "invalid characters"},
		{"bad field name", IndexDefinition{Name: "idx", Fields: []IndexField{{Name: "a-b"}}}, "invalid name"},
		{"duplicate", IndexDefinition{Name: "idx", Fields: []IndexField{
			{Name: "f", Type: IndexFieldTag}, {Name: "f", Type: IndexFieldNumeric},
		}}, "duplicate field"},
		{"unknown type", IndexDefinition{Name: "idx", Fields: []IndexField{
			{Name: "f", Type: IndexFieldType(99)},
		}}, "unknown type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.def.Args()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestIdentifiers(t *testing.T) {
	tests := []struct {
		in              string
		identifier, fld bool
	}{
		{"grand_total", true, true},
		{"Status2", true, true},
		{"tablekit:idx:po", true, false},
		{"a-b", true, false},
		{"", false, false},
		{"a;drop", false, false},
		{"x y", false, false},
	}
	for _, tt := range tests {
		if got := IsValidIdentifier(tt.in); got != tt.identifier {
			t.Errorf("IsValidIdentifier(%q) = %v, want %v", tt.in, got, tt.identifier)
		}
		if got := IsValidFieldName(tt.in); got != tt.fld {
			t.Errorf("IsValidFieldName(%q) = %v, want %v", tt.in, got, tt.fld)
		}
	}
}

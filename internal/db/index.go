package db

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// KeyNamespace prefixes every key tablekit writes.
const KeyNamespace = "tablekit"

// IndexName returns the FT index name for a doctype.
func IndexName(doctype string) string {
	return KeyNamespace + ":idx:" + doctype
}

// KeyPrefix returns the row key prefix for a doctype.
func KeyPrefix(doctype string) string {
	return KeyNamespace + ":" + doctype + ":"
}

// IndexFieldType is the FT schema type of a doctype field.
type IndexFieldType int

const (
	// IndexFieldTag is an exact-match field (supplier, status).
	IndexFieldTag IndexFieldType = iota
	// IndexFieldText is a full-text field.
	IndexFieldText
	// IndexFieldNumeric is a numeric field.
	IndexFieldNumeric
	// IndexFieldDate is stored as unix seconds and indexed as NUMERIC.
	IndexFieldDate
)

// tagSeparator splits multi-valued tags. Row values are single strings and commas
// are common in party names, so a rarer character is used instead of the default.
const tagSeparator = "|"

// IndexField is one field of an FT index schema.
type IndexField struct {
	Name     string
	Type     IndexFieldType
	Sortable bool
}

func (f IndexField) args() ([]string, error) {
	args := []string{f.Name}
	switch f.Type {
	case IndexFieldTag:
		args = append(args, "TAG", "SEPARATOR", tagSeparator)
	case IndexFieldText:
		args = append(args, "TEXT")
	case IndexFieldNumeric, IndexFieldDate:
		args = append(args, "NUMERIC")
	default:
		return nil, fmt.Errorf("field %s: unknown type %d", f.Name, f.Type)
	}
	if f.Sortable {
		args = append(args, "SORTABLE")
	}
	return args, nil
}

// IndexDefinition describes the hash index of one doctype.
type IndexDefinition struct {
	Name   string
	Prefix string
	Fields []IndexField
}

// Validate checks the name, field names and that no field is declared twice.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return fmt.Errorf("index name %q contains invalid characters", idx.Name)
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}
	seen := make(map[string]struct{}, len(idx.Fields))
	for i, f := range idx.Fields {
		if !IsValidFieldName(f.Name) {
			return fmt.Errorf("field %d: invalid name %q", i, f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field name: %s", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// Args returns the FT.CREATE arguments after the command name.
func (idx *IndexDefinition) Args() ([]string, error) {
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	args := []string{idx.Name, "ON", "HASH"}
	if idx.Prefix != "" {
		args = append(args, "PREFIX", strconv.Itoa(1), idx.Prefix)
	}
	args = append(args, "SCHEMA")
	for _, f := range idx.Fields {
		fa, err := f.args()
		if err != nil {
			return nil, err
		}
		args = append(args, fa...)
	}
	return args, nil
}

// String renders the FT.CREATE command for logs.
func (idx *IndexDefinition) String() string {
	args, err := idx.Args()
	if err != nil {
		return "FT.CREATE <invalid: " + err.Error() + ">"
	}
	return "FT.CREATE " + strings.Join(args, " ")
}

var (
	identifierRe = regexp.MustCompile(`^[A-Za-z0-9_:-]+$`)
	fieldNameRe  = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// IsValidIdentifier reports whether s is safe as an index or key name.
func IsValidIdentifier(s string) bool { return identifierRe.MatchString(s) }

// IsValidFieldName reports whether s is safe as a bare column or hash field name.
func IsValidFieldName(s string) bool { return fieldNameRe.MatchString(s) }

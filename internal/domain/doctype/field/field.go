package field

import "fmt"

// Type is the indexing type of a doctype field.
type Type string

// Field type constants.
const (
	// Tag is an exact-match field (status, vendor id, project code).
	Tag     Type = "tag"
	Text    Type = "text"
	Numeric Type = "numeric"
	// Date is stored as a civil date or timestamp and filtered by inclusive day ranges.
	Date Type = "date"
)

// IsValid checks if the type is one of the supported values.
func (t Type) IsValid() bool {
	return t == Tag || t == Text || t == Numeric || t == Date
}

// Searchable reports whether a LIKE-style search can run against the field.
func (t Type) Searchable() bool {
	return t == Tag || t == Text
}

var reservedFieldNames = map[string]bool{
	"__key": true, "__score": true,
}

// Field is an immutable value object describing a doctype field.
type Field struct {
	name      string
	fieldType Type
	sortable  bool
}

// New validates and creates a Field.
// Name must be non-empty, max 64 chars, a plain identifier and not reserved.
func New(name string, ft Type, sortable bool) (Field, error) {
	if name == "" {
		return Field{}, fmt.Errorf("field name is required")
	}
	if len(name) > 64 {
		return Field{}, fmt.Errorf("field name %q too long (max 64)", name)
	}
	if reservedFieldNames[name] {
		return Field{}, fmt.Errorf("field name %q is reserved", name)
	}
	if !IsIdentifier(name) {
		return Field{}, fmt.Errorf("field name %q must match [a-zA-Z0-9_]+", name)
	}
	if !ft.IsValid() {
		return Field{}, fmt.Errorf("invalid field type %q for %q", ft, name)
	}
	return Field{name: name, fieldType: ft, sortable: sortable}, nil
}

// Reconstruct creates a Field without validation.
func Reconstruct(name string, ft Type, sortable bool) Field {
	return Field{name: name, fieldType: ft, sortable: sortable}
}

// Name returns the field name.
func (f Field) Name() string { return f.name }

// FieldType returns the field's indexing type.
func (f Field) FieldType() Type { return f.fieldType }

// Sortable reports whether rows can be ordered by this field.
func (f Field) Sortable() bool { return f.sortable }

// IsIdentifier returns true if s matches [a-zA-Z0-9_]+.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !isDigit && r != '_' {
			return false
		}
	}
	return true
}

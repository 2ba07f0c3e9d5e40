package doctype

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/tablekit/internal/domain"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype/field"
)

// Doctype is a named record collection in the remote store (immutable value object).
type Doctype struct {
	name   string
	fields []field.Field
}

func validateFields(fields []field.Field) error {
	if len(fields) == 0 {
		return fmt.Errorf("at least one field is required")
	}
	if len(fields) > 128 {
		return fmt.Errorf("too many fields (max 128)")
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name()] {
			return fmt.Errorf("duplicate field name: %s", f.Name())
		}
		seen[f.Name()] = true
	}
	return nil
}

// New validates and creates a Doctype.
// Name: [a-zA-Z0-9_]+, 1-64 chars. Fields: unique names, 1-128.
func New(name string, fields []field.Field) (Doctype, error) {
	if name == "" {
		return Doctype{}, fmt.Errorf("%w: doctype name is required", domain.ErrInvalidSchema)
	}
	if len(name) > 64 {
		return Doctype{}, fmt.Errorf("%w: doctype name too long (max 64)", domain.ErrInvalidSchema)
	}
	if !field.IsIdentifier(name) {
		return Doctype{}, fmt.Errorf("%w: doctype name %q must match [a-zA-Z0-9_]+", domain.ErrInvalidSchema, name)
	}
	if err := validateFields(fields); err != nil {
		return Doctype{}, fmt.Errorf("%w: doctype %s: %w", domain.ErrInvalidSchema, name, err)
	}
	return Doctype{name: name, fields: fields}, nil
}

// Name returns the doctype name.
func (d Doctype) Name() string { return d.name }

// Fields returns the declared fields.
func (d Doctype) Fields() []field.Field { return d.fields }

// FieldByName looks up a field by name.
func (d Doctype) FieldByName(name string) (field.Field, bool) {
	for _, f := range d.fields {
		if f.Name() == name {
			return f, true
		}
	}
	return field.Field{}, false
}

// FieldNames returns all declared field names in declaration order.
func (d Doctype) FieldNames() []string {
	names := make([]string, len(d.fields))
	for i, f := range d.fields {
		names[i] = f.Name()
	}
	return names
}

// DateColumns returns the names of date fields.
func (d Doctype) DateColumns() []string {
	var out []string
	for _, f := range d.fields {
		if f.FieldType() == field.Date {
			out = append(out, f.Name())
		}
	}
	return out
}

// Registry holds the doctypes known to the process.
type Registry struct {
	byName map[string]Doctype
}

// NewRegistry builds a registry, rejecting duplicate names.
func NewRegistry(doctypes ...Doctype) (*Registry, error) {
	r := &Registry{byName: make(map[string]Doctype, len(doctypes))}
	for _, d := range doctypes {
		if _, ok := r.byName[d.Name()]; ok {
			return nil, fmt.Errorf("%w: duplicate doctype %q", domain.ErrInvalidSchema, d.Name())
		}
		r.byName[d.Name()] = d
	}
	return r, nil
}

// Get returns the doctype by name or ErrUnknownDoctype.
func (r *Registry) Get(name string) (Doctype, error) {
	d, ok := r.byName[name]
	if !ok {
		return Doctype{}, fmt.Errorf("%w: %s", domain.ErrUnknownDoctype, name)
	}
	return d, nil
}

// All returns every registered doctype sorted by name.
func (r *Registry) All() []Doctype {
	out := make([]Doctype, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

package db

// IndexBuilder assembles an IndexDefinition field by field.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts an index definition with an explicit name.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// IndexFor starts the index of a doctype, named and prefixed by the key scheme.
func IndexFor(doctype string) *IndexBuilder {
	return NewIndex(IndexName(doctype)).Prefix(KeyPrefix(doctype))
}

// Prefix sets the hash key prefix the index covers.
func (b *IndexBuilder) Prefix(p string) *IndexBuilder {
	b.def.Prefix = p
	return b
}

// Field appends a field.
func (b *IndexBuilder) Field(name string, typ IndexFieldType, sortable bool) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: typ, Sortable: sortable})
	return b
}

// Build validates and returns the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	def.Fields = append([]IndexField(nil), b.def.Fields...)
	return &def, nil
}

// MustBuild calls Build and panics on error. For tests and static definitions.
func (b *IndexBuilder) MustBuild() *IndexDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

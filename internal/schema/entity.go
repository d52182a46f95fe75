// Package schema holds the entity and association metadata the eager-loading
// engine is driven by: entity types, association reflections, the registry
// that resolves them, and the nested eager spec type.
package schema

// Column describes one attribute of an entity type.
type Column struct {
	Name string
}

// EntityType describes a table-backed entity: its attribute schema and
// primary key. PrimaryKey may be empty; record identity then falls back to
// the full attribute tuple.
type EntityType struct {
	// Name is the singular entity name, unique within a registry.
	Name string
	// Table is the backing table. Defaults to the pluralized Name.
	Table string
	// Columns is the attribute schema in declaration order.
	Columns []Column
	// PrimaryKey lists the primary key column names, in order.
	PrimaryKey []string
	// Associations are the declared relationship reflections.
	Associations []*Association
}

// ColumnNames returns the attribute names in declaration order.
func (e *EntityType) ColumnNames() []string {
	names := make([]string, len(e.Columns))
	for i, col := range e.Columns {
		names[i] = col.Name
	}
	return names
}

// HasColumn reports whether the entity declares the named attribute.
func (e *EntityType) HasColumn(name string) bool {
	for _, col := range e.Columns {
		if col.Name == name {
			return true
		}
	}
	return false
}

// SinglePrimaryKey returns the primary key column when the entity declares
// exactly one, or "" otherwise. Association key matching operates on
// single-column keys.
func (e *EntityType) SinglePrimaryKey() string {
	if len(e.PrimaryKey) == 1 {
		return e.PrimaryKey[0]
	}
	return ""
}

// Package record holds the Record type: one row of an entity type, its
// derived identity key, and its association fields. Association fields are
// tri-state: absent until the engine loads them, then either a singular
// reference (possibly nil) or a list (possibly empty).
package record

import (
	"fmt"
	"sort"
	"strings"

	"relgraph/internal/schema"
)

// Record is an instance of an entity type.
type Record struct {
	entity  *schema.EntityType
	columns []string
	values  map[string]any
	key     string
	keySet  bool
	assoc   map[string]*Field
}

// Field is one loaded association value. Its presence on a record means
// "loaded"; IsMany distinguishes an empty list from a nil singular value.
type Field struct {
	IsMany bool
	One    *Record
	Many   []*Record
}

// New creates a record from scanned column values. columns and values are
// parallel slices in select order.
func New(entity *schema.EntityType, columns []string, values []any) *Record {
	m := make(map[string]any, len(columns))
	for i, col := range columns {
		m[col] = NormalizeValue(values[i])
	}
	return &Record{
		entity:  entity,
		columns: append([]string(nil), columns...),
		values:  m,
	}
}

// FromValues creates a record from an attribute map, using the entity's
// declared column order. Intended for tests and fixtures.
func FromValues(entity *schema.EntityType, values map[string]any) *Record {
	columns := make([]string, 0, len(values))
	ordered := make([]any, 0, len(values))
	for _, col := range entity.ColumnNames() {
		if v, ok := values[col]; ok {
			columns = append(columns, col)
			ordered = append(ordered, v)
		}
	}
	return New(entity, columns, ordered)
}

// Entity returns the record's entity type.
func (r *Record) Entity() *schema.EntityType {
	return r.entity
}

// Columns returns the attribute names in scan order.
func (r *Record) Columns() []string {
	return r.columns
}

// Get returns the named attribute value, nil when absent.
func (r *Record) Get(column string) any {
	return r.values[column]
}

// AllNull reports whether every attribute value is nil. A joined sub-record
// whose columns are entirely null represents an absent optional match.
func (r *Record) AllNull() bool {
	for _, v := range r.values {
		if v != nil {
			return false
		}
	}
	return true
}

// Key returns the record's identity key: the primary key value(s) when the
// entity declares a primary key, otherwise the full attribute tuple with
// names sorted lexicographically. Computed once and cached.
func (r *Record) Key() string {
	if r.keySet {
		return r.key
	}
	if pk := r.entity.PrimaryKey; len(pk) > 0 {
		parts := make([]string, len(pk))
		for i, col := range pk {
			parts[i] = fmt.Sprint(r.values[col])
		}
		r.key = "pk:" + strings.Join(parts, "|")
	} else {
		names := make([]string, 0, len(r.values))
		for name := range r.values {
			names = append(names, name)
		}
		sort.Strings(names)
		pairs := make([]string, len(names))
		for i, name := range names {
			pairs[i] = name + "=" + fmt.Sprint(r.values[name])
		}
		r.key = "attrs:" + strings.Join(pairs, "|")
	}
	r.keySet = true
	return r.key
}

// AssociationLoaded reports whether the named association field has been
// populated, distinguishing "not loaded" from "loaded empty/nil".
func (r *Record) AssociationLoaded(name string) bool {
	_, ok := r.assoc[name]
	return ok
}

// One returns the singular association value and whether it is loaded.
func (r *Record) One(name string) (*Record, bool) {
	field, ok := r.assoc[name]
	if !ok || field.IsMany {
		return nil, false
	}
	return field.One, true
}

// Many returns the list association value and whether it is loaded.
func (r *Record) Many(name string) ([]*Record, bool) {
	field, ok := r.assoc[name]
	if !ok || !field.IsMany {
		return nil, false
	}
	return field.Many, true
}

// SetOne sets a singular association field, overwriting any prior value.
func (r *Record) SetOne(name string, rec *Record) {
	r.ensureAssoc()
	r.assoc[name] = &Field{One: rec}
}

// InitMany resets a list association field to an empty list, so owners
// with zero matches observe an empty list rather than an absent field.
func (r *Record) InitMany(name string) {
	r.ensureAssoc()
	r.assoc[name] = &Field{IsMany: true, Many: []*Record{}}
}

// Append appends to a list association field, initializing it first if
// needed.
func (r *Record) Append(name string, rec *Record) {
	r.ensureAssoc()
	field, ok := r.assoc[name]
	if !ok || !field.IsMany {
		field = &Field{IsMany: true}
		r.assoc[name] = field
	}
	field.Many = append(field.Many, rec)
}

// AppendUnique appends unless the exact instance is already present. A
// duplicate joined row must not duplicate the attachment.
func (r *Record) AppendUnique(name string, rec *Record) {
	r.ensureAssoc()
	field, ok := r.assoc[name]
	if !ok || !field.IsMany {
		field = &Field{IsMany: true}
		r.assoc[name] = field
	}
	for _, existing := range field.Many {
		if existing == rec {
			return
		}
	}
	field.Many = append(field.Many, rec)
}

// SetMany replaces a list association field wholesale.
func (r *Record) SetMany(name string, recs []*Record) {
	r.ensureAssoc()
	r.assoc[name] = &Field{IsMany: true, Many: recs}
}

func (r *Record) ensureAssoc() {
	if r.assoc == nil {
		r.assoc = make(map[string]*Field)
	}
}

// Export flattens the record into a plain map: attributes plus every
// loaded association, with singular values as nested maps and list values
// as slices. Back-reference fields are exported as the target's identity
// key to keep the output acyclic.
func (r *Record) Export() map[string]any {
	return r.export(make(map[*Record]struct{}))
}

func (r *Record) export(seen map[*Record]struct{}) map[string]any {
	out := make(map[string]any, len(r.values)+len(r.assoc))
	for name, v := range r.values {
		out[name] = v
	}
	seen[r] = struct{}{}
	defer delete(seen, r)
	names := make([]string, 0, len(r.assoc))
	for name := range r.assoc {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		field := r.assoc[name]
		if field.IsMany {
			items := make([]any, 0, len(field.Many))
			for _, child := range field.Many {
				if _, cyclic := seen[child]; cyclic {
					items = append(items, child.Key())
					continue
				}
				items = append(items, child.export(seen))
			}
			out[name] = items
			continue
		}
		if field.One == nil {
			out[name] = nil
			continue
		}
		if _, cyclic := seen[field.One]; cyclic {
			out[name] = field.One.Key()
			continue
		}
		out[name] = field.One.export(seen)
	}
	return out
}

// NormalizeValue converts driver-level values into comparable Go values:
// []byte becomes string, everything else passes through.
func NormalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// KeyString renders a key value for grouping-index lookups. Driver types
// vary (int vs int64 vs []byte), so matching happens on the normalized
// string form while SQL arguments keep the original typed values.
func KeyString(v any) string {
	return fmt.Sprint(NormalizeValue(v))
}

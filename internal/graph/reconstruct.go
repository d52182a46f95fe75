package graph

import (
	"sort"

	"relgraph/internal/dbexec"
	"relgraph/internal/record"
	"relgraph/internal/schema"
)

// Row is one raw joined row split per alias. A nil sub-record means the
// row's columns for that alias were entirely null (absent optional match).
type Row map[string]*record.Record

// ScanRows reads the joined result set and splits each flat row into
// per-alias sub-records according to the plan's select list.
func ScanRows(rows dbexec.Rows, plan *Plan) ([]Row, error) {
	selects := plan.Selects()
	var out []Row
	for rows.Next() {
		values := make([]any, len(selects))
		ptrs := make([]any, len(selects))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, splitRow(plan, selects, values))
	}
	return out, rows.Err()
}

func splitRow(plan *Plan, selects []SelectColumn, values []any) Row {
	row := make(Row)
	start := 0
	for start < len(selects) {
		alias := selects[start].Alias
		end := start
		for end < len(selects) && selects[end].Alias == alias {
			end++
		}
		columns := make([]string, 0, end-start)
		slice := make([]any, 0, end-start)
		allNull := true
		for i := start; i < end; i++ {
			columns = append(columns, selects[i].Column)
			slice = append(slice, values[i])
			if values[i] != nil {
				allNull = false
			}
		}
		if allNull {
			row[alias] = nil
		} else {
			row[alias] = record.New(plan.EntityFor(alias), columns, slice)
		}
		start = end
	}
	return row
}

// node is one alias of the transient dependency tree walked during
// reconstruction.
type node struct {
	entry    *Entry
	children []*node
}

// dependencyTree groups the plan's aliases by parent: entries are taken
// shallowest chain first and inserted under their immediate parent's
// subtree, with the master as the implicit root.
func (p *Plan) dependencyTree() *node {
	root := &node{}
	byAlias := map[string]*node{p.masterAlias: root}

	entries := p.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		return len(entries[i].Ancestors) < len(entries[j].Ancestors)
	})
	for _, entry := range entries {
		parentAlias := p.masterAlias
		if len(entry.Ancestors) > 0 {
			parentAlias = entry.Ancestors[len(entry.Ancestors)-1]
		}
		parent, ok := byAlias[parentAlias]
		if !ok {
			parent = root
		}
		n := &node{entry: entry}
		parent.children = append(parent.children, n)
		byAlias[entry.Alias] = n
	}
	return root
}

// Reconstruct converts the flat joined rows into a deduplicated object
// tree, returning the canonical root records in first-appearance order.
//
// Identity maps are created fresh per call and discarded with it; reusing
// them across reconstructions would leak identity between independent
// queries.
func Reconstruct(rows []Row, plan *Plan) []*record.Record {
	tree := plan.dependencyTree()

	idMaps := make(map[string]map[string]*record.Record, len(plan.entries)+1)
	idMaps[plan.masterAlias] = make(map[string]*record.Record)
	for alias := range plan.entries {
		idMaps[alias] = make(map[string]*record.Record)
	}

	var roots []*record.Record
	for _, row := range rows {
		master := row[plan.masterAlias]
		if master == nil {
			continue
		}
		canonical, fresh := resolveCanonical(idMaps[plan.masterAlias], master)
		if fresh {
			roots = append(roots, canonical)
		}
		for _, child := range tree.children {
			attachSubtree(child, canonical, row, idMaps)
		}
	}

	if countToMany(plan) > 1 {
		visited := make(map[*record.Record]struct{})
		for _, root := range roots {
			dedupeSubtree(tree, root, visited)
		}
	}
	return roots
}

// resolveCanonical canonicalizes a sub-record through the alias's identity
// map, reporting whether this key was seen for the first time.
func resolveCanonical(idMap map[string]*record.Record, rec *record.Record) (*record.Record, bool) {
	key := rec.Key()
	if existing, ok := idMap[key]; ok {
		return existing, false
	}
	idMap[key] = rec
	return rec, true
}

func attachSubtree(n *node, ancestor *record.Record, row Row, idMaps map[string]map[string]*record.Record) {
	entry := n.entry
	name := entry.Association.Name

	// First touch of a to-many field materializes the empty list, so
	// owners with zero joined matches still observe a loaded empty list.
	if entry.Association.Kind.ToMany() {
		if !ancestor.AssociationLoaded(name) {
			ancestor.InitMany(name)
		}
	} else if !ancestor.AssociationLoaded(name) {
		ancestor.SetOne(name, nil)
	}

	sub := row[entry.Alias]
	if sub == nil || sub.AllNull() {
		return
	}
	canonical, _ := resolveCanonical(idMaps[entry.Alias], sub)

	switch {
	case entry.Association.Kind == schema.ManyToOne:
		if current, loaded := ancestor.One(name); !loaded || current != canonical {
			ancestor.SetOne(name, canonical)
		}
	default:
		ancestor.AppendUnique(name, canonical)
		if entry.Reciprocal != "" {
			canonical.SetOne(entry.Reciprocal, ancestor)
		}
	}

	for _, child := range n.children {
		attachSubtree(child, canonical, row, idMaps)
	}
}

func countToMany(plan *Plan) int {
	count := 0
	for _, entry := range plan.entries {
		if entry.Association.Kind.ToMany() {
			count++
		}
	}
	return count
}

// dedupeSubtree removes duplicate to-many entries by identity, recursing
// the same removal into each surviving child following the dependency
// nesting. Only plans with more than one to-many alias can produce
// cartesian-product duplication, so callers skip this pass otherwise.
func dedupeSubtree(n *node, rec *record.Record, visited map[*record.Record]struct{}) {
	if _, done := visited[rec]; done {
		return
	}
	visited[rec] = struct{}{}

	for _, child := range n.children {
		name := child.entry.Association.Name
		if child.entry.Association.Kind.ToMany() {
			list, loaded := rec.Many(name)
			if !loaded {
				continue
			}
			seen := make(map[string]struct{}, len(list))
			deduped := list[:0]
			for _, item := range list {
				key := item.Key()
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				deduped = append(deduped, item)
			}
			rec.SetMany(name, deduped)
			for _, item := range deduped {
				dedupeSubtree(child, item, visited)
			}
			continue
		}
		if one, loaded := rec.One(name); loaded && one != nil {
			dedupeSubtree(child, one, visited)
		}
	}
}

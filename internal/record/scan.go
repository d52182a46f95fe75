package record

import (
	"relgraph/internal/dbexec"
	"relgraph/internal/schema"
)

// ScanRows reads every row into records of the given entity type. The
// select list must be the entity's columns in declaration order.
func ScanRows(rows dbexec.Rows, entity *schema.EntityType) ([]*Record, error) {
	columns := entity.ColumnNames()
	var records []*Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		records = append(records, New(entity, columns, values))
	}
	return records, rows.Err()
}

// ScanRowsWithExtras reads rows whose select list is the entity's columns
// followed by extra columns (owner-key carriers in link-table fetches).
// The extras for each row are returned positionally alongside its record.
func ScanRowsWithExtras(rows dbexec.Rows, entity *schema.EntityType, extraCount int) ([]*Record, [][]any, error) {
	columns := entity.ColumnNames()
	width := len(columns) + extraCount
	var records []*Record
	var extras [][]any
	for rows.Next() {
		values := make([]any, width)
		ptrs := make([]any, width)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		records = append(records, New(entity, columns, values[:len(columns)]))
		extra := make([]any, extraCount)
		for i := 0; i < extraCount; i++ {
			extra[i] = NormalizeValue(values[len(columns)+i])
		}
		extras = append(extras, extra)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return records, extras, nil
}

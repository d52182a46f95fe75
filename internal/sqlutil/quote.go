// Package sqlutil provides SQL identifier utilities shared by the planners.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier (table name, column name, alias)
// with backticks and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// Qualify returns a quoted table-qualified column reference, e.g.
// Qualify("albums", "artist_id") -> "`albums`.`artist_id`".
func Qualify(table, column string) string {
	return QuoteIdentifier(table) + "." + QuoteIdentifier(column)
}

// QualifyAll qualifies each column with the same table or alias.
func QualifyAll(table string, columns []string) []string {
	qualified := make([]string, len(columns))
	for i, col := range columns {
		qualified[i] = Qualify(table, col)
	}
	return qualified
}

// AliasedColumn renders a select-list entry "`t`.`c` AS `alias`".
func AliasedColumn(table, column, alias string) string {
	return Qualify(table, column) + " AS " + QuoteIdentifier(alias)
}

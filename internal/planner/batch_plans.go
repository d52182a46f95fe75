// Package planner builds the SQL statements the eager loader issues: one
// batched fetch per association, keyed on the owning records' grouping-key
// values.
package planner

import (
	"errors"
	"fmt"

	"relgraph/internal/schema"
	"relgraph/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// ErrNoPrimaryKey indicates a required single-column primary key is missing
// for a batch plan.
var ErrNoPrimaryKey = errors.New("no single-column primary key")

// OwnerKeyAlias is the column alias used to carry the link table's left-key
// value in many-to-many batch fetches. The target table has no foreign key
// back to the owner, so each result row carries its owner key explicitly.
const OwnerKeyAlias = "__owner_key"

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []any
}

// PlanManyToOneBatch fetches target records whose primary key is among the
// observed foreign-key values of the owning records.
func PlanManyToOneBatch(target *schema.EntityType, keyValues []any, order []schema.Order) (SQLQuery, error) {
	if len(keyValues) == 0 {
		return SQLQuery{}, nil
	}
	pk := target.SinglePrimaryKey()
	if pk == "" {
		return SQLQuery{}, fmt.Errorf("%w: entity %s", ErrNoPrimaryKey, target.Name)
	}
	builder := sq.Select(quotedColumnNames(target.ColumnNames())...).
		From(sqlutil.QuoteIdentifier(target.Table)).
		Where(sq.Eq{sqlutil.QuoteIdentifier(pk): keyValues})
	builder = applyOrder(builder, "", order)

	query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanOneToManyBatch fetches target records whose foreign key is among the
// observed owner primary-key values.
func PlanOneToManyBatch(target *schema.EntityType, foreignKey string, ownerKeys []any, order []schema.Order) (SQLQuery, error) {
	if len(ownerKeys) == 0 {
		return SQLQuery{}, nil
	}
	if foreignKey == "" {
		return SQLQuery{}, fmt.Errorf("one-to-many batch requires a foreign key column")
	}
	builder := sq.Select(quotedColumnNames(target.ColumnNames())...).
		From(sqlutil.QuoteIdentifier(target.Table)).
		Where(sq.Eq{sqlutil.QuoteIdentifier(foreignKey): ownerKeys})
	builder = applyOrder(builder, "", order)

	query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanManyToManyBatch fetches target records through the link table,
// selecting the link's left-key value per row under OwnerKeyAlias so each
// fetched record can be mapped back to its owner(s).
func PlanManyToManyBatch(target *schema.EntityType, linkTable, leftKey, rightKey string, ownerKeys []any, order []schema.Order) (SQLQuery, error) {
	if len(ownerKeys) == 0 {
		return SQLQuery{}, nil
	}
	if linkTable == "" || leftKey == "" || rightKey == "" {
		return SQLQuery{}, fmt.Errorf("many-to-many batch requires link table key mappings")
	}
	pk := target.SinglePrimaryKey()
	if pk == "" {
		return SQLQuery{}, fmt.Errorf("%w: entity %s", ErrNoPrimaryKey, target.Name)
	}

	columns := make([]string, 0, len(target.Columns)+1)
	for _, col := range target.ColumnNames() {
		columns = append(columns, sqlutil.Qualify(target.Table, col))
	}
	columns = append(columns, sqlutil.AliasedColumn(linkTable, leftKey, OwnerKeyAlias))

	joinCondition := fmt.Sprintf(
		"%s ON %s = %s",
		sqlutil.QuoteIdentifier(linkTable),
		sqlutil.Qualify(linkTable, rightKey),
		sqlutil.Qualify(target.Table, pk),
	)
	builder := sq.Select(columns...).
		From(sqlutil.QuoteIdentifier(target.Table)).
		InnerJoin(joinCondition).
		Where(sq.Eq{sqlutil.Qualify(linkTable, leftKey): ownerKeys})
	builder = applyOrder(builder, target.Table, order)

	query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

func applyOrder(builder sq.SelectBuilder, table string, order []schema.Order) sq.SelectBuilder {
	for _, term := range order {
		clause := sqlutil.QuoteIdentifier(term.Column)
		if table != "" {
			clause = sqlutil.Qualify(table, term.Column)
		}
		if term.Desc {
			clause += " DESC"
		}
		builder = builder.OrderBy(clause)
	}
	return builder
}

func quotedColumnNames(columns []string) []string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = sqlutil.QuoteIdentifier(col)
	}
	return quoted
}

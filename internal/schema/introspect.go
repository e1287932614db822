package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/restfilter/internal/domain"
)

// Querier is the subset of pgxpool.Pool used for introspection.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const columnsQuery = `SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

// Introspect reads the column list of a table from information_schema.
// Columns whose database type has no semantic equivalent are treated as text.
func Introspect(ctx context.Context, db Querier, table string) ([]domain.Column, error) {
	schemaName, tableName := "public", table
	if idx := strings.Index(table, "."); idx > 0 {
		schemaName, tableName = table[:idx], table[idx+1:]
	}

	rows, err := db.Query(ctx, columnsQuery, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect table %s: %w", table, err)
	}
	defer rows.Close()

	var columns []domain.Column
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		columnType, err := domain.ParseColumnType(dataType)
		if err != nil {
			columnType = domain.ColumnTypeText
		}
		columns = append(columns, domain.Column{Name: name, Type: columnType})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate columns of %s: %w", table, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s has no columns or does not exist", table)
	}

	return columns, nil
}

// Complete fills in columns for entities declared without any, keeping
// declared columns (and their encrypted flags) untouched.
func Complete(ctx context.Context, db Querier, entity domain.EntitySchema) (domain.EntitySchema, error) {
	if len(entity.Columns) > 0 {
		return entity, nil
	}
	columns, err := Introspect(ctx, db, entity.Table)
	if err != nil {
		return domain.EntitySchema{}, err
	}
	entity.Columns = columns
	return entity, nil
}

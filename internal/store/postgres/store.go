// Package postgres implements store.Store on top of pgx. SQL is generated
// with squirrel; encrypted columns rely on the pgcrypto extension.
package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/store"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// rootAlias is the alias of the queried table in every generated statement.
const rootAlias = "t0"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store executes queries against PostgreSQL
type Store struct {
	db      DBTX
	schemas store.SchemaLookup
	key     string
}

// New creates a postgres store. encryptionKey is the pgcrypto passphrase
// for encrypted columns; when empty they are stored in clear.
func New(db DBTX, schemas store.SchemaLookup, encryptionKey string) *Store {
	return &Store{db: db, schemas: schemas, key: encryptionKey}
}

var _ store.Store = (*Store)(nil)

// Query implements store.Store
func (s *Store) Query(entity domain.EntitySchema) store.Query {
	return &query{store: s, entity: entity}
}

// Insert implements store.Store
func (s *Store) Insert(ctx context.Context, entity domain.EntitySchema, data domain.Record) (domain.Record, error) {
	values := s.writeValues(entity, data)
	if len(values) == 0 {
		return nil, fmt.Errorf("failed to insert %s: no writable columns", entity.Name)
	}

	selectList, selectArgs := s.returningList(entity)
	sql, args, err := psql.Insert(pgx.Identifier{entity.Table}.Sanitize()).
		SetMap(values).
		Suffix("RETURNING "+selectList, selectArgs...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert: %w", err)
	}

	row, err := s.queryOne(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("failed to insert %s: %w", entity.Name, err)
	}
	return row, nil
}

// UpdateByID implements store.Store
func (s *Store) UpdateByID(ctx context.Context, entity domain.EntitySchema, id any, data domain.Record) (domain.Record, error) {
	values := s.writeValues(entity, data)
	if len(values) == 0 {
		// Nothing to change; report the current row.
		return s.Query(entity).Where(store.Eq(entity.Key(), id)).First(ctx)
	}

	selectList, selectArgs := s.returningList(entity)
	sql, args, err := psql.Update(pgx.Identifier{entity.Table}.Sanitize()).
		SetMap(values).
		Where(sq.Eq{pgx.Identifier{entity.Key()}.Sanitize(): id}).
		Suffix("RETURNING "+selectList, selectArgs...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update: %w", err)
	}

	row, err := s.queryOne(ctx, sql, args)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", entity.Name, err)
	}
	return row, nil
}

// DeleteByID implements store.Store
func (s *Store) DeleteByID(ctx context.Context, entity domain.EntitySchema, id any) error {
	sql, args, err := psql.Delete(pgx.Identifier{entity.Table}.Sanitize()).
		Where(sq.Eq{pgx.Identifier{entity.Key()}.Sanitize(): id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}

	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", entity.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) encrypts(column domain.Column) bool {
	return column.Encrypted && s.key != ""
}

// writeValues keeps declared columns only and wraps encrypted ones in
// pgp_sym_encrypt.
func (s *Store) writeValues(entity domain.EntitySchema, data domain.Record) map[string]any {
	values := make(map[string]any, len(data))
	for name, value := range data {
		column, ok := entity.Column(name)
		if !ok {
			continue
		}
		quoted := pgx.Identifier{column.Name}.Sanitize()
		if s.encrypts(column) && value != nil {
			values[quoted] = sq.Expr("pgp_sym_encrypt(CAST(? AS TEXT), ?)", value, s.key)
			continue
		}
		values[quoted] = value
	}
	return values
}

// returningList renders every declared column, decrypting encrypted ones.
func (s *Store) returningList(entity domain.EntitySchema) (string, []any) {
	var (
		list string
		args []any
	)
	for i, column := range entity.Columns {
		if i > 0 {
			list += ", "
		}
		expr, exprArgs := s.columnExpr("", column)
		list += expr
		args = append(args, exprArgs...)
	}
	return list, args
}

// columnExpr renders one projected column, qualified by alias when set.
func (s *Store) columnExpr(alias string, column domain.Column) (string, []any) {
	ref := qualify(alias, column.Name)
	if !s.encrypts(column) {
		return ref, nil
	}
	return fmt.Sprintf("pgp_sym_decrypt(%s, ?) AS %s", ref, pgx.Identifier{column.Name}.Sanitize()), []any{s.key}
}

func (s *Store) queryAll(ctx context.Context, sql string, args []any) ([]domain.Record, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	records := make([]domain.Record, len(maps))
	for i, m := range maps {
		records[i] = domain.Record(m)
	}
	return records, nil
}

func (s *Store) queryOne(ctx context.Context, sql string, args []any) (domain.Record, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	return domain.Record(m), nil
}

func qualify(alias, column string) string {
	if alias == "" {
		return pgx.Identifier{column}.Sanitize()
	}
	return pgx.Identifier{alias, column}.Sanitize()
}

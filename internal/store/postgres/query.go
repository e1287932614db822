package postgres

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cast"

	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/entityloader"
	"github.com/rpattn/restfilter/internal/store"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type query struct {
	store    *Store
	entity   domain.EntitySchema
	columns  []string
	where    []sq.Sqlizer
	includes []string
	orders   []domain.EntitySort
	groups   []string
}

func (q *query) Columns(columns ...string) store.Query {
	q.columns = append([]string(nil), columns...)
	return q
}

func (q *query) Where(preds ...store.Predicate) store.Query {
	for _, pred := range preds {
		if cond, ok := q.condition(rootAlias, pred); ok {
			q.where = append(q.where, cond)
		}
	}
	return q
}

func (q *query) WhereAny(preds ...store.Predicate) store.Query {
	group := sq.Or{}
	for _, pred := range preds {
		if cond, ok := q.condition(rootAlias, pred); ok {
			group = append(group, cond)
		}
	}
	if len(group) > 0 {
		q.where = append(q.where, group)
	}
	return q
}

func (q *query) Exists(relation string) store.Query {
	return q.exists(relation, false)
}

func (q *query) NotExists(relation string) store.Query {
	return q.exists(relation, true)
}

func (q *query) exists(path string, negate bool) store.Query {
	steps, ok := store.ResolvePath(q.store.schemas, q.entity, path)
	if !ok {
		return q
	}
	sql := existsSQL(steps, rootAlias, 1)
	if negate {
		sql = "NOT " + sql
	}
	q.where = append(q.where, sq.Expr(sql))
	return q
}

func (q *query) Include(relation string) store.Query {
	q.includes = append(q.includes, relation)
	return q
}

func (q *query) OrderBy(column string, direction domain.SortDirection) store.Query {
	if q.entity.HasColumn(column) {
		q.orders = append(q.orders, domain.EntitySort{Column: column, Direction: direction})
	}
	return q
}

func (q *query) GroupBy(columns ...string) store.Query {
	for _, column := range columns {
		if q.entity.HasColumn(column) {
			q.groups = append(q.groups, column)
		}
	}
	return q
}

func (q *query) Fetch(ctx context.Context) ([]domain.Record, error) {
	return q.run(ctx, 0, 0)
}

func (q *query) First(ctx context.Context) (domain.Record, error) {
	rows, err := q.run(ctx, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0], nil
}

func (q *query) Paginate(ctx context.Context, perPage, page int) (store.Page, error) {
	if page < 1 {
		page = 1
	}
	total, err := q.Count(ctx)
	if err != nil {
		return store.Page{}, err
	}
	rows := []domain.Record{}
	if offset, ok := store.PageOffset(perPage, page); ok {
		if rows, err = q.run(ctx, perPage, offset); err != nil {
			return store.Page{}, err
		}
	}
	return store.Page{
		Rows:        rows,
		Total:       total,
		PerPage:     perPage,
		CurrentPage: page,
		LastPage:    store.LastPageFor(total, perPage),
	}, nil
}

func (q *query) Count(ctx context.Context) (int64, error) {
	sql, args, err := q.countSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build count: %w", err)
	}

	var total int64
	if err := q.store.db.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.entity.Name, err)
	}
	return total, nil
}

func (q *query) run(ctx context.Context, limit, offset int) ([]domain.Record, error) {
	tree := store.IncludeTree{}
	for _, path := range q.includes {
		tree.Add(path)
	}

	projected, hidden := q.projection(tree)
	sql, args, err := q.selectSQL(projected, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	rows, err := q.store.queryAll(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.entity.Name, err)
	}

	if err := q.store.attach(ctx, q.entity, rows, tree); err != nil {
		return nil, err
	}
	for _, row := range rows {
		for _, column := range hidden {
			delete(row, column)
		}
	}
	return rows, nil
}

// projection returns the selected columns plus the join columns eager
// loading needs but the caller did not ask for.
func (q *query) projection(tree store.IncludeTree) (selected []domain.Column, hidden []string) {
	requested := map[string]bool{}
	all := len(q.columns) == 0
	for _, column := range q.columns {
		if column == "*" {
			all = true
		}
		requested[column] = true
	}

	for _, column := range q.entity.Columns {
		if all || requested[column.Name] {
			selected = append(selected, column)
		}
	}
	if all {
		return selected, nil
	}

	for _, name := range tree.Names() {
		relation, ok := q.entity.Relation(name)
		if !ok {
			continue
		}
		target, ok := q.store.schemas.Lookup(relation.Target)
		if !ok {
			continue
		}
		parentColumn, _ := relation.JoinColumns(q.entity, target)
		column, ok := q.entity.Column(parentColumn)
		if !ok || requested[parentColumn] {
			continue
		}
		requested[parentColumn] = true
		selected = append(selected, column)
		hidden = append(hidden, parentColumn)
	}
	if len(selected) == 0 {
		selected = append(selected, domain.Column{Name: q.entity.Key(), Type: domain.ColumnTypeNumeric})
	}
	return selected, hidden
}

func (q *query) baseSelect(columns []domain.Column) sq.SelectBuilder {
	builder := sq.Select()
	for _, column := range columns {
		expr, args := q.store.columnExpr(rootAlias, column)
		builder = builder.Column(expr, args...)
	}
	builder = builder.From(fmt.Sprintf("%s AS %s", pgx.Identifier{q.entity.Table}.Sanitize(), rootAlias))
	for _, cond := range q.where {
		builder = builder.Where(cond)
	}
	return builder
}

// grouped wraps the base select in DISTINCT ON so each group keeps the
// first row in the requested order.
func (q *query) grouped(columns []domain.Column) sq.SelectBuilder {
	keys := make([]string, len(q.groups))
	for i, column := range q.groups {
		keys[i] = qualify(rootAlias, column)
	}
	inner := q.baseSelect(columns).
		Options(fmt.Sprintf("DISTINCT ON (%s)", strings.Join(keys, ", "))).
		OrderBy(keys...).
		OrderBy(q.orderClauses(rootAlias)...)
	return sq.Select("*").FromSelect(inner, "grouped")
}

func (q *query) selectSQL(columns []domain.Column, limit, offset int) (string, []any, error) {
	var builder sq.SelectBuilder
	if len(q.groups) > 0 {
		// the outer query only sees the projected columns
		builder = q.grouped(columns).OrderBy(q.orderClausesWithin("", columns)...)
	} else {
		builder = q.baseSelect(columns).OrderBy(q.orderClauses(rootAlias)...)
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if offset > 0 {
		builder = builder.Offset(uint64(offset))
	}
	return builder.PlaceholderFormat(sq.Dollar).ToSql()
}

func (q *query) countSQL() (string, []any, error) {
	key, _ := q.entity.Column(q.entity.Key())
	if key.Name == "" {
		key = domain.Column{Name: q.entity.Key()}
	}
	var inner sq.SelectBuilder
	if len(q.groups) > 0 {
		inner = q.grouped([]domain.Column{key})
	} else {
		inner = q.baseSelect([]domain.Column{key})
	}
	return sq.Select("COUNT(*)").FromSelect(inner, "sub").PlaceholderFormat(sq.Dollar).ToSql()
}

func (q *query) orderClauses(alias string) []string {
	clauses := make([]string, len(q.orders))
	for i, order := range q.orders {
		clauses[i] = qualify(alias, order.Column) + " " + order.Direction.SQL()
	}
	return clauses
}

func (q *query) orderClausesWithin(alias string, columns []domain.Column) []string {
	projected := make(map[string]bool, len(columns))
	for _, column := range columns {
		projected[column.Name] = true
	}
	var clauses []string
	for _, order := range q.orders {
		if projected[order.Column] {
			clauses = append(clauses, qualify(alias, order.Column)+" "+order.Direction.SQL())
		}
	}
	return clauses
}

// condition translates a predicate on a declared column. Predicates on
// undeclared columns are dropped so no unchecked identifier reaches SQL.
func (q *query) condition(alias string, pred store.Predicate) (sq.Sqlizer, bool) {
	column, ok := q.entity.Column(pred.Column)
	if !ok {
		return nil, false
	}
	ref := qualify(alias, column.Name)

	switch pred.Op {
	case store.OpEq:
		return sq.Eq{ref: pred.Value}, true
	case store.OpIn:
		return sq.Eq{ref: pred.Values}, true
	case store.OpBetween:
		if len(pred.Values) != 2 {
			return nil, false
		}
		return sq.Expr(ref+" BETWEEN ? AND ?", pred.Values[0], pred.Values[1]), true
	case store.OpLike:
		return sq.Expr("LOWER(CAST("+ref+" AS TEXT)) LIKE LOWER(?)", likePattern(pred.Value)), true
	case store.OpEncryptedLike:
		if !q.store.encrypts(column) {
			return sq.Expr("LOWER(CAST("+ref+" AS TEXT)) LIKE LOWER(?)", likePattern(pred.Value)), true
		}
		return sq.Expr("LOWER(pgp_sym_decrypt("+ref+", ?)) LIKE LOWER(?)", q.store.key, likePattern(pred.Value)), true
	case store.OpIsNull:
		return sq.Eq{ref: nil}, true
	case store.OpIsNotNull:
		return sq.NotEq{ref: nil}, true
	}
	return nil, false
}

func likePattern(value any) string {
	return "%" + likeEscaper.Replace(cast.ToString(value)) + "%"
}

// existsSQL renders a correlated EXISTS over a resolved relation path.
// Each hop gets its own alias so nested paths chain.
func existsSQL(steps []store.Step, outer string, depth int) string {
	step := steps[0]
	alias := fmt.Sprintf("t%d", depth)
	parentColumn, targetColumn := step.Relation.JoinColumns(step.Parent, step.Target)

	sql := fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS %s WHERE %s = %s",
		pgx.Identifier{step.Target.Table}.Sanitize(), alias,
		qualify(alias, targetColumn), qualify(outer, parentColumn))
	if len(steps) > 1 {
		sql += " AND " + existsSQL(steps[1:], alias, depth+1)
	}
	return sql + ")"
}

// attach eager-loads the include tree, issuing one batched query per
// relation level. Unknown relations are skipped.
func (s *Store) attach(ctx context.Context, entity domain.EntitySchema, rows []domain.Record, tree store.IncludeTree) error {
	if len(rows) == 0 {
		return nil
	}
	for _, name := range tree.Names() {
		relation, ok := entity.Relation(name)
		if !ok {
			continue
		}
		target, ok := s.schemas.Lookup(relation.Target)
		if !ok {
			continue
		}
		parentColumn, targetColumn := relation.JoinColumns(entity, target)

		keys := make([]string, 0, len(rows))
		rowKeys := make([]string, len(rows))
		seen := make(map[string]struct{}, len(rows))
		for i, row := range rows {
			key, ok := joinKey(row[parentColumn])
			if !ok {
				continue
			}
			rowKeys[i] = key
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				keys = append(keys, key)
			}
		}

		loader := entityloader.New(
			func(ctx context.Context, keys []string) ([]domain.Record, error) {
				return s.fetchRelated(ctx, target, targetColumn, keys)
			},
			func(record domain.Record) (string, bool) {
				return joinKey(record[targetColumn])
			},
		)
		loaded, err := loader.LoadMany(ctx, keys)
		if err != nil {
			return fmt.Errorf("failed to load %s.%s: %w", entity.Name, name, err)
		}
		byKey := make(map[string][]domain.Record, len(keys))
		var children []domain.Record
		for i, key := range keys {
			byKey[key] = loaded[i]
			children = append(children, loaded[i]...)
		}

		if err := s.attach(ctx, target, children, tree[name]); err != nil {
			return err
		}

		for i, row := range rows {
			related := byKey[rowKeys[i]]
			if rowKeys[i] == "" {
				related = nil
			}
			switch {
			case relation.Many():
				if related == nil {
					related = []domain.Record{}
				}
				row[name] = related
			case len(related) > 0:
				row[name] = related[0]
			default:
				row[name] = nil
			}
		}
	}
	return nil
}

func (s *Store) fetchRelated(ctx context.Context, target domain.EntitySchema, column string, keys []string) ([]domain.Record, error) {
	builder := sq.Select()
	for _, col := range target.Columns {
		expr, args := s.columnExpr(rootAlias, col)
		builder = builder.Column(expr, args...)
	}
	sql, args, err := builder.
		From(fmt.Sprintf("%s AS %s", pgx.Identifier{target.Table}.Sanitize(), rootAlias)).
		Where(sq.Expr(fmt.Sprintf("CAST(%s AS TEXT) = ANY(?)", qualify(rootAlias, column)), keys)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}
	return s.queryAll(ctx, sql, args)
}

// joinKey renders a join value the way CAST(... AS TEXT) does for the
// integer, uuid and text columns relations may join on.
func joinKey(value any) (string, bool) {
	switch typed := value.(type) {
	case nil:
		return "", false
	case [16]byte:
		return uuid.UUID(typed).String(), true
	}
	key, err := cast.ToStringE(value)
	if err != nil {
		return fmt.Sprint(value), true
	}
	return key, true
}

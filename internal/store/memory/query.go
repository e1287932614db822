package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/store"
)

type clause struct {
	any   bool
	preds []store.Predicate
}

type existence struct {
	path   string
	negate bool
}

type query struct {
	store    *Store
	entity   domain.EntitySchema
	columns  []string
	clauses  []clause
	exists   []existence
	includes []string
	orders   []domain.EntitySort
	groups   []string
}

func (q *query) Columns(columns ...string) store.Query {
	q.columns = append([]string(nil), columns...)
	return q
}

func (q *query) Where(preds ...store.Predicate) store.Query {
	if len(preds) > 0 {
		q.clauses = append(q.clauses, clause{preds: preds})
	}
	return q
}

func (q *query) WhereAny(preds ...store.Predicate) store.Query {
	if len(preds) > 0 {
		q.clauses = append(q.clauses, clause{any: true, preds: preds})
	}
	return q
}

func (q *query) Exists(relation string) store.Query {
	q.exists = append(q.exists, existence{path: relation})
	return q
}

func (q *query) NotExists(relation string) store.Query {
	q.exists = append(q.exists, existence{path: relation, negate: true})
	return q
}

func (q *query) Include(relation string) store.Query {
	q.includes = append(q.includes, relation)
	return q
}

func (q *query) OrderBy(column string, direction domain.SortDirection) store.Query {
	q.orders = append(q.orders, domain.EntitySort{Column: column, Direction: direction})
	return q
}

func (q *query) GroupBy(columns ...string) store.Query {
	q.groups = append(q.groups, columns...)
	return q
}

func (q *query) Fetch(ctx context.Context) ([]domain.Record, error) {
	rows, err := q.run(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	return rows, nil
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
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q.store.mu.RLock()
	defer q.store.mu.RUnlock()

	rows, err := q.matchLocked()
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (q *query) run(ctx context.Context, limit, offset int) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.store.mu.RLock()
	defer q.store.mu.RUnlock()

	rows, err := q.matchLocked()
	if err != nil {
		return nil, err
	}

	if offset > 0 {
		if offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[offset:]
		}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	tree := store.IncludeTree{}
	for _, path := range q.includes {
		tree.Add(path)
	}
	if err := q.store.attachLocked(q.entity, rows, tree); err != nil {
		return nil, err
	}

	out := make([]domain.Record, len(rows))
	for i, row := range rows {
		out[i] = q.project(row, tree)
	}
	return out, nil
}

// matchLocked filters, orders and groups the entity's rows.
func (q *query) matchLocked() ([]domain.Record, error) {
	all, err := q.store.snapshotLocked(q.entity)
	if err != nil {
		return nil, err
	}

	stored := q.store.storedLocked(q.entity)

	rows := make([]domain.Record, 0, len(all))
	for i, row := range all {
		ok, err := q.matches(row, stored[i])
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}

	if len(q.orders) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, order := range q.orders {
				cmp := compareValues(rows[i][order.Column], rows[j][order.Column])
				if cmp == 0 {
					continue
				}
				if order.Direction == domain.SortDirectionAsc {
					return cmp < 0
				}
				return cmp > 0
			}
			return false
		})
	}

	if len(q.groups) > 0 {
		seen := make(map[string]struct{}, len(rows))
		grouped := rows[:0]
		for _, row := range rows {
			parts := make([]string, len(q.groups))
			for i, column := range q.groups {
				parts[i] = fmt.Sprint(row[column])
			}
			key := strings.Join(parts, "\x00")
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			grouped = append(grouped, row)
		}
		rows = grouped
	}

	return rows, nil
}

// matches evaluates the query's conditions against the decrypted row.
// Plain substring matches on encrypted columns see the stored ciphertext,
// as they do in the database.
func (q *query) matches(row, stored domain.Record) (bool, error) {
	for _, c := range q.clauses {
		matched := !c.any
		for _, pred := range c.preds {
			subject := row
			if pred.Op == store.OpLike {
				if column, ok := q.entity.Column(pred.Column); ok && column.Encrypted {
					subject = stored
				}
			}
			hit := evaluate(subject, pred)
			if c.any && hit {
				matched = true
				break
			}
			if !c.any && !hit {
				matched = false
				break
			}
		}
		if !matched {
			return false, nil
		}
	}

	for _, e := range q.exists {
		steps, ok := store.ResolvePath(q.store.schemas, q.entity, e.path)
		if !ok {
			continue
		}
		found, err := q.store.reachableLocked(row, steps)
		if err != nil {
			return false, err
		}
		if found == e.negate {
			return false, nil
		}
	}
	return true, nil
}

func (q *query) project(row domain.Record, tree store.IncludeTree) domain.Record {
	if len(q.columns) == 0 || (len(q.columns) == 1 && q.columns[0] == "*") {
		return row
	}
	out := make(domain.Record, len(q.columns)+len(tree))
	for _, column := range q.columns {
		if value, ok := row[column]; ok {
			out[column] = value
		}
	}
	for name := range tree {
		if value, ok := row[name]; ok {
			out[name] = value
		}
	}
	return out
}

// relatedLocked returns the target rows linked to row through one relation.
func (s *Store) relatedLocked(row domain.Record, step store.Step) ([]domain.Record, error) {
	parentColumn, targetColumn := step.Relation.JoinColumns(step.Parent, step.Target)
	key, ok := row[parentColumn]
	if !ok || key == nil {
		return nil, nil
	}
	candidates, err := s.snapshotLocked(step.Target)
	if err != nil {
		return nil, err
	}
	want := fmt.Sprint(key)
	var related []domain.Record
	for _, candidate := range candidates {
		if value, ok := candidate[targetColumn]; ok && value != nil && fmt.Sprint(value) == want {
			related = append(related, candidate)
		}
	}
	return related, nil
}

func (s *Store) reachableLocked(row domain.Record, steps []store.Step) (bool, error) {
	related, err := s.relatedLocked(row, steps[0])
	if err != nil {
		return false, err
	}
	if len(steps) == 1 {
		return len(related) > 0, nil
	}
	for _, next := range related {
		found, err := s.reachableLocked(next, steps[1:])
		if err != nil || found {
			return found, err
		}
	}
	return false, nil
}

// attachLocked eager-loads the include tree onto rows in place. Unknown
// relations are skipped.
func (s *Store) attachLocked(entity domain.EntitySchema, rows []domain.Record, tree store.IncludeTree) error {
	for _, name := range tree.Names() {
		relation, ok := entity.Relation(name)
		if !ok {
			continue
		}
		target, ok := s.schemas.Lookup(relation.Target)
		if !ok {
			continue
		}
		step := store.Step{Parent: entity, Relation: relation, Target: target}
		for _, row := range rows {
			related, err := s.relatedLocked(row, step)
			if err != nil {
				return err
			}
			if err := s.attachLocked(target, related, tree[name]); err != nil {
				return err
			}
			if relation.Many() {
				if related == nil {
					related = []domain.Record{}
				}
				row[name] = related
			} else if len(related) > 0 {
				row[name] = related[0]
			} else {
				row[name] = nil
			}
		}
	}
	return nil
}

func evaluate(row domain.Record, pred store.Predicate) bool {
	value := row[pred.Column]
	switch pred.Op {
	case store.OpEq:
		return value != nil && compareValues(value, pred.Value) == 0
	case store.OpIn:
		if value == nil {
			return false
		}
		for _, candidate := range pred.Values {
			if compareValues(value, candidate) == 0 {
				return true
			}
		}
		return false
	case store.OpBetween:
		if value == nil || len(pred.Values) != 2 {
			return false
		}
		return compareValues(value, pred.Values[0]) >= 0 && compareValues(value, pred.Values[1]) <= 0
	case store.OpLike, store.OpEncryptedLike:
		if value == nil {
			return false
		}
		return strings.Contains(strings.ToLower(cast.ToString(value)), strings.ToLower(cast.ToString(pred.Value)))
	case store.OpIsNull:
		return value == nil
	case store.OpIsNotNull:
		return value != nil
	}
	return false
}

// compareValues orders numbers numerically, dates chronologically and
// everything else by string form. nil sorts first.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if af, ok := toNumber(a); ok {
		if bf, ok := toNumber(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}

	if at, ok := toTime(a); ok {
		if bt, ok := toTime(b); ok {
			return at.Compare(bt)
		}
	}

	return strings.Compare(cast.ToString(a), cast.ToString(b))
}

func toNumber(v any) (float64, bool) {
	switch typed := v.(type) {
	case time.Time:
		return 0, false
	case string:
		if !domain.IsNumeric(typed) {
			return 0, false
		}
		f, err := cast.ToFloat64E(strings.TrimSpace(typed))
		return f, err == nil
	}
	f, err := cast.ToFloat64E(v)
	return f, err == nil
}

func toTime(v any) (time.Time, bool) {
	switch typed := v.(type) {
	case time.Time:
		return typed, true
	case string:
		t, err := cast.ToTimeE(typed)
		return t, err == nil
	}
	return time.Time{}, false
}

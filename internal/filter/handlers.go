package filter

import (
	"strings"

	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/store"
)

func (p *Pipeline) builtins() map[string]Handler {
	return map[string]Handler{
		FilterQuery:        p.search,
		FilterWhereNull:    p.whereNull,
		FilterWhereNotNull: p.whereNotNull,
		FilterWith: func(q store.Query, value domain.Value, _ domain.Params) store.Query {
			return p.relations.WithRelationIfExists(q, value.Values()...)
		},
		FilterWithNotEmpty: func(q store.Query, value domain.Value, _ domain.Params) store.Query {
			return p.relations.WithRelationIfNotEmpty(q, value.Values()...)
		},
		FilterWithEmpty: func(q store.Query, value domain.Value, _ domain.Params) store.Query {
			return p.relations.WithRelationEmpty(q, value.Values()...)
		},
		FilterHasRelationChildren: func(q store.Query, value domain.Value, _ domain.Params) store.Query {
			return p.relations.HasRelationChildren(q, value.Values()...)
		},
		FilterOrderBy:       p.orderBy,
		FilterOrderByAsc:    p.orderDirection(domain.SortDirectionAsc),
		FilterOrderByDesc:   p.orderDirection(domain.SortDirectionDesc),
		FilterPaginated:     noop,
		FilterGroupBy:       p.groupBy,
		FilterWhereInColumn: p.whereInColumn,
		FilterEncrypted:     noop,
	}
}

// noop marks meta parameters so same-named columns are not filtered.
func noop(q store.Query, _ domain.Value, _ domain.Params) store.Query {
	return q
}

// search ORs a match over every fillable column. Text-like columns match by
// substring; numeric and boolean columns only match values of their type.
func (p *Pipeline) search(q store.Query, value domain.Value, params domain.Params) store.Query {
	needle := strings.TrimSpace(value.String())
	if needle == "" {
		return q
	}
	encrypted := encryptedColumns(params)

	var preds []store.Predicate
	for _, column := range p.entity.Fillable {
		typ, ok := p.columns.ColumnType(p.entity.Name, column)
		if !ok {
			continue
		}
		switch {
		case encrypted[column]:
			preds = append(preds, store.EncryptedLike(column, needle))
		case typ.IsTextLike():
			preds = append(preds, store.Like(column, needle))
		default:
			if coerced, ok := typ.Coerce(needle); ok {
				preds = append(preds, store.Eq(column, coerced))
			}
		}
	}
	if len(preds) == 0 {
		p.skip(FilterQuery, value, "no searchable column")
		return q
	}
	return q.WhereAny(preds...)
}

func (p *Pipeline) whereNull(q store.Query, value domain.Value, _ domain.Params) store.Query {
	for _, column := range p.existing(FilterWhereNull, value.Values()) {
		q = q.Where(store.IsNull(column))
	}
	return q
}

func (p *Pipeline) whereNotNull(q store.Query, value domain.Value, _ domain.Params) store.Query {
	for _, column := range p.existing(FilterWhereNotNull, value.Values()) {
		q = q.Where(store.IsNotNull(column))
	}
	return q
}

func (p *Pipeline) orderDirection(direction domain.SortDirection) Handler {
	name := FilterOrderByDesc
	if direction == domain.SortDirectionAsc {
		name = FilterOrderByAsc
	}
	return func(q store.Query, value domain.Value, _ domain.Params) store.Query {
		for _, column := range p.existing(name, value.Values()) {
			q = q.OrderBy(column, direction)
		}
		return q
	}
}

func (p *Pipeline) orderBy(q store.Query, value domain.Value, params domain.Params) store.Query {
	column := strings.TrimSpace(value.String())
	if !p.columns.ColumnExists(p.entity.Name, column) {
		p.skip(FilterOrderBy, value, "unknown column")
		return q
	}
	direction := domain.SortDirectionDesc
	if truthy(params, ParamAscending) {
		direction = domain.SortDirectionAsc
	}
	return q.OrderBy(column, direction)
}

func (p *Pipeline) groupBy(q store.Query, value domain.Value, _ domain.Params) store.Query {
	columns := p.existing(FilterGroupBy, value.Values())
	if len(columns) == 0 {
		return q
	}
	return q.GroupBy(columns...)
}

// whereInColumn applies "column[v1,v2]" as a membership predicate. Each
// list item is parsed on its own; malformed items are ignored.
func (p *Pipeline) whereInColumn(q store.Query, value domain.Value, _ domain.Params) store.Query {
	for _, raw := range value.Items() {
		column, items, ok := ParseWhereInColumn(raw)
		if !ok {
			p.skip(FilterWhereInColumn, domain.Scalar(raw), "malformed column[values]")
			continue
		}
		typ, ok := p.columns.ColumnType(p.entity.Name, column)
		if !ok {
			p.skip(FilterWhereInColumn, domain.Scalar(raw), "unknown column")
			continue
		}
		values := coerceAll(typ, items)
		if len(values) == 0 {
			p.skip(FilterWhereInColumn, domain.Scalar(raw), "no value matches the column type")
			continue
		}
		q = q.Where(store.In(column, values...))
	}
	return q
}

// ParseWhereInColumn splits "status[1,2,3]" into "status" and its items.
// The input must hold exactly one bracket pair closing at the end, a
// column name and at least one item.
func ParseWhereInColumn(raw string) (string, []string, bool) {
	raw = strings.TrimSpace(raw)
	if strings.Count(raw, "[") != 1 || strings.Count(raw, "]") != 1 || !strings.HasSuffix(raw, "]") {
		return "", nil, false
	}

	open := strings.Index(raw, "[")
	column := strings.TrimSpace(raw[:open])
	if column == "" {
		return "", nil, false
	}

	items := domain.Scalar(raw[open+1 : len(raw)-1]).Values()
	if len(items) == 0 {
		return "", nil, false
	}
	return column, items, true
}

func coerceAll(typ domain.ColumnType, items []string) []any {
	values := make([]any, 0, len(items))
	for _, item := range items {
		if coerced, ok := typ.Coerce(item); ok {
			values = append(values, coerced)
		}
	}
	return values
}

package filter

import (
	"strings"

	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/store"
)

// applyColumn is the generic path for a parameter named after a column.
// The comparison is chosen from the column type and the value shape.
func (p *Pipeline) applyColumn(q store.Query, column string, value domain.Value, params domain.Params) store.Query {
	typ, ok := p.columns.ColumnType(p.entity.Name, column)
	if !ok {
		return q
	}

	if typ.IsTemporal() && !value.IsList() && strings.Contains(value.String(), ",") {
		low, high, ok := dateRange(typ, value.String())
		if !ok {
			p.skip(column, value, "range needs exactly two dates")
			return q
		}
		return q.Where(store.Between(column, low, high))
	}

	if items := value.Values(); value.IsList() || len(items) >= 2 {
		values := coerceAll(typ, items)
		if len(values) == 0 {
			p.skip(column, value, "no value matches the column type")
			return q
		}
		return q.Where(store.In(column, values...))
	}

	raw := strings.TrimSpace(value.String())
	switch {
	case encryptedColumns(params)[column]:
		return q.Where(store.EncryptedLike(column, raw))
	case domain.IsNumeric(raw) || !typ.IsTextLike():
		coerced, ok := typ.Coerce(raw)
		if !ok {
			p.skip(column, value, "value does not match the column type")
			return q
		}
		return q.Where(store.Eq(column, coerced))
	}
	return q.Where(store.Like(column, raw))
}

// dateRange splits "low,high" into two bounds valid for the column.
func dateRange(typ domain.ColumnType, raw string) (any, any, bool) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return nil, nil, false
	}
	low, ok := typ.Coerce(parts[0])
	if !ok || strings.TrimSpace(parts[0]) == "" {
		return nil, nil, false
	}
	high, ok := typ.Coerce(parts[1])
	if !ok || strings.TrimSpace(parts[1]) == "" {
		return nil, nil, false
	}
	return low, high, true
}

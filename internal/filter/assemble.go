package filter

import (
	"context"
	"math"

	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/store"
)

// Run applies params to q, executes it once and builds the envelope.
func (p *Pipeline) Run(ctx context.Context, q store.Query, params domain.Params) (domain.Result, error) {
	return Assemble(ctx, p.Apply(q, params), params)
}

// Assemble executes q exactly once. A positive numeric limit selects a
// paginated fetch of the page named by the page parameter; the envelope
// then reports a zero-based page. Otherwise every matching row is fetched.
func Assemble(ctx context.Context, q store.Query, params domain.Params) (domain.Result, error) {
	if limit, ok := positiveInt(params.String(ParamLimit)); ok {
		page, ok := positiveInt(params.String(ParamPage))
		if !ok {
			page = 1
		}

		result, err := q.Paginate(ctx, limit, page)
		if err != nil {
			return domain.Result{}, err
		}

		current := result.CurrentPage - 1
		pages := result.LastPage
		return domain.Result{
			Data:    nonNil(result.Rows),
			Count:   result.Total,
			Filter:  len(result.Rows),
			PerPage: &limit,
			Page:    &current,
			Pages:   &pages,
		}, nil
	}

	rows, err := q.Fetch(ctx)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{
		Data:   nonNil(rows),
		Count:  int64(len(rows)),
		Filter: len(rows),
	}, nil
}

func positiveInt(raw string) (int, bool) {
	value, ok := domain.ColumnTypeNumeric.Coerce(raw)
	if !ok {
		return 0, false
	}
	n, isInt := value.(int64)
	if !isInt || n <= 0 || n > math.MaxInt {
		return 0, false
	}
	return int(n), true
}

func nonNil(rows []domain.Record) []domain.Record {
	if rows == nil {
		return []domain.Record{}
	}
	return rows
}

// Package store defines the query object handed to the filter pipeline and
// the write operations used by the repository facade. Backends live in the
// postgres and memory subpackages.
package store

import (
	"context"
	"math"

	"github.com/rpattn/restfilter/internal/domain"
)

// Query is a chainable, single-owner query builder over one entity. It is
// not safe for concurrent use and must be executed at most once.
type Query interface {
	// Columns restricts the projection. An empty list or "*" selects all
	// declared columns.
	Columns(columns ...string) Query
	// Where ANDs every predicate onto the query.
	Where(preds ...Predicate) Query
	// WhereAny adds one group whose predicates are OR-combined. An empty
	// group adds nothing.
	WhereAny(preds ...Predicate) Query
	// Exists requires at least one related row for the relation path.
	Exists(relation string) Query
	// NotExists requires that no related row exists for the relation path.
	NotExists(relation string) Query
	// Include eager-loads the relation path onto every returned record.
	Include(relation string) Query
	OrderBy(column string, direction domain.SortDirection) Query
	GroupBy(columns ...string) Query

	Fetch(ctx context.Context) ([]domain.Record, error)
	// First returns domain.ErrNotFound when nothing matches.
	First(ctx context.Context) (domain.Record, error)
	// Paginate fetches one page; page is 1-based.
	Paginate(ctx context.Context, perPage, page int) (Page, error)
	Count(ctx context.Context) (int64, error)
}

// Page is the outcome of a paginated fetch.
type Page struct {
	Rows        []domain.Record
	Total       int64
	PerPage     int
	CurrentPage int
	LastPage    int
}

// LastPageFor computes the last page number, which is at least 1.
func LastPageFor(total int64, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 1
	}
	pages := int((total + int64(perPage) - 1) / int64(perPage))
	if pages < 1 {
		return 1
	}
	return pages
}

// PageOffset returns the number of rows preceding page. It reports false
// when the offset does not fit in an int, which places the page past any
// row the store can hold.
func PageOffset(perPage, page int) (int, bool) {
	if perPage <= 0 || page <= 1 {
		return 0, true
	}
	if page-1 > math.MaxInt/perPage {
		return 0, false
	}
	return (page - 1) * perPage, true
}

// SchemaLookup resolves relation targets by entity name.
type SchemaLookup interface {
	Lookup(entity string) (domain.EntitySchema, bool)
}

// Store hands out query objects and performs writes for registered entities.
type Store interface {
	Query(entity domain.EntitySchema) Query
	Insert(ctx context.Context, entity domain.EntitySchema, data domain.Record) (domain.Record, error)
	// UpdateByID returns domain.ErrNotFound when the id does not exist.
	UpdateByID(ctx context.Context, entity domain.EntitySchema, id any, data domain.Record) (domain.Record, error)
	// DeleteByID returns domain.ErrNotFound when the id does not exist.
	DeleteByID(ctx context.Context, entity domain.EntitySchema, id any) error
}

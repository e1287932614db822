package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/schema"
	"github.com/rpattn/restfilter/internal/store"
)

// Repository wraps the store with entity-agnostic CRUD helpers and the
// relation-aware query mutators used by the filter pipeline.
type Repository struct {
	entity  domain.EntitySchema
	store   store.Store
	catalog schema.RelationCatalog
}

// New creates a repository for one registered entity
func New(entity domain.EntitySchema, st store.Store, catalog schema.RelationCatalog) *Repository {
	return &Repository{entity: entity, store: st, catalog: catalog}
}

// Entity returns the schema the repository serves.
func (r *Repository) Entity() domain.EntitySchema {
	return r.entity
}

// Table returns the backing table name.
func (r *Repository) Table() string {
	return r.entity.Table
}

// Fillable returns the externally settable columns.
func (r *Repository) Fillable() []string {
	return append([]string(nil), r.entity.Fillable...)
}

// Guarded returns the columns that may not be set from input.
func (r *Repository) Guarded() []string {
	return append([]string(nil), r.entity.Guarded...)
}

// Select hands out a fresh query object restricted to columns. No columns
// selects every declared column.
func (r *Repository) Select(columns ...string) store.Query {
	q := r.store.Query(r.entity)
	if len(columns) > 0 {
		q = q.Columns(columns...)
	}
	return q
}

// All returns every record
func (r *Repository) All(ctx context.Context) ([]domain.Record, error) {
	rows, err := r.Select().Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.entity.Name, err)
	}
	return rows, nil
}

// Find retrieves a record by primary key
func (r *Repository) Find(ctx context.Context, id any) (domain.Record, error) {
	row, err := r.Select().Where(store.Eq(r.entity.Key(), r.key(id))).First(ctx)
	if err != nil {
		return nil, r.wrap("find", err)
	}
	return row, nil
}

// Show is an alias of Find.
func (r *Repository) Show(ctx context.Context, id any) (domain.Record, error) {
	return r.Find(ctx, id)
}

// FindBy returns the first record matching every criterion. List values
// become membership predicates, scalars become equality.
func (r *Repository) FindBy(ctx context.Context, criteria map[string]any) (domain.Record, error) {
	q := r.Select()
	for column, value := range criteria {
		if !r.entity.HasColumn(column) {
			return nil, fmt.Errorf("unknown column %s for %s", column, r.entity.Name)
		}
		switch typed := value.(type) {
		case []any:
			q = q.Where(store.In(column, typed...))
		case []string:
			items := make([]any, len(typed))
			for i, item := range typed {
				items[i] = item
			}
			q = q.Where(store.In(column, items...))
		default:
			q = q.Where(store.Eq(column, value))
		}
	}

	row, err := q.First(ctx)
	if err != nil {
		return nil, r.wrap("find", err)
	}
	return row, nil
}

// WhereBetween returns records with low <= column <= high.
func (r *Repository) WhereBetween(ctx context.Context, column string, bounds [2]any) ([]domain.Record, error) {
	if !r.entity.HasColumn(column) {
		return nil, fmt.Errorf("unknown column %s for %s", column, r.entity.Name)
	}
	rows, err := r.Select().Where(store.Between(column, bounds[0], bounds[1])).Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.entity.Name, err)
	}
	return rows, nil
}

// With returns every record with the accepted relations eager-loaded.
func (r *Repository) With(ctx context.Context, relations []string) ([]domain.Record, error) {
	rows, err := r.WithRelationIfExists(r.Select(), relations...).Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.entity.Name, err)
	}
	return rows, nil
}

// FindWith returns one record with the accepted relations eager-loaded.
func (r *Repository) FindWith(ctx context.Context, id any, relations []string) (domain.Record, error) {
	row, err := r.WithRelationIfExists(r.Select(), relations...).
		Where(store.Eq(r.entity.Key(), r.key(id))).
		First(ctx)
	if err != nil {
		return nil, r.wrap("find", err)
	}
	return row, nil
}

// Create inserts a record. Only fillable keys are written.
func (r *Repository) Create(ctx context.Context, data domain.Record) (domain.Record, error) {
	row, err := r.store.Insert(ctx, r.entity, r.entity.OnlyFillable(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", r.entity.Name, err)
	}
	return row, nil
}

// FirstOrCreate returns the first record matching condition, creating it
// from condition and data when none exists.
func (r *Repository) FirstOrCreate(ctx context.Context, condition map[string]any, data domain.Record) (domain.Record, error) {
	row, err := r.FindBy(ctx, condition)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	merged := make(domain.Record, len(condition)+len(data))
	for column, value := range condition {
		merged[column] = value
	}
	for column, value := range data {
		merged[column] = value
	}
	return r.Create(ctx, merged)
}

// Update changes the fillable keys of data on the record with id. It
// returns domain.ErrNotFound when the id does not exist.
func (r *Repository) Update(ctx context.Context, data domain.Record, id any) (domain.Record, error) {
	row, err := r.store.UpdateByID(ctx, r.entity, r.key(id), r.entity.OnlyFillable(data))
	if err != nil {
		return nil, r.wrap("update", err)
	}
	return row, nil
}

// Delete removes the record with id. It returns domain.ErrNotFound when
// the id does not exist.
func (r *Repository) Delete(ctx context.Context, id any) error {
	if err := r.store.DeleteByID(ctx, r.entity, r.key(id)); err != nil {
		return r.wrap("delete", err)
	}
	return nil
}

// Count returns the number of records
func (r *Repository) Count(ctx context.Context) (int64, error) {
	total, err := r.Select().Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.entity.Name, err)
	}
	return total, nil
}

// key coerces an external id into the primary key column type.
func (r *Repository) key(id any) any {
	raw, ok := id.(string)
	if !ok {
		return id
	}
	column, ok := r.entity.Column(r.entity.Key())
	if !ok {
		return id
	}
	if value, ok := column.Type.Coerce(raw); ok {
		return value
	}
	return id
}

// wrap keeps domain.ErrNotFound bare so callers can treat it as benign.
func (r *Repository) wrap(action string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("failed to %s %s: %w", action, r.entity.Name, err)
}

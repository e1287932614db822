// Package memory is an in-process implementation of store.Store. It keeps
// the same filter semantics as the postgres backend and backs the test
// suites and the "memory" driver.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cast"

	"github.com/rpattn/restfilter/internal/crypt"
	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/store"
)

type table struct {
	rows   []domain.Record
	nextID int64
}

// Store keeps rows per entity in memory. It is safe for concurrent use;
// the query objects it hands out are not.
type Store struct {
	mu      sync.RWMutex
	schemas store.SchemaLookup
	cipher  *crypt.Cipher
	tables  map[string]*table
}

// New creates an empty store. Encrypted columns are sealed with cipher;
// a nil cipher stores them in clear.
func New(schemas store.SchemaLookup, cipher *crypt.Cipher) *Store {
	return &Store{
		schemas: schemas,
		cipher:  cipher,
		tables:  make(map[string]*table),
	}
}

var _ store.Store = (*Store)(nil)

// Query implements store.Store
func (s *Store) Query(entity domain.EntitySchema) store.Query {
	return &query{store: s, entity: entity}
}

// Insert implements store.Store
func (s *Store) Insert(ctx context.Context, entity domain.EntitySchema, data domain.Record) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tableLocked(entity.Table)
	row, err := s.sealLocked(entity, data)
	if err != nil {
		return nil, err
	}

	key := entity.Key()
	if id, ok := row[key]; !ok || id == nil {
		t.nextID++
		row[key] = t.nextID
	} else if n, err := cast.ToInt64E(id); err == nil && n > t.nextID {
		t.nextID = n
	}

	t.rows = append(t.rows, row)
	return s.openLocked(entity, row)
}

// UpdateByID implements store.Store
func (s *Store) UpdateByID(ctx context.Context, entity domain.EntitySchema, id any, data domain.Record) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tableLocked(entity.Table)
	idx := indexOf(t.rows, entity.Key(), id)
	if idx < 0 {
		return nil, domain.ErrNotFound
	}

	changes, err := s.sealLocked(entity, data)
	if err != nil {
		return nil, err
	}
	row := t.rows[idx].Clone()
	for column, value := range changes {
		row[column] = value
	}
	t.rows[idx] = row
	return s.openLocked(entity, row)
}

// DeleteByID implements store.Store
func (s *Store) DeleteByID(ctx context.Context, entity domain.EntitySchema, id any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tableLocked(entity.Table)
	idx := indexOf(t.rows, entity.Key(), id)
	if idx < 0 {
		return domain.ErrNotFound
	}
	t.rows = append(t.rows[:idx], t.rows[idx+1:]...)
	return nil
}

func indexOf(rows []domain.Record, key string, id any) int {
	want := fmt.Sprint(id)
	for i, row := range rows {
		if value, ok := row[key]; ok && fmt.Sprint(value) == want {
			return i
		}
	}
	return -1
}

func (s *Store) tableLocked(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{}
		s.tables[name] = t
	}
	return t
}

// snapshotLocked returns decrypted copies of every row of the entity.
func (s *Store) snapshotLocked(entity domain.EntitySchema) ([]domain.Record, error) {
	t, ok := s.tables[entity.Table]
	if !ok {
		return nil, nil
	}
	rows := make([]domain.Record, 0, len(t.rows))
	for _, row := range t.rows {
		plain, err := s.openLocked(entity, row)
		if err != nil {
			return nil, err
		}
		rows = append(rows, plain)
	}
	return rows, nil
}

// storedLocked returns the entity's rows as held at rest, in the same order
// as snapshotLocked.
func (s *Store) storedLocked(entity domain.EntitySchema) []domain.Record {
	t, ok := s.tables[entity.Table]
	if !ok {
		return nil
	}
	return t.rows
}

func (s *Store) sealLocked(entity domain.EntitySchema, data domain.Record) (domain.Record, error) {
	row := data.Clone()
	for _, column := range entity.Columns {
		value, ok := row[column.Name]
		if !column.Encrypted || !ok || value == nil {
			continue
		}
		sealed, err := s.cipher.Encrypt(cast.ToString(value))
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt %s.%s: %w", entity.Name, column.Name, err)
		}
		row[column.Name] = sealed
	}
	return row, nil
}

func (s *Store) openLocked(entity domain.EntitySchema, row domain.Record) (domain.Record, error) {
	plain := row.Clone()
	for _, column := range entity.Columns {
		value, ok := plain[column.Name]
		if !column.Encrypted || !ok || value == nil {
			continue
		}
		opened, err := s.cipher.Decrypt(cast.ToString(value))
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt %s.%s: %w", entity.Name, column.Name, err)
		}
		plain[column.Name] = opened
	}
	return plain, nil
}

// Package schema holds the entity declarations consulted while filters are
// interpreted: declared columns and their semantic types, plus the static
// relation table of every entity.
package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/schema/validator"
)

// ColumnRegistry answers column questions for an entity.
type ColumnRegistry interface {
	ColumnExists(entity, name string) bool
	ColumnType(entity, name string) (domain.ColumnType, bool)
}

// RelationCatalog enumerates the relations an entity declares.
type RelationCatalog interface {
	RelationNames(entity string) map[string]struct{}
	Relation(entity, name string) (domain.Relation, bool)
}

// Registry stores entity schemas registered at startup. Reads are safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]domain.EntitySchema
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]domain.EntitySchema)}
}

// Register validates and stores an entity. Registering a name twice fails
// so column types stay fixed for the process lifetime.
func (r *Registry) Register(entity domain.EntitySchema) error {
	if err := validator.ValidateEntity(entity); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[entity.Name]; exists {
		return fmt.Errorf("entity %s already registered", entity.Name)
	}
	r.entities[entity.Name] = entity.Clone()
	return nil
}

// MustRegister registers entities and panics on the first error.
func (r *Registry) MustRegister(entities ...domain.EntitySchema) *Registry {
	for _, entity := range entities {
		if err := r.Register(entity); err != nil {
			panic(err)
		}
	}
	return r
}

// Verify checks that every relation points at a registered entity and that
// its join columns are declared on both sides. Join columns must be numeric
// or text: eager loading matches rows on the text form of the key, which is
// only stable for integers, uuids and strings.
func (r *Registry) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.namesLocked() {
		entity := r.entities[name]
		for _, relation := range entity.Relations {
			target, ok := r.entities[relation.Target]
			if !ok {
				return fmt.Errorf("entity %s: relation %s targets unknown entity %s", entity.Name, relation.Name, relation.Target)
			}
			parentColumn, targetColumn := relation.JoinColumns(entity, target)
			if !entity.HasColumn(parentColumn) {
				return fmt.Errorf("entity %s: relation %s uses undeclared column %s", entity.Name, relation.Name, parentColumn)
			}
			if !target.HasColumn(targetColumn) {
				return fmt.Errorf("entity %s: relation %s uses undeclared column %s.%s", entity.Name, relation.Name, target.Name, targetColumn)
			}
			for _, side := range []struct {
				entity domain.EntitySchema
				column string
			}{{entity, parentColumn}, {target, targetColumn}} {
				column, _ := side.entity.Column(side.column)
				if column.Type != domain.ColumnTypeNumeric && column.Type != domain.ColumnTypeText {
					return fmt.Errorf("entity %s: relation %s joins on %s column %s.%s", entity.Name, relation.Name, column.Type, side.entity.Name, side.column)
				}
			}
		}
	}
	return nil
}

// Lookup returns a copy of the registered entity.
func (r *Registry) Lookup(entity string) (domain.EntitySchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, ok := r.entities[entity]
	if !ok {
		return domain.EntitySchema{}, false
	}
	return schema.Clone(), true
}

// Names lists registered entity names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ColumnExists implements ColumnRegistry
func (r *Registry) ColumnExists(entity, name string) bool {
	_, ok := r.ColumnType(entity, name)
	return ok
}

// ColumnType implements ColumnRegistry
func (r *Registry) ColumnType(entity, name string) (domain.ColumnType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, ok := r.entities[entity]
	if !ok {
		return "", false
	}
	column, ok := schema.Column(name)
	if !ok {
		return "", false
	}
	return column.Type, true
}

// RelationNames implements RelationCatalog
func (r *Registry) RelationNames(entity string) map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, ok := r.entities[entity]
	if !ok {
		return map[string]struct{}{}
	}
	names := make(map[string]struct{}, len(schema.Relations))
	for _, relation := range schema.Relations {
		names[relation.Name] = struct{}{}
	}
	return names
}

// Relation implements RelationCatalog
func (r *Registry) Relation(entity, name string) (domain.Relation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, ok := r.entities[entity]
	if !ok {
		return domain.Relation{}, false
	}
	return schema.Relation(name)
}

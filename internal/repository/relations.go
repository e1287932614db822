package repository

import (
	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/logger"
	"github.com/rpattn/restfilter/internal/store"
)

type relationMode int

const (
	// relationInclude eager-loads accepted relations.
	relationInclude relationMode = iota
	// relationInclusive requires a related row and eager-loads it.
	relationInclusive
	// relationAbsent requires that no related row exists.
	relationAbsent
)

// WithRelationIfExists eager-loads each accepted relation and drops unknown
// names.
func (r *Repository) WithRelationIfExists(q store.Query, relations ...string) store.Query {
	return r.withRelations(q, relations, relationInclude)
}

// WithRelationIfNotEmpty keeps rows with at least one related row and
// eager-loads the relation.
func (r *Repository) WithRelationIfNotEmpty(q store.Query, relations ...string) store.Query {
	return r.withRelations(q, relations, relationInclusive)
}

// WithRelationEmpty keeps rows without any related row. Nothing is
// eager-loaded.
func (r *Repository) WithRelationEmpty(q store.Query, relations ...string) store.Query {
	return r.withRelations(q, relations, relationAbsent)
}

// HasRelationChildren keeps rows with at least one related row without
// eager-loading it.
func (r *Repository) HasRelationChildren(q store.Query, relations ...string) store.Query {
	for _, relation := range r.AcceptedRelations(relations) {
		q = q.Exists(relation)
	}
	return q
}

func (r *Repository) withRelations(q store.Query, relations []string, mode relationMode) store.Query {
	for _, relation := range r.AcceptedRelations(relations) {
		switch mode {
		case relationInclude:
			q = q.Include(relation)
		case relationInclusive:
			q = q.Exists(relation).Include(relation)
		case relationAbsent:
			q = q.NotExists(relation)
		}
	}
	return q
}

// AcceptedRelations filters names down to relations declared on the entity
// and dotted paths. Dotted paths are trusted here and resolved by the store.
func (r *Repository) AcceptedRelations(names []string) []string {
	declared := r.catalog.RelationNames(r.entity.Name)
	accepted := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := declared[name]; ok || domain.IsNestedRelationPath(name) {
			accepted = append(accepted, name)
			continue
		}
		logger.Debugf("dropping unknown relation %s on %s", name, r.entity.Name)
	}
	return accepted
}

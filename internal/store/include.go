package store

import (
	"sort"

	"github.com/rpattn/restfilter/internal/domain"
)

// IncludeTree merges eager-load paths so "posts" and "posts.comments" load
// posts once and attach comments to them.
type IncludeTree map[string]IncludeTree

// Add inserts a dotted relation path.
func (t IncludeTree) Add(path string) {
	node := t
	for _, segment := range domain.SplitRelationPath(path) {
		if segment == "" {
			return
		}
		child, ok := node[segment]
		if !ok {
			child = IncludeTree{}
			node[segment] = child
		}
		node = child
	}
}

// Names returns the relation names at this level in sorted order.
func (t IncludeTree) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Step is one hop of a resolved relation path.
type Step struct {
	Parent   domain.EntitySchema
	Relation domain.Relation
	Target   domain.EntitySchema
}

// ResolvePath walks a dotted relation path from entity. It fails when any
// segment is not a declared relation or targets an unknown entity.
func ResolvePath(schemas SchemaLookup, entity domain.EntitySchema, path string) ([]Step, bool) {
	var steps []Step
	current := entity
	for _, segment := range domain.SplitRelationPath(path) {
		relation, ok := current.Relation(segment)
		if !ok {
			return nil, false
		}
		target, ok := schemas.Lookup(relation.Target)
		if !ok {
			return nil, false
		}
		steps = append(steps, Step{Parent: current, Relation: relation, Target: target})
		current = target
	}
	return steps, len(steps) > 0
}

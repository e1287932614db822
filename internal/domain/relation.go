package domain

import "strings"

// Cardinality describes how many target rows a relation yields
type Cardinality string

const (
	CardinalityHasMany   Cardinality = "has_many"
	CardinalityHasOne    Cardinality = "has_one"
	CardinalityBelongsTo Cardinality = "belongs_to"
)

// Relation is a statically declared link from one entity to another.
//
// For has_many and has_one the target's ForeignKey points at the parent's
// LocalKey (parent primary key when empty). For belongs_to the parent's
// ForeignKey points at the target's LocalKey (target primary key when empty).
type Relation struct {
	Name        string      `json:"name" mapstructure:"name" validate:"required"`
	Target      string      `json:"target" mapstructure:"target" validate:"required"`
	Cardinality Cardinality `json:"cardinality" mapstructure:"cardinality" validate:"required,oneof=has_many has_one belongs_to"`
	ForeignKey  string      `json:"foreign_key" mapstructure:"foreign_key" validate:"required"`
	LocalKey    string      `json:"local_key,omitempty" mapstructure:"local_key"`
}

// Many reports whether the relation yields a list of records.
func (r Relation) Many() bool {
	return r.Cardinality == CardinalityHasMany
}

// JoinColumns returns the parent column and the target column that must be
// equal for a target row to belong to a parent row.
func (r Relation) JoinColumns(parent, target EntitySchema) (parentColumn, targetColumn string) {
	if r.Cardinality == CardinalityBelongsTo {
		local := r.LocalKey
		if local == "" {
			local = target.Key()
		}
		return r.ForeignKey, local
	}

	local := r.LocalKey
	if local == "" {
		local = parent.Key()
	}
	return local, r.ForeignKey
}

// IsNestedRelationPath reports whether a relation name addresses a nested
// relation such as "author.profile".
func IsNestedRelationPath(name string) bool {
	return strings.Contains(name, ".")
}

// SplitRelationPath splits a dotted relation path into its segments.
func SplitRelationPath(name string) []string {
	return strings.Split(name, ".")
}

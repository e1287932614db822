package domain

import "errors"

// ErrNotFound is returned when a lookup, update or delete addresses a
// record that does not exist. It is a benign outcome, not a store failure.
var ErrNotFound = errors.New("record not found")

// Record is one row of an entity, keyed by column name. Eager-loaded
// relations are attached under the relation name.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for key, value := range r {
		out[key] = value
	}
	return out
}

// Result is the response envelope produced for list requests.
type Result struct {
	Data    []Record `json:"data"`
	Count   int64    `json:"count"`
	Filter  int      `json:"filter"`
	PerPage *int     `json:"per_page"`
	Page    *int     `json:"page,omitempty"`
	Pages   *int     `json:"pages,omitempty"`
}

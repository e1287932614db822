package domain

import "strings"

// SortDirection represents ordering direction for sortable columns.
type SortDirection string

const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// ParseSortDirection maps "asc" (any case) to ascending and anything else
// to descending.
func ParseSortDirection(raw string) SortDirection {
	if strings.EqualFold(strings.TrimSpace(raw), string(SortDirectionAsc)) {
		return SortDirectionAsc
	}
	return SortDirectionDesc
}

// SQL returns the keyword used in ORDER BY clauses.
func (d SortDirection) SQL() string {
	if d == SortDirectionAsc {
		return "ASC"
	}
	return "DESC"
}

// EntitySort captures one ordering key.
type EntitySort struct {
	Column    string
	Direction SortDirection
}

package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// ColumnType represents the semantic type of an entity column
type ColumnType string

const (
	ColumnTypeNumeric  ColumnType = "numeric"
	ColumnTypeBoolean  ColumnType = "boolean"
	ColumnTypeDecimal  ColumnType = "decimal"
	ColumnTypeText     ColumnType = "text"
	ColumnTypeDate     ColumnType = "date"
	ColumnTypeDatetime ColumnType = "datetime"
)

// DefaultPrimaryKey is used when an entity does not declare one.
const DefaultPrimaryKey = "id"

// sqlTypeAliases maps database type names onto semantic column types.
var sqlTypeAliases = map[string]ColumnType{
	"numeric":                     ColumnTypeNumeric,
	"integer":                     ColumnTypeNumeric,
	"int":                         ColumnTypeNumeric,
	"int2":                        ColumnTypeNumeric,
	"int4":                        ColumnTypeNumeric,
	"int8":                        ColumnTypeNumeric,
	"smallint":                    ColumnTypeNumeric,
	"bigint":                      ColumnTypeNumeric,
	"serial":                      ColumnTypeNumeric,
	"bigserial":                   ColumnTypeNumeric,
	"boolean":                     ColumnTypeBoolean,
	"bool":                        ColumnTypeBoolean,
	"decimal":                     ColumnTypeDecimal,
	"real":                        ColumnTypeDecimal,
	"float":                       ColumnTypeDecimal,
	"float4":                      ColumnTypeDecimal,
	"float8":                      ColumnTypeDecimal,
	"double precision":            ColumnTypeDecimal,
	"money":                       ColumnTypeDecimal,
	"text":                        ColumnTypeText,
	"string":                      ColumnTypeText,
	"varchar":                     ColumnTypeText,
	"character varying":           ColumnTypeText,
	"character":                   ColumnTypeText,
	"char":                        ColumnTypeText,
	"uuid":                        ColumnTypeText,
	"json":                        ColumnTypeText,
	"jsonb":                       ColumnTypeText,
	"bytea":                       ColumnTypeText,
	"date":                        ColumnTypeDate,
	"datetime":                    ColumnTypeDatetime,
	"timestamp":                   ColumnTypeDatetime,
	"timestamptz":                 ColumnTypeDatetime,
	"timestamp without time zone": ColumnTypeDatetime,
	"timestamp with time zone":    ColumnTypeDatetime,
}

// ParseColumnType resolves a semantic or database type name.
func ParseColumnType(raw string) (ColumnType, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if t, ok := sqlTypeAliases[name]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unsupported column type %q", raw)
}

// IsScalarComparable reports whether values of this type are matched by
// equality rather than by substring.
func (t ColumnType) IsScalarComparable() bool {
	switch t {
	case ColumnTypeNumeric, ColumnTypeBoolean, ColumnTypeDecimal:
		return true
	}
	return false
}

// IsTextLike reports whether values of this type are matched by substring.
func (t ColumnType) IsTextLike() bool {
	return !t.IsScalarComparable()
}

// Coerce converts raw input into a value comparable with the column. It
// reports false when the input cannot represent a value of this type.
func (t ColumnType) Coerce(raw string) (any, bool) {
	s := strings.TrimSpace(raw)
	switch t {
	case ColumnTypeNumeric:
		if !IsNumeric(s) {
			return nil, false
		}
		if !strings.ContainsAny(s, ".eE") {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, true
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	case ColumnTypeDecimal:
		if !IsNumeric(s) {
			return nil, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	case ColumnTypeBoolean:
		switch strings.ToLower(s) {
		case "1", "t", "true":
			return true, true
		case "0", "f", "false":
			return false, true
		}
		return nil, false
	case ColumnTypeDate, ColumnTypeDatetime:
		if _, err := cast.ToTimeE(s); err != nil {
			return nil, false
		}
		return s, true
	}
	return raw, true
}

// IsNumeric reports whether raw is a finite base-10 number. Prefixed
// forms such as 0x1A or 0b11 and digit separators are rejected.
func IsNumeric(raw string) bool {
	s := strings.TrimSpace(raw)
	if s == "" || strings.Trim(s, "0123456789+-.eE") != "" {
		return false
	}
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// IsTemporal reports whether the column holds a date or a datetime.
func (t ColumnType) IsTemporal() bool {
	return t == ColumnTypeDate || t == ColumnTypeDatetime
}

// Column is a declared column of an entity
type Column struct {
	Name      string     `json:"name" mapstructure:"name" validate:"required"`
	Type      ColumnType `json:"type" mapstructure:"type" validate:"required,oneof=numeric boolean decimal text date datetime"`
	Encrypted bool       `json:"encrypted,omitempty" mapstructure:"encrypted"`
}

// EntitySchema describes a queryable record type and the table backing it
type EntitySchema struct {
	Name       string     `json:"name" mapstructure:"name" validate:"required"`
	Table      string     `json:"table" mapstructure:"table" validate:"required"`
	PrimaryKey string     `json:"primary_key" mapstructure:"primary_key"`
	Columns    []Column   `json:"columns" mapstructure:"columns" validate:"required,min=1,dive"`
	Fillable   []string   `json:"fillable" mapstructure:"fillable"`
	Guarded    []string   `json:"guarded" mapstructure:"guarded"`
	Relations  []Relation `json:"relations,omitempty" mapstructure:"relations" validate:"dive"`
}

// Key returns the primary key column name.
func (s EntitySchema) Key() string {
	if s.PrimaryKey == "" {
		return DefaultPrimaryKey
	}
	return s.PrimaryKey
}

// Column looks up a declared column by name.
func (s EntitySchema) Column(name string) (Column, bool) {
	for _, column := range s.Columns {
		if column.Name == name {
			return column, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the column is declared.
func (s EntitySchema) HasColumn(name string) bool {
	_, ok := s.Column(name)
	return ok
}

// ColumnNames returns declared column names in declaration order.
func (s EntitySchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, column := range s.Columns {
		names[i] = column.Name
	}
	return names
}

// IsFillable reports whether a column may be set from external input.
func (s EntitySchema) IsFillable(name string) bool {
	for _, fillable := range s.Fillable {
		if fillable == name {
			return true
		}
	}
	return false
}

// Relation looks up a declared relation by name.
func (s EntitySchema) Relation(name string) (Relation, bool) {
	for _, relation := range s.Relations {
		if relation.Name == name {
			return relation, true
		}
	}
	return Relation{}, false
}

// OnlyFillable returns a copy of data restricted to fillable columns.
func (s EntitySchema) OnlyFillable(data Record) Record {
	out := make(Record, len(data))
	for key, value := range data {
		if s.IsFillable(key) {
			out[key] = value
		}
	}
	return out
}

// Clone returns a deep copy so callers cannot mutate registered schemas.
func (s EntitySchema) Clone() EntitySchema {
	clone := s
	clone.Columns = append([]Column(nil), s.Columns...)
	clone.Fillable = append([]string(nil), s.Fillable...)
	clone.Guarded = append([]string(nil), s.Guarded...)
	clone.Relations = append([]Relation(nil), s.Relations...)
	return clone
}

package store

import "fmt"

// Operator identifies a predicate kind
type Operator string

const (
	OpEq            Operator = "eq"
	OpIn            Operator = "in"
	OpBetween       Operator = "between"
	OpLike          Operator = "like"
	OpEncryptedLike Operator = "encrypted_like"
	OpIsNull        Operator = "is_null"
	OpIsNotNull     Operator = "is_not_null"
)

// Predicate is a single column condition. Backends translate it into their
// own representation.
type Predicate struct {
	Op     Operator
	Column string
	Value  any
	Values []any
}

// Eq matches rows whose column equals value.
func Eq(column string, value any) Predicate {
	return Predicate{Op: OpEq, Column: column, Value: value}
}

// In matches rows whose column is one of values.
func In(column string, values ...any) Predicate {
	return Predicate{Op: OpIn, Column: column, Values: values}
}

// Between matches rows with low <= column <= high.
func Between(column string, low, high any) Predicate {
	return Predicate{Op: OpBetween, Column: column, Values: []any{low, high}}
}

// Like is a case-insensitive substring match. Wildcard characters in
// needle match literally.
func Like(column, needle string) Predicate {
	return Predicate{Op: OpLike, Column: column, Value: needle}
}

// EncryptedLike is Like evaluated against the decrypted column value.
func EncryptedLike(column, needle string) Predicate {
	return Predicate{Op: OpEncryptedLike, Column: column, Value: needle}
}

// IsNull matches rows where column is null.
func IsNull(column string) Predicate {
	return Predicate{Op: OpIsNull, Column: column}
}

// IsNotNull matches rows where column is not null.
func IsNotNull(column string) Predicate {
	return Predicate{Op: OpIsNotNull, Column: column}
}

func (p Predicate) String() string {
	switch p.Op {
	case OpIn:
		return fmt.Sprintf("%s in %v", p.Column, p.Values)
	case OpBetween:
		return fmt.Sprintf("%s between %v", p.Column, p.Values)
	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", p.Column, p.Op)
	}
	return fmt.Sprintf("%s %s %v", p.Column, p.Op, p.Value)
}

// Package query builds parameterized WHERE, LIMIT and OFFSET fragments for catalog queries
package query

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThanOrEqual
	OpLessThanOrEqual
	OpIn
	OpNotIn
	OpLike
	OpILike
	OpIsNull
	OpIsNotNull
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "= ANY"
	case OpNotIn:
		return "<> ALL"
	case OpLike:
		return "LIKE"
	case OpILike:
		return "ILIKE"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	default:
		return "UNKNOWN"
	}
}

// Condition represents a single WHERE condition.
// Column is a trusted SQL expression taken from a whitelist, never from input.
type Condition struct {
	Column   string
	Operator Operator
	Value    interface{}
}

// Predicate is an AND-joined list of conditions. The zero value matches all rows.
type Predicate struct {
	Conditions []*Condition
}

// Empty reports whether the predicate has no conditions
func (p Predicate) Empty() bool {
	return len(p.Conditions) == 0
}

// And returns a copy of the predicate with one more condition appended
func (p Predicate) And(column string, op Operator, value interface{}) Predicate {
	conds := make([]*Condition, 0, len(p.Conditions)+1)
	conds = append(conds, p.Conditions...)
	conds = append(conds, &Condition{Column: column, Operator: op, Value: value})
	return Predicate{Conditions: conds}
}

// Merge returns a predicate holding the conditions of p followed by those of other
func (p Predicate) Merge(other Predicate) Predicate {
	conds := make([]*Condition, 0, len(p.Conditions)+len(other.Conditions))
	conds = append(conds, p.Conditions...)
	conds = append(conds, other.Conditions...)
	return Predicate{Conditions: conds}
}

// ToSQL renders the predicate without the WHERE keyword. An empty predicate renders "".
func (p Predicate) ToSQL(paramCounter *int, args *[]interface{}) (string, error) {
	if p.Empty() {
		return "", nil
	}

	parts := make([]string, 0, len(p.Conditions))
	for _, cond := range p.Conditions {
		sql, err := conditionToSQL(cond, paramCounter, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}

	return strings.Join(parts, " AND "), nil
}

// conditionToSQL converts a condition to SQL with parameterized values
func conditionToSQL(cond *Condition, paramCounter *int, args *[]interface{}) (string, error) {
	if cond.Column == "" {
		return "", fmt.Errorf("condition without column")
	}

	switch cond.Operator {
	case OpEqual, OpNotEqual, OpGreaterThanOrEqual, OpLessThanOrEqual, OpLike, OpILike:
		*args = append(*args, cond.Value)
		sql := fmt.Sprintf("%s %s $%d", cond.Column, cond.Operator, *paramCounter)
		*paramCounter++
		return sql, nil

	case OpIn, OpNotIn:
		value, err := arrayValue(cond.Value)
		if err != nil {
			return "", fmt.Errorf("%s operator on %s: %w", cond.Operator, cond.Column, err)
		}
		*args = append(*args, value)
		sql := fmt.Sprintf("%s %s($%d)", cond.Column, cond.Operator, *paramCounter)
		*paramCounter++
		return sql, nil

	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", cond.Column, cond.Operator), nil

	default:
		return "", fmt.Errorf("unsupported operator: %v", cond.Operator)
	}
}

// arrayValue wraps supported slices with pq.Array so they bind as one array parameter
func arrayValue(v interface{}) (interface{}, error) {
	switch vals := v.(type) {
	case []int64:
		return pq.Array(vals), nil
	case []string:
		return pq.Array(vals), nil
	default:
		return nil, fmt.Errorf("requires []int64 or []string, got %T", v)
	}
}

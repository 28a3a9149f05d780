// Package query renders filter trees into parameterized SQL predicates.
package query

import "strings"

// FilterOperator is a short operator name accepted alongside the SQL
// symbols the filter schema uses.
type FilterOperator string

const (
	OpEqual          FilterOperator = "eq"
	OpNotEqual       FilterOperator = "neq"
	OpGreaterThan    FilterOperator = "gt"
	OpGreaterOrEqual FilterOperator = "gte"
	OpLessThan       FilterOperator = "lt"
	OpLessOrEqual    FilterOperator = "lte"
	OpLike           FilterOperator = "like"
	OpILike          FilterOperator = "ilike"
	OpIn             FilterOperator = "in"
	OpNotIn          FilterOperator = "nin"
	OpIs             FilterOperator = "is"
	OpIsNot          FilterOperator = "isnot"
)

const (
	sqlIn    = "IN"
	sqlNotIn = "NOT IN"
	sqlIs    = "IS"
	sqlIsNot = "IS NOT"
)

// sqlOperators maps accepted operator spellings to the emitted SQL operator
var sqlOperators = map[string]string{
	string(OpEqual):          "=",
	"=":                      "=",
	string(OpNotEqual):       "<>",
	"<>":                     "<>",
	"!=":                     "<>",
	string(OpGreaterThan):    ">",
	">":                      ">",
	string(OpGreaterOrEqual): ">=",
	">=":                     ">=",
	string(OpLessThan):       "<",
	"<":                      "<",
	string(OpLessOrEqual):    "<=",
	"<=":                     "<=",
	string(OpLike):           "LIKE",
	"~~":                     "LIKE",
	string(OpILike):          "ILIKE",
	"~~*":                    "ILIKE",
	string(OpIn):             sqlIn,
	string(OpNotIn):          sqlNotIn,
	string(OpIs):             sqlIs,
	string(OpIsNot):          sqlIsNot,
	"is not":                 sqlIsNot,
}

// SQLOperator returns the SQL operator for op. The empty operator means equality.
func SQLOperator(op string) (string, bool) {
	if op == "" {
		return "=", true
	}
	sqlOp, ok := sqlOperators[strings.ToLower(strings.TrimSpace(op))]
	return sqlOp, ok
}

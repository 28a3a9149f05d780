package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/supabase/supabase-sub056/internal/filter"
	"github.com/supabase/supabase-sub056/internal/sqlident"
)

// Clause is a rendered predicate and its positional arguments
type Clause struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// BuildWhere renders group as a predicate with placeholders starting at $1.
// Empty groups render nothing, so an empty tree yields an empty clause.
func BuildWhere(group *filter.Group) (*Clause, error) {
	return BuildWhereFrom(group, 0)
}

// BuildWhereFrom is BuildWhere with placeholders numbered after offset.
func BuildWhereFrom(group *filter.Group, offset int) (*Clause, error) {
	if offset < 0 {
		return nil, fmt.Errorf("negative placeholder offset %d", offset)
	}

	b := &builder{offset: offset, args: []any{}}
	sql, _, err := b.group(group)
	if err != nil {
		return nil, err
	}
	return &Clause{SQL: sql, Args: b.args}, nil
}

type builder struct {
	args   []any
	offset int
}

func (b *builder) placeholder(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(b.offset+len(b.args))
}

// group returns the rendered predicate and how many parts it joined.
func (b *builder) group(g *filter.Group) (string, int, error) {
	if g == nil {
		return "", 0, nil
	}

	joiner := " AND "
	switch g.LogicalOperator {
	case filter.And, "":
	case filter.Or:
		joiner = " OR "
	default:
		return "", 0, fmt.Errorf("invalid logical operator %q", g.LogicalOperator)
	}

	parts := make([]string, 0, len(g.Conditions))
	for i, n := range g.Conditions {
		var part string
		var err error
		switch c := n.(type) {
		case *filter.Group:
			var count int
			part, count, err = b.group(c)
			if count > 1 {
				part = "(" + part + ")"
			}
		case *filter.Condition:
			if c == nil {
				continue
			}
			part, err = b.condition(c)
		}
		if err != nil {
			return "", 0, fmt.Errorf("condition %d: %w", i, err)
		}
		if part != "" {
			parts = append(parts, part)
		}
	}

	return strings.Join(parts, joiner), len(parts), nil
}

func (b *builder) condition(c *filter.Condition) (string, error) {
	if c.PropertyName == "" {
		return "", errors.New("missing property name")
	}
	column := sqlident.QuoteIfNeeded(c.PropertyName)

	op, ok := SQLOperator(c.Operator)
	if !ok {
		return "", fmt.Errorf("unsupported operator %q", c.Operator)
	}

	switch op {
	case sqlIs, sqlIsNot:
		lit, err := isLiteral(c.Value)
		if err != nil {
			return "", err
		}
		return column + " " + op + " " + lit, nil
	case sqlIn, sqlNotIn:
		values, ok := c.Value.([]any)
		if !ok || len(values) == 0 {
			return "", fmt.Errorf("%s expects a non-empty list", strings.ToLower(op))
		}
		if op == sqlIn {
			return column + " = ANY(" + b.placeholder(values) + ")", nil
		}
		return column + " <> ALL(" + b.placeholder(values) + ")", nil
	default:
		if c.Value == nil {
			return "", fmt.Errorf("operator %q needs a value, use is for null", c.Operator)
		}
		return column + " " + op + " " + b.placeholder(c.Value), nil
	}
}

// isLiteral renders the right side of IS, which cannot be a placeholder.
func isLiteral(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case string:
		switch s := strings.ToUpper(strings.TrimSpace(x)); s {
		case "NULL", "TRUE", "FALSE", "UNKNOWN":
			return s, nil
		}
	}
	return "", fmt.Errorf("is expects null, true, false or unknown, got %v", v)
}

package filter

import (
	"errors"
	"fmt"
)

// Path addresses a node by its condition index at each level, starting at the root group.
// The empty path is the root itself.
type Path []int

var (
	ErrInvalidPath     = errors.New("path does not address a node")
	ErrNotAGroup       = errors.New("path does not address a group")
	ErrNotACondition   = errors.New("path does not address a condition")
	ErrUnknownProperty = errors.New("unknown property")
	ErrUnknownEdit     = errors.New("unknown edit operation")
)

// FindGroupByPath returns the group addressed by path, or nil.
func FindGroupByPath(root *Group, path Path) *Group {
	current := root
	for _, idx := range path {
		if current == nil || idx < 0 || idx >= len(current.Conditions) {
			return nil
		}
		next, ok := current.Conditions[idx].(*Group)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// FindConditionByPath returns the leaf condition addressed by path, or nil.
func FindConditionByPath(root *Group, path Path) *Condition {
	if len(path) == 0 {
		return nil
	}
	parent := FindGroupByPath(root, path[:len(path)-1])
	idx := path[len(path)-1]
	if parent == nil || idx < 0 || idx >= len(parent.Conditions) {
		return nil
	}
	c, _ := parent.Conditions[idx].(*Condition)
	return c
}

// editGroup rebuilds the wrappers along path and applies fn to the group at
// its end. Untouched siblings are shared with root.
func editGroup(root *Group, path Path, fn func(*Group) (*Group, error)) (*Group, error) {
	if root == nil {
		return nil, ErrInvalidPath
	}
	if len(path) == 0 {
		return fn(root)
	}

	idx := path[0]
	if idx < 0 || idx >= len(root.Conditions) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidPath, idx)
	}
	child, ok := root.Conditions[idx].(*Group)
	if !ok {
		return nil, ErrNotAGroup
	}
	updated, err := editGroup(child, path[1:], fn)
	if err != nil {
		return nil, err
	}

	out := &Group{LogicalOperator: root.LogicalOperator, Conditions: make([]Node, len(root.Conditions))}
	copy(out.Conditions, root.Conditions)
	out.Conditions[idx] = updated
	return out, nil
}

func withAppended(g *Group, n Node) *Group {
	conditions := make([]Node, len(g.Conditions), len(g.Conditions)+1)
	copy(conditions, g.Conditions)
	return &Group{LogicalOperator: g.LogicalOperator, Conditions: append(conditions, n)}
}

// AddCondition appends an empty "=" condition on property to the group at path.
func AddCondition(root *Group, path Path, property Property) (*Group, error) {
	return editGroup(root, path, func(g *Group) (*Group, error) {
		return withAppended(g, &Condition{PropertyName: property.Name, Operator: DefaultOperator}), nil
	})
}

// AddGroup appends an empty AND group to the group at path.
func AddGroup(root *Group, path Path) (*Group, error) {
	return editGroup(root, path, func(g *Group) (*Group, error) {
		return withAppended(g, &Group{LogicalOperator: And, Conditions: []Node{}}), nil
	})
}

// ReplaceGroupAtPath swaps the group at path for replacement.
func ReplaceGroupAtPath(root *Group, path Path, replacement *Group) (*Group, error) {
	if replacement == nil {
		return nil, ErrNotAGroup
	}
	return editGroup(root, path, func(*Group) (*Group, error) {
		return replacement, nil
	})
}

// SetLogicalOperator changes the operator of the group at path.
func SetLogicalOperator(root *Group, path Path, op LogicalOperator) (*Group, error) {
	return editGroup(root, path, func(g *Group) (*Group, error) {
		return &Group{LogicalOperator: op, Conditions: g.Conditions}, nil
	})
}

func editCondition(root *Group, path Path, fn func(Condition) Condition) (*Group, error) {
	if len(path) == 0 {
		return nil, ErrNotACondition
	}
	idx := path[len(path)-1]
	return editGroup(root, path[:len(path)-1], func(g *Group) (*Group, error) {
		if idx < 0 || idx >= len(g.Conditions) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidPath, idx)
		}
		c, ok := g.Conditions[idx].(*Condition)
		if !ok || c == nil {
			return nil, ErrNotACondition
		}
		updated := fn(*c)

		out := &Group{LogicalOperator: g.LogicalOperator, Conditions: make([]Node, len(g.Conditions))}
		copy(out.Conditions, g.Conditions)
		out.Conditions[idx] = &updated
		return out, nil
	})
}

// UpdateConditionValue sets the value of the condition at path.
func UpdateConditionValue(root *Group, path Path, value any) (*Group, error) {
	return editCondition(root, path, func(c Condition) Condition {
		c.Value = value
		return c
	})
}

// UpdateConditionOperator sets the operator of the condition at path.
func UpdateConditionOperator(root *Group, path Path, operator string) (*Group, error) {
	return editCondition(root, path, func(c Condition) Condition {
		c.Operator = operator
		return c
	})
}

// RemoveAtPath drops the node at path. The root cannot be removed.
func RemoveAtPath(root *Group, path Path) (*Group, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: cannot remove the root group", ErrInvalidPath)
	}
	idx := path[len(path)-1]
	return editGroup(root, path[:len(path)-1], func(g *Group) (*Group, error) {
		if idx < 0 || idx >= len(g.Conditions) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidPath, idx)
		}
		conditions := make([]Node, 0, len(g.Conditions)-1)
		conditions = append(conditions, g.Conditions[:idx]...)
		conditions = append(conditions, g.Conditions[idx+1:]...)
		return &Group{LogicalOperator: g.LogicalOperator, Conditions: conditions}, nil
	})
}

// EditOp names one of the path edits ApplyEdit performs
type EditOp string

const (
	EditAddCondition       EditOp = "add_condition"
	EditAddGroup           EditOp = "add_group"
	EditSetLogicalOperator EditOp = "set_logical_operator"
	EditUpdateValue        EditOp = "update_value"
	EditUpdateOperator     EditOp = "update_operator"
	EditRemove             EditOp = "remove"
	EditReplaceGroup       EditOp = "replace_group"
)

// Edit is a single change to the node at Path. Which of the other fields
// are read depends on Op.
type Edit struct {
	Op              EditOp          `json:"op"`
	Path            Path            `json:"path"`
	Property        string          `json:"property,omitempty"`
	Operator        string          `json:"operator,omitempty"`
	Value           any             `json:"value,omitempty"`
	LogicalOperator LogicalOperator `json:"logicalOperator,omitempty"`
	Replacement     *Group          `json:"replacement,omitempty"`
}

// ApplyEdit performs e on root and returns the new tree. When properties is
// non-empty, added conditions must name one of them.
func ApplyEdit(root *Group, e Edit, properties []Property) (*Group, error) {
	switch e.Op {
	case EditAddCondition:
		if e.Property == "" {
			return nil, fmt.Errorf("%w: property is required", ErrUnknownProperty)
		}
		prop := Property{Name: e.Property}
		if len(properties) > 0 {
			found, ok := findProperty(properties, e.Property)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, e.Property)
			}
			prop = found
		}
		return AddCondition(root, e.Path, prop)
	case EditAddGroup:
		return AddGroup(root, e.Path)
	case EditSetLogicalOperator:
		if e.LogicalOperator != And && e.LogicalOperator != Or {
			return nil, fmt.Errorf("invalid logical operator %q", e.LogicalOperator)
		}
		return SetLogicalOperator(root, e.Path, e.LogicalOperator)
	case EditUpdateValue:
		return UpdateConditionValue(root, e.Path, e.Value)
	case EditUpdateOperator:
		if e.Operator == "" {
			return nil, errors.New("operator is required")
		}
		return UpdateConditionOperator(root, e.Path, e.Operator)
	case EditRemove:
		return RemoveAtPath(root, e.Path)
	case EditReplaceGroup:
		return ReplaceGroupAtPath(root, e.Path, e.Replacement)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEdit, e.Op)
	}
}

// NormalizeGenerated checks a machine-generated tree against properties and
// fills in defaults: a missing operator becomes "=" and a missing logical
// operator becomes AND. Unknown property names are an error.
func NormalizeGenerated(group *Group, properties []Property) (*Group, error) {
	if group == nil {
		return &Group{LogicalOperator: And, Conditions: []Node{}}, nil
	}

	op := group.LogicalOperator
	switch op {
	case "":
		op = And
	case And, Or:
	default:
		return nil, fmt.Errorf("invalid logical operator %q", op)
	}

	out := &Group{LogicalOperator: op, Conditions: make([]Node, 0, len(group.Conditions))}
	for _, n := range group.Conditions {
		switch c := n.(type) {
		case *Group:
			nested, err := NormalizeGenerated(c, properties)
			if err != nil {
				return nil, err
			}
			out.Conditions = append(out.Conditions, nested)
		case *Condition:
			if c == nil {
				continue
			}
			if _, ok := findProperty(properties, c.PropertyName); !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, c.PropertyName)
			}
			operator := c.Operator
			if operator == "" {
				operator = DefaultOperator
			}
			out.Conditions = append(out.Conditions, &Condition{
				PropertyName: c.PropertyName,
				Operator:     operator,
				Value:        c.Value,
			})
		}
	}
	return out, nil
}

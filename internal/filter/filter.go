package filter

// IsFilterGroup reports whether node is a group rather than a leaf condition.
func IsFilterGroup(node Node) bool {
	g, ok := node.(*Group)
	return ok && g != nil
}

// IsFilterGroupJSON reports whether an undecoded JSON object is a group,
// i.e. carries a logicalOperator key.
func IsFilterGroupJSON[V any](raw map[string]V) bool {
	_, ok := raw["logicalOperator"]
	return ok
}

// ValidateFilterGroup reports whether every leaf condition in group names a
// known property and, where that property restricts its operators, uses one
// of them. Conditions are checked depth-first, left to right. An empty group
// is valid.
func ValidateFilterGroup(group *Group, properties []Property) bool {
	if group == nil {
		return true
	}

	for _, n := range group.Conditions {
		switch c := n.(type) {
		case *Group:
			if !ValidateFilterGroup(c, properties) {
				return false
			}
		case *Condition:
			if !validateCondition(c, properties) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func validateCondition(c *Condition, properties []Property) bool {
	if c == nil {
		return false
	}

	prop, ok := findProperty(properties, c.PropertyName)
	if !ok {
		return false
	}
	if len(prop.Operators) == 0 {
		return true
	}

	for _, op := range SerializeOperators(prop.Operators) {
		if op == c.Operator {
			return true
		}
	}
	return false
}

func findProperty(properties []Property, name string) (Property, bool) {
	for _, p := range properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// EnforceAndLogicalOperator returns a copy of group whose groups, at every
// level, use AND. Leaf conditions are shared with the input; group wrappers
// are rebuilt so the input is never modified.
func EnforceAndLogicalOperator(group *Group) *Group {
	if group == nil {
		return nil
	}

	out := &Group{
		LogicalOperator: And,
		Conditions:      make([]Node, len(group.Conditions)),
	}
	for i, n := range group.Conditions {
		if g, ok := n.(*Group); ok {
			out.Conditions[i] = EnforceAndLogicalOperator(g)
			continue
		}
		out.Conditions[i] = n
	}
	return out
}

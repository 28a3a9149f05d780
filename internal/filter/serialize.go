package filter

// DefaultOperator is used whenever a property declares no usable operator.
const DefaultOperator = "="

// SerializeOptions flattens option choices into display strings, preferring
// the label. It returns nil when no entry yields a string.
func SerializeOptions(options []Choice) []string {
	if len(options) == 0 {
		return nil
	}

	out := make([]string, 0, len(options))
	for _, o := range options {
		switch {
		case o.Label != "":
			out = append(out, o.Label)
		case o.Value != "":
			out = append(out, o.Value)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SerializeOperators flattens operator choices into operator strings,
// preferring the value. The result is never empty: it falls back to "=".
func SerializeOperators(operators []Choice) []string {
	out := make([]string, 0, len(operators))
	for _, o := range operators {
		switch {
		case o.Value != "":
			out = append(out, o.Value)
		case o.Label != "":
			out = append(out, o.Label)
		}
	}
	if len(out) == 0 {
		return []string{DefaultOperator}
	}
	return out
}

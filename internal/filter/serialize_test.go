package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerializeOptions(t *testing.T) {
	tests := []struct {
		name    string
		options []Choice
		want    []string
	}{
		{name: "nil", options: nil, want: nil},
		{name: "empty", options: []Choice{}, want: nil},
		{name: "bare strings unchanged", options: Texts("a", "b"), want: []string{"a", "b"}},
		{name: "label preferred", options: []Choice{{Label: "Active", Value: "active"}}, want: []string{"Active"}},
		{name: "value when no label", options: []Choice{{Value: "archived"}}, want: []string{"archived"}},
		{name: "entries without either dropped", options: []Choice{{}, Text("x"), {}}, want: []string{"x"}},
		{name: "nothing usable", options: []Choice{{}, {}}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SerializeOptions(tt.options))
		})
	}
}

func TestSerializeOperators(t *testing.T) {
	tests := []struct {
		name      string
		operators []Choice
		want      []string
	}{
		{name: "nil falls back", operators: nil, want: []string{"="}},
		{name: "empty falls back", operators: []Choice{}, want: []string{"="}},
		{name: "unusable entry falls back", operators: []Choice{{}}, want: []string{"="}},
		{name: "bare strings", operators: Texts("=", "<>"), want: []string{"=", "<>"}},
		{name: "value preferred", operators: []Choice{{Label: "equals", Value: "="}}, want: []string{"="}},
		{name: "label when no value", operators: []Choice{{Label: "~~"}}, want: []string{"~~"}},
		{name: "mixed", operators: []Choice{Text(">"), {}, {Label: "less", Value: "<"}}, want: []string{">", "<"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SerializeOperators(tt.operators))
		})
	}
}

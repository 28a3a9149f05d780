// Package filter validates and normalizes recursive AND/OR filter trees
// against a property schema.
package filter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// LogicalOperator joins the conditions of a group
type LogicalOperator string

const (
	And LogicalOperator = "AND"
	Or  LogicalOperator = "OR"
)

// PropertyType is the value type of a filterable property
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeNumber  PropertyType = "number"
	TypeDate    PropertyType = "date"
	TypeBoolean PropertyType = "boolean"
)

// Node is either a *Condition or a *Group.
type Node interface {
	node()
}

// Condition is a leaf predicate.
type Condition struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        any    `json:"value"`
}

// Group is an ordered list of conditions and nested groups joined by one logical operator.
type Group struct {
	LogicalOperator LogicalOperator `json:"logicalOperator"`
	Conditions      []Node          `json:"conditions"`
}

func (*Condition) node() {}
func (*Group) node()     {}

// MarshalJSON always emits a conditions array, never null.
func (g *Group) MarshalJSON() ([]byte, error) {
	conditions := g.Conditions
	if conditions == nil {
		conditions = []Node{}
	}
	return json.Marshal(struct {
		LogicalOperator LogicalOperator `json:"logicalOperator"`
		Conditions      []Node          `json:"conditions"`
	}{g.LogicalOperator, conditions})
}

// UnmarshalJSON decodes a group, telling nested groups apart from leaf
// conditions by the presence of a logicalOperator key.
func (g *Group) UnmarshalJSON(data []byte) error {
	var raw struct {
		LogicalOperator LogicalOperator   `json:"logicalOperator"`
		Conditions      []json.RawMessage `json:"conditions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	g.LogicalOperator = raw.LogicalOperator
	g.Conditions = make([]Node, 0, len(raw.Conditions))
	for i, item := range raw.Conditions {
		n, err := DecodeNode(item)
		if err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
		g.Conditions = append(g.Conditions, n)
	}
	return nil
}

// DecodeNode decodes a single JSON node into a *Group or a *Condition.
func DecodeNode(data []byte) (Node, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, err
	}
	if IsFilterGroupJSON(keys) {
		g := &Group{}
		if err := json.Unmarshal(data, g); err != nil {
			return nil, err
		}
		return g, nil
	}

	c := &Condition{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ErrRootNotGroup is returned by ParseGroup when the top-level node is a
// leaf condition.
var ErrRootNotGroup = errors.New("filter must be a group with a logicalOperator")

// ParseGroup decodes a filter document whose top-level node must be a group.
// An empty or null document is an empty AND group.
func ParseGroup(data []byte) (*Group, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return &Group{LogicalOperator: And, Conditions: []Node{}}, nil
	}

	node, err := DecodeNode(trimmed)
	if err != nil {
		return nil, err
	}
	group, ok := node.(*Group)
	if !ok || !IsFilterGroup(group) {
		return nil, ErrRootNotGroup
	}
	return group, nil
}

// Choice is an operator or option entry. It is written either as a bare
// string or as an object with optional label and value.
type Choice struct {
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Text returns a Choice built from a bare string.
func Text(s string) Choice {
	return Choice{Label: s, Value: s}
}

// Texts returns a Choice per bare string.
func Texts(items ...string) []Choice {
	out := make([]Choice, len(items))
	for i, s := range items {
		out[i] = Text(s)
	}
	return out
}

func (c Choice) isText() bool {
	return c.Label != "" && c.Label == c.Value
}

func (c Choice) MarshalJSON() ([]byte, error) {
	if c.isText() {
		return json.Marshal(c.Label)
	}
	type plain Choice
	return json.Marshal(plain(c))
}

func (c *Choice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Text(s)
		return nil
	}
	type plain Choice
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Choice(p)
	return nil
}

// UnmarshalYAML accepts the same two forms as UnmarshalJSON.
func (c *Choice) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		*c = Text(s)
		return nil
	}
	type plain Choice
	var p plain
	if err := unmarshal(&p); err != nil {
		return err
	}
	*c = Choice(p)
	return nil
}

// Property describes a filterable field.
type Property struct {
	Label     string       `json:"label" yaml:"label"`
	Name      string       `json:"name" yaml:"name"`
	Type      PropertyType `json:"type" yaml:"type"`
	Operators []Choice     `json:"operators,omitempty" yaml:"operators,omitempty"`
	Options   []Choice     `json:"options,omitempty" yaml:"options,omitempty"`
}

// internal/condition/codec.go
package condition

import (
	"encoding/json"
	"errors"
	"fmt"
)

/*
 * Canonical interchange codec for condition trees.
 *
 * Wire shape (JSON-compatible, consumed by the external evaluation engine):
 *   group: {"op": "AND"|"OR", "children": [node, ...]}
 *   leaf:  {"field": string, "operator": code,
 *           "value": scalar | [scalar, ...] | [low, high] | absent}
 *
 * Round-trip law: Decode(Encode(t)) is structurally equal to t. Map key
 * order is irrelevant; child order within groups is preserved. Decoding
 * performs shape dispatch only (group vs leaf, scalar vs list); semantic
 * validation is the validator's job.
 */

// ErrNotAGroup indicates a canonical form whose root is not a group node.
// The root of every tree is a group so that an empty rule body has an
// explicit representation.
var ErrNotAGroup = errors.New("canonical form root is not a group")

type groupJSON struct {
	Op       LogicalOp `json:"op"`
	Children []Node    `json:"children"`
}

type leafJSON struct {
	Field    string          `json:"field"`
	Operator Operator        `json:"operator"`
	Value    json.RawMessage `json:"value,omitempty"`
}

// Encode serializes a tree to its canonical JSON form.
func Encode(g *Group) ([]byte, error) {
	return json.Marshal(GroupNode(*g))
}

// Decode parses canonical JSON into a tree, requiring a group at the root.
func Decode(data []byte) (*Group, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("malformed canonical form: %w", err)
	}
	if n.Group == nil {
		return nil, ErrNotAGroup
	}
	return n.Group, nil
}

// MarshalJSON implements json.Marshaler for the tagged union.
func (n Node) MarshalJSON() ([]byte, error) {
	switch {
	case n.Group != nil:
		children := n.Group.Children
		if children == nil {
			// Emit the no-conditions marker as [] rather than null.
			children = []Node{}
		}
		return json.Marshal(groupJSON{Op: n.Group.Op, Children: children})
	case n.Leaf != nil:
		out := leafJSON{Field: n.Leaf.Field, Operator: n.Leaf.Operator}
		var payload any
		switch {
		case n.Leaf.Values != nil:
			payload = n.Leaf.Values
		case n.Leaf.Value != nil:
			payload = n.Leaf.Value
		default:
			return json.Marshal(out)
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		out.Value = raw
		return json.Marshal(out)
	default:
		return nil, errors.New("node has neither leaf nor group")
	}
}

// UnmarshalJSON implements json.Unmarshaler for the tagged union.
// Dispatches on the "op" key: groups carry it, leaves never do.
func (n *Node) UnmarshalJSON(data []byte) error {
	var probe struct {
		Op       *LogicalOp      `json:"op"`
		Children []Node          `json:"children"`
		Field    string          `json:"field"`
		Operator Operator        `json:"operator"`
		Value    json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if probe.Op != nil {
		children := probe.Children
		if children == nil {
			children = []Node{}
		}
		n.Group = &Group{Op: *probe.Op, Children: children}
		n.Leaf = nil
		return nil
	}

	leaf := Leaf{Field: probe.Field, Operator: probe.Operator}
	if len(probe.Value) > 0 {
		var v any
		if err := json.Unmarshal(probe.Value, &v); err != nil {
			return err
		}
		if list, ok := v.([]any); ok {
			leaf.Values = list
		} else {
			leaf.Value = v
		}
	}
	n.Leaf = &leaf
	n.Group = nil
	return nil
}

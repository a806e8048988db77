// internal/condition/node.go
package condition

import "reflect"

/*
 * Domain types for condition expression trees.
 *
 * A tree is an arbitrarily nested AND/OR structure of Group nodes over Leaf
 * comparisons. Node is a tagged union (exactly one of Leaf or Group set);
 * validator, codec, and differ recurse over the tag rather than dispatching
 * through an interface, which keeps them exhaustive for new node kinds.
 *
 * Key types:
 *   - Leaf: single field/operator/value comparison
 *   - Group: AND/OR collection of child nodes, order significant
 *   - Node: sum type Leaf | Group
 *   - Operator: one of 17 comparison operators, each with a fixed arity class
 *
 * Evaluation of trees against transactions is owned by the external rule
 * engine; this package only models, validates, serializes, and diffs them.
 */

// LogicalOp combines the children of a group.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "AND"
	LogicalOr  LogicalOp = "OR"
)

// Valid reports whether op is a known logical operator.
func (op LogicalOp) Valid() bool {
	return op == LogicalAnd || op == LogicalOr
}

// Operator is a leaf comparison operator code as it appears in the
// canonical interchange form.
type Operator string

const (
	OpEq         Operator = "EQ"
	OpNe         Operator = "NE"
	OpGt         Operator = "GT"
	OpGte        Operator = "GTE"
	OpLt         Operator = "LT"
	OpLte        Operator = "LTE"
	OpIn         Operator = "IN"
	OpNotIn      Operator = "NOT_IN"
	OpLike       Operator = "LIKE"
	OpNotLike    Operator = "NOT_LIKE"
	OpBetween    Operator = "BETWEEN"
	OpIsNull     Operator = "IS_NULL"
	OpIsNotNull  Operator = "IS_NOT_NULL"
	OpContains   Operator = "CONTAINS"
	OpStartsWith Operator = "STARTS_WITH"
	OpEndsWith   Operator = "ENDS_WITH"
	OpRegex      Operator = "REGEX"
)

// Arity is the value-shape class of an operator.
type Arity int

const (
	ArityNullary Arity = iota // no value (IS_NULL, IS_NOT_NULL)
	ArityUnary                // exactly one scalar value
	ArityList                 // one or more values (IN, NOT_IN)
	ArityPair                 // exactly two values, low <= high (BETWEEN)
)

// Arity returns the operator's arity class. The second return is false for
// operator codes outside the canonical set.
func (op Operator) Arity() (Arity, bool) {
	switch op {
	case OpIsNull, OpIsNotNull:
		return ArityNullary, true
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte,
		OpLike, OpNotLike, OpContains, OpStartsWith, OpEndsWith, OpRegex:
		return ArityUnary, true
	case OpIn, OpNotIn:
		return ArityList, true
	case OpBetween:
		return ArityPair, true
	default:
		return 0, false
	}
}

// Leaf is a single field/operator/value comparison.
// Value holds the scalar for unary operators; Values holds the list for
// IN/NOT_IN and the [low, high] pair for BETWEEN. Nullary operators carry
// neither. The two are mutually exclusive.
type Leaf struct {
	Field    string
	Operator Operator
	Value    any
	Values   []any
}

// Group is an ordered AND/OR collection of leaves and nested groups.
// Child order is semantically significant for audit readability, not for
// evaluation. A childless group is only meaningful at the root, where it is
// the explicit "no conditions" marker (the rule matches its scope alone).
type Group struct {
	Op       LogicalOp
	Children []Node
}

// Empty reports whether g is the "no conditions" marker.
func (g *Group) Empty() bool {
	return len(g.Children) == 0
}

// Node is the sum type Leaf | Group. Exactly one field is set.
type Node struct {
	Leaf  *Leaf
	Group *Group
}

// LeafNode wraps a leaf as a tree node.
func LeafNode(l Leaf) Node {
	return Node{Leaf: &l}
}

// GroupNode wraps a group as a tree node.
func GroupNode(g Group) Node {
	return Node{Group: &g}
}

// Equal reports structural equality between two nodes. Child order matters;
// numeric values compare by magnitude so that int-built trees equal their
// JSON round-tripped (float64) form.
func (n Node) Equal(other Node) bool {
	switch {
	case n.Group != nil && other.Group != nil:
		return n.Group.Equal(other.Group)
	case n.Leaf != nil && other.Leaf != nil:
		return n.Leaf.Equal(other.Leaf)
	default:
		return false
	}
}

// Equal reports structural equality between two groups.
func (g *Group) Equal(other *Group) bool {
	if g.Op != other.Op || len(g.Children) != len(other.Children) {
		return false
	}
	for i := range g.Children {
		if !g.Children[i].Equal(other.Children[i]) {
			return false
		}
	}
	return true
}

// Equal reports structural equality between two leaves.
func (l *Leaf) Equal(other *Leaf) bool {
	if l.Field != other.Field || l.Operator != other.Operator {
		return false
	}
	if !valueEqual(l.Value, other.Value) {
		return false
	}
	if len(l.Values) != len(other.Values) {
		return false
	}
	for i := range l.Values {
		if !valueEqual(l.Values[i], other.Values[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the group. Used when a new version starts
// from a prior version's tree: edits to the copy must not leak back.
func (g *Group) Clone() *Group {
	out := &Group{Op: g.Op}
	if g.Children == nil {
		return out
	}
	out.Children = make([]Node, len(g.Children))
	for i, child := range g.Children {
		switch {
		case child.Group != nil:
			out.Children[i] = Node{Group: child.Group.Clone()}
		case child.Leaf != nil:
			leaf := *child.Leaf
			if child.Leaf.Values != nil {
				leaf.Values = append([]any(nil), child.Leaf.Values...)
			}
			out.Children[i] = Node{Leaf: &leaf}
		}
	}
	return out
}

// valueEqual compares values with numeric normalization.
// Handles float64/int/int64 mixing for JSON compatibility. Non-numeric
// values compare by deep equality: decoded list elements may themselves be
// slices, which == on any would panic on.
func valueEqual(a, b any) bool {
	if na, oka := toFloat64(a); oka {
		nb, okb := toFloat64(b)
		return okb && na == nb
	}
	return reflect.DeepEqual(a, b)
}

// toFloat64 converts value to float64 if it is a numeric type.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

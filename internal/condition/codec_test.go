// internal/condition/codec_test.go
package condition

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDecode_Normal(t *testing.T) {
	tests := []struct {
		name string
		data string
		want *Group
	}{
		{
			name: "flat AND group",
			data: `{"op": "AND", "children": [{"field": "transaction.amount", "operator": "GT", "value": 100}]}`,
			want: &Group{Op: LogicalAnd, Children: []Node{
				LeafNode(Leaf{Field: "transaction.amount", Operator: OpGt, Value: float64(100)}),
			}},
		},
		{
			name: "empty root group",
			data: `{"op": "AND", "children": []}`,
			want: &Group{Op: LogicalAnd, Children: []Node{}},
		},
		{
			name: "missing children key",
			data: `{"op": "OR"}`,
			want: &Group{Op: LogicalOr, Children: []Node{}},
		},
		{
			name: "nested groups",
			data: `{"op": "OR", "children": [
				{"op": "AND", "children": [
					{"field": "card.bin", "operator": "STARTS_WITH", "value": "411111"}
				]},
				{"field": "transaction.currency", "operator": "EQ", "value": "EUR"}
			]}`,
			want: &Group{Op: LogicalOr, Children: []Node{
				GroupNode(Group{Op: LogicalAnd, Children: []Node{
					LeafNode(Leaf{Field: "card.bin", Operator: OpStartsWith, Value: "411111"}),
				}}),
				LeafNode(Leaf{Field: "transaction.currency", Operator: OpEq, Value: "EUR"}),
			}},
		},
		{
			name: "list value decodes into Values",
			data: `{"op": "AND", "children": [{"field": "transaction.mcc", "operator": "IN", "value": ["7995", "7801"]}]}`,
			want: &Group{Op: LogicalAnd, Children: []Node{
				LeafNode(Leaf{Field: "transaction.mcc", Operator: OpIn, Values: []any{"7995", "7801"}}),
			}},
		},
		{
			name: "nullary operator carries no value",
			data: `{"op": "AND", "children": [{"field": "merchant.name", "operator": "IS_NULL"}]}`,
			want: &Group{Op: LogicalAnd, Children: []Node{
				LeafNode(Leaf{Field: "merchant.name", Operator: OpIsNull}),
			}},
		},
		{
			name: "between pair decodes into Values",
			data: `{"op": "AND", "children": [{"field": "transaction.amount", "operator": "BETWEEN", "value": [10, 500]}]}`,
			want: &Group{Op: LogicalAnd, Children: []Node{
				LeafNode(Leaf{Field: "transaction.amount", Operator: OpBetween, Values: []any{float64(10), float64(500)}}),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.data))
			if err != nil {
				t.Fatalf("Decode() error = %v, want nil", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{name: "leaf at root", data: `{"field": "transaction.amount", "operator": "GT", "value": 1}`, wantErr: ErrNotAGroup},
		{name: "scalar at root", data: `42`, wantErr: nil},
		{name: "malformed JSON", data: `{"op": "AND", "children": [`, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if err == nil {
				t.Fatalf("Decode() error = nil, want non-nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncode_EmptyGroupEmitsChildren(t *testing.T) {
	data, err := Encode(&Group{Op: LogicalAnd})
	if err != nil {
		t.Fatalf("Encode() error = %v, want nil", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if string(raw["children"]) != "[]" {
		t.Errorf("children = %s, want []", raw["children"])
	}
}

func TestEncode_NullaryLeafOmitsValue(t *testing.T) {
	g := &Group{Op: LogicalAnd, Children: []Node{
		LeafNode(Leaf{Field: "merchant.name", Operator: OpIsNull}),
	}}
	data, err := Encode(g)
	if err != nil {
		t.Fatalf("Encode() error = %v, want nil", err)
	}

	var raw struct {
		Children []map[string]json.RawMessage `json:"children"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, present := raw.Children[0]["value"]; present {
		t.Errorf("value key present on nullary leaf, want absent")
	}
}

// buildTree deterministically derives a tree from generator inputs so the
// round-trip property exercises varied shapes without a recursive gopter
// generator.
func buildTree(depth, width, opSeed int) *Group {
	fields := []string{"transaction.amount", "transaction.mcc", "card.bin", "customer.risk_score"}
	g := &Group{Op: LogicalAnd}
	if opSeed%2 == 1 {
		g.Op = LogicalOr
	}
	for i := 0; i < width; i++ {
		switch (opSeed + i) % 4 {
		case 0:
			g.Children = append(g.Children, LeafNode(Leaf{
				Field: fields[i%len(fields)], Operator: OpGt, Value: float64(i * 10),
			}))
		case 1:
			g.Children = append(g.Children, LeafNode(Leaf{
				Field: fields[i%len(fields)], Operator: OpIn, Values: []any{"a", "b"},
			}))
		case 2:
			g.Children = append(g.Children, LeafNode(Leaf{
				Field: fields[i%len(fields)], Operator: OpIsNotNull,
			}))
		default:
			if depth > 1 {
				g.Children = append(g.Children, GroupNode(*buildTree(depth-1, width, opSeed+i)))
			} else {
				g.Children = append(g.Children, LeafNode(Leaf{
					Field: fields[i%len(fields)], Operator: OpBetween, Values: []any{float64(1), float64(2)},
				}))
			}
		}
	}
	return g
}

// Property-based test: decode inverts encode for arbitrary trees
func TestCodec_PropertyRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Decode(Encode(t)) is structurally equal to t", prop.ForAll(
		func(depth, width, opSeed int) bool {
			tree := buildTree(depth, width, opSeed)

			data, err := Encode(tree)
			if err != nil {
				return false
			}
			back, err := Decode(data)
			if err != nil {
				return false
			}
			return back.Equal(tree)
		},
		gen.IntRange(1, 5),
		gen.IntRange(0, 6),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

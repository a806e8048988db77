// Package scope implements the static eligibility filters attached to a
// rule version: card network, BIN, MCC, and card logo. Scopes are applied
// independently of the condition tree; a rule matches a transaction iff its
// scope matches AND its condition tree evaluates true (tree evaluation is
// owned by the external engine).
package scope

// Scope restricts a rule to subsets of four transaction dimensions.
// An empty dimension is unrestricted. Dimensions combine with AND; values
// within one dimension combine with OR.
type Scope struct {
	Networks []string `json:"networks,omitempty"`
	BINs     []string `json:"bins,omitempty"`
	MCCs     []string `json:"mccs,omitempty"`
	Logos    []string `json:"logos,omitempty"`
}

// TransactionContext carries the scope-relevant attributes of one
// transaction, supplied by the external collaborator that owns evaluation.
type TransactionContext struct {
	Network string
	BIN     string
	MCC     string
	Logo    string
}

// Unrestricted reports whether the scope constrains no dimension.
func (s Scope) Unrestricted() bool {
	return len(s.Networks) == 0 && len(s.BINs) == 0 && len(s.MCCs) == 0 && len(s.Logos) == 0
}

// Matches reports whether the transaction falls inside every non-empty
// dimension of the scope.
func (s Scope) Matches(tx TransactionContext) bool {
	return dimensionMatches(s.Networks, tx.Network) &&
		dimensionMatches(s.BINs, tx.BIN) &&
		dimensionMatches(s.MCCs, tx.MCC) &&
		dimensionMatches(s.Logos, tx.Logo)
}

// dimensionMatches is vacuously true for an empty dimension, otherwise a
// set-membership test.
func dimensionMatches(members []string, value string) bool {
	if len(members) == 0 {
		return true
	}
	for _, m := range members {
		if m == value {
			return true
		}
	}
	return false
}

// internal/condition/validate.go
package condition

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/finsentry/rulegov/internal/types"
)

/*
 * Structural and semantic validation of condition trees.
 *
 * Validate walks the tree depth-first against a field registry and collects
 * every problem it finds; it never short-circuits and never panics, so a
 * caller can render all authoring mistakes at once. Checks per group:
 * non-empty children (root excepted - the no-conditions marker), known
 * logical operator, nesting depth within bounds. Checks per leaf: field
 * exists, operator allowed for the field, value shape matches the operator
 * arity class, literal types match the field's declared type exactly, and
 * BETWEEN bounds are ordered for orderable types.
 *
 * Validation runs before any lifecycle transition is applied, so a failed
 * validation never corrupts stored state.
 */

// ProblemKind classifies a validation problem.
type ProblemKind string

const (
	ProblemStructure          ProblemKind = "STRUCTURE"
	ProblemUnknownField       ProblemKind = "UNKNOWN_FIELD"
	ProblemOperatorNotAllowed ProblemKind = "OPERATOR_NOT_ALLOWED"
	ProblemArity              ProblemKind = "ARITY"
	ProblemTypeMismatch       ProblemKind = "TYPE_MISMATCH"
	ProblemRange              ProblemKind = "RANGE"
)

// Problem is a single validation finding at a tree location.
// Path addresses the offending node in the canonical form, e.g.
// "$.children[1].children[0]".
type Problem struct {
	Path    string
	Kind    ProblemKind
	Message string
}

// Result carries zero or more problems. The zero value is a valid result.
type Result struct {
	Problems []Problem
}

// Valid reports whether no problems were found.
func (r Result) Valid() bool {
	return len(r.Problems) == 0
}

// Err converts the result to an error, nil when valid.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &ValidationError{Problems: r.Problems}
}

// ValidationError wraps validation problems as an error for lifecycle
// callers. Always recoverable: edit the tree and resubmit.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		p := e.Problems[0]
		return fmt.Sprintf("condition tree invalid: %s at %s: %s", p.Kind, p.Path, p.Message)
	}
	return fmt.Sprintf("condition tree invalid: %d problems, first %s at %s: %s",
		len(e.Problems), e.Problems[0].Kind, e.Problems[0].Path, e.Problems[0].Message)
}

// Options tunes validation limits. The zero value applies defaults.
type Options struct {
	MaxDepth int // maximum group nesting depth; 0 means types.DefaultMaxTreeDepth
}

// Validate checks tree structure and leaf semantics against the registry.
// Pure and total: returns a result for any input, including nil trees.
func Validate(root *Group, reg Registry, opts Options) Result {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = types.DefaultMaxTreeDepth
	}

	v := &validator{reg: reg, maxDepth: maxDepth}
	if root == nil {
		v.report("$", ProblemStructure, "tree root is missing")
		return Result{Problems: v.problems}
	}
	v.group(root, "$", 1, true)
	return Result{Problems: v.problems}
}

type validator struct {
	reg      Registry
	maxDepth int
	problems []Problem
}

func (v *validator) report(path string, kind ProblemKind, format string, args ...any) {
	v.problems = append(v.problems, Problem{
		Path:    path,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *validator) group(g *Group, path string, depth int, isRoot bool) {
	if !g.Op.Valid() {
		v.report(path, ProblemStructure, "unknown logical operator %q", g.Op)
	}
	if depth > v.maxDepth {
		v.report(path, ProblemStructure, "nesting depth %d exceeds maximum %d", depth, v.maxDepth)
		// Do not recurse past the limit; one problem per offending subtree.
		return
	}
	if len(g.Children) == 0 {
		if !isRoot {
			v.report(path, ProblemStructure, "group has no children")
		}
		return
	}
	for i, child := range g.Children {
		childPath := fmt.Sprintf("%s.children[%d]", path, i)
		switch {
		case child.Group != nil:
			v.group(child.Group, childPath, depth+1, false)
		case child.Leaf != nil:
			v.leaf(child.Leaf, childPath)
		default:
			v.report(childPath, ProblemStructure, "node is neither leaf nor group")
		}
	}
}

func (v *validator) leaf(l *Leaf, path string) {
	arity, known := l.Operator.Arity()
	if !known {
		v.report(path, ProblemOperatorNotAllowed, "unknown operator %q", l.Operator)
		return
	}

	field, found := v.reg.GetField(l.Field)
	if !found {
		v.report(path, ProblemUnknownField, "field %q is not in the registry", l.Field)
	} else {
		if !field.Allows(l.Operator) {
			v.report(path, ProblemOperatorNotAllowed,
				"operator %s not allowed for field %q", l.Operator, l.Field)
		}
		if arity == ArityList && !field.MultiValue {
			v.report(path, ProblemOperatorNotAllowed,
				"field %q does not permit list-valued operators", l.Field)
		}
	}

	if !v.arity(l, arity, path) {
		return
	}
	if !found {
		return
	}
	v.literals(l, field, path)
}

// arity checks value shape against the operator's arity class.
// Returns false when the shape is wrong enough that literal checks are moot.
func (v *validator) arity(l *Leaf, arity Arity, path string) bool {
	switch arity {
	case ArityNullary:
		if l.Value != nil || l.Values != nil {
			v.report(path, ProblemArity, "operator %s takes no value", l.Operator)
			return false
		}
	case ArityUnary:
		if l.Values != nil {
			v.report(path, ProblemArity, "operator %s takes exactly one scalar value", l.Operator)
			return false
		}
		if l.Value == nil {
			v.report(path, ProblemArity, "operator %s requires a value", l.Operator)
			return false
		}
	case ArityList:
		if l.Value != nil || len(l.Values) == 0 {
			v.report(path, ProblemArity, "operator %s requires one or more values", l.Operator)
			return false
		}
		if len(l.Values) > types.MaxListValues {
			v.report(path, ProblemArity, "operator %s has %d values, maximum %d",
				l.Operator, len(l.Values), types.MaxListValues)
			return false
		}
	case ArityPair:
		if l.Value != nil || len(l.Values) != 2 {
			v.report(path, ProblemArity, "operator %s requires exactly two values", l.Operator)
			return false
		}
	}
	return true
}

// literals checks value types against the field's declared type, compiles
// REGEX patterns, and orders BETWEEN bounds for orderable types.
func (v *validator) literals(l *Leaf, field Field, path string) {
	check := func(val any) {
		if msg, ok := literalMatches(val, field.DataType); !ok {
			v.report(path, ProblemTypeMismatch, "%s (field %q is %s)", msg, field.Key, field.DataType)
		}
	}

	switch {
	case l.Values != nil:
		for _, val := range l.Values {
			check(val)
		}
	case l.Value != nil:
		check(l.Value)
	}

	if l.Operator == OpRegex {
		if pattern, ok := l.Value.(string); ok {
			if _, err := regexp.Compile(pattern); err != nil {
				v.report(path, ProblemTypeMismatch, "invalid regular expression: %v", err)
			}
		}
	}

	if l.Operator == OpBetween && len(l.Values) == 2 {
		v.betweenRange(l.Values[0], l.Values[1], field.DataType, path)
	}
}

// betweenRange reports a range problem when low > high. Only NUMBER and
// DATE are orderable; other types accept any pair.
func (v *validator) betweenRange(low, high any, dt DataType, path string) {
	switch dt {
	case DataNumber:
		lo, okLo := toFloat64(low)
		hi, okHi := toFloat64(high)
		if okLo && okHi && lo > hi {
			v.report(path, ProblemRange, "BETWEEN low %v exceeds high %v", low, high)
		}
	case DataDate:
		lo, okLo := parseDate(low)
		hi, okHi := parseDate(high)
		if okLo && okHi && lo.After(hi) {
			v.report(path, ProblemRange, "BETWEEN low %v is after high %v", low, high)
		}
	}
}

// literalMatches checks a single literal against a data type.
// Exact-type rule: no implicit coercion across types. Returns a message
// describing the mismatch when not ok.
func literalMatches(val any, dt DataType) (string, bool) {
	switch dt {
	case DataString, DataEnum:
		if _, ok := val.(string); !ok {
			return fmt.Sprintf("value %v is not a string", val), false
		}
	case DataNumber:
		if _, ok := toFloat64(val); !ok {
			return fmt.Sprintf("value %v is not numeric", val), false
		}
	case DataBoolean:
		if _, ok := val.(bool); !ok {
			return fmt.Sprintf("value %v is not boolean", val), false
		}
	case DataDate:
		if _, ok := parseDate(val); !ok {
			return fmt.Sprintf("value %v is not a date", val), false
		}
	default:
		return fmt.Sprintf("field has unknown data type %q", dt), false
	}
	return "", true
}

// parseDate accepts RFC 3339 timestamps and bare dates.
func parseDate(val any) (time.Time, bool) {
	s, ok := val.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

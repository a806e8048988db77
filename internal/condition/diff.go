// internal/condition/diff.go
package condition

import "fmt"

/*
 * Positional tree diff for audit trails.
 *
 * Aligns the children of matching groups by index and recurses; anything
 * beyond the shorter side reports as ADDED or REMOVED, a changed leaf or a
 * kind change (leaf <-> group) reports as MODIFIED at that path.
 *
 * Best-effort by design: a child that was moved without being edited shows
 * up as REMOVED at its old index plus ADDED at its new one. Audit entries
 * favor a stable, readable shape over a minimal edit script.
 */

// ChangeKind classifies one entry in a tree diff.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "ADDED"
	ChangeRemoved  ChangeKind = "REMOVED"
	ChangeModified ChangeKind = "MODIFIED"
)

// Change records a difference at a canonical-form path.
type Change struct {
	Path string
	Kind ChangeKind
}

// Diff compares two trees and returns changes in document order.
// An empty slice means the trees are structurally equal.
func Diff(oldTree, newTree *Group) []Change {
	var changes []Change
	diffGroup(oldTree, newTree, "$", &changes)
	return changes
}

func diffGroup(oldG, newG *Group, path string, out *[]Change) {
	if oldG.Op != newG.Op {
		*out = append(*out, Change{Path: path, Kind: ChangeModified})
	}

	n := len(oldG.Children)
	if len(newG.Children) > n {
		n = len(newG.Children)
	}
	for i := 0; i < n; i++ {
		childPath := fmt.Sprintf("%s.children[%d]", path, i)
		switch {
		case i >= len(oldG.Children):
			*out = append(*out, Change{Path: childPath, Kind: ChangeAdded})
		case i >= len(newG.Children):
			*out = append(*out, Change{Path: childPath, Kind: ChangeRemoved})
		default:
			diffNode(oldG.Children[i], newG.Children[i], childPath, out)
		}
	}
}

func diffNode(oldN, newN Node, path string, out *[]Change) {
	switch {
	case oldN.Group != nil && newN.Group != nil:
		diffGroup(oldN.Group, newN.Group, path, out)
	case oldN.Leaf != nil && newN.Leaf != nil:
		if !oldN.Leaf.Equal(newN.Leaf) {
			*out = append(*out, Change{Path: path, Kind: ChangeModified})
		}
	default:
		// Kind change (leaf replaced by group or vice versa) is a wholesale
		// modification; children of the new subtree are not walked.
		*out = append(*out, Change{Path: path, Kind: ChangeModified})
	}
}

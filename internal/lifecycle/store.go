// internal/lifecycle/store.go
package lifecycle

/*
 * Persistence contract the lifecycle depends on.
 *
 * Mutating calls carry the revision token the caller read; implementations
 * must atomically check-and-set it and fail with types.ErrStaleRevision
 * when the stored token has advanced. Submit* and Decide* are multi-row
 * operations that implementations apply as one atomic unit: a reader must
 * never observe a rule with two approved versions, or an approved version
 * whose ticket is still pending.
 *
 * Two implementations ship: MemoryStore (tests, reference semantics) and
 * the SQL store in internal/core/db.
 */

import "github.com/finsentry/rulegov/internal/types"

// RuleStore persists rule versions.
type RuleStore interface {
	// GetVersion returns one version or types.ErrVersionNotFound.
	GetVersion(id types.RuleID, version int) (*RuleVersion, error)

	// LatestVersion returns the highest-numbered version of the rule or
	// types.ErrVersionNotFound.
	LatestVersion(id types.RuleID) (*RuleVersion, error)

	// ApprovedVersion returns the currently approved version or
	// types.ErrNoApprovedVersion.
	ApprovedVersion(id types.RuleID) (*RuleVersion, error)

	// InsertVersion stores a new version row at revision 1.
	InsertVersion(v *RuleVersion) error

	// UpdateVersion replaces a version's mutable fields after a CAS check
	// against expectedRevision, bumping v.Revision on success.
	UpdateVersion(v *RuleVersion, expectedRevision int64) error

	// SubmitVersion persists the DRAFT -> PENDING_APPROVAL change together
	// with its new pending ticket as one atomic unit.
	SubmitVersion(v *RuleVersion, expectedRevision int64, t *ApprovalTicket) error

	// DecideVersion persists an approval or rejection together with its
	// decided ticket. When v.Status is APPROVED it also demotes any prior
	// approved version of the same rule to SUPERSEDED, all atomically.
	DecideVersion(v *RuleVersion, expectedRevision int64, t *ApprovalTicket) error
}

// TicketStore reads approval tickets. Tickets are written only through the
// Submit*/Decide* operations above.
type TicketStore interface {
	// GetTicket returns one ticket or types.ErrTicketNotFound.
	GetTicket(id types.TicketID) (*ApprovalTicket, error)
}

// RuleSetStore persists ruleset versions with the same contract shape as
// RuleStore. Decide does not demote member rules; supersession applies to
// prior versions of the same set only.
type RuleSetStore interface {
	GetSetVersion(id types.RuleSetID, version int) (*RuleSetVersion, error)
	LatestSetVersion(id types.RuleSetID) (*RuleSetVersion, error)
	InsertSetVersion(v *RuleSetVersion) error
	UpdateSetVersion(v *RuleSetVersion, expectedRevision int64) error
	SubmitSetVersion(v *RuleSetVersion, expectedRevision int64, t *ApprovalTicket) error
	DecideSetVersion(v *RuleSetVersion, expectedRevision int64, t *ApprovalTicket) error
}

// Store aggregates the three persistence concerns the manager needs.
type Store interface {
	RuleStore
	TicketStore
	RuleSetStore
}

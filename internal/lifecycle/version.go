// internal/lifecycle/version.go
package lifecycle

import (
	"time"

	"github.com/finsentry/rulegov/internal/condition"
	"github.com/finsentry/rulegov/internal/scope"
	"github.com/finsentry/rulegov/internal/types"
)

/*
 * Versioned entities governed by the maker-checker lifecycle.
 *
 * A RuleVersion is created by the manager on create/edit and mutated only
 * through defined transitions; once it leaves DRAFT it is never edited in
 * place and never physically deleted - rejected and superseded versions are
 * retained for audit. Revision is the optimistic-concurrency token: every
 * persisted mutation increments it, and every mutating call must present
 * the revision it read.
 */

// RuleVersion is one immutable-once-submitted revision of a fraud rule.
type RuleVersion struct {
	RuleID        types.RuleID
	VersionNumber int // monotonically increasing per RuleID, starts at 1
	RuleType      types.RuleType
	Name          string
	Priority      int // lower sorts first
	Status        types.Status
	Tree          *condition.Group
	Scope         scope.Scope
	CreatedBy     types.ActorID
	CreatedAt     time.Time
	DecidedBy     types.ActorID
	DecidedAt     *time.Time
	Remarks       string
	Revision      int64
}

// ApprovalTicket records one submitted version awaiting or having received
// a checker decision. Terminal once decided.
type ApprovalTicket struct {
	TicketID        types.TicketID
	EntityType      types.EntityType
	EntityID        string // RuleID or RuleSetID
	VersionNumber   int
	Status          types.TicketStatus
	RequestedBy     types.ActorID
	DecidedBy       types.ActorID
	DecisionRemarks string
	RequestedAt     time.Time
	DecidedAt       *time.Time
}

// Decided reports whether the ticket has reached a terminal status.
func (t *ApprovalTicket) Decided() bool {
	return t.Status != types.TicketPending
}

// RuleSetVersion groups rules into one deployable unit. It runs the same
// five-state lifecycle as RuleVersion; approval additionally requires every
// member rule to hold a currently approved version.
type RuleSetVersion struct {
	SetID         types.RuleSetID
	VersionNumber int
	Name          string
	Status        types.Status
	MemberRuleIDs []types.RuleID // ordered; editable only while DRAFT
	Environment   types.Environment
	CreatedBy     types.ActorID
	CreatedAt     time.Time
	DecidedBy     types.ActorID
	DecidedAt     *time.Time
	Remarks       string
	Revision      int64
}

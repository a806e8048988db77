// Package types provides domain models shared across RuleGov components.
//
// Zero-dependency design: types.go and errors.go use only the standard
// library. ID utilities in ids.go import uuid but are isolated so callers
// that never mint IDs avoid the dependency.
//
// Condition-tree types live in internal/condition; this package holds the
// identifiers, enumerations, and limits the lifecycle and stores share.
package types

// Status is the lifecycle state of a rule version or ruleset version.
// Exactly one version per rule may hold StatusApproved at any time.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusSuperseded      Status = "SUPERSEDED"
)

// Terminal reports whether no further transition may originate from s.
// Approved is not terminal: a later approval supersedes it.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusSuperseded
}

// RuleType classifies what a rule does when it matches.
type RuleType string

const (
	RuleTypeAllowlist  RuleType = "ALLOWLIST"
	RuleTypeBlocklist  RuleType = "BLOCKLIST"
	RuleTypeAuth       RuleType = "AUTH"
	RuleTypeMonitoring RuleType = "MONITORING"
)

// Environment identifies the deployment target of a ruleset.
type Environment string

const (
	EnvLocal Environment = "LOCAL"
	EnvTest  Environment = "TEST"
	EnvProd  Environment = "PROD"
)

// Capability is an actor permission consulted by the lifecycle guard.
// Maker authors and submits versions; checker decides them. The checker
// for a given ticket must differ from its maker.
type Capability string

const (
	CapabilityMaker   Capability = "MAKER"
	CapabilityChecker Capability = "CHECKER"
)

// EntityType distinguishes what an approval ticket refers to.
type EntityType string

const (
	EntityRuleVersion    EntityType = "RULE_VERSION"
	EntityRuleSetVersion EntityType = "RULESET_VERSION"
)

// TicketStatus is the state of an approval ticket. A ticket is created
// PENDING on submission and is immutable once decided.
type TicketStatus string

const (
	TicketPending  TicketStatus = "PENDING"
	TicketApproved TicketStatus = "APPROVED"
	TicketRejected TicketStatus = "REJECTED"
)

// Resource limits enforced by the condition-tree validator.
const (
	// DefaultMaxTreeDepth bounds group nesting. Pathological trees beyond
	// ~10 levels are authoring mistakes, not legitimate rules.
	DefaultMaxTreeDepth = 10

	// MaxListValues limits IN/NOT_IN value lists to keep membership checks
	// linear over a small constant.
	MaxListValues = 64
)

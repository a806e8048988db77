package types

import "errors"

// Sentinel errors for RuleGov operations. Every error is a value returned
// to the caller; nothing here aborts the process.
var (
	// ErrInvalidTransition indicates an event not defined for the entity's
	// current status. The caller's view of the entity is out of date.
	ErrInvalidTransition = errors.New("transition not defined for current status")

	// ErrNotPermitted indicates a separation-of-duty or capability
	// violation. The transition was not applied.
	ErrNotPermitted = errors.New("actor not permitted")

	// ErrStaleRevision indicates an optimistic-concurrency conflict: the
	// stored revision advanced past the token the caller presented.
	ErrStaleRevision = errors.New("revision token is stale")

	// ErrIncompleteMembership indicates a ruleset approval was attempted
	// while a member rule has no approved version.
	ErrIncompleteMembership = errors.New("member rule has no approved version")

	// ErrRemarksRequired indicates a rejection without decision remarks.
	ErrRemarksRequired = errors.New("decision remarks required")

	// ErrVersionNotFound indicates the requested rule or ruleset version
	// does not exist in the store.
	ErrVersionNotFound = errors.New("version not found")

	// ErrTicketNotFound indicates the referenced approval ticket does not
	// exist in the store.
	ErrTicketNotFound = errors.New("approval ticket not found")

	// ErrNoApprovedVersion indicates a rule has no currently approved
	// version.
	ErrNoApprovedVersion = errors.New("no approved version")
)

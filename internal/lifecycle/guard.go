// internal/lifecycle/guard.go
package lifecycle

import "github.com/finsentry/rulegov/internal/types"

// Identity is the capability interface consumed by the separation-of-duty
// guard. Implemented by the external identity provider; tests supply a
// static map.
type Identity interface {
	HasCapability(actor types.ActorID, cap types.Capability) bool
}

// CanDecide reports whether actor may approve or reject the ticket.
// False when the actor authored the submission (a maker never checks their
// own work) or lacks the checker capability. Consulted at the
// approve/reject transition only; the lifecycle fails such calls with
// ErrNotPermitted rather than silently ignoring them.
func CanDecide(t *ApprovalTicket, actor types.ActorID, idp Identity) bool {
	if actor == t.RequestedBy {
		return false
	}
	return idp.HasCapability(actor, types.CapabilityChecker)
}

// StaticIdentity is an in-memory Identity keyed by actor.
type StaticIdentity map[types.ActorID][]types.Capability

// HasCapability implements Identity.
func (s StaticIdentity) HasCapability(actor types.ActorID, cap types.Capability) bool {
	for _, c := range s[actor] {
		if c == cap {
			return true
		}
	}
	return false
}

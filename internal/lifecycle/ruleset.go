// internal/lifecycle/ruleset.go
package lifecycle

import (
	"fmt"
	"time"

	"github.com/finsentry/rulegov/internal/types"
)

/*
 * RuleSet aggregator lifecycle.
 *
 * Runs the identical five-state machine as rule versions, with two extra
 * constraints: membership is editable only while DRAFT, and approval
 * requires every member rule to resolve to a currently approved version at
 * decision time. Approve/Reject entry points are shared with rule versions
 * via the ticket dispatch in transitions.go.
 */

// SetDraftParams carries the inputs for a brand-new ruleset draft.
type SetDraftParams struct {
	Name        string
	Environment types.Environment
	Members     []types.RuleID
	Actor       types.ActorID
}

// CreateSetDraft mints a new ruleset with version 1 in DRAFT.
func (m *Manager) CreateSetDraft(p SetDraftParams) (*RuleSetVersion, error) {
	if !m.identity.HasCapability(p.Actor, types.CapabilityMaker) {
		m.observe("ruleset", EventCreate, types.ErrNotPermitted)
		return nil, fmt.Errorf("%w: %s lacks maker capability", types.ErrNotPermitted, p.Actor)
	}
	v := &RuleSetVersion{
		SetID:         types.NewRuleSetID(),
		VersionNumber: 1,
		Name:          p.Name,
		Status:        types.StatusDraft,
		MemberRuleIDs: append([]types.RuleID(nil), p.Members...),
		Environment:   p.Environment,
		CreatedBy:     p.Actor,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.InsertSetVersion(v); err != nil {
		return nil, err
	}
	m.logTransition("ruleset", string(v.SetID), v.VersionNumber, EventCreate, v.Status)
	m.observe("ruleset", EventCreate, nil)
	return v, nil
}

// EditSetMembers replaces the member list of a DRAFT ruleset version.
func (m *Manager) EditSetMembers(id types.RuleSetID, version int, expectedRevision int64,
	actor types.ActorID, members []types.RuleID) (*RuleSetVersion, error) {
	v, err := m.store.GetSetVersion(id, version)
	if err != nil {
		return nil, err
	}
	if err := checkRevision(v.Revision, expectedRevision); err != nil {
		m.observe("ruleset", EventEdit, err)
		return nil, err
	}
	if _, err := nextStatus(v.Status, EventEdit); err != nil {
		m.observe("ruleset", EventEdit, err)
		return nil, err
	}
	if actor != v.CreatedBy {
		m.observe("ruleset", EventEdit, types.ErrNotPermitted)
		return nil, fmt.Errorf("%w: only the author may edit a draft", types.ErrNotPermitted)
	}

	v.MemberRuleIDs = append([]types.RuleID(nil), members...)
	if err := m.store.UpdateSetVersion(v, expectedRevision); err != nil {
		m.observe("ruleset", EventEdit, err)
		return nil, err
	}
	m.logTransition("ruleset", string(id), version, EventEdit, v.Status)
	m.observe("ruleset", EventEdit, nil)
	return v, nil
}

// SubmitSet moves a DRAFT ruleset to PENDING_APPROVAL and opens its ticket.
func (m *Manager) SubmitSet(id types.RuleSetID, version int, expectedRevision int64,
	actor types.ActorID) (*ApprovalTicket, error) {
	v, err := m.store.GetSetVersion(id, version)
	if err != nil {
		return nil, err
	}
	if err := checkRevision(v.Revision, expectedRevision); err != nil {
		m.observe("ruleset", EventSubmit, err)
		return nil, err
	}
	to, err := nextStatus(v.Status, EventSubmit)
	if err != nil {
		m.observe("ruleset", EventSubmit, err)
		return nil, err
	}
	if actor != v.CreatedBy {
		m.observe("ruleset", EventSubmit, types.ErrNotPermitted)
		return nil, fmt.Errorf("%w: only the author may submit", types.ErrNotPermitted)
	}

	v.Status = to
	t := &ApprovalTicket{
		TicketID:      types.NewTicketID(),
		EntityType:    types.EntityRuleSetVersion,
		EntityID:      string(id),
		VersionNumber: version,
		Status:        types.TicketPending,
		RequestedBy:   actor,
		RequestedAt:   time.Now().UTC(),
	}
	if err := m.store.SubmitSetVersion(v, expectedRevision, t); err != nil {
		m.observe("ruleset", EventSubmit, err)
		return nil, err
	}
	m.logTransition("ruleset", string(id), version, EventSubmit, v.Status)
	m.observe("ruleset", EventSubmit, nil)
	return t, nil
}

// NewSetVersion starts the next draft of a decided ruleset, copying the
// prior membership.
func (m *Manager) NewSetVersion(id types.RuleSetID, actor types.ActorID) (*RuleSetVersion, error) {
	if !m.identity.HasCapability(actor, types.CapabilityMaker) {
		m.observe("ruleset", EventNewVersion, types.ErrNotPermitted)
		return nil, fmt.Errorf("%w: %s lacks maker capability", types.ErrNotPermitted, actor)
	}
	latest, err := m.store.LatestSetVersion(id)
	if err != nil {
		return nil, err
	}
	if _, err := nextStatus(latest.Status, EventNewVersion); err != nil {
		m.observe("ruleset", EventNewVersion, err)
		return nil, err
	}

	next := &RuleSetVersion{
		SetID:         id,
		VersionNumber: latest.VersionNumber + 1,
		Name:          latest.Name,
		Status:        types.StatusDraft,
		MemberRuleIDs: append([]types.RuleID(nil), latest.MemberRuleIDs...),
		Environment:   latest.Environment,
		CreatedBy:     actor,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.InsertSetVersion(next); err != nil {
		return nil, err
	}
	m.logTransition("ruleset", string(id), next.VersionNumber, EventNewVersion, next.Status)
	m.observe("ruleset", EventNewVersion, nil)
	return next, nil
}

// approveSet applies a checker approval to a ruleset ticket. Fails with
// ErrIncompleteMembership, leaving everything untouched, when any member
// rule has no approved version at decision time.
func (m *Manager) approveSet(t *ApprovalTicket, expectedRevision int64,
	actor types.ActorID, now time.Time) error {
	v, err := m.store.GetSetVersion(types.RuleSetID(t.EntityID), t.VersionNumber)
	if err != nil {
		return err
	}
	if err := checkRevision(v.Revision, expectedRevision); err != nil {
		return err
	}
	to, err := nextStatus(v.Status, EventApprove)
	if err != nil {
		return err
	}
	for _, ruleID := range v.MemberRuleIDs {
		if _, err := m.store.ApprovedVersion(ruleID); err != nil {
			return fmt.Errorf("%w: rule %s", types.ErrIncompleteMembership, ruleID)
		}
	}

	v.Status = to
	v.DecidedBy = actor
	v.DecidedAt = &now
	if err := m.store.DecideSetVersion(v, expectedRevision, t); err != nil {
		return err
	}
	m.logTransition("ruleset", t.EntityID, t.VersionNumber, EventApprove, v.Status)
	return nil
}

func (m *Manager) rejectSet(t *ApprovalTicket, expectedRevision int64,
	actor types.ActorID, remarks string, now time.Time) error {
	v, err := m.store.GetSetVersion(types.RuleSetID(t.EntityID), t.VersionNumber)
	if err != nil {
		return err
	}
	if err := checkRevision(v.Revision, expectedRevision); err != nil {
		return err
	}
	to, err := nextStatus(v.Status, EventReject)
	if err != nil {
		return err
	}
	v.Status = to
	v.DecidedBy = actor
	v.DecidedAt = &now
	v.Remarks = remarks
	if err := m.store.DecideSetVersion(v, expectedRevision, t); err != nil {
		return err
	}
	m.logTransition("ruleset", t.EntityID, t.VersionNumber, EventReject, v.Status)
	return nil
}

// internal/lifecycle/transitions.go
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/finsentry/rulegov/internal/condition"
	"github.com/finsentry/rulegov/internal/core/metrics"
	"github.com/finsentry/rulegov/internal/scope"
	"github.com/finsentry/rulegov/internal/types"
)

/*
 * Maker-checker state machine over rule versions.
 *
 * Legal transitions live in one table (status x event -> status); anything
 * not in the table fails with types.ErrInvalidTransition, so an invalid
 * request is a lookup miss rather than an unhandled code path. Guards run
 * before any mutation: author-only for edit/submit, separation of duties
 * for approve/reject, maker capability for drafting. Side effects (ticket
 * creation, supersession of the prior approved version) are applied by the
 * store as one atomic unit with the status change.
 *
 * Transitions are synchronous and single-entity; the manager owns no
 * background work and never retries. A failed transition is reported once
 * and left for the caller to re-issue.
 */

// Event names a lifecycle transition request.
type Event string

const (
	EventCreate     Event = "CREATE"
	EventSubmit     Event = "SUBMIT"
	EventApprove    Event = "APPROVE"
	EventReject     Event = "REJECT"
	EventEdit       Event = "EDIT"
	EventNewVersion Event = "NEW_VERSION"
)

type transitionKey struct {
	from  types.Status
	event Event
}

// transitions is the complete set of legal (status, event) pairs.
var transitions = map[transitionKey]types.Status{
	{types.StatusDraft, EventEdit}:              types.StatusDraft,
	{types.StatusDraft, EventSubmit}:            types.StatusPendingApproval,
	{types.StatusPendingApproval, EventApprove}: types.StatusApproved,
	{types.StatusPendingApproval, EventReject}:  types.StatusRejected,
	{types.StatusApproved, EventNewVersion}:     types.StatusDraft,
	{types.StatusRejected, EventNewVersion}:     types.StatusDraft,
}

// nextStatus resolves the transition table, failing for unlisted pairs.
func nextStatus(from types.Status, ev Event) (types.Status, error) {
	to, ok := transitions[transitionKey{from: from, event: ev}]
	if !ok {
		return "", fmt.Errorf("%w: %s in status %s", types.ErrInvalidTransition, ev, from)
	}
	return to, nil
}

// checkRevision compares the stored token against the caller's. Runs before
// the transition table so a concurrent mutation that also changed the status
// still surfaces as a conflict, not as an undefined transition.
func checkRevision(stored, expected int64) error {
	if stored != expected {
		return fmt.Errorf("%w: expected revision %d, found %d", types.ErrStaleRevision, expected, stored)
	}
	return nil
}

// Manager applies lifecycle transitions to rule and ruleset versions.
// Thin orchestration: validation delegates to internal/condition, authority
// to the guard, atomicity to the store.
type Manager struct {
	store    Store
	identity Identity
	registry condition.Registry
	validate condition.Options
	log      zerolog.Logger
	metrics  *metrics.Collector
}

// NewManager creates a manager instance with its dependencies.
// The metrics collector may be nil.
func NewManager(store Store, identity Identity, registry condition.Registry,
	logger zerolog.Logger, collector *metrics.Collector) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if identity == nil {
		return nil, fmt.Errorf("identity cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	return &Manager{
		store:    store,
		identity: identity,
		registry: registry,
		log:      logger,
		metrics:  collector,
	}, nil
}

// DraftParams carries the inputs for a brand-new rule draft.
type DraftParams struct {
	RuleType types.RuleType
	Name     string
	Priority int
	Tree     *condition.Group
	Scope    scope.Scope
	Actor    types.ActorID
}

// CreateDraft mints a new rule with version 1 in DRAFT.
// Requires the maker capability; the tree must validate.
func (m *Manager) CreateDraft(p DraftParams) (*RuleVersion, error) {
	if !m.identity.HasCapability(p.Actor, types.CapabilityMaker) {
		m.observe("rule", EventCreate, types.ErrNotPermitted)
		return nil, fmt.Errorf("%w: %s lacks maker capability", types.ErrNotPermitted, p.Actor)
	}
	if err := condition.Validate(p.Tree, m.registry, m.validate).Err(); err != nil {
		return nil, err
	}

	v := &RuleVersion{
		RuleID:        types.NewRuleID(),
		VersionNumber: 1,
		RuleType:      p.RuleType,
		Name:          p.Name,
		Priority:      p.Priority,
		Status:        types.StatusDraft,
		Tree:          p.Tree.Clone(),
		Scope:         p.Scope,
		CreatedBy:     p.Actor,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.InsertVersion(v); err != nil {
		return nil, err
	}
	m.logTransition("rule", string(v.RuleID), v.VersionNumber, EventCreate, v.Status)
	m.observe("rule", EventCreate, nil)
	return v, nil
}

// Edit replaces the condition tree and scope of a DRAFT version.
// Only the author may edit; the version number is unchanged.
func (m *Manager) Edit(id types.RuleID, version int, expectedRevision int64,
	actor types.ActorID, tree *condition.Group, sc scope.Scope) (*RuleVersion, error) {
	v, err := m.store.GetVersion(id, version)
	if err != nil {
		return nil, err
	}
	if err := checkRevision(v.Revision, expectedRevision); err != nil {
		m.observe("rule", EventEdit, err)
		return nil, err
	}
	if _, err := nextStatus(v.Status, EventEdit); err != nil {
		m.observe("rule", EventEdit, err)
		return nil, err
	}
	if actor != v.CreatedBy {
		m.observe("rule", EventEdit, types.ErrNotPermitted)
		return nil, fmt.Errorf("%w: only the author may edit a draft", types.ErrNotPermitted)
	}
	if err := condition.Validate(tree, m.registry, m.validate).Err(); err != nil {
		return nil, err
	}

	v.Tree = tree.Clone()
	v.Scope = sc
	if err := m.store.UpdateVersion(v, expectedRevision); err != nil {
		m.observe("rule", EventEdit, err)
		return nil, err
	}
	m.logTransition("rule", string(id), version, EventEdit, v.Status)
	m.observe("rule", EventEdit, nil)
	return v, nil
}

// Submit moves a DRAFT to PENDING_APPROVAL and opens its approval ticket.
// Only the author may submit, and the tree must still validate.
func (m *Manager) Submit(id types.RuleID, version int, expectedRevision int64,
	actor types.ActorID) (*ApprovalTicket, error) {
	v, err := m.store.GetVersion(id, version)
	if err != nil {
		return nil, err
	}
	if err := checkRevision(v.Revision, expectedRevision); err != nil {
		m.observe("rule", EventSubmit, err)
		return nil, err
	}
	to, err := nextStatus(v.Status, EventSubmit)
	if err != nil {
		m.observe("rule", EventSubmit, err)
		return nil, err
	}
	if actor != v.CreatedBy {
		m.observe("rule", EventSubmit, types.ErrNotPermitted)
		return nil, fmt.Errorf("%w: only the author may submit", types.ErrNotPermitted)
	}
	if err := condition.Validate(v.Tree, m.registry, m.validate).Err(); err != nil {
		return nil, err
	}

	v.Status = to
	t := &ApprovalTicket{
		TicketID:      types.NewTicketID(),
		EntityType:    types.EntityRuleVersion,
		EntityID:      string(id),
		VersionNumber: version,
		Status:        types.TicketPending,
		RequestedBy:   actor,
		RequestedAt:   time.Now().UTC(),
	}
	if err := m.store.SubmitVersion(v, expectedRevision, t); err != nil {
		m.observe("rule", EventSubmit, err)
		return nil, err
	}
	m.logTransition("rule", string(id), version, EventSubmit, v.Status)
	m.observe("rule", EventSubmit, nil)
	return t, nil
}

// Approve applies a checker's approval to a pending ticket. For rule
// versions the prior approved version of the rule (if any) is superseded in
// the same atomic operation; for ruleset versions every member rule must
// hold a currently approved version.
func (m *Manager) Approve(ticketID types.TicketID, expectedRevision int64,
	actor types.ActorID) error {
	t, err := m.store.GetTicket(ticketID)
	if err != nil {
		return err
	}
	entity := entityLabel(t.EntityType)
	if t.Decided() {
		err := fmt.Errorf("%w: ticket already decided", types.ErrInvalidTransition)
		m.observe(entity, EventApprove, err)
		return err
	}
	if !CanDecide(t, actor, m.identity) {
		m.observe(entity, EventApprove, types.ErrNotPermitted)
		return fmt.Errorf("%w: %s may not approve this ticket", types.ErrNotPermitted, actor)
	}

	now := time.Now().UTC()
	t.Status = types.TicketApproved
	t.DecidedBy = actor
	t.DecidedAt = &now

	switch t.EntityType {
	case types.EntityRuleVersion:
		err = m.approveRule(t, expectedRevision, actor, now)
	case types.EntityRuleSetVersion:
		err = m.approveSet(t, expectedRevision, actor, now)
	default:
		err = fmt.Errorf("%w: unknown entity type %s", types.ErrInvalidTransition, t.EntityType)
	}
	m.observe(entity, EventApprove, err)
	return err
}

func (m *Manager) approveRule(t *ApprovalTicket, expectedRevision int64,
	actor types.ActorID, now time.Time) error {
	v, err := m.store.GetVersion(types.RuleID(t.EntityID), t.VersionNumber)
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
	v.Status = to
	v.DecidedBy = actor
	v.DecidedAt = &now
	if err := m.store.DecideVersion(v, expectedRevision, t); err != nil {
		return err
	}
	m.logTransition("rule", t.EntityID, t.VersionNumber, EventApprove, v.Status)
	return nil
}

// Reject applies a checker's rejection. Remarks are mandatory: REJECTED
// means this specific version was declined, and audit needs the reason.
func (m *Manager) Reject(ticketID types.TicketID, expectedRevision int64,
	actor types.ActorID, remarks string) error {
	if remarks == "" {
		return types.ErrRemarksRequired
	}
	t, err := m.store.GetTicket(ticketID)
	if err != nil {
		return err
	}
	entity := entityLabel(t.EntityType)
	if t.Decided() {
		err := fmt.Errorf("%w: ticket already decided", types.ErrInvalidTransition)
		m.observe(entity, EventReject, err)
		return err
	}
	if !CanDecide(t, actor, m.identity) {
		m.observe(entity, EventReject, types.ErrNotPermitted)
		return fmt.Errorf("%w: %s may not reject this ticket", types.ErrNotPermitted, actor)
	}

	now := time.Now().UTC()
	t.Status = types.TicketRejected
	t.DecidedBy = actor
	t.DecidedAt = &now
	t.DecisionRemarks = remarks

	switch t.EntityType {
	case types.EntityRuleVersion:
		err = m.rejectRule(t, expectedRevision, actor, remarks, now)
	case types.EntityRuleSetVersion:
		err = m.rejectSet(t, expectedRevision, actor, remarks, now)
	default:
		err = fmt.Errorf("%w: unknown entity type %s", types.ErrInvalidTransition, t.EntityType)
	}
	m.observe(entity, EventReject, err)
	return err
}

func (m *Manager) rejectRule(t *ApprovalTicket, expectedRevision int64,
	actor types.ActorID, remarks string, now time.Time) error {
	v, err := m.store.GetVersion(types.RuleID(t.EntityID), t.VersionNumber)
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
	if err := m.store.DecideVersion(v, expectedRevision, t); err != nil {
		return err
	}
	m.logTransition("rule", t.EntityID, t.VersionNumber, EventReject, v.Status)
	return nil
}

// NewVersion starts the next draft of a decided rule, copying the prior
// tree and scope as the starting point. Version numbers advance by exactly
// one and are never reused, including after rejection.
func (m *Manager) NewVersion(id types.RuleID, actor types.ActorID) (*RuleVersion, error) {
	if !m.identity.HasCapability(actor, types.CapabilityMaker) {
		m.observe("rule", EventNewVersion, types.ErrNotPermitted)
		return nil, fmt.Errorf("%w: %s lacks maker capability", types.ErrNotPermitted, actor)
	}
	latest, err := m.store.LatestVersion(id)
	if err != nil {
		return nil, err
	}
	if _, err := nextStatus(latest.Status, EventNewVersion); err != nil {
		m.observe("rule", EventNewVersion, err)
		return nil, err
	}

	next := &RuleVersion{
		RuleID:        id,
		VersionNumber: latest.VersionNumber + 1,
		RuleType:      latest.RuleType,
		Name:          latest.Name,
		Priority:      latest.Priority,
		Status:        types.StatusDraft,
		Tree:          latest.Tree.Clone(),
		Scope:         latest.Scope,
		CreatedBy:     actor,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.InsertVersion(next); err != nil {
		return nil, err
	}
	m.logTransition("rule", string(id), next.VersionNumber, EventNewVersion, next.Status)
	m.observe("rule", EventNewVersion, nil)
	return next, nil
}

func (m *Manager) logTransition(entity, id string, version int, ev Event, to types.Status) {
	m.log.Info().
		Str("entity", entity).
		Str("id", id).
		Int("version", version).
		Str("event", string(ev)).
		Str("status", string(to)).
		Msg("lifecycle transition applied")
}

func (m *Manager) observe(entity string, ev Event, err error) {
	outcome := metrics.OutcomeApplied
	switch {
	case err == nil:
	case errors.Is(err, types.ErrNotPermitted):
		outcome = metrics.OutcomeDenied
	case errors.Is(err, types.ErrStaleRevision):
		outcome = metrics.OutcomeConflict
	default:
		outcome = metrics.OutcomeInvalid
	}
	m.metrics.RecordTransition(entity, string(ev), outcome)
}

func entityLabel(et types.EntityType) string {
	if et == types.EntityRuleSetVersion {
		return "ruleset"
	}
	return "rule"
}

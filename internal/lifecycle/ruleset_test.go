// internal/lifecycle/ruleset_test.go
package lifecycle

import (
	"errors"
	"testing"

	"github.com/finsentry/rulegov/internal/types"
)

// approveRule drives one rule through draft -> approved for membership
// setup in ruleset tests.
func approveRule(t *testing.T, m *Manager, store *MemoryStore) types.RuleID {
	t.Helper()
	v, err := m.CreateDraft(draftParams(maker))
	if err != nil {
		t.Fatalf("CreateDraft() error = %v, want nil", err)
	}
	ticket, err := m.Submit(v.RuleID, 1, v.Revision, maker)
	if err != nil {
		t.Fatalf("Submit() error = %v, want nil", err)
	}
	pending, _ := store.GetVersion(v.RuleID, 1)
	if err := m.Approve(ticket.TicketID, pending.Revision, checker); err != nil {
		t.Fatalf("Approve() error = %v, want nil", err)
	}
	return v.RuleID
}

func TestCreateSetDraft(t *testing.T) {
	m, store := testManager(t)
	ruleID := approveRule(t, m, store)

	v, err := m.CreateSetDraft(SetDraftParams{
		Name:        "prod blocklist",
		Environment: types.EnvProd,
		Members:     []types.RuleID{ruleID},
		Actor:       maker,
	})
	if err != nil {
		t.Fatalf("CreateSetDraft() error = %v, want nil", err)
	}
	if v.Status != types.StatusDraft {
		t.Errorf("Status = %v, want %v", v.Status, types.StatusDraft)
	}
	if v.VersionNumber != 1 {
		t.Errorf("VersionNumber = %v, want 1", v.VersionNumber)
	}
	if len(v.MemberRuleIDs) != 1 || v.MemberRuleIDs[0] != ruleID {
		t.Errorf("MemberRuleIDs = %v, want [%v]", v.MemberRuleIDs, ruleID)
	}
}

func TestCreateSetDraft_RequiresMaker(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.CreateSetDraft(SetDraftParams{Name: "x", Environment: types.EnvTest, Actor: checker})
	if !errors.Is(err, types.ErrNotPermitted) {
		t.Errorf("CreateSetDraft() error = %v, want ErrNotPermitted", err)
	}
}

func TestEditSetMembers(t *testing.T) {
	m, store := testManager(t)
	r1 := approveRule(t, m, store)
	r2 := approveRule(t, m, store)

	v, _ := m.CreateSetDraft(SetDraftParams{
		Name: "s", Environment: types.EnvTest, Members: []types.RuleID{r1}, Actor: maker,
	})

	edited, err := m.EditSetMembers(v.SetID, 1, v.Revision, maker, []types.RuleID{r1, r2})
	if err != nil {
		t.Fatalf("EditSetMembers() error = %v, want nil", err)
	}
	if len(edited.MemberRuleIDs) != 2 {
		t.Errorf("len(MemberRuleIDs) = %v, want 2", len(edited.MemberRuleIDs))
	}
}

func TestEditSetMembers_OnlyWhileDraft(t *testing.T) {
	m, store := testManager(t)
	r1 := approveRule(t, m, store)

	v, _ := m.CreateSetDraft(SetDraftParams{
		Name: "s", Environment: types.EnvTest, Members: []types.RuleID{r1}, Actor: maker,
	})
	if _, err := m.SubmitSet(v.SetID, 1, v.Revision, maker); err != nil {
		t.Fatalf("SubmitSet() error = %v, want nil", err)
	}

	pending, _ := store.GetSetVersion(v.SetID, 1)
	_, err := m.EditSetMembers(v.SetID, 1, pending.Revision, maker, nil)
	if !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("EditSetMembers() error = %v, want ErrInvalidTransition", err)
	}
}

func TestEditSetMembers_StaleAfterConcurrentSubmit(t *testing.T) {
	m, store := testManager(t)
	r1 := approveRule(t, m, store)

	v, _ := m.CreateSetDraft(SetDraftParams{
		Name: "s", Environment: types.EnvTest, Members: []types.RuleID{r1}, Actor: maker,
	})
	if _, err := m.SubmitSet(v.SetID, 1, v.Revision, maker); err != nil {
		t.Fatalf("SubmitSet() error = %v, want nil", err)
	}

	// Editing with the pre-submit token is a conflict, not an undefined
	// transition: the caller must re-read before deciding what to do.
	_, err := m.EditSetMembers(v.SetID, 1, v.Revision, maker, nil)
	if !errors.Is(err, types.ErrStaleRevision) {
		t.Errorf("EditSetMembers() error = %v, want ErrStaleRevision", err)
	}
}

func TestApproveSet(t *testing.T) {
	m, store := testManager(t)
	r1 := approveRule(t, m, store)
	r2 := approveRule(t, m, store)

	v, _ := m.CreateSetDraft(SetDraftParams{
		Name: "s", Environment: types.EnvProd, Members: []types.RuleID{r1, r2}, Actor: maker,
	})
	ticket, _ := m.SubmitSet(v.SetID, 1, v.Revision, maker)

	pending, _ := store.GetSetVersion(v.SetID, 1)
	if err := m.Approve(ticket.TicketID, pending.Revision, checker); err != nil {
		t.Fatalf("Approve() error = %v, want nil", err)
	}

	approved, _ := store.GetSetVersion(v.SetID, 1)
	if approved.Status != types.StatusApproved {
		t.Errorf("Status = %v, want %v", approved.Status, types.StatusApproved)
	}
	if approved.DecidedBy != checker {
		t.Errorf("DecidedBy = %v, want %v", approved.DecidedBy, checker)
	}
}

func TestApproveSet_IncompleteMembership(t *testing.T) {
	m, store := testManager(t)
	r1 := approveRule(t, m, store)

	// r2 is drafted but never approved.
	draft, _ := m.CreateDraft(draftParams(maker))
	r2 := draft.RuleID

	v, _ := m.CreateSetDraft(SetDraftParams{
		Name: "s", Environment: types.EnvProd, Members: []types.RuleID{r1, r2}, Actor: maker,
	})
	ticket, _ := m.SubmitSet(v.SetID, 1, v.Revision, maker)

	pending, _ := store.GetSetVersion(v.SetID, 1)
	err := m.Approve(ticket.TicketID, pending.Revision, checker)
	if !errors.Is(err, types.ErrIncompleteMembership) {
		t.Fatalf("Approve() error = %v, want ErrIncompleteMembership", err)
	}

	// Failed approval leaves ticket and version untouched.
	after, _ := store.GetSetVersion(v.SetID, 1)
	if after.Status != types.StatusPendingApproval {
		t.Errorf("Status = %v, want %v", after.Status, types.StatusPendingApproval)
	}
	tk, _ := store.GetTicket(ticket.TicketID)
	if tk.Status != types.TicketPending {
		t.Errorf("ticket Status = %v, want %v", tk.Status, types.TicketPending)
	}
}

func TestRejectSet(t *testing.T) {
	m, store := testManager(t)
	r1 := approveRule(t, m, store)

	v, _ := m.CreateSetDraft(SetDraftParams{
		Name: "s", Environment: types.EnvTest, Members: []types.RuleID{r1}, Actor: maker,
	})
	ticket, _ := m.SubmitSet(v.SetID, 1, v.Revision, maker)

	pending, _ := store.GetSetVersion(v.SetID, 1)
	if err := m.Reject(ticket.TicketID, pending.Revision, checker, "wrong environment"); err != nil {
		t.Fatalf("Reject() error = %v, want nil", err)
	}

	rejected, _ := store.GetSetVersion(v.SetID, 1)
	if rejected.Status != types.StatusRejected {
		t.Errorf("Status = %v, want %v", rejected.Status, types.StatusRejected)
	}
	if rejected.Remarks != "wrong environment" {
		t.Errorf("Remarks = %q, want %q", rejected.Remarks, "wrong environment")
	}
}

func TestNewSetVersion(t *testing.T) {
	m, store := testManager(t)
	r1 := approveRule(t, m, store)

	v, _ := m.CreateSetDraft(SetDraftParams{
		Name: "s", Environment: types.EnvProd, Members: []types.RuleID{r1}, Actor: maker,
	})
	ticket, _ := m.SubmitSet(v.SetID, 1, v.Revision, maker)
	pending, _ := store.GetSetVersion(v.SetID, 1)
	if err := m.Approve(ticket.TicketID, pending.Revision, checker); err != nil {
		t.Fatalf("Approve() error = %v, want nil", err)
	}

	v2, err := m.NewSetVersion(v.SetID, maker)
	if err != nil {
		t.Fatalf("NewSetVersion() error = %v, want nil", err)
	}
	if v2.VersionNumber != 2 {
		t.Errorf("VersionNumber = %v, want 2", v2.VersionNumber)
	}
	if len(v2.MemberRuleIDs) != 1 || v2.MemberRuleIDs[0] != r1 {
		t.Errorf("MemberRuleIDs = %v, want copied membership [%v]", v2.MemberRuleIDs, r1)
	}
	if v2.Status != types.StatusDraft {
		t.Errorf("Status = %v, want %v", v2.Status, types.StatusDraft)
	}
}

func TestApproveSet_SupersedesPrior(t *testing.T) {
	m, store := testManager(t)
	r1 := approveRule(t, m, store)

	v, _ := m.CreateSetDraft(SetDraftParams{
		Name: "s", Environment: types.EnvProd, Members: []types.RuleID{r1}, Actor: maker,
	})
	t1, _ := m.SubmitSet(v.SetID, 1, v.Revision, maker)
	pending, _ := store.GetSetVersion(v.SetID, 1)
	if err := m.Approve(t1.TicketID, pending.Revision, checker); err != nil {
		t.Fatalf("Approve() v1 error = %v, want nil", err)
	}

	v2, _ := m.NewSetVersion(v.SetID, maker)
	t2, _ := m.SubmitSet(v.SetID, 2, v2.Revision, maker)
	pending2, _ := store.GetSetVersion(v.SetID, 2)
	if err := m.Approve(t2.TicketID, pending2.Revision, checker); err != nil {
		t.Fatalf("Approve() v2 error = %v, want nil", err)
	}

	old, _ := store.GetSetVersion(v.SetID, 1)
	if old.Status != types.StatusSuperseded {
		t.Errorf("v1 Status = %v, want %v", old.Status, types.StatusSuperseded)
	}
	latest, _ := store.GetSetVersion(v.SetID, 2)
	if latest.Status != types.StatusApproved {
		t.Errorf("v2 Status = %v, want %v", latest.Status, types.StatusApproved)
	}
}

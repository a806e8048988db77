// internal/lifecycle/transitions_test.go
package lifecycle

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/finsentry/rulegov/internal/condition"
	"github.com/finsentry/rulegov/internal/core/metrics"
	"github.com/finsentry/rulegov/internal/scope"
	"github.com/finsentry/rulegov/internal/types"
)

const (
	maker   = types.ActorID("alice")
	checker = types.ActorID("bob")
	both    = types.ActorID("carol") // maker and checker in one actor
	nobody  = types.ActorID("mallory")
)

func testIdentity() StaticIdentity {
	return StaticIdentity{
		maker:   {types.CapabilityMaker},
		checker: {types.CapabilityChecker},
		both:    {types.CapabilityMaker, types.CapabilityChecker},
	}
}

func lifecycleRegistry() condition.Registry {
	return condition.NewStaticRegistry([]condition.Field{
		{
			Key:      "transaction.amount",
			DataType: condition.DataNumber,
			Operators: []condition.Operator{
				condition.OpEq, condition.OpGt, condition.OpLt, condition.OpBetween,
			},
			MultiValue: true,
		},
		{
			Key:        "transaction.mcc",
			DataType:   condition.DataString,
			Operators:  []condition.Operator{condition.OpEq, condition.OpIn},
			MultiValue: true,
		},
	})
}

func testManager(t *testing.T) (*Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	m, err := NewManager(store, testIdentity(), lifecycleRegistry(), zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v, want nil", err)
	}
	return m, store
}

func amountTree(threshold float64) *condition.Group {
	return &condition.Group{Op: condition.LogicalAnd, Children: []condition.Node{
		condition.LeafNode(condition.Leaf{
			Field: "transaction.amount", Operator: condition.OpGt, Value: threshold,
		}),
	}}
}

func draftParams(actor types.ActorID) DraftParams {
	return DraftParams{
		RuleType: types.RuleTypeBlocklist,
		Name:     "high value",
		Priority: 10,
		Tree:     amountTree(1000),
		Scope:    scope.Scope{Networks: []string{"VISA"}},
		Actor:    actor,
	}
}

func TestCreateDraft(t *testing.T) {
	m, _ := testManager(t)

	v, err := m.CreateDraft(draftParams(maker))
	if err != nil {
		t.Fatalf("CreateDraft() error = %v, want nil", err)
	}
	if v.Status != types.StatusDraft {
		t.Errorf("Status = %v, want %v", v.Status, types.StatusDraft)
	}
	if v.VersionNumber != 1 {
		t.Errorf("VersionNumber = %v, want 1", v.VersionNumber)
	}
	if v.Revision != 1 {
		t.Errorf("Revision = %v, want 1", v.Revision)
	}
	if v.CreatedBy != maker {
		t.Errorf("CreatedBy = %v, want %v", v.CreatedBy, maker)
	}
}

func TestCreateDraft_RequiresMaker(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.CreateDraft(draftParams(checker))
	if !errors.Is(err, types.ErrNotPermitted) {
		t.Errorf("CreateDraft() error = %v, want ErrNotPermitted", err)
	}
}

func TestCreateDraft_InvalidTree(t *testing.T) {
	m, _ := testManager(t)

	p := draftParams(maker)
	p.Tree = &condition.Group{Op: condition.LogicalAnd, Children: []condition.Node{
		condition.LeafNode(condition.Leaf{
			Field: "no.such.field", Operator: condition.OpEq, Value: "x",
		}),
	}}
	_, err := m.CreateDraft(p)

	var verr *condition.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("CreateDraft() error = %v, want *condition.ValidationError", err)
	}
	if len(verr.Problems) == 0 {
		t.Errorf("ValidationError carries no problems")
	}
}

func TestEdit(t *testing.T) {
	m, store := testManager(t)
	v, _ := m.CreateDraft(draftParams(maker))

	edited, err := m.Edit(v.RuleID, 1, v.Revision, maker, amountTree(2000), v.Scope)
	if err != nil {
		t.Fatalf("Edit() error = %v, want nil", err)
	}
	if edited.VersionNumber != 1 {
		t.Errorf("VersionNumber = %v, want 1 (edits never advance the version)", edited.VersionNumber)
	}
	if edited.Revision != v.Revision+1 {
		t.Errorf("Revision = %v, want %v", edited.Revision, v.Revision+1)
	}

	stored, _ := store.GetVersion(v.RuleID, 1)
	if !stored.Tree.Equal(amountTree(2000)) {
		t.Errorf("stored tree not updated")
	}
}

func TestEdit_AuthorOnly(t *testing.T) {
	m, _ := testManager(t)
	v, _ := m.CreateDraft(draftParams(maker))

	_, err := m.Edit(v.RuleID, 1, v.Revision, both, amountTree(2000), v.Scope)
	if !errors.Is(err, types.ErrNotPermitted) {
		t.Errorf("Edit() error = %v, want ErrNotPermitted", err)
	}
}

func TestEdit_StaleRevision(t *testing.T) {
	m, _ := testManager(t)
	v, _ := m.CreateDraft(draftParams(maker))

	// First edit wins and bumps the revision.
	if _, err := m.Edit(v.RuleID, 1, v.Revision, maker, amountTree(2000), v.Scope); err != nil {
		t.Fatalf("Edit() error = %v, want nil", err)
	}

	// Second edit still carries the original token and must conflict.
	_, err := m.Edit(v.RuleID, 1, v.Revision, maker, amountTree(3000), v.Scope)
	if !errors.Is(err, types.ErrStaleRevision) {
		t.Errorf("Edit() error = %v, want ErrStaleRevision", err)
	}
}

func TestCreateDraft_RecordsCreateEvent(t *testing.T) {
	store := NewMemoryStore()
	collector := metrics.NewCollector()
	m, err := NewManager(store, testIdentity(), lifecycleRegistry(), zerolog.Nop(), collector)
	if err != nil {
		t.Fatalf("NewManager() error = %v, want nil", err)
	}

	if _, err := m.CreateDraft(draftParams(maker)); err != nil {
		t.Fatalf("CreateDraft() error = %v, want nil", err)
	}

	families, err := collector.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v, want nil", err)
	}
	var gotCreate, gotEdit bool
	for _, mf := range families {
		if mf.GetName() != "rulegov_lifecycle_transitions_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() != "event" {
					continue
				}
				switch label.GetValue() {
				case string(EventCreate):
					gotCreate = true
				case string(EventEdit):
					gotEdit = true
				}
			}
		}
	}
	if !gotCreate {
		t.Errorf("no transition counted under event %q", EventCreate)
	}
	if gotEdit {
		t.Errorf("draft creation counted under event %q", EventEdit)
	}
}

func TestEdit_StaleAfterConcurrentSubmit(t *testing.T) {
	m, _ := testManager(t)
	v, _ := m.CreateDraft(draftParams(maker))

	// Another session submits first: the token advances and the status
	// leaves DRAFT. The late edit must report a conflict, not an undefined
	// transition.
	if _, err := m.Submit(v.RuleID, 1, v.Revision, maker); err != nil {
		t.Fatalf("Submit() error = %v, want nil", err)
	}

	_, err := m.Edit(v.RuleID, 1, v.Revision, maker, amountTree(2000), v.Scope)
	if !errors.Is(err, types.ErrStaleRevision) {
		t.Errorf("Edit() error = %v, want ErrStaleRevision", err)
	}
}

func TestSubmit_StaleAfterConcurrentSubmit(t *testing.T) {
	m, _ := testManager(t)
	v, _ := m.CreateDraft(draftParams(maker))

	if _, err := m.Submit(v.RuleID, 1, v.Revision, maker); err != nil {
		t.Fatalf("Submit() error = %v, want nil", err)
	}

	_, err := m.Submit(v.RuleID, 1, v.Revision, maker)
	if !errors.Is(err, types.ErrStaleRevision) {
		t.Errorf("Submit() error = %v, want ErrStaleRevision", err)
	}
}

func TestSubmit(t *testing.T) {
	m, store := testManager(t)
	v, _ := m.CreateDraft(draftParams(maker))

	ticket, err := m.Submit(v.RuleID, 1, v.Revision, maker)
	if err != nil {
		t.Fatalf("Submit() error = %v, want nil", err)
	}
	if ticket.Status != types.TicketPending {
		t.Errorf("ticket Status = %v, want %v", ticket.Status, types.TicketPending)
	}
	if ticket.RequestedBy != maker {
		t.Errorf("RequestedBy = %v, want %v", ticket.RequestedBy, maker)
	}

	stored, _ := store.GetVersion(v.RuleID, 1)
	if stored.Status != types.StatusPendingApproval {
		t.Errorf("Status = %v, want %v", stored.Status, types.StatusPendingApproval)
	}
}

func TestSubmit_NotAuthor(t *testing.T) {
	m, _ := testManager(t)
	v, _ := m.CreateDraft(draftParams(maker))

	_, err := m.Submit(v.RuleID, 1, v.Revision, both)
	if !errors.Is(err, types.ErrNotPermitted) {
		t.Errorf("Submit() error = %v, want ErrNotPermitted", err)
	}
}

func TestSubmit_Twice(t *testing.T) {
	m, store := testManager(t)
	v, _ := m.CreateDraft(draftParams(maker))

	if _, err := m.Submit(v.RuleID, 1, v.Revision, maker); err != nil {
		t.Fatalf("Submit() error = %v, want nil", err)
	}
	stored, _ := store.GetVersion(v.RuleID, 1)
	_, err := m.Submit(v.RuleID, 1, stored.Revision, maker)
	if !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("Submit() error = %v, want ErrInvalidTransition", err)
	}
}

func TestApprove(t *testing.T) {
	m, store := testManager(t)
	v, _ := m.CreateDraft(draftParams(maker))
	ticket, _ := m.Submit(v.RuleID, 1, v.Revision, maker)

	pending, _ := store.GetVersion(v.RuleID, 1)
	if err := m.Approve(ticket.TicketID, pending.Revision, checker); err != nil {
		t.Fatalf("Approve() error = %v, want nil", err)
	}

	approved, err := store.ApprovedVersion(v.RuleID)
	if err != nil {
		t.Fatalf("ApprovedVersion() error = %v, want nil", err)
	}
	if approved.VersionNumber != 1 {
		t.Errorf("approved VersionNumber = %v, want 1", approved.VersionNumber)
	}
	if approved.DecidedBy != checker {
		t.Errorf("DecidedBy = %v, want %v", approved.DecidedBy, checker)
	}
	if approved.DecidedAt == nil {
		t.Errorf("DecidedAt = nil, want set")
	}

	decided, _ := store.GetTicket(ticket.TicketID)
	if decided.Status != types.TicketApproved {
		t.Errorf("ticket Status = %v, want %v", decided.Status, types.TicketApproved)
	}
}

func TestApprove_SelfApprovalDenied(t *testing.T) {
	m, store := testManager(t)

	// carol holds both capabilities but still may not check her own work.
	v, _ := m.CreateDraft(draftParams(both))
	ticket, _ := m.Submit(v.RuleID, 1, v.Revision, both)

	pending, _ := store.GetVersion(v.RuleID, 1)
	err := m.Approve(ticket.TicketID, pending.Revision, both)
	if !errors.Is(err, types.ErrNotPermitted) {
		t.Errorf("Approve() error = %v, want ErrNotPermitted", err)
	}

	stored, _ := store.GetVersion(v.RuleID, 1)
	if stored.Status != types.StatusPendingApproval {
		t.Errorf("Status = %v, want %v (denied approval must not mutate)", stored.Status, types.StatusPendingApproval)
	}
}

func TestApprove_RequiresChecker(t *testing.T) {
	m, store := testManager(t)
	v, _ := m.CreateDraft(draftParams(maker))
	ticket, _ := m.Submit(v.RuleID, 1, v.Revision, maker)

	pending, _ := store.GetVersion(v.RuleID, 1)
	err := m.Approve(ticket.TicketID, pending.Revision, nobody)
	if !errors.Is(err, types.ErrNotPermitted) {
		t.Errorf("Approve() error = %v, want ErrNotPermitted", err)
	}
}

func TestApprove_DecidedTicket(t *testing.T) {
	m, store := testManager(t)
	v, _ := m.CreateDraft(draftParams(maker))
	ticket, _ := m.Submit(v.RuleID, 1, v.Revision, maker)

	pending, _ := store.GetVersion(v.RuleID, 1)
	if err := m.Approve(ticket.TicketID, pending.Revision, checker); err != nil {
		t.Fatalf("Approve() error = %v, want nil", err)
	}

	approved, _ := store.GetVersion(v.RuleID, 1)
	err := m.Approve(ticket.TicketID, approved.Revision, checker)
	if !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("second Approve() error = %v, want ErrInvalidTransition", err)
	}
}

func TestReject(t *testing.T) {
	m, store := testManager(t)
	v, _ := m.CreateDraft(draftParams(maker))
	ticket, _ := m.Submit(v.RuleID, 1, v.Revision, maker)

	pending, _ := store.GetVersion(v.RuleID, 1)
	if err := m.Reject(ticket.TicketID, pending.Revision, checker, "threshold too low"); err != nil {
		t.Fatalf("Reject() error = %v, want nil", err)
	}

	stored, _ := store.GetVersion(v.RuleID, 1)
	if stored.Status != types.StatusRejected {
		t.Errorf("Status = %v, want %v", stored.Status, types.StatusRejected)
	}
	if stored.Remarks != "threshold too low" {
		t.Errorf("Remarks = %q, want %q", stored.Remarks, "threshold too low")
	}
	if _, err := store.ApprovedVersion(v.RuleID); !errors.Is(err, types.ErrNoApprovedVersion) {
		t.Errorf("ApprovedVersion() error = %v, want ErrNoApprovedVersion", err)
	}
}

func TestReject_RemarksRequired(t *testing.T) {
	m, _ := testManager(t)
	v, _ := m.CreateDraft(draftParams(maker))
	ticket, _ := m.Submit(v.RuleID, 1, v.Revision, maker)

	err := m.Reject(ticket.TicketID, 2, checker, "")
	if !errors.Is(err, types.ErrRemarksRequired) {
		t.Errorf("Reject() error = %v, want ErrRemarksRequired", err)
	}
}

func TestNewVersion_Supersession(t *testing.T) {
	m, store := testManager(t)

	// v1 approved.
	v1, _ := m.CreateDraft(draftParams(maker))
	t1, _ := m.Submit(v1.RuleID, 1, v1.Revision, maker)
	pending, _ := store.GetVersion(v1.RuleID, 1)
	if err := m.Approve(t1.TicketID, pending.Revision, checker); err != nil {
		t.Fatalf("Approve() v1 error = %v, want nil", err)
	}

	// v2 drafted from v1, edited, submitted, approved.
	v2, err := m.NewVersion(v1.RuleID, maker)
	if err != nil {
		t.Fatalf("NewVersion() error = %v, want nil", err)
	}
	if v2.VersionNumber != 2 {
		t.Errorf("VersionNumber = %v, want 2", v2.VersionNumber)
	}
	if !v2.Tree.Equal(v1.Tree) {
		t.Errorf("new draft tree does not copy the prior version")
	}

	if _, err := m.Edit(v2.RuleID, 2, v2.Revision, maker, amountTree(5000), v2.Scope); err != nil {
		t.Fatalf("Edit() v2 error = %v, want nil", err)
	}
	afterEdit, _ := store.GetVersion(v2.RuleID, 2)
	t2, err := m.Submit(v2.RuleID, 2, afterEdit.Revision, maker)
	if err != nil {
		t.Fatalf("Submit() v2 error = %v, want nil", err)
	}
	pending2, _ := store.GetVersion(v2.RuleID, 2)
	if err := m.Approve(t2.TicketID, pending2.Revision, checker); err != nil {
		t.Fatalf("Approve() v2 error = %v, want nil", err)
	}

	// v2 is now the approved version; v1 was superseded in the same step.
	approved, _ := store.ApprovedVersion(v1.RuleID)
	if approved.VersionNumber != 2 {
		t.Errorf("approved VersionNumber = %v, want 2", approved.VersionNumber)
	}
	old, _ := store.GetVersion(v1.RuleID, 1)
	if old.Status != types.StatusSuperseded {
		t.Errorf("v1 Status = %v, want %v", old.Status, types.StatusSuperseded)
	}
}

func TestNewVersion_AfterRejection(t *testing.T) {
	m, store := testManager(t)

	v1, _ := m.CreateDraft(draftParams(maker))
	t1, _ := m.Submit(v1.RuleID, 1, v1.Revision, maker)
	pending, _ := store.GetVersion(v1.RuleID, 1)
	if err := m.Reject(t1.TicketID, pending.Revision, checker, "no"); err != nil {
		t.Fatalf("Reject() error = %v, want nil", err)
	}

	// Version numbers advance past rejected versions, never reusing them.
	v2, err := m.NewVersion(v1.RuleID, maker)
	if err != nil {
		t.Fatalf("NewVersion() error = %v, want nil", err)
	}
	if v2.VersionNumber != 2 {
		t.Errorf("VersionNumber = %v, want 2", v2.VersionNumber)
	}
}

func TestNewVersion_UndecidedLatest(t *testing.T) {
	m, _ := testManager(t)
	v, _ := m.CreateDraft(draftParams(maker))

	_, err := m.NewVersion(v.RuleID, maker)
	if !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("NewVersion() error = %v, want ErrInvalidTransition", err)
	}
}

func TestCanDecide(t *testing.T) {
	idp := testIdentity()
	ticket := &ApprovalTicket{RequestedBy: maker}

	tests := []struct {
		name  string
		actor types.ActorID
		want  bool
	}{
		{name: "checker may decide", actor: checker, want: true},
		{name: "requester may not decide", actor: maker, want: false},
		{name: "actor without checker capability may not decide", actor: nobody, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanDecide(ticket, tt.actor, idp); got != tt.want {
				t.Errorf("CanDecide(%s) = %v, want %v", tt.actor, got, tt.want)
			}
		})
	}
}

// internal/lifecycle/memstore.go
package lifecycle

import (
	"fmt"
	"sync"

	"github.com/finsentry/rulegov/internal/types"
)

/*
 * In-memory Store implementation.
 *
 * Reference semantics for the persistence contract: a single mutex makes
 * every multi-row operation atomic, the approved index is updated only
 * inside DecideVersion, and all values are copied on the way in and out so
 * callers can never mutate stored state except through defined operations.
 *
 * Used by tests and by callers embedding the lifecycle without a database.
 */

// MemoryStore is a mutex-guarded Store keeping everything in maps.
type MemoryStore struct {
	mu           sync.Mutex
	rules        map[types.RuleID]map[int]*RuleVersion
	approved     map[types.RuleID]int // rule -> currently approved version number
	tickets      map[types.TicketID]*ApprovalTicket
	sets         map[types.RuleSetID]map[int]*RuleSetVersion
	approvedSets map[types.RuleSetID]int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:        make(map[types.RuleID]map[int]*RuleVersion),
		approved:     make(map[types.RuleID]int),
		tickets:      make(map[types.TicketID]*ApprovalTicket),
		sets:         make(map[types.RuleSetID]map[int]*RuleSetVersion),
		approvedSets: make(map[types.RuleSetID]int),
	}
}

func copyRule(v *RuleVersion) *RuleVersion {
	out := *v
	if v.Tree != nil {
		out.Tree = v.Tree.Clone()
	}
	if v.DecidedAt != nil {
		t := *v.DecidedAt
		out.DecidedAt = &t
	}
	return &out
}

func copyTicket(t *ApprovalTicket) *ApprovalTicket {
	out := *t
	if t.DecidedAt != nil {
		ts := *t.DecidedAt
		out.DecidedAt = &ts
	}
	return &out
}

func copySet(v *RuleSetVersion) *RuleSetVersion {
	out := *v
	out.MemberRuleIDs = append([]types.RuleID(nil), v.MemberRuleIDs...)
	if v.DecidedAt != nil {
		t := *v.DecidedAt
		out.DecidedAt = &t
	}
	return &out
}

// GetVersion implements RuleStore.
func (s *MemoryStore) GetVersion(id types.RuleID, version int) (*RuleVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rules[id][version]
	if !ok {
		return nil, types.ErrVersionNotFound
	}
	return copyRule(v), nil
}

// LatestVersion implements RuleStore.
func (s *MemoryStore) LatestVersion(id types.RuleID) (*RuleVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions, ok := s.rules[id]
	if !ok || len(versions) == 0 {
		return nil, types.ErrVersionNotFound
	}
	max := 0
	for n := range versions {
		if n > max {
			max = n
		}
	}
	return copyRule(versions[max]), nil
}

// ApprovedVersion implements RuleStore.
func (s *MemoryStore) ApprovedVersion(id types.RuleID) (*RuleVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.approved[id]
	if !ok {
		return nil, types.ErrNoApprovedVersion
	}
	return copyRule(s.rules[id][n]), nil
}

// InsertVersion implements RuleStore.
func (s *MemoryStore) InsertVersion(v *RuleVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[v.RuleID][v.VersionNumber]; exists {
		return fmt.Errorf("rule %s version %d already exists", v.RuleID, v.VersionNumber)
	}
	if s.rules[v.RuleID] == nil {
		s.rules[v.RuleID] = make(map[int]*RuleVersion)
	}
	v.Revision = 1
	s.rules[v.RuleID][v.VersionNumber] = copyRule(v)
	return nil
}

// UpdateVersion implements RuleStore.
func (s *MemoryStore) UpdateVersion(v *RuleVersion, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.casRule(v, expectedRevision); err != nil {
		return err
	}
	s.rules[v.RuleID][v.VersionNumber] = copyRule(v)
	return nil
}

// SubmitVersion implements RuleStore.
func (s *MemoryStore) SubmitVersion(v *RuleVersion, expectedRevision int64, t *ApprovalTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.casRule(v, expectedRevision); err != nil {
		return err
	}
	s.rules[v.RuleID][v.VersionNumber] = copyRule(v)
	s.tickets[t.TicketID] = copyTicket(t)
	return nil
}

// DecideVersion implements RuleStore. Demotion of the prior approved
// version happens under the same lock as the promotion, so no reader can
// observe two approved versions for one rule.
func (s *MemoryStore) DecideVersion(v *RuleVersion, expectedRevision int64, t *ApprovalTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.casRule(v, expectedRevision); err != nil {
		return err
	}
	if v.Status == types.StatusApproved {
		if prev, ok := s.approved[v.RuleID]; ok && prev != v.VersionNumber {
			demoted := s.rules[v.RuleID][prev]
			demoted.Status = types.StatusSuperseded
			demoted.Revision++
		}
		s.approved[v.RuleID] = v.VersionNumber
	}
	s.rules[v.RuleID][v.VersionNumber] = copyRule(v)
	s.tickets[t.TicketID] = copyTicket(t)
	return nil
}

// casRule verifies the stored revision and bumps v.Revision.
func (s *MemoryStore) casRule(v *RuleVersion, expectedRevision int64) error {
	cur, ok := s.rules[v.RuleID][v.VersionNumber]
	if !ok {
		return types.ErrVersionNotFound
	}
	if cur.Revision != expectedRevision {
		return types.ErrStaleRevision
	}
	v.Revision = expectedRevision + 1
	return nil
}

// GetTicket implements TicketStore.
func (s *MemoryStore) GetTicket(id types.TicketID) (*ApprovalTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, types.ErrTicketNotFound
	}
	return copyTicket(t), nil
}

// GetSetVersion implements RuleSetStore.
func (s *MemoryStore) GetSetVersion(id types.RuleSetID, version int) (*RuleSetVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.sets[id][version]
	if !ok {
		return nil, types.ErrVersionNotFound
	}
	return copySet(v), nil
}

// LatestSetVersion implements RuleSetStore.
func (s *MemoryStore) LatestSetVersion(id types.RuleSetID) (*RuleSetVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions, ok := s.sets[id]
	if !ok || len(versions) == 0 {
		return nil, types.ErrVersionNotFound
	}
	max := 0
	for n := range versions {
		if n > max {
			max = n
		}
	}
	return copySet(versions[max]), nil
}

// InsertSetVersion implements RuleSetStore.
func (s *MemoryStore) InsertSetVersion(v *RuleSetVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sets[v.SetID][v.VersionNumber]; exists {
		return fmt.Errorf("ruleset %s version %d already exists", v.SetID, v.VersionNumber)
	}
	if s.sets[v.SetID] == nil {
		s.sets[v.SetID] = make(map[int]*RuleSetVersion)
	}
	v.Revision = 1
	s.sets[v.SetID][v.VersionNumber] = copySet(v)
	return nil
}

// UpdateSetVersion implements RuleSetStore.
func (s *MemoryStore) UpdateSetVersion(v *RuleSetVersion, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.casSet(v, expectedRevision); err != nil {
		return err
	}
	s.sets[v.SetID][v.VersionNumber] = copySet(v)
	return nil
}

// SubmitSetVersion implements RuleSetStore.
func (s *MemoryStore) SubmitSetVersion(v *RuleSetVersion, expectedRevision int64, t *ApprovalTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.casSet(v, expectedRevision); err != nil {
		return err
	}
	s.sets[v.SetID][v.VersionNumber] = copySet(v)
	s.tickets[t.TicketID] = copyTicket(t)
	return nil
}

// DecideSetVersion implements RuleSetStore.
func (s *MemoryStore) DecideSetVersion(v *RuleSetVersion, expectedRevision int64, t *ApprovalTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.casSet(v, expectedRevision); err != nil {
		return err
	}
	if v.Status == types.StatusApproved {
		if prev, ok := s.approvedSets[v.SetID]; ok && prev != v.VersionNumber {
			demoted := s.sets[v.SetID][prev]
			demoted.Status = types.StatusSuperseded
			demoted.Revision++
		}
		s.approvedSets[v.SetID] = v.VersionNumber
	}
	s.sets[v.SetID][v.VersionNumber] = copySet(v)
	s.tickets[t.TicketID] = copyTicket(t)
	return nil
}

func (s *MemoryStore) casSet(v *RuleSetVersion, expectedRevision int64) error {
	cur, ok := s.sets[v.SetID][v.VersionNumber]
	if !ok {
		return types.ErrVersionNotFound
	}
	if cur.Revision != expectedRevision {
		return types.ErrStaleRevision
	}
	v.Revision = expectedRevision + 1
	return nil
}

package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/finsentry/rulegov/internal/condition"
	"github.com/finsentry/rulegov/internal/lifecycle"
	"github.com/finsentry/rulegov/internal/scope"
	"github.com/finsentry/rulegov/internal/types"
)

/*
 * SQL-backed lifecycle store.
 *
 * Implements lifecycle.Store over SQLite/PostgreSQL. Optimistic concurrency
 * is a conditional UPDATE on the revision column with a rows-affected
 * check; zero rows means either a stale token or a missing row, which is
 * disambiguated with a count query. Submit and Decide run in a single
 * transaction; the schema's partial unique index on (rule_id) WHERE
 * status = 'APPROVED' backstops the single-approved invariant at the
 * storage layer.
 *
 * Timestamps are stored as RFC 3339 text on both drivers; condition trees,
 * scopes, and member lists as JSON text.
 */

// SQLStore implements lifecycle.Store over a sqlx connection.
type SQLStore struct {
	db *sqlx.DB
	q  *Queries
}

// NewSQLStore loads the named queries and wraps the connection.
func NewSQLStore(conn *sqlx.DB) (*SQLStore, error) {
	if conn == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	q, err := LoadQueries(conn)
	if err != nil {
		return nil, err
	}
	return &SQLStore{db: conn, q: q}, nil
}

type ruleVersionRow struct {
	RuleID        string         `db:"rule_id"`
	VersionNumber int            `db:"version_number"`
	RuleType      string         `db:"rule_type"`
	Name          string         `db:"name"`
	Priority      int            `db:"priority"`
	Status        string         `db:"status"`
	ConditionTree string         `db:"condition_tree"`
	Scope         string         `db:"scope"`
	CreatedBy     string         `db:"created_by"`
	CreatedAt     string         `db:"created_at"`
	DecidedBy     sql.NullString `db:"decided_by"`
	DecidedAt     sql.NullString `db:"decided_at"`
	Remarks       sql.NullString `db:"remarks"`
	Revision      int64          `db:"revision"`
}

func (r ruleVersionRow) toModel() (*lifecycle.RuleVersion, error) {
	tree, err := condition.Decode([]byte(r.ConditionTree))
	if err != nil {
		return nil, fmt.Errorf("stored condition tree for rule %s v%d: %w", r.RuleID, r.VersionNumber, err)
	}
	var sc scope.Scope
	if r.Scope != "" {
		if err := json.Unmarshal([]byte(r.Scope), &sc); err != nil {
			return nil, fmt.Errorf("stored scope for rule %s v%d: %w", r.RuleID, r.VersionNumber, err)
		}
	}
	createdAt, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("stored created_at for rule %s v%d: %w", r.RuleID, r.VersionNumber, err)
	}
	v := &lifecycle.RuleVersion{
		RuleID:        types.RuleID(r.RuleID),
		VersionNumber: r.VersionNumber,
		RuleType:      types.RuleType(r.RuleType),
		Name:          r.Name,
		Priority:      r.Priority,
		Status:        types.Status(r.Status),
		Tree:          tree,
		Scope:         sc,
		CreatedBy:     types.ActorID(r.CreatedBy),
		CreatedAt:     createdAt,
		DecidedBy:     types.ActorID(r.DecidedBy.String),
		Remarks:       r.Remarks.String,
		Revision:      r.Revision,
	}
	if r.DecidedAt.Valid {
		decidedAt, err := time.Parse(time.RFC3339, r.DecidedAt.String)
		if err != nil {
			return nil, fmt.Errorf("stored decided_at for rule %s v%d: %w", r.RuleID, r.VersionNumber, err)
		}
		v.DecidedAt = &decidedAt
	}
	return v, nil
}

func encodeRuleVersion(v *lifecycle.RuleVersion) (tree, sc string, err error) {
	treeBytes, err := condition.Encode(v.Tree)
	if err != nil {
		return "", "", fmt.Errorf("encode condition tree: %w", err)
	}
	scopeBytes, err := json.Marshal(v.Scope)
	if err != nil {
		return "", "", fmt.Errorf("encode scope: %w", err)
	}
	return string(treeBytes), string(scopeBytes), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

// GetVersion implements lifecycle.RuleStore.
func (s *SQLStore) GetVersion(id types.RuleID, version int) (*lifecycle.RuleVersion, error) {
	var row ruleVersionRow
	err := s.q.Get("get-rule-version", &row, string(id), version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

// LatestVersion implements lifecycle.RuleStore.
func (s *SQLStore) LatestVersion(id types.RuleID) (*lifecycle.RuleVersion, error) {
	var row ruleVersionRow
	err := s.q.Get("get-latest-rule-version", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

// ApprovedVersion implements lifecycle.RuleStore.
func (s *SQLStore) ApprovedVersion(id types.RuleID) (*lifecycle.RuleVersion, error) {
	var row ruleVersionRow
	err := s.q.Get("get-approved-rule-version", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNoApprovedVersion
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

// InsertVersion implements lifecycle.RuleStore.
func (s *SQLStore) InsertVersion(v *lifecycle.RuleVersion) error {
	tree, sc, err := encodeRuleVersion(v)
	if err != nil {
		return err
	}
	v.Revision = 1
	_, err = s.q.Exec("insert-rule-version",
		string(v.RuleID), v.VersionNumber, string(v.RuleType), v.Name, v.Priority,
		string(v.Status), tree, sc, string(v.CreatedBy),
		v.CreatedAt.Format(time.RFC3339), string(v.DecidedBy), nullTime(v.DecidedAt),
		v.Remarks, v.Revision)
	return err
}

// UpdateVersion implements lifecycle.RuleStore.
func (s *SQLStore) UpdateVersion(v *lifecycle.RuleVersion, expectedRevision int64) error {
	tree, sc, err := encodeRuleVersion(v)
	if err != nil {
		return err
	}
	res, err := s.q.Exec("update-rule-version-content",
		tree, sc, string(v.RuleID), v.VersionNumber, expectedRevision)
	if err != nil {
		return err
	}
	if err := s.checkRuleCAS(res, v.RuleID, v.VersionNumber); err != nil {
		return err
	}
	v.Revision = expectedRevision + 1
	return nil
}

// SubmitVersion implements lifecycle.RuleStore.
func (s *SQLStore) SubmitVersion(v *lifecycle.RuleVersion, expectedRevision int64, t *lifecycle.ApprovalTicket) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	submit, err := s.q.Raw("submit-rule-version")
	if err != nil {
		return err
	}
	res, err := tx.Exec(submit, string(v.Status), string(v.RuleID), v.VersionNumber, expectedRevision)
	if err != nil {
		return err
	}
	if err := s.checkRuleCAS(res, v.RuleID, v.VersionNumber); err != nil {
		return err
	}
	if err := insertTicket(tx, s.q, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	v.Revision = expectedRevision + 1
	return nil
}

// DecideVersion implements lifecycle.RuleStore. Demotion of the prior
// approved version and promotion of this one commit together; the partial
// unique index makes two approved rows impossible even under driver bugs.
func (s *SQLStore) DecideVersion(v *lifecycle.RuleVersion, expectedRevision int64, t *lifecycle.ApprovalTicket) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if v.Status == types.StatusApproved {
		supersede, err := s.q.Raw("supersede-approved-rule-version")
		if err != nil {
			return err
		}
		if _, err := tx.Exec(supersede, string(v.RuleID), v.VersionNumber); err != nil {
			return err
		}
	}

	decide, err := s.q.Raw("decide-rule-version")
	if err != nil {
		return err
	}
	res, err := tx.Exec(decide, string(v.Status), string(v.DecidedBy), nullTime(v.DecidedAt),
		v.Remarks, string(v.RuleID), v.VersionNumber, expectedRevision)
	if err != nil {
		return err
	}
	if err := s.checkRuleCAS(res, v.RuleID, v.VersionNumber); err != nil {
		return err
	}
	if err := decideTicket(tx, s.q, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	v.Revision = expectedRevision + 1
	return nil
}

// checkRuleCAS classifies a zero-rows conditional update as stale or
// missing.
func (s *SQLStore) checkRuleCAS(res sql.Result, id types.RuleID, version int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var count int
	if err := s.q.Get("count-rule-version", &count, string(id), version); err != nil {
		return err
	}
	if count == 0 {
		return types.ErrVersionNotFound
	}
	return types.ErrStaleRevision
}

func insertTicket(tx *sqlx.Tx, q *Queries, t *lifecycle.ApprovalTicket) error {
	query, err := q.Raw("insert-approval-ticket")
	if err != nil {
		return err
	}
	_, err = tx.Exec(query,
		string(t.TicketID), string(t.EntityType), t.EntityID, t.VersionNumber,
		string(t.Status), string(t.RequestedBy), string(t.DecidedBy),
		t.DecisionRemarks, t.RequestedAt.Format(time.RFC3339), nullTime(t.DecidedAt))
	return err
}

func decideTicket(tx *sqlx.Tx, q *Queries, t *lifecycle.ApprovalTicket) error {
	query, err := q.Raw("decide-approval-ticket")
	if err != nil {
		return err
	}
	res, err := tx.Exec(query, string(t.Status), string(t.DecidedBy),
		nullTime(t.DecidedAt), t.DecisionRemarks, string(t.TicketID))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Ticket vanished or was decided concurrently; surface as conflict.
		return types.ErrStaleRevision
	}
	return nil
}

// GetTicket implements lifecycle.TicketStore.
func (s *SQLStore) GetTicket(id types.TicketID) (*lifecycle.ApprovalTicket, error) {
	var row struct {
		TicketID        string         `db:"ticket_id"`
		EntityType      string         `db:"entity_type"`
		EntityID        string         `db:"entity_id"`
		VersionNumber   int            `db:"version_number"`
		Status          string         `db:"status"`
		RequestedBy     string         `db:"requested_by"`
		DecidedBy       sql.NullString `db:"decided_by"`
		DecisionRemarks sql.NullString `db:"decision_remarks"`
		RequestedAt     string         `db:"requested_at"`
		DecidedAt       sql.NullString `db:"decided_at"`
	}
	err := s.q.Get("get-approval-ticket", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}

	requestedAt, err := time.Parse(time.RFC3339, row.RequestedAt)
	if err != nil {
		return nil, fmt.Errorf("stored requested_at for ticket %s: %w", id, err)
	}
	t := &lifecycle.ApprovalTicket{
		TicketID:        types.TicketID(row.TicketID),
		EntityType:      types.EntityType(row.EntityType),
		EntityID:        row.EntityID,
		VersionNumber:   row.VersionNumber,
		Status:          types.TicketStatus(row.Status),
		RequestedBy:     types.ActorID(row.RequestedBy),
		DecidedBy:       types.ActorID(row.DecidedBy.String),
		DecisionRemarks: row.DecisionRemarks.String,
		RequestedAt:     requestedAt,
	}
	if row.DecidedAt.Valid {
		decidedAt, err := time.Parse(time.RFC3339, row.DecidedAt.String)
		if err != nil {
			return nil, fmt.Errorf("stored decided_at for ticket %s: %w", id, err)
		}
		t.DecidedAt = &decidedAt
	}
	return t, nil
}

type rulesetVersionRow struct {
	RuleSetID     string         `db:"ruleset_id"`
	VersionNumber int            `db:"version_number"`
	Name          string         `db:"name"`
	Status        string         `db:"status"`
	MemberRuleIDs string         `db:"member_rule_ids"`
	Environment   string         `db:"environment"`
	CreatedBy     string         `db:"created_by"`
	CreatedAt     string         `db:"created_at"`
	DecidedBy     sql.NullString `db:"decided_by"`
	DecidedAt     sql.NullString `db:"decided_at"`
	Remarks       sql.NullString `db:"remarks"`
	Revision      int64          `db:"revision"`
}

func (r rulesetVersionRow) toModel() (*lifecycle.RuleSetVersion, error) {
	var members []types.RuleID
	if r.MemberRuleIDs != "" {
		if err := json.Unmarshal([]byte(r.MemberRuleIDs), &members); err != nil {
			return nil, fmt.Errorf("stored members for ruleset %s v%d: %w", r.RuleSetID, r.VersionNumber, err)
		}
	}
	createdAt, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("stored created_at for ruleset %s v%d: %w", r.RuleSetID, r.VersionNumber, err)
	}
	v := &lifecycle.RuleSetVersion{
		SetID:         types.RuleSetID(r.RuleSetID),
		VersionNumber: r.VersionNumber,
		Name:          r.Name,
		Status:        types.Status(r.Status),
		MemberRuleIDs: members,
		Environment:   types.Environment(r.Environment),
		CreatedBy:     types.ActorID(r.CreatedBy),
		CreatedAt:     createdAt,
		DecidedBy:     types.ActorID(r.DecidedBy.String),
		Remarks:       r.Remarks.String,
		Revision:      r.Revision,
	}
	if r.DecidedAt.Valid {
		decidedAt, err := time.Parse(time.RFC3339, r.DecidedAt.String)
		if err != nil {
			return nil, fmt.Errorf("stored decided_at for ruleset %s v%d: %w", r.RuleSetID, r.VersionNumber, err)
		}
		v.DecidedAt = &decidedAt
	}
	return v, nil
}

// GetSetVersion implements lifecycle.RuleSetStore.
func (s *SQLStore) GetSetVersion(id types.RuleSetID, version int) (*lifecycle.RuleSetVersion, error) {
	var row rulesetVersionRow
	err := s.q.Get("get-ruleset-version", &row, string(id), version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

// LatestSetVersion implements lifecycle.RuleSetStore.
func (s *SQLStore) LatestSetVersion(id types.RuleSetID) (*lifecycle.RuleSetVersion, error) {
	var row rulesetVersionRow
	err := s.q.Get("get-latest-ruleset-version", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

// InsertSetVersion implements lifecycle.RuleSetStore.
func (s *SQLStore) InsertSetVersion(v *lifecycle.RuleSetVersion) error {
	members, err := json.Marshal(v.MemberRuleIDs)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}
	v.Revision = 1
	_, err = s.q.Exec("insert-ruleset-version",
		string(v.SetID), v.VersionNumber, v.Name, string(v.Status), string(members),
		string(v.Environment), string(v.CreatedBy), v.CreatedAt.Format(time.RFC3339),
		string(v.DecidedBy), nullTime(v.DecidedAt), v.Remarks, v.Revision)
	return err
}

// UpdateSetVersion implements lifecycle.RuleSetStore.
func (s *SQLStore) UpdateSetVersion(v *lifecycle.RuleSetVersion, expectedRevision int64) error {
	members, err := json.Marshal(v.MemberRuleIDs)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}
	res, err := s.q.Exec("update-ruleset-version-members",
		string(members), string(v.SetID), v.VersionNumber, expectedRevision)
	if err != nil {
		return err
	}
	if err := s.checkSetCAS(res, v.SetID, v.VersionNumber); err != nil {
		return err
	}
	v.Revision = expectedRevision + 1
	return nil
}

// SubmitSetVersion implements lifecycle.RuleSetStore.
func (s *SQLStore) SubmitSetVersion(v *lifecycle.RuleSetVersion, expectedRevision int64, t *lifecycle.ApprovalTicket) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	submit, err := s.q.Raw("submit-ruleset-version")
	if err != nil {
		return err
	}
	res, err := tx.Exec(submit, string(v.Status), string(v.SetID), v.VersionNumber, expectedRevision)
	if err != nil {
		return err
	}
	if err := s.checkSetCAS(res, v.SetID, v.VersionNumber); err != nil {
		return err
	}
	if err := insertTicket(tx, s.q, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	v.Revision = expectedRevision + 1
	return nil
}

// DecideSetVersion implements lifecycle.RuleSetStore.
func (s *SQLStore) DecideSetVersion(v *lifecycle.RuleSetVersion, expectedRevision int64, t *lifecycle.ApprovalTicket) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if v.Status == types.StatusApproved {
		supersede, err := s.q.Raw("supersede-approved-ruleset-version")
		if err != nil {
			return err
		}
		if _, err := tx.Exec(supersede, string(v.SetID), v.VersionNumber); err != nil {
			return err
		}
	}

	decide, err := s.q.Raw("decide-ruleset-version")
	if err != nil {
		return err
	}
	res, err := tx.Exec(decide, string(v.Status), string(v.DecidedBy), nullTime(v.DecidedAt),
		v.Remarks, string(v.SetID), v.VersionNumber, expectedRevision)
	if err != nil {
		return err
	}
	if err := s.checkSetCAS(res, v.SetID, v.VersionNumber); err != nil {
		return err
	}
	if err := decideTicket(tx, s.q, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	v.Revision = expectedRevision + 1
	return nil
}

func (s *SQLStore) checkSetCAS(res sql.Result, id types.RuleSetID, version int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var count int
	if err := s.q.Get("count-ruleset-version", &count, string(id), version); err != nil {
		return err
	}
	if count == 0 {
		return types.ErrVersionNotFound
	}
	return types.ErrStaleRevision
}

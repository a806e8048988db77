package types

import (
	"time"

	"github.com/google/uuid"
)

// RuleID identifies a rule across all of its versions.
// String alias enables type safety while keeping JSON string serialization.
// UUIDv7 time-ordering clusters sequential inserts in B-tree indexes.
type RuleID string

// RuleSetID identifies a ruleset across all of its versions.
type RuleSetID string

// TicketID identifies a single approval ticket.
type TicketID string

// ActorID identifies a maker or checker. Opaque to this core; minted by the
// external identity provider.
type ActorID string

// NewRuleID generates a UUIDv7 rule identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewRuleSetID generates a UUIDv7 ruleset identifier.
func NewRuleSetID() RuleSetID {
	return RuleSetID(uuid.Must(uuid.NewV7()).String())
}

// NewTicketID generates a UUIDv7 ticket identifier.
func NewTicketID() TicketID {
	return TicketID(uuid.Must(uuid.NewV7()).String())
}

// ParseRuleID validates and converts a string to RuleID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseRuleID(s string) (RuleID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return RuleID(s), nil
}

// ParseRuleSetID validates and converts a string to RuleSetID.
func ParseRuleSetID(s string) (RuleSetID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return RuleSetID(s), nil
}

// TicketIDTime extracts the timestamp embedded in a UUIDv7 ticket ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func TicketIDTime(id TicketID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}

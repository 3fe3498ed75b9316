package audit

import (
	"encoding/json"
	"time"
)

// Event is an immutable, append-only record of one configuration change.
//
// Invariants:
// - Events are never updated or deleted.
// - Entity, EntityID and Action are required.
// - Actor and IP capture are best-effort; audit failures never undo a change.
//
// Storage (Postgres): table audit_events, INSERT-only enforced by trigger.
type Event struct {
	ID string `json:"id" db:"id"`

	Action   Action `json:"action" db:"action"`
	Entity   string `json:"entity" db:"entity"`
	EntityID string `json:"entity_id" db:"entity_id"`

	// ActorID is the authenticated operator causing the change.
	ActorID   string `json:"actor_id,omitempty" db:"actor_id"`
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`
	RequestID string `json:"request_id,omitempty" db:"request_id"`

	// Message is a short human-readable description for ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata carries the entity after the change (secrets redacted).
	Metadata json.RawMessage `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Name is the dotted event name, e.g. "credential.rotated".
func (e Event) Name() string { return e.Entity + "." + string(e.Action) }

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
	ActionRotated Action = "rotated"
	ActionRevoked Action = "revoked"
)

// Filter narrows List. Zero values match everything; Limit <= 0 means 100.
type Filter struct {
	Entity   string
	EntityID string
	Limit    int
}

const (
	defaultLimit = 100
	maxLimit     = 1000
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultLimit
	case f.Limit > maxLimit:
		return maxLimit
	}
	return f.Limit
}

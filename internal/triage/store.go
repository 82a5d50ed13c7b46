package triage

import (
	"context"
	"time"
)

// Filter narrows List queries. Zero value matches all messages.
type Filter struct {
	Zone       Zone        // exact zone, empty = any
	Lifecycles []Lifecycle // any of, empty = any
	OwnerRole  string      // exact owner role, empty = any
}

// Store is the persistence interface for messages, audit events and learned
// overrides. Implementations serialize concurrent updates per message;
// last-write-wins is acceptable. UpdateWithEvent must be atomic: the state
// mutation and the audit append either both succeed or both fail.
type Store interface {
	CreateMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id string) (*Message, bool, error)
	UpdateMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, f Filter) ([]*Message, error)

	// UpdateWithEvent persists m and appends ev in one atomic unit.
	UpdateWithEvent(ctx context.Context, m *Message, ev *AuditEvent) error

	// ListEvents returns the audit trail for a message in append order.
	ListEvents(ctx context.Context, messageID string) ([]*AuditEvent, error)

	// PutOverride records a learned correction; same key replaces.
	PutOverride(ctx context.Context, o *Override) error

	// GetOverrides resolves the given keys to target zones. Missing keys are
	// simply absent from the result.
	GetOverrides(ctx context.Context, keys []string) (map[string]Zone, error)
}

// Clock abstracts time for the grid and service; tests substitute a fixed
// one.
type Clock func() time.Time

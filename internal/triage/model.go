package triage

import (
	"errors"
	"fmt"
	"time"
)

// Zone is the urgency bucket assigned to a message.
type Zone string

const (
	ZoneStat     Zone = "STAT"
	ZoneToday    Zone = "TODAY"
	ZoneThisWeek Zone = "THIS_WEEK"
	ZoneLater    Zone = "LATER"
)

// Zones lists all zones in descending urgency order.
var Zones = []Zone{ZoneStat, ZoneToday, ZoneThisWeek, ZoneLater}

// Valid reports whether z is a known zone.
func (z Zone) Valid() bool {
	switch z {
	case ZoneStat, ZoneToday, ZoneThisWeek, ZoneLater:
		return true
	}
	return false
}

// Lifecycle tracks where a message is in its triage workflow.
type Lifecycle string

const (
	// LifecycleNew means ingested, not yet classified.
	LifecycleNew Lifecycle = "new"

	// LifecycleTriaged means classified, awaiting action.
	LifecycleTriaged Lifecycle = "triaged"

	// LifecyclePendingAction means a follow-up is in flight.
	LifecyclePendingAction Lifecycle = "pending_action"

	// LifecycleResolved means finished, no further action.
	LifecycleResolved Lifecycle = "resolved"

	// LifecycleOverdue means escalated, or past deadline without resolution.
	LifecycleOverdue Lifecycle = "overdue"
)

// Status is the user-facing side state orthogonal to the lifecycle.
type Status string

const (
	StatusActive   Status = "active"
	StatusDone     Status = "done"
	StatusSnoozed  Status = "snoozed"
	StatusArchived Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusDone, StatusSnoozed, StatusArchived:
		return true
	}
	return false
}

// ActionType is the recommended handling for a message.
type ActionType string

const (
	ActionReply    ActionType = "reply"
	ActionForward  ActionType = "forward"
	ActionCall     ActionType = "call"
	ActionArchive  ActionType = "archive"
	ActionDelegate ActionType = "delegate"
	ActionReview   ActionType = "review"
)

// Intent is the coarse category of what a message is about.
type Intent string

const (
	IntentClinical Intent = "CLINICAL"
	IntentAdmin    Intent = "ADMIN"
	IntentBilling  Intent = "BILLING"
	IntentOther    Intent = "OTHER"
)

// Owner roles messages get routed to.
const (
	RoleLeadClinician = "lead_clinician"
	RoleNurse         = "nurse"
	RoleBilling       = "billing"
	RoleFrontDesk     = "front_desk"
)

// Message is the state vector for one ingested inbox item. Zone, risk score
// and the derived fields are consistent with the classification rule at the
// moment of (re)classification; Corrected records when a human override
// diverged from it.
type Message struct {
	ID           string     `json:"id"`
	Sender       string     `json:"sender"`
	SenderDomain string     `json:"sender_domain"`
	Subject      string     `json:"subject"`
	Snippet      string     `json:"snippet"`
	Intent       Intent     `json:"intent_label"`
	RiskScore    float64    `json:"risk_score"`
	Zone         Zone       `json:"zone"`
	OwnerRole    string     `json:"current_owner_role"`
	DeadlineAt   time.Time  `json:"deadline_at"`
	Lifecycle    Lifecycle  `json:"lifecycle_state"`
	Status       Status     `json:"status"`
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`

	Confidence        float64    `json:"confidence"`
	Reason            string     `json:"reason"`
	Summary           string     `json:"summary"`
	RecommendedAction string     `json:"recommended_action"`
	ActionType        ActionType `json:"action_type"`
	DraftReply        string     `json:"draft_reply,omitempty"`
	Corrected         bool       `json:"corrected"`

	ReceivedAt   time.Time `json:"received_at"`
	ClassifiedAt time.Time `json:"classified_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Resolved reports whether no further action is expected on m.
func (m *Message) Resolved() bool {
	return m.Lifecycle == LifecycleResolved
}

// EventType identifies a kind of audit event.
type EventType string

const (
	EventEscalated EventType = "ESCALATED"
	EventCorrected EventType = "CORRECTED"
)

// AuditEvent is an immutable, append-only record of a lifecycle-affecting
// action on a message. Never updated or deleted after insertion.
type AuditEvent struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"message_id"`
	Type        EventType `json:"event_type"`
	Description string    `json:"description"`
	ActorRole   string    `json:"actor_role"`
	CreatedAt   time.Time `json:"created_at"`
}

// Override is a learned exception to the trigger table, recorded when a user
// corrects a classification. Keyed by a sender signal; a later correction for
// the same signal replaces the earlier one.
type Override struct {
	Key       string    `json:"key"` // "sender:<addr>" or "domain:<domain>"
	Zone      Zone      `json:"zone"`
	CreatedAt time.Time `json:"created_at"`
}

// SenderKey builds the exact-sender override key.
func SenderKey(sender string) string { return "sender:" + normalize(sender) }

// DomainKey builds the sender-domain override key.
func DomainKey(domain string) string { return "domain:" + normalize(domain) }

// Sentinel errors surfaced by the service layer.
var (
	ErrNotFound     = errors.New("message not found")
	ErrInvalidState = errors.New("invalid lifecycle state for operation")
)

// ValidationError reports malformed or missing ingestion fields.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// Notifier pushes escalation notices to an external channel. Failures are
// logged, never surfaced: notification is best-effort.
type Notifier interface {
	Notify(ctx context.Context, m *Message, ev *AuditEvent) error
}

// IngestRequest is one inbound message to triage.
type IngestRequest struct {
	Sender     string     `json:"sender"`
	Subject    string     `json:"subject"`
	Body       string     `json:"body"`
	ReceivedAt time.Time  `json:"received_at,omitzero"`
	DeadlineAt *time.Time `json:"deadline_at,omitempty"`
}

// StatusChange is a user-issued done/snooze/archive command.
type StatusChange struct {
	Status       Status     `json:"status"`
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`
}

// Stats summarizes the current inbox.
type Stats struct {
	Total      int          `json:"total_messages"`
	Corrected  int          `json:"total_corrections"`
	ZoneCounts map[Zone]int `json:"zone_counts"`
}

// Service is the business boundary for triage operations: ingestion with
// classification, grid queries, corrections, status changes and escalation
// with its audit trail.
type Service struct {
	store          Store
	classifier     *Classifier
	logger         log.Logger
	metrics        *Metrics
	notifier       Notifier
	escalationRole string
	now            Clock
}

// NewService creates a new triage service. metrics and notifier may be nil.
func NewService(store Store, classifier *Classifier, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:          store,
		classifier:     classifier,
		logger:         logger,
		metrics:        metrics,
		notifier:       notifier,
		escalationRole: RoleLeadClinician,
		now:            time.Now,
	}
}

// Ingest validates, classifies and persists one inbound message.
// The message lands already triaged: classification happens inline, and
// learned overrides for the sender are consulted before the trigger table.
func (s *Service) Ingest(ctx context.Context, req *IngestRequest) (*Message, error) {
	if req.Sender == "" {
		return nil, &ValidationError{Field: "sender", Msg: "required"}
	}
	if req.Subject == "" && req.Body == "" {
		return nil, &ValidationError{Field: "subject", Msg: "subject or body required"}
	}

	domain := SenderDomainOf(req.Sender)
	keys := []string{SenderKey(req.Sender), DomainKey(domain)}
	overrides, err := s.store.GetOverrides(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}

	cl := s.classifier.Classify(ctx, Input{
		Sender:  req.Sender,
		Subject: req.Subject,
		Body:    req.Body,
	}, overrides)

	now := s.now().UTC()
	received := req.ReceivedAt
	if received.IsZero() {
		received = now
	}
	deadline := EstimateDeadline(cl.Zone, now)
	if req.DeadlineAt != nil {
		deadline = req.DeadlineAt.UTC()
	}

	m := &Message{
		ID:                ulid.Make().String(),
		Sender:            req.Sender,
		SenderDomain:      domain,
		Subject:           req.Subject,
		Snippet:           snippet(req.Body),
		Intent:            cl.Intent,
		RiskScore:         cl.RiskScore,
		Zone:              cl.Zone,
		OwnerRole:         RouteOwner(cl.Intent, cl.RiskScore),
		DeadlineAt:        deadline,
		Lifecycle:         LifecycleTriaged,
		Status:            StatusActive,
		Confidence:        cl.Confidence,
		Reason:            cl.Reason,
		Summary:           cl.Summary,
		RecommendedAction: cl.RecommendedAction,
		ActionType:        cl.ActionType,
		DraftReply:        cl.DraftReply,
		ReceivedAt:        received,
		ClassifiedAt:      now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.store.CreateMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IngestsTotal.WithLabelValues(string(cl.Zone), string(cl.Method)).Inc()
	}
	s.logger.Info(ctx, "message ingested",
		"message_id", m.ID,
		"zone", m.Zone,
		"confidence", m.Confidence,
		"method", cl.Method,
		"owner_role", m.OwnerRole,
	)
	return m, nil
}

// Get retrieves a message by ID.
func (s *Service) Get(ctx context.Context, id string) (*Message, bool, error) {
	return s.store.GetMessage(ctx, id)
}

// List returns messages matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]*Message, error) {
	return s.store.ListMessages(ctx, f)
}

// GetGrid buckets the still-actionable messages into display zones,
// optionally filtered to one owner role.
func (s *Service) GetGrid(ctx context.Context, ownerRole string) (*Grid, error) {
	msgs, err := s.store.ListMessages(ctx, Filter{
		Lifecycles: gridLifecycles,
		OwnerRole:  ownerRole,
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	g := BuildGrid(msgs, s.now().UTC())
	g.Owner = ownerRole
	if s.metrics != nil {
		s.metrics.GridRequestsTotal.Inc()
	}
	return g, nil
}

// Correct moves a message to a user-chosen zone and records the correction
// as a learned override (exact sender and sender domain, last-write-wins)
// plus a CORRECTED audit event. The override shifts future classifications
// from the same sender without changing the global trigger table.
func (s *Service) Correct(ctx context.Context, id string, newZone Zone, actorRole string) (*Message, error) {
	if !newZone.Valid() {
		return nil, &ValidationError{Field: "new_zone", Msg: "unknown zone"}
	}

	m, ok, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	now := s.now().UTC()
	oldZone := m.Zone
	m.Zone = newZone
	m.RiskScore = RiskForZone(newZone)
	m.Corrected = true
	m.UpdatedAt = now

	ev := &AuditEvent{
		ID:          ulid.Make().String(),
		MessageID:   m.ID,
		Type:        EventCorrected,
		Description: fmt.Sprintf("zone corrected %s -> %s", oldZone, newZone),
		ActorRole:   actorRole,
		CreatedAt:   now,
	}
	if err := s.store.UpdateWithEvent(ctx, m, ev); err != nil {
		return nil, fmt.Errorf("apply correction: %w", err)
	}

	for _, key := range []string{SenderKey(m.Sender), DomainKey(m.SenderDomain)} {
		o := &Override{Key: key, Zone: newZone, CreatedAt: now}
		if err := s.store.PutOverride(ctx, o); err != nil {
			// The correction itself stuck; losing the learned override only
			// costs future precision.
			s.logger.Error(ctx, err, "failed to persist override", "key", key)
		}
	}

	if s.metrics != nil {
		s.metrics.CorrectionsTotal.WithLabelValues(string(oldZone), string(newZone)).Inc()
	}
	s.logger.Info(ctx, "message corrected",
		"message_id", m.ID,
		"old_zone", oldZone,
		"new_zone", newZone,
		"actor_role", actorRole,
	)
	return m, nil
}

// Escalate moves a non-resolved message to the overdue state, hands it to
// the escalation role and appends exactly one ESCALATED audit event, atomic
// with the state change. Escalating a resolved message is ErrInvalidState
// and mutates nothing.
func (s *Service) Escalate(ctx context.Context, id, actorRole string) (*Message, error) {
	m, ok, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	if m.Resolved() {
		return nil, fmt.Errorf("escalate %s: %w", id, ErrInvalidState)
	}

	now := s.now().UTC()
	m.Lifecycle = LifecycleOverdue
	m.OwnerRole = s.escalationRole
	m.UpdatedAt = now

	ev := &AuditEvent{
		ID:          ulid.Make().String(),
		MessageID:   m.ID,
		Type:        EventEscalated,
		Description: "manual escalation to " + s.escalationRole,
		ActorRole:   actorRole,
		CreatedAt:   now,
	}
	if err := s.store.UpdateWithEvent(ctx, m, ev); err != nil {
		return nil, fmt.Errorf("escalate: %w", err)
	}

	if s.metrics != nil {
		s.metrics.EscalationsTotal.Inc()
	}
	s.logger.Info(ctx, "message escalated",
		"message_id", m.ID,
		"owner_role", m.OwnerRole,
		"actor_role", actorRole,
	)

	if s.notifier != nil {
		// Fire-and-forget; the escalation is already durable.
		go func(m Message, ev AuditEvent) {
			nctx := context.WithoutCancel(ctx)
			if err := s.notifier.Notify(nctx, &m, &ev); err != nil {
				s.logger.Error(nctx, err, "escalation notification failed", "message_id", m.ID)
			}
		}(*m, *ev)
	}
	return m, nil
}

// SetStatus applies a done/snooze/archive/active command. Done resolves the
// lifecycle; snooze requires a snoozed_until timestamp and the grid starts
// showing the message again once it passes.
func (s *Service) SetStatus(ctx context.Context, id string, change *StatusChange) (*Message, error) {
	if !change.Status.Valid() {
		return nil, &ValidationError{Field: "status", Msg: "unknown status"}
	}
	if change.Status == StatusSnoozed && change.SnoozedUntil == nil {
		return nil, &ValidationError{Field: "snoozed_until", Msg: "required when snoozing"}
	}

	m, ok, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	m.Status = change.Status
	m.SnoozedUntil = nil
	switch change.Status {
	case StatusDone:
		m.Lifecycle = LifecycleResolved
	case StatusSnoozed:
		t := change.SnoozedUntil.UTC()
		m.SnoozedUntil = &t
	case StatusActive:
		if m.Lifecycle == LifecycleResolved {
			m.Lifecycle = LifecyclePendingAction
		}
	}
	m.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	s.logger.Info(ctx, "message status changed", "message_id", m.ID, "status", m.Status)
	return m, nil
}

// Events returns the audit trail for a message.
func (s *Service) Events(ctx context.Context, id string) ([]*AuditEvent, error) {
	_, ok, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.store.ListEvents(ctx, id)
}

// GetStats summarizes zone counts and corrections across all messages.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	msgs, err := s.store.ListMessages(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	st := &Stats{ZoneCounts: make(map[Zone]int, len(Zones))}
	for _, z := range Zones {
		st.ZoneCounts[z] = 0
	}
	for _, m := range msgs {
		st.Total++
		st.ZoneCounts[m.Zone]++
		if m.Corrected {
			st.Corrected++
		}
	}
	return st, nil
}

const snippetLen = 280

func snippet(body string) string {
	if len(body) <= snippetLen {
		return body
	}
	return body[:snippetLen]
}

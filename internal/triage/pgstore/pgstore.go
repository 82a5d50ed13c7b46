// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/docbox/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/docbox/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists messages, audit events and overrides in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on the given pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const messageColumns = `id, sender, sender_domain, subject, snippet, intent_label, risk_score, zone,
	owner_role, deadline_at, lifecycle_state, status, snoozed_until, confidence, reason, summary,
	recommended_action, action_type, draft_reply, corrected, received_at, classified_at, created_at, updated_at`

// CreateMessage inserts a new message row.
func (s *Store) CreateMessage(ctx context.Context, m *triage.Message) error {
	ctx, span := startSpan(ctx, "pgstore.CreateMessage", "INSERT")
	defer span.End()

	query := `INSERT INTO messages (` + messageColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`

	_, err := s.pool.Exec(ctx, query, messageArgs(m)...)
	if err != nil {
		return spanErr(span, fmt.Errorf("insert message: %w", err))
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (s *Store) GetMessage(ctx context.Context, id string) (*triage.Message, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetMessage", "SELECT")
	defer span.End()

	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	m, err := scanMessageRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, false, spanErr(span, err)
	}
	if m == nil {
		return nil, false, nil
	}
	return m, true, nil
}

// UpdateMessage overwrites a message row. Per-row update semantics serialize
// concurrent writers; last write wins.
func (s *Store) UpdateMessage(ctx context.Context, m *triage.Message) error {
	ctx, span := startSpan(ctx, "pgstore.UpdateMessage", "UPDATE")
	defer span.End()

	if err := execUpdateMessage(ctx, s.pool, m); err != nil {
		return spanErr(span, err)
	}
	return nil
}

// UpdateWithEvent persists the message and appends the audit event in one
// transaction: no audit event without the state change, and vice versa.
func (s *Store) UpdateWithEvent(ctx context.Context, m *triage.Message, ev *triage.AuditEvent) error {
	ctx, span := startSpan(ctx, "pgstore.UpdateWithEvent", "UPDATE")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return spanErr(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if err := execUpdateMessage(ctx, tx, m); err != nil {
		return spanErr(span, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO audit_events (id, message_id, event_type, description, actor_role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.MessageID, string(ev.Type), ev.Description, ev.ActorRole, ev.CreatedAt,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("insert audit event: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return spanErr(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// ListMessages returns messages matching the filter, oldest first.
func (s *Store) ListMessages(ctx context.Context, f triage.Filter) ([]*triage.Message, error) {
	ctx, span := startSpan(ctx, "pgstore.ListMessages", "SELECT")
	defer span.End()

	query := `SELECT ` + messageColumns + ` FROM messages`
	var conds []string
	var args []any

	if f.Zone != "" {
		args = append(args, string(f.Zone))
		conds = append(conds, fmt.Sprintf("zone = $%d", len(args)))
	}
	if f.OwnerRole != "" {
		args = append(args, f.OwnerRole)
		conds = append(conds, fmt.Sprintf("owner_role = $%d", len(args)))
	}
	if len(f.Lifecycles) > 0 {
		states := make([]string, len(f.Lifecycles))
		for i, lc := range f.Lifecycles {
			states[i] = string(lc)
		}
		args = append(args, states)
		conds = append(conds, fmt.Sprintf("lifecycle_state = ANY($%d)", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query messages: %w", err))
	}
	defer rows.Close()

	var out []*triage.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, spanErr(span, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate messages: %w", err))
	}
	return out, nil
}

// ListEvents returns the audit trail for a message in append order.
func (s *Store) ListEvents(ctx context.Context, messageID string) ([]*triage.AuditEvent, error) {
	ctx, span := startSpan(ctx, "pgstore.ListEvents", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, message_id, event_type, description, actor_role, created_at
		 FROM audit_events WHERE message_id = $1 ORDER BY created_at, id`,
		messageID,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query events: %w", err))
	}
	defer rows.Close()

	var out []*triage.AuditEvent
	for rows.Next() {
		var (
			ev        triage.AuditEvent
			eventType string
		)
		if err := rows.Scan(&ev.ID, &ev.MessageID, &eventType, &ev.Description, &ev.ActorRole, &ev.CreatedAt); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan event: %w", err))
		}
		ev.Type = triage.EventType(eventType)
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate events: %w", err))
	}
	return out, nil
}

// PutOverride upserts a learned correction; the latest write for a signal
// key wins.
func (s *Store) PutOverride(ctx context.Context, o *triage.Override) error {
	ctx, span := startSpan(ctx, "pgstore.PutOverride", "UPSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO rule_overrides (signal_key, zone, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (signal_key) DO UPDATE SET zone = EXCLUDED.zone, created_at = EXCLUDED.created_at`,
		o.Key, string(o.Zone), o.CreatedAt,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("upsert override: %w", err))
	}
	return nil
}

// GetOverrides resolves signal keys to target zones.
func (s *Store) GetOverrides(ctx context.Context, keys []string) (map[string]triage.Zone, error) {
	ctx, span := startSpan(ctx, "pgstore.GetOverrides", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT signal_key, zone FROM rule_overrides WHERE signal_key = ANY($1)`, keys)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query overrides: %w", err))
	}
	defer rows.Close()

	out := make(map[string]triage.Zone, len(keys))
	for rows.Next() {
		var key, zone string
		if err := rows.Scan(&key, &zone); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan override: %w", err))
		}
		out[key] = triage.Zone(zone)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate overrides: %w", err))
	}
	return out, nil
}

// execQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func execUpdateMessage(ctx context.Context, db execQuerier, m *triage.Message) error {
	query := `UPDATE messages SET
		sender = $2, sender_domain = $3, subject = $4, snippet = $5, intent_label = $6,
		risk_score = $7, zone = $8, owner_role = $9, deadline_at = $10, lifecycle_state = $11,
		status = $12, snoozed_until = $13, confidence = $14, reason = $15, summary = $16,
		recommended_action = $17, action_type = $18, draft_reply = $19, corrected = $20,
		received_at = $21, classified_at = $22, created_at = $23, updated_at = $24
	WHERE id = $1`

	tag, err := db.Exec(ctx, query, messageArgs(m)...)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update message %s: %w", m.ID, triage.ErrNotFound)
	}
	return nil
}

func messageArgs(m *triage.Message) []any {
	var deadline, snoozed *time.Time
	if !m.DeadlineAt.IsZero() {
		deadline = &m.DeadlineAt
	}
	if m.SnoozedUntil != nil {
		snoozed = m.SnoozedUntil
	}
	return []any{
		m.ID, m.Sender, m.SenderDomain, m.Subject, m.Snippet, string(m.Intent),
		m.RiskScore, string(m.Zone), m.OwnerRole, deadline, string(m.Lifecycle),
		string(m.Status), snoozed, m.Confidence, m.Reason, m.Summary,
		m.RecommendedAction, string(m.ActionType), m.DraftReply, m.Corrected,
		m.ReceivedAt, m.ClassifiedAt, m.CreatedAt, m.UpdatedAt,
	}
}

// scanMessage scans one row into a Message.
func scanMessage(row pgx.Row) (*triage.Message, error) {
	var (
		m                                       triage.Message
		intent, zone, lifecycle, status, action string
		deadline, snoozed                       *time.Time
	)

	err := row.Scan(
		&m.ID, &m.Sender, &m.SenderDomain, &m.Subject, &m.Snippet, &intent,
		&m.RiskScore, &zone, &m.OwnerRole, &deadline, &lifecycle,
		&status, &snoozed, &m.Confidence, &m.Reason, &m.Summary,
		&m.RecommendedAction, &action, &m.DraftReply, &m.Corrected,
		&m.ReceivedAt, &m.ClassifiedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}

	m.Intent = triage.Intent(intent)
	m.Zone = triage.Zone(zone)
	m.Lifecycle = triage.Lifecycle(lifecycle)
	m.Status = triage.Status(status)
	m.ActionType = triage.ActionType(action)
	if deadline != nil {
		m.DeadlineAt = *deadline
	}
	m.SnoozedUntil = snoozed
	return &m, nil
}

// scanMessageRow is scanMessage with no-row mapped to (nil, nil).
func scanMessageRow(row pgx.Row) (*triage.Message, error) {
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

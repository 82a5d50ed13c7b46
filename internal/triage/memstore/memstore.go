// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/docbox/internal/triage"
)

// Store holds messages, audit events and overrides in memory. Suitable for
// dev/testing. The single mutex makes UpdateWithEvent atomic.
type Store struct {
	mu        sync.RWMutex
	messages  map[string]*triage.Message      // message ID -> message
	events    map[string][]*triage.AuditEvent // message ID -> events, append order
	overrides map[string]*triage.Override     // signal key -> override
	order     []string                        // message IDs in insertion order
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		messages:  make(map[string]*triage.Message),
		events:    make(map[string][]*triage.AuditEvent),
		overrides: make(map[string]*triage.Override),
	}
}

// CreateMessage stores a copy of the message.
func (s *Store) CreateMessage(_ context.Context, m *triage.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	if _, exists := s.messages[m.ID]; !exists {
		s.order = append(s.order, m.ID)
	}
	s.messages[m.ID] = &cp
	return nil
}

// GetMessage retrieves a message by its ID. Returns a copy.
func (s *Store) GetMessage(_ context.Context, id string) (*triage.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, false, nil
	}
	cp := *m
	return &cp, true, nil
}

// UpdateMessage stores a copy of the message. Last write wins.
func (s *Store) UpdateMessage(_ context.Context, m *triage.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	if _, exists := s.messages[m.ID]; !exists {
		s.order = append(s.order, m.ID)
	}
	s.messages[m.ID] = &cp
	return nil
}

// UpdateWithEvent persists the message and appends the event inside one
// critical section, so a reader never observes one without the other.
func (s *Store) UpdateWithEvent(_ context.Context, m *triage.Message, ev *triage.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mcp := *m
	if _, exists := s.messages[m.ID]; !exists {
		s.order = append(s.order, m.ID)
	}
	s.messages[m.ID] = &mcp
	ecp := *ev
	s.events[ev.MessageID] = append(s.events[ev.MessageID], &ecp)
	return nil
}

// ListMessages returns copies of messages matching the filter, in insertion
// order.
func (s *Store) ListMessages(_ context.Context, f triage.Filter) ([]*triage.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*triage.Message
	for _, id := range s.order {
		m := s.messages[id]
		if !matches(m, f) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

// ListEvents returns copies of the audit trail for a message in append
// order.
func (s *Store) ListEvents(_ context.Context, messageID string) ([]*triage.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evs := s.events[messageID]
	out := make([]*triage.AuditEvent, 0, len(evs))
	for _, ev := range evs {
		cp := *ev
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PutOverride stores a copy of the override; same key replaces.
func (s *Store) PutOverride(_ context.Context, o *triage.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.overrides[o.Key] = &cp
	return nil
}

// GetOverrides resolves signal keys to target zones.
func (s *Store) GetOverrides(_ context.Context, keys []string) (map[string]triage.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]triage.Zone, len(keys))
	for _, k := range keys {
		if o, ok := s.overrides[k]; ok {
			out[k] = o.Zone
		}
	}
	return out, nil
}

func matches(m *triage.Message, f triage.Filter) bool {
	if f.Zone != "" && m.Zone != f.Zone {
		return false
	}
	if f.OwnerRole != "" && m.OwnerRole != f.OwnerRole {
		return false
	}
	if len(f.Lifecycles) > 0 {
		found := false
		for _, lc := range f.Lifecycles {
			if m.Lifecycle == lc {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

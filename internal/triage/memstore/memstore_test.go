package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/docbox/internal/triage"
)

func testMessage(id string) *triage.Message {
	return &triage.Message{
		ID:        id,
		Sender:    "lab@labcorp.com",
		Subject:   "subject " + id,
		Zone:      triage.ZoneStat,
		OwnerRole: triage.RoleNurse,
		Lifecycle: triage.LifecycleTriaged,
		Status:    triage.StatusActive,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	if err := s.CreateMessage(ctx, testMessage("m-1")); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	got, ok, err := s.GetMessage(ctx, "m-1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if !ok {
		t.Fatal("expected message to be found")
	}
	if got.ID != "m-1" {
		t.Errorf("ID = %q, want %q", got.ID, "m-1")
	}
	if got.Zone != triage.ZoneStat {
		t.Errorf("Zone = %q, want %q", got.Zone, triage.ZoneStat)
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, ok, err := s.GetMessage(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if ok {
		t.Error("expected not found")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	if err := s.CreateMessage(ctx, testMessage("m-1")); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	got, _, err := s.GetMessage(ctx, "m-1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	got.Zone = triage.ZoneLater

	again, _, err := s.GetMessage(ctx, "m-1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if again.Zone != triage.ZoneStat {
		t.Error("mutation of a returned message leaked into the store")
	}
}

func TestUpdateMessage(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	m := testMessage("m-1")
	if err := s.CreateMessage(ctx, m); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	m.Lifecycle = triage.LifecycleResolved
	if err := s.UpdateMessage(ctx, m); err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}

	got, _, err := s.GetMessage(ctx, "m-1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Lifecycle != triage.LifecycleResolved {
		t.Errorf("Lifecycle = %q, want %q", got.Lifecycle, triage.LifecycleResolved)
	}
}

func TestUpdateWithEvent(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	m := testMessage("m-1")
	if err := s.CreateMessage(ctx, m); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	m.Lifecycle = triage.LifecycleOverdue
	ev := &triage.AuditEvent{
		ID:        "ev-1",
		MessageID: "m-1",
		Type:      triage.EventEscalated,
		ActorRole: "nurse",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.UpdateWithEvent(ctx, m, ev); err != nil {
		t.Fatalf("UpdateWithEvent: %v", err)
	}

	got, _, err := s.GetMessage(ctx, "m-1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Lifecycle != triage.LifecycleOverdue {
		t.Errorf("Lifecycle = %q, want %q", got.Lifecycle, triage.LifecycleOverdue)
	}

	evs, err := s.ListEvents(ctx, "m-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("events = %d, want 1", len(evs))
	}
	if evs[0].Type != triage.EventEscalated {
		t.Errorf("event type = %q, want %q", evs[0].Type, triage.EventEscalated)
	}
}

func TestListEventsOrdered(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	m := testMessage("m-1")
	if err := s.CreateMessage(ctx, m); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	base := time.Now().UTC()
	for i := range 3 {
		ev := &triage.AuditEvent{
			ID:        fmt.Sprintf("ev-%d", i),
			MessageID: "m-1",
			Type:      triage.EventCorrected,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.UpdateWithEvent(ctx, m, ev); err != nil {
			t.Fatalf("UpdateWithEvent: %v", err)
		}
	}

	evs, err := s.ListEvents(ctx, "m-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("events = %d, want 3", len(evs))
	}
	for i := 1; i < len(evs); i++ {
		if evs[i].CreatedAt.Before(evs[i-1].CreatedAt) {
			t.Error("events not in chronological order")
		}
	}
}

func TestListMessagesFilter(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	a := testMessage("m-a")
	b := testMessage("m-b")
	b.Zone = triage.ZoneLater
	b.OwnerRole = triage.RoleFrontDesk
	c := testMessage("m-c")
	c.Lifecycle = triage.LifecycleResolved
	for _, m := range []*triage.Message{a, b, c} {
		if err := s.CreateMessage(ctx, m); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}

	got, err := s.ListMessages(ctx, triage.Filter{Zone: triage.ZoneStat})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("zone filter: got %d, want 2", len(got))
	}

	got, err = s.ListMessages(ctx, triage.Filter{OwnerRole: triage.RoleFrontDesk})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(got) != 1 || got[0].ID != "m-b" {
		t.Errorf("owner filter: got %v", got)
	}

	got, err = s.ListMessages(ctx, triage.Filter{
		Lifecycles: []triage.Lifecycle{triage.LifecycleTriaged},
	})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("lifecycle filter: got %d, want 2", len(got))
	}
}

func TestListMessagesInsertionOrder(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	for i := range 5 {
		if err := s.CreateMessage(ctx, testMessage(fmt.Sprintf("m-%d", i))); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}

	got, err := s.ListMessages(ctx, triage.Filter{})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	for i, m := range got {
		if want := fmt.Sprintf("m-%d", i); m.ID != want {
			t.Errorf("got[%d].ID = %q, want %q", i, m.ID, want)
		}
	}
}

func TestOverrides(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	key := triage.SenderKey("lab@labcorp.com")
	if err := s.PutOverride(ctx, &triage.Override{Key: key, Zone: triage.ZoneLater}); err != nil {
		t.Fatalf("PutOverride: %v", err)
	}

	got, err := s.GetOverrides(ctx, []string{key, "domain:missing.com"})
	if err != nil {
		t.Fatalf("GetOverrides: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("overrides = %d, want 1", len(got))
	}
	if got[key] != triage.ZoneLater {
		t.Errorf("override = %q, want %q", got[key], triage.ZoneLater)
	}

	// Last write wins for the same signal.
	if err := s.PutOverride(ctx, &triage.Override{Key: key, Zone: triage.ZoneToday}); err != nil {
		t.Fatalf("PutOverride: %v", err)
	}
	got, err = s.GetOverrides(ctx, []string{key})
	if err != nil {
		t.Fatalf("GetOverrides: %v", err)
	}
	if got[key] != triage.ZoneToday {
		t.Errorf("override = %q, want %q after replace", got[key], triage.ZoneToday)
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("m-%d", i)
			if err := s.CreateMessage(ctx, testMessage(id)); err != nil {
				t.Errorf("CreateMessage: %v", err)
			}
			if _, _, err := s.GetMessage(ctx, id); err != nil {
				t.Errorf("GetMessage: %v", err)
			}
			if _, err := s.ListMessages(ctx, triage.Filter{}); err != nil {
				t.Errorf("ListMessages: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.ListMessages(ctx, triage.Filter{})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("messages = %d, want 20", len(got))
	}
}

package triage

import (
	"sort"
	"time"
)

// Preview caps per zone. STAT stays short so the most urgent items are
// always above the fold.
const (
	statPreviewLimit    = 3
	defaultPreviewLimit = 8
)

// GridItem is one message preview row inside a grid zone.
type GridItem struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet"`
	Sender     string    `json:"sender"`
	RiskScore  float64   `json:"risk_score"`
	Lifecycle  Lifecycle `json:"lifecycle_state"`
	DeadlineAt time.Time `json:"deadline_at"`
	Overdue    bool      `json:"overdue"`
}

// GridZone aggregates one urgency bucket of the triage grid.
type GridZone struct {
	Zone         Zone       `json:"zone"`
	TotalCount   int        `json:"total_count"`
	OverdueCount int        `json:"overdue_count"`
	Items        []GridItem `json:"items"`
}

// Grid is the full triage grid, one entry per zone in urgency order.
type Grid struct {
	Zones []GridZone `json:"zones"`
	Owner string     `json:"owner,omitempty"`
}

// gridLifecycles are the states the grid shows: anything still awaiting a
// human. Resolved and archived items are excluded.
var gridLifecycles = []Lifecycle{LifecycleNew, LifecycleTriaged, LifecyclePendingAction, LifecycleOverdue}

// DisplayZone re-derives the display bucket from risk score and deadline,
// independent of the stored zone, so urgency rises as a deadline approaches
// without re-running the classifier. Evaluated in order: high risk is STAT
// regardless of deadline; then the deadline horizon decides.
func DisplayZone(m *Message, now time.Time) Zone {
	if m.RiskScore >= 0.8 {
		return ZoneStat
	}
	if m.DeadlineAt.IsZero() {
		return ZoneLater
	}
	until := m.DeadlineAt.Sub(now)
	switch {
	case until <= 24*time.Hour:
		return ZoneToday
	case until <= 72*time.Hour:
		return ZoneThisWeek
	default:
		return ZoneLater
	}
}

// BuildGrid buckets messages into display zones. Pure over its inputs and a
// fixed clock, so repeated calls on an unchanged set yield identical output.
// Snoozed messages are skipped until their snoozed_until passes; archived
// ones are skipped outright.
func BuildGrid(messages []*Message, now time.Time) *Grid {
	buckets := make(map[Zone][]GridItem, len(Zones))

	for _, m := range messages {
		if !gridVisible(m, now) {
			continue
		}

		z := DisplayZone(m, now)
		overdue := !m.DeadlineAt.IsZero() && m.DeadlineAt.Before(now) && !m.Resolved()
		if m.Lifecycle == LifecycleOverdue {
			overdue = true
		}
		buckets[z] = append(buckets[z], GridItem{
			ID:         m.ID,
			Subject:    m.Subject,
			Snippet:    m.Snippet,
			Sender:     m.Sender,
			RiskScore:  m.RiskScore,
			Lifecycle:  m.Lifecycle,
			DeadlineAt: m.DeadlineAt,
			Overdue:    overdue,
		})
	}

	g := &Grid{Zones: make([]GridZone, 0, len(Zones))}
	for _, z := range Zones {
		items := buckets[z]
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Overdue != items[j].Overdue {
				return items[i].Overdue
			}
			if items[i].RiskScore != items[j].RiskScore {
				return items[i].RiskScore > items[j].RiskScore
			}
			return deadlineLess(items[i].DeadlineAt, items[j].DeadlineAt)
		})

		overdueCount := 0
		for _, it := range items {
			if it.Overdue {
				overdueCount++
			}
		}

		limit := defaultPreviewLimit
		if z == ZoneStat {
			limit = statPreviewLimit
		}
		preview := items
		if len(preview) > limit {
			preview = preview[:limit]
		}

		g.Zones = append(g.Zones, GridZone{
			Zone:         z,
			TotalCount:   len(items),
			OverdueCount: overdueCount,
			Items:        preview,
		})
	}
	return g
}

func gridVisible(m *Message, now time.Time) bool {
	if m.Status == StatusArchived || m.Status == StatusDone {
		return false
	}
	if m.Status == StatusSnoozed && m.SnoozedUntil != nil && m.SnoozedUntil.After(now) {
		return false
	}
	for _, lc := range gridLifecycles {
		if m.Lifecycle == lc {
			return true
		}
	}
	return false
}

// deadlineLess orders ascending with zero deadlines last.
func deadlineLess(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	if b.IsZero() {
		return true
	}
	return a.Before(b)
}

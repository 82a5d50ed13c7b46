package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// mockProvider returns a preconfigured response or error and records calls.
type mockProvider struct {
	mu    sync.Mutex
	resp  *ProviderResponse
	err   error
	calls int
}

func (m *mockProvider) Classify(_ context.Context, _ *ProviderRequest) (*ProviderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestClassifier(p Provider) *Classifier {
	return NewClassifier(p, time.Second, log.Nop(), ClassifierHooks{})
}

func TestClassify_UrgentKeyword(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(nil)
	cl := c.Classify(context.Background(), Input{
		Sender:  "lab@labcorp.com",
		Subject: "STAT abnormal potassium",
		Body:    "Potassium 6.8, please review immediately.",
	}, nil)

	if cl.Zone != ZoneStat {
		t.Errorf("zone = %q, want %q", cl.Zone, ZoneStat)
	}
	if cl.Confidence < 0.90 {
		t.Errorf("confidence = %v, want >= 0.90", cl.Confidence)
	}
	if cl.RiskScore < 0.8 {
		t.Errorf("risk score = %v, want >= 0.8", cl.RiskScore)
	}
	if cl.Method != MethodRule {
		t.Errorf("method = %q, want %q", cl.Method, MethodRule)
	}
	if cl.Intent != IntentClinical {
		t.Errorf("intent = %q, want %q", cl.Intent, IntentClinical)
	}
}

func TestClassify_HighestUrgencyWins(t *testing.T) {
	t.Parallel()

	// Carries both an urgent and a low-priority signal; the urgent row is
	// earlier in the table and must win.
	c := newTestClassifier(nil)
	cl := c.Classify(context.Background(), Input{
		Sender:  "updates@example.com",
		Subject: "Newsletter: critical lab alert protocols",
		Body:    "unsubscribe anytime",
	}, nil)

	if cl.Zone != ZoneStat {
		t.Errorf("zone = %q, want %q", cl.Zone, ZoneStat)
	}
}

func TestClassify_DomainTrigger(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(nil)
	cl := c.Classify(context.Background(), Input{
		Sender:  "no-reply@results.labcorp.com",
		Subject: "Panel ready",
	}, nil)

	if cl.Zone != ZoneStat {
		t.Errorf("zone = %q, want %q", cl.Zone, ZoneStat)
	}
	if cl.Confidence < 0.90 {
		t.Errorf("confidence = %v, want >= 0.90 for a STAT trigger", cl.Confidence)
	}
	if cl.Method != MethodRule {
		t.Errorf("method = %q, want %q", cl.Method, MethodRule)
	}
	if !strings.Contains(cl.Reason, "labcorp") {
		t.Errorf("reason = %q, want it to name the matched domain", cl.Reason)
	}
}

func TestClassify_LowPriority(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(nil)
	cl := c.Classify(context.Background(), Input{
		Sender:  "news@medscape.com",
		Subject: "Weekly CME digest",
		Body:    "Click here to unsubscribe.",
	}, nil)

	if cl.Zone != ZoneLater {
		t.Errorf("zone = %q, want %q", cl.Zone, ZoneLater)
	}
	if cl.ActionType != ActionArchive {
		t.Errorf("action type = %q, want %q", cl.ActionType, ActionArchive)
	}
}

func TestClassify_NoMatchNoProvider(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(nil)
	cl := c.Classify(context.Background(), Input{
		Sender:  "someone@example.com",
		Subject: "Lunch on Thursday?",
	}, nil)

	if cl.Zone != ZoneLater {
		t.Errorf("zone = %q, want %q", cl.Zone, ZoneLater)
	}
	if cl.Confidence != fallbackConfidence {
		t.Errorf("confidence = %v, want %v", cl.Confidence, fallbackConfidence)
	}
	if cl.Method != MethodDefault {
		t.Errorf("method = %q, want %q", cl.Method, MethodDefault)
	}
}

func TestClassify_ProviderFallback(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		resp: &ProviderResponse{
			Zone:              "TODAY",
			Confidence:        0.84,
			Reason:            "patient asks for a same-day callback",
			Summary:           "Patient requesting callback about symptoms",
			RecommendedAction: "Call patient back today",
			ActionType:        "call",
			DraftReply:        "null",
		},
	}
	c := newTestClassifier(provider)
	cl := c.Classify(context.Background(), Input{
		Sender:  "patient@gmail.com",
		Subject: "Question about my visit",
		Body:    "Could someone ring me about the symptoms we discussed?",
	}, nil)

	if provider.callCount() != 1 {
		t.Fatalf("provider calls = %d, want 1", provider.callCount())
	}
	if cl.Zone != ZoneToday {
		t.Errorf("zone = %q, want %q", cl.Zone, ZoneToday)
	}
	if cl.Method != MethodLLM {
		t.Errorf("method = %q, want %q", cl.Method, MethodLLM)
	}
	if cl.Confidence != 0.84 {
		t.Errorf("confidence = %v, want 0.84", cl.Confidence)
	}
	if cl.ActionType != ActionCall {
		t.Errorf("action type = %q, want %q", cl.ActionType, ActionCall)
	}
	if cl.Summary != "Patient requesting callback about symptoms" {
		t.Errorf("summary = %q", cl.Summary)
	}
}

func TestClassify_ProviderFailureDegrades(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{err: errors.New("connection refused")}
	c := newTestClassifier(provider)
	cl := c.Classify(context.Background(), Input{
		Sender:  "someone@example.com",
		Subject: "Quick question",
	}, nil)

	if cl.Zone != ZoneLater {
		t.Errorf("zone = %q, want %q", cl.Zone, ZoneLater)
	}
	if cl.Confidence != fallbackConfidence {
		t.Errorf("confidence = %v, want %v", cl.Confidence, fallbackConfidence)
	}
	if cl.Method != MethodDefault {
		t.Errorf("method = %q, want %q", cl.Method, MethodDefault)
	}
}

func TestClassify_ProviderUnknownZoneRejected(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		resp: &ProviderResponse{Zone: "WHENEVER", Confidence: 0.99},
	}
	c := newTestClassifier(provider)
	cl := c.Classify(context.Background(), Input{
		Sender:  "someone@example.com",
		Subject: "Quick question",
	}, nil)

	if cl.Zone != ZoneLater {
		t.Errorf("zone = %q, want %q", cl.Zone, ZoneLater)
	}
	if cl.Method != MethodDefault {
		t.Errorf("method = %q, want %q", cl.Method, MethodDefault)
	}
}

func TestClassify_ProviderZoneNormalized(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		resp: &ProviderResponse{Zone: " this_week ", Confidence: 1.7},
	}
	c := newTestClassifier(provider)
	cl := c.Classify(context.Background(), Input{
		Sender:  "someone@example.com",
		Subject: "Quick question",
	}, nil)

	if cl.Zone != ZoneThisWeek {
		t.Errorf("zone = %q, want %q", cl.Zone, ZoneThisWeek)
	}
	if cl.Confidence != 1.0 {
		t.Errorf("confidence = %v, want clamped to 1.0", cl.Confidence)
	}
}

func TestClassify_RuleMatchSkipsProvider(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		resp: &ProviderResponse{Zone: "LATER", Confidence: 0.99},
	}
	c := newTestClassifier(provider)
	cl := c.Classify(context.Background(), Input{
		Sender:  "pharmacy@cvs.com",
		Subject: "Refill request for patient",
	}, nil)

	if provider.callCount() != 0 {
		t.Errorf("provider calls = %d, want 0 (strong rule match)", provider.callCount())
	}
	if cl.Zone != ZoneToday {
		t.Errorf("zone = %q, want %q", cl.Zone, ZoneToday)
	}
}

func TestClassify_SenderOverrideBeatsRules(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(nil)
	overrides := map[string]Zone{
		SenderKey("alerts@labcorp.com"): ZoneLater,
	}
	cl := c.Classify(context.Background(), Input{
		Sender:  "alerts@labcorp.com",
		Subject: "Critical value alert",
	}, overrides)

	if cl.Zone != ZoneLater {
		t.Errorf("zone = %q, want %q (override wins)", cl.Zone, ZoneLater)
	}
	if cl.Method != MethodOverride {
		t.Errorf("method = %q, want %q", cl.Method, MethodOverride)
	}
	if cl.Confidence != 0.90 {
		t.Errorf("confidence = %v, want 0.90", cl.Confidence)
	}
}

func TestClassify_SenderOverrideBeatsDomainOverride(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(nil)
	overrides := map[string]Zone{
		SenderKey("billing@clinic.com"): ZoneStat,
		DomainKey("clinic.com"):         ZoneLater,
	}
	cl := c.Classify(context.Background(), Input{
		Sender:  "billing@clinic.com",
		Subject: "Hello",
	}, overrides)

	if cl.Zone != ZoneStat {
		t.Errorf("zone = %q, want %q (exact sender beats domain)", cl.Zone, ZoneStat)
	}
}

func TestClassify_DomainOverride(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(nil)
	overrides := map[string]Zone{
		DomainKey("medscape.com"): ZoneThisWeek,
	}
	cl := c.Classify(context.Background(), Input{
		Sender:  "news@medscape.com",
		Subject: "Weekly CME digest",
	}, overrides)

	if cl.Zone != ZoneThisWeek {
		t.Errorf("zone = %q, want %q", cl.Zone, ZoneThisWeek)
	}
	if cl.Method != MethodOverride {
		t.Errorf("method = %q, want %q", cl.Method, MethodOverride)
	}
}

func TestClassify_HooksCalled(t *testing.T) {
	t.Parallel()

	var (
		mu            sync.Mutex
		classifyCalls int
		lastMethod    Method
		providerCalls int
		providerOK    bool
	)
	hooks := ClassifierHooks{
		OnClassify: func(method Method, _ Zone, _ float64) {
			mu.Lock()
			defer mu.Unlock()
			classifyCalls++
			lastMethod = method
		},
		OnProviderCall: func(ok bool, _ float64) {
			mu.Lock()
			defer mu.Unlock()
			providerCalls++
			providerOK = ok
		},
	}
	provider := &mockProvider{
		resp: &ProviderResponse{Zone: "TODAY", Confidence: 0.8},
	}
	c := NewClassifier(provider, time.Second, log.Nop(), hooks)

	c.Classify(context.Background(), Input{
		Sender:  "someone@example.com",
		Subject: "Quick question",
	}, nil)

	mu.Lock()
	defer mu.Unlock()
	if classifyCalls != 1 {
		t.Errorf("classify hook calls = %d, want 1", classifyCalls)
	}
	if lastMethod != MethodLLM {
		t.Errorf("last method = %q, want %q", lastMethod, MethodLLM)
	}
	if providerCalls != 1 {
		t.Errorf("provider hook calls = %d, want 1", providerCalls)
	}
	if !providerOK {
		t.Error("provider hook ok = false, want true")
	}
}

func TestClassify_DerivedFieldsFilled(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(nil)
	cl := c.Classify(context.Background(), Input{
		Sender:  "lab@quest.com",
		Subject: "Elevated glucose result",
	}, nil)

	if cl.Summary == "" {
		t.Error("expected non-empty summary")
	}
	if cl.RecommendedAction == "" {
		t.Error("expected non-empty recommended action")
	}
	if cl.ActionType == "" {
		t.Error("expected non-empty action type")
	}
	if cl.Intent == "" {
		t.Error("expected non-empty intent")
	}
}

func TestSenderDomainOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		sender string
		want   string
	}{
		{"lab@labcorp.com", "labcorp.com"},
		{"Dr. Jones <jones@Clinic.ORG>", "clinic.org"},
		{"  ALERTS@QUEST.COM ", "quest.com"},
		{"no-at-sign", "no-at-sign"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SenderDomainOf(tc.sender); got != tc.want {
			t.Errorf("SenderDomainOf(%q) = %q, want %q", tc.sender, got, tc.want)
		}
	}
}

func TestRiskForZone(t *testing.T) {
	t.Parallel()

	if RiskForZone(ZoneStat) < 0.8 {
		t.Errorf("STAT risk = %v, want >= 0.8 so STAT re-buckets to STAT", RiskForZone(ZoneStat))
	}

	// Monotonic in urgency.
	order := []Zone{ZoneLater, ZoneThisWeek, ZoneToday, ZoneStat}
	for i := 1; i < len(order); i++ {
		if RiskForZone(order[i]) <= RiskForZone(order[i-1]) {
			t.Errorf("risk(%s)=%v should exceed risk(%s)=%v",
				order[i], RiskForZone(order[i]), order[i-1], RiskForZone(order[i-1]))
		}
	}
}

func TestEstimateDeadline(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		zone Zone
		want time.Duration
	}{
		{ZoneStat, 2 * time.Hour},
		{ZoneToday, 24 * time.Hour},
		{ZoneThisWeek, 72 * time.Hour},
		{ZoneLater, 7 * 24 * time.Hour},
	}
	for _, tc := range cases {
		if got := EstimateDeadline(tc.zone, now); !got.Equal(now.Add(tc.want)) {
			t.Errorf("EstimateDeadline(%s) = %v, want now+%v", tc.zone, got, tc.want)
		}
	}
}

func TestRouteOwner(t *testing.T) {
	t.Parallel()

	cases := []struct {
		intent Intent
		risk   float64
		want   string
	}{
		{IntentClinical, 0.92, RoleLeadClinician},
		{IntentClinical, 0.60, RoleNurse},
		{IntentBilling, 0.35, RoleBilling},
		{IntentAdmin, 0.60, RoleFrontDesk},
		{IntentOther, 0.10, RoleFrontDesk},
	}
	for _, tc := range cases {
		if got := RouteOwner(tc.intent, tc.risk); got != tc.want {
			t.Errorf("RouteOwner(%s, %v) = %q, want %q", tc.intent, tc.risk, got, tc.want)
		}
	}
}

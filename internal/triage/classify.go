package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// ConfidenceThreshold is the minimum rule-match confidence below which the
// classifier consults the reasoning provider.
const ConfidenceThreshold = 0.70

// DefaultTimeout bounds a single reasoning provider call.
const DefaultTimeout = 15 * time.Second

// Fallback defaults when no trigger matches and the provider is unavailable.
const (
	fallbackConfidence = 0.30
	fallbackReason     = "no strong signals; deferred to LATER"
)

// Method records which path produced a classification.
type Method string

const (
	MethodOverride Method = "override"
	MethodRule     Method = "rule"
	MethodLLM      Method = "llm"
	MethodDefault  Method = "default"
)

// Classification is the outcome of classifying one message.
type Classification struct {
	Zone              Zone       `json:"zone"`
	Confidence        float64    `json:"confidence"`
	Reason            string     `json:"reason"`
	RiskScore         float64    `json:"risk_score"`
	Intent            Intent     `json:"intent_label"`
	Summary           string     `json:"summary"`
	RecommendedAction string     `json:"recommended_action"`
	ActionType        ActionType `json:"action_type"`
	DraftReply        string     `json:"draft_reply,omitempty"`
	Method            Method     `json:"method"`
}

// Input is a normalized inbound message.
type Input struct {
	Sender  string
	Subject string
	Body    string // may be empty
}

// trigger maps a keyword or domain set to a provisional zone and confidence.
// Triggers are evaluated in table order; the first match wins, so
// higher-urgency rows must come first.
type trigger struct {
	zone       Zone
	confidence float64
	intent     Intent
	action     ActionType
	keywords   []string // matched against subject+body
	domains    []string // matched against the sender domain
	reasonFmt  string   // fmt with the matched token
}

// defaultTriggers is the ordered trigger table. STAT rows first so a message
// carrying both urgent and low-priority signals lands in STAT.
var defaultTriggers = []trigger{
	{
		zone: ZoneStat, confidence: 0.92, intent: IntentClinical, action: ActionReview,
		keywords: []string{
			"critical", "urgent", "stat", "emergency", "abnormal", "positive",
			"elevated", "low", "high", "alert", "immediate", "asap",
		},
		reasonFmt: "urgent keyword: %q",
	},
	{
		zone: ZoneStat, confidence: 0.90, intent: IntentClinical, action: ActionReview,
		domains: []string{
			"labcorp", "quest", "hospital", "er", "emergency", "lab",
			"pathology", "radiology",
		},
		reasonFmt: "high-priority sender domain: %q",
	},
	{
		zone: ZoneToday, confidence: 0.85, intent: IntentClinical, action: ActionReply,
		keywords: []string{
			"refill", "prescription", "prior auth", "authorization", "referral",
			"appointment", "callback", "pharmacy", "medication",
		},
		reasonFmt: "same-day keyword: %q",
	},
	{
		zone: ZoneToday, confidence: 0.82, intent: IntentAdmin, action: ActionReply,
		domains: []string{
			"pharmacy", "cvs", "walgreens", "insurance", "medicaid", "medicare",
			"aetna", "cigna", "united", "bcbs",
		},
		reasonFmt: "action-required sender domain: %q",
	},
	{
		zone: ZoneThisWeek, confidence: 0.80, intent: IntentBilling, action: ActionDelegate,
		keywords: []string{
			"billing", "invoice", "payment", "claim", "denial",
			"records request", "compliance", "audit",
		},
		reasonFmt: "administrative keyword: %q",
	},
	{
		zone: ZoneLater, confidence: 0.90, intent: IntentOther, action: ActionArchive,
		keywords: []string{
			"newsletter", "cme", "conference", "webinar", "marketing",
			"promotion", "sale", "discount", "survey", "unsubscribe",
		},
		reasonFmt: "low-priority keyword: %q",
	},
}

// ClassifierHooks are optional callbacks the classifier fires for
// observability. Zero value disables all hooks.
type ClassifierHooks struct {
	// OnClassify fires once per classification with the path taken.
	OnClassify func(method Method, zone Zone, duration float64)

	// OnProviderCall fires once per reasoning provider round-trip.
	OnProviderCall func(ok bool, duration float64)
}

// Classifier assigns zones via the trigger table with a reasoning provider
// fallback. Classify is a pure function of its inputs, the trigger table and
// the overrides snapshot; it never mutates the table and never returns an
// error.
type Classifier struct {
	provider Provider // nil disables the fallback
	triggers []trigger
	timeout  time.Duration
	logger   log.Logger
	hooks    ClassifierHooks
}

// NewClassifier creates a classifier over the default trigger table.
// provider may be nil, in which case unmatched messages take the degraded
// default path.
func NewClassifier(provider Provider, timeout time.Duration, logger log.Logger, hooks ClassifierHooks) *Classifier {
	if logger == nil {
		logger = log.Nop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Classifier{
		provider: provider,
		triggers: defaultTriggers,
		timeout:  timeout,
		logger:   logger,
		hooks:    hooks,
	}
}

// Classify produces a zone assignment and derived fields for in. overrides
// is a snapshot of learned corrections keyed by sender signal; an exact
// sender key beats a domain key, and any override beats the trigger table.
func (c *Classifier) Classify(ctx context.Context, in Input, overrides map[string]Zone) Classification {
	start := time.Now()
	domain := SenderDomainOf(in.Sender)
	text := normalize(in.Subject + " " + in.Body)

	cl := c.classify(ctx, in, domain, text, overrides)

	cl.RiskScore = RiskForZone(cl.Zone)
	fillDerived(&cl, in)

	if c.hooks.OnClassify != nil {
		c.hooks.OnClassify(cl.Method, cl.Zone, time.Since(start).Seconds())
	}
	return cl
}

func (c *Classifier) classify(ctx context.Context, in Input, domain, text string, overrides map[string]Zone) Classification {
	// Learned corrections win over everything. Exact sender beats domain.
	if z, ok := overrides[SenderKey(in.Sender)]; ok && z.Valid() {
		return Classification{
			Zone: z, Confidence: 0.90, Method: MethodOverride,
			Reason: fmt.Sprintf("learned correction for sender %q", normalize(in.Sender)),
		}
	}
	if z, ok := overrides[DomainKey(domain)]; ok && z.Valid() {
		return Classification{
			Zone: z, Confidence: 0.90, Method: MethodOverride,
			Reason: fmt.Sprintf("learned correction for domain %q", domain),
		}
	}

	// First matching trigger determines the provisional zone.
	var matched *Classification
	for i := range c.triggers {
		tr := &c.triggers[i]
		if token, ok := tr.match(domain, text); ok {
			matched = &Classification{
				Zone:       tr.zone,
				Confidence: tr.confidence,
				Reason:     fmt.Sprintf(tr.reasonFmt, token),
				Intent:     tr.intent,
				ActionType: tr.action,
				Method:     MethodRule,
			}
			break
		}
	}
	if matched != nil && matched.Confidence >= ConfidenceThreshold {
		return *matched
	}

	// No trigger (or a weak one): ask the reasoning provider, bounded.
	if cl, ok := c.providerClassify(ctx, in, domain); ok {
		return cl
	}
	if matched != nil {
		return *matched
	}

	return Classification{
		Zone:       ZoneLater,
		Confidence: fallbackConfidence,
		Reason:     fallbackReason,
		Intent:     IntentOther,
		Method:     MethodDefault,
	}
}

// providerClassify calls the reasoning provider and validates its response.
// Any failure (timeout, transport, malformed or out-of-schema output) is
// logged and reported false; it never propagates to the caller.
func (c *Classifier) providerClassify(ctx context.Context, in Input, domain string) (Classification, bool) {
	if c.provider == nil {
		return Classification{}, false
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.provider.Classify(cctx, &ProviderRequest{
		Sender:       in.Sender,
		SenderDomain: domain,
		Subject:      in.Subject,
		Snippet:      in.Body,
	})
	dur := time.Since(start).Seconds()

	if err != nil {
		if c.hooks.OnProviderCall != nil {
			c.hooks.OnProviderCall(false, dur)
		}
		c.logger.Error(ctx, err, "reasoning provider call failed", "sender_domain", domain)
		return Classification{}, false
	}

	zone := Zone(strings.ToUpper(strings.TrimSpace(resp.Zone)))
	if !zone.Valid() {
		if c.hooks.OnProviderCall != nil {
			c.hooks.OnProviderCall(false, dur)
		}
		c.logger.Warn(ctx, "reasoning provider returned unknown zone", "zone", resp.Zone)
		return Classification{}, false
	}
	if c.hooks.OnProviderCall != nil {
		c.hooks.OnProviderCall(true, dur)
	}

	cl := Classification{
		Zone:              zone,
		Confidence:        clamp01(resp.Confidence),
		Reason:            resp.Reason,
		Intent:            IntentOther,
		Summary:           resp.Summary,
		RecommendedAction: resp.RecommendedAction,
		DraftReply:        resp.DraftReply,
		Method:            MethodLLM,
	}
	if cl.Reason == "" {
		cl.Reason = "reasoning provider analysis"
	}
	switch at := ActionType(resp.ActionType); at {
	case ActionReply, ActionForward, ActionCall, ActionArchive, ActionDelegate, ActionReview:
		cl.ActionType = at
	}
	return cl, true
}

func (tr *trigger) match(domain, text string) (string, bool) {
	for _, kw := range tr.keywords {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	for _, d := range tr.domains {
		if strings.Contains(domain, d) {
			return d, true
		}
	}
	return "", false
}

// RiskForZone maps a zone to its numeric risk score. Monotonic in urgency;
// STAT stays at or above the 0.8 grid cutoff so a STAT classification always
// re-buckets to STAT.
func RiskForZone(z Zone) float64 {
	switch z {
	case ZoneStat:
		return 0.92
	case ZoneToday:
		return 0.60
	case ZoneThisWeek:
		return 0.35
	default:
		return 0.10
	}
}

// EstimateDeadline derives a deadline from the zone when ingestion supplied
// none.
func EstimateDeadline(z Zone, now time.Time) time.Time {
	switch z {
	case ZoneStat:
		return now.Add(2 * time.Hour)
	case ZoneToday:
		return now.Add(24 * time.Hour)
	case ZoneThisWeek:
		return now.Add(72 * time.Hour)
	default:
		return now.Add(7 * 24 * time.Hour)
	}
}

// RouteOwner picks the owner role for a message from its intent and risk.
func RouteOwner(intent Intent, riskScore float64) string {
	switch {
	case intent == IntentClinical && riskScore >= 0.8:
		return RoleLeadClinician
	case intent == IntentClinical:
		return RoleNurse
	case intent == IntentBilling:
		return RoleBilling
	default:
		return RoleFrontDesk
	}
}

// fillDerived completes summary/action/draft fields from deterministic
// zone-keyed templates wherever the classification path left them empty.
func fillDerived(cl *Classification, in Input) {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		subject = "(no subject)"
	}
	if cl.Summary == "" {
		switch cl.Zone {
		case ZoneStat:
			cl.Summary = "Urgent: " + subject
		case ZoneToday:
			cl.Summary = "Needs action today: " + subject
		case ZoneThisWeek:
			cl.Summary = "Handle this week: " + subject
		default:
			cl.Summary = "Low priority: " + subject
		}
	}
	if cl.RecommendedAction == "" {
		switch cl.Zone {
		case ZoneStat:
			cl.RecommendedAction = "Review immediately"
		case ZoneToday:
			cl.RecommendedAction = "Respond today"
		case ZoneThisWeek:
			cl.RecommendedAction = "Handle within the week"
		default:
			cl.RecommendedAction = "Archive or review when free"
		}
	}
	if cl.ActionType == "" {
		switch cl.Zone {
		case ZoneStat:
			cl.ActionType = ActionReview
		case ZoneToday:
			cl.ActionType = ActionReply
		case ZoneThisWeek:
			cl.ActionType = ActionDelegate
		default:
			cl.ActionType = ActionArchive
		}
	}
	if cl.Intent == "" {
		cl.Intent = IntentOther
	}
}

// SenderDomainOf extracts the lowercased domain part of an address.
// Returns the whole normalized sender when there is no "@".
func SenderDomainOf(sender string) string {
	s := normalize(sender)
	if i := strings.LastIndex(s, "@"); i >= 0 && i+1 < len(s) {
		return strings.TrimSuffix(s[i+1:], ">")
	}
	return s
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

package triage

import "context"

// Provider is the interface for the external reasoning fallback. It is
// treated as unreliable: callers bound it with a timeout and recover any
// failure locally.
type Provider interface {
	Classify(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)
}

// ProviderRequest carries the full message to the reasoning provider.
type ProviderRequest struct {
	Sender       string
	SenderDomain string
	Subject      string
	Snippet      string
}

// ProviderResponse is the structured output of the reasoning provider.
// Fields are untrusted until validated by the classifier: Zone must parse to
// a known zone and Confidence is clamped to [0,1] before use.
type ProviderResponse struct {
	Zone              string  `json:"zone"`
	Confidence        float64 `json:"confidence"`
	Reason            string  `json:"reason"`
	Summary           string  `json:"summary,omitempty"`
	RecommendedAction string  `json:"recommended_action,omitempty"`
	ActionType        string  `json:"action_type,omitempty"`
	DraftReply        string  `json:"draft_reply,omitempty"`
}

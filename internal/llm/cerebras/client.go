// Package cerebras implements the triage reasoning provider against the
// Cerebras inference API, which speaks the OpenAI chat-completions protocol.
package cerebras

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/linnemanlabs/docbox/internal/triage"
)

const (
	// DefaultBaseURL is the Cerebras OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.cerebras.ai/v1"

	// DefaultModel is the model used for triage classification.
	DefaultModel = "llama-3.3-70b"

	maxTokens   = 500
	temperature = 0.2
)

// Client implements triage.Provider over the Cerebras API.
type Client struct {
	client *openai.Client
	model  string
}

// New creates a new Cerebras client. baseURL and model fall back to the
// package defaults when empty.
func New(apiKey, baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Classify sends the message to the model and parses its structured verdict.
// The caller bounds ctx; any transport, protocol or parse failure is an
// error the classifier will recover from locally.
func (c *Client) Classify(ctx context.Context, req *triage.ProviderRequest) (*triage.ProviderResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req)},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("cerebras: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("cerebras: empty choices in response")
	}

	raw := extractJSON(resp.Choices[0].Message.Content)

	var out triage.ProviderResponse
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("cerebras: parse verdict: %w", err)
	}
	if strings.EqualFold(strings.TrimSpace(out.DraftReply), "null") {
		out.DraftReply = ""
	}
	return &out, nil
}

func buildPrompt(req *triage.ProviderRequest) string {
	snippet := req.Snippet
	if snippet == "" {
		snippet = "No content"
	}
	return fmt.Sprintf(`You are a medical office inbox assistant. Analyze this email:
From: %s (%s)
Subject: %s
Content: %s

Return JSON: {"zone": "STAT|TODAY|THIS_WEEK|LATER", "confidence": 0.0-1.0, "reason": "why", "summary": "1-2 sentences", "recommended_action": "what to do", "action_type": "reply|forward|call|archive|delegate|review", "draft_reply": "if a reply is needed, else null"}`,
		req.Sender, req.SenderDomain, req.Subject, snippet)
}

// extractJSON strips markdown code fences some models wrap around JSON.
func extractJSON(s string) string {
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		return strings.TrimSpace(s)
	}
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+len("```"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s)
}

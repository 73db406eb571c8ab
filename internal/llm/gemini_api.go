package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultGeminiEndpoint is the base URL of the Generative Language API.
const DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// GeminiAPIClient talks to the Gemini generateContent API.
type GeminiAPIClient struct {
	apiClient
}

// NewGeminiAPIClient creates a Gemini client. An empty endpoint selects
// DefaultGeminiEndpoint.
func NewGeminiAPIClient(apiKey, model, endpoint string) *GeminiAPIClient {
	return &GeminiAPIClient{newAPIClient("gemini", apiKey, model, endpoint, DefaultGeminiEndpoint)}
}

func (g *GeminiAPIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	model := g.modelFor(req)
	target := fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, url.PathEscape(model))
	headers := http.Header{"X-Goog-Api-Key": {g.apiKey}}

	var answer geminiResponse
	if err := g.post(ctx, target, headers, g.encode(req), &answer); err != nil {
		return nil, err
	}

	out := answer.completion(model)
	if out.Content == "" {
		if reason := answer.PromptFeedback.BlockReason; reason != "" {
			return nil, fmt.Errorf("%w: blocked (%s)", ErrEmptyResponse, reason)
		}
		return nil, ErrEmptyResponse
	}
	out.Duration = time.Since(start)
	return out, nil
}

// encode maps the conversation onto Gemini contents. Assistant turns use the
// "model" role.
func (g *GeminiAPIClient) encode(req CompletionRequest) geminiRequest {
	body := geminiRequest{Contents: make([]geminiContent, 0, len(req.Messages))}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		role := RoleUser
		if m.Role == RoleAssistant {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	if req.MaxTokens > 0 || req.Temperature != nil {
		body.GenerationConfig = &geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		}
	}
	return body
}

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// completion reads the first candidate only.
func (r *geminiResponse) completion(model string) *CompletionResponse {
	out := &CompletionResponse{
		Model: model,
		Usage: Usage{
			InputTokens:  r.UsageMetadata.PromptTokenCount,
			OutputTokens: r.UsageMetadata.CandidatesTokenCount,
		},
	}
	if len(r.Candidates) == 0 {
		return out
	}
	var text strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	out.Content = text.String()
	out.StopReason = r.Candidates[0].FinishReason
	return out
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/soyeahso/xmlbot/internal/version"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("empty response from provider")

const (
	httpTimeout     = 120 * time.Second
	maxErrorMessage = 512
)

// apiClient holds what every hosted provider needs: a key, a model and a base
// URL without trailing slash.
type apiClient struct {
	provider string
	apiKey   string
	model    string
	endpoint string
	http     *http.Client
}

func newAPIClient(provider, apiKey, model, endpoint, fallback string) apiClient {
	if endpoint == "" {
		endpoint = fallback
	}
	return apiClient{
		provider: provider,
		apiKey:   apiKey,
		model:    model,
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: httpTimeout},
	}
}

// Name returns the provider name.
func (c *apiClient) Name() string { return c.provider }

// modelFor prefers a model named in the request over the configured one. The
// provider's own name is not a model.
func (c *apiClient) modelFor(req CompletionRequest) string {
	if req.Model == "" || req.Model == c.provider {
		return c.model
	}
	return req.Model
}

// post sends body as JSON and decodes a 200 answer into out. Any other status
// is a *ProviderError.
func (c *apiClient) post(ctx context.Context, target string, headers http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", c.provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building %s request: %w", c.provider, err)
	}
	for k, vs := range headers {
		req.Header[k] = vs
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL may carry credentials; keep only the transport cause.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("%s request failed: %w", c.provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", c.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &ProviderError{Provider: c.provider, Code: resp.StatusCode, Message: apiErrorMessage(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", c.provider, err)
	}
	return nil
}

// apiErrorMessage extracts error.message, which Gemini and Claude both use,
// or falls back to the trimmed body.
func apiErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) <= maxErrorMessage {
		return msg
	}
	cut := maxErrorMessage
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}

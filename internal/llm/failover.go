package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/soyeahso/xmlbot/internal/logging"
)

// FailoverClient walks a Registry's chain. The next provider is tried only
// when the previous one failed with a retryable error and ctx is still live.
type FailoverClient struct {
	registry *Registry
	log      *logging.Logger
}

func NewFailoverClient(registry *Registry, log *logging.Logger) *FailoverClient {
	return &FailoverClient{registry: registry, log: log.Sub("llm").Sub("failover")}
}

// Name reports the primary provider.
func (f *FailoverClient) Name() string {
	return f.registry.Primary()
}

func (f *FailoverClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	names := f.registry.Names()
	if len(names) == 0 {
		return nil, errors.New("llm: no provider configured")
	}

	var lastErr error
	for i, name := range names {
		client, ok := f.registry.Lookup(name)
		if !ok {
			continue
		}

		resp, err := client.Complete(ctx, req)
		if err == nil {
			if i > 0 {
				f.log.Info().Str("provider", name).Int("attempt", i+1).Msg("answered by fallback")
			}
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		f.log.Warn().Err(err).Str("provider", name).Msg("provider failed, moving down the chain")
	}

	return nil, lastErr
}

// retryableCodes are the statuses after which another provider may do better.
var retryableCodes = map[int]bool{401: true, 403: true, 429: true, 500: true, 502: true, 503: true, 529: true}

var retryableHints = []string{"overloaded", "rate limit", "capacity", "timeout"}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) && retryableCodes[provErr.Code] {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range retryableHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

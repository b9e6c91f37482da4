package ai

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	appErr "github.com/xxxsen/docrag/internal/pkg/errors"
	"github.com/xxxsen/docrag/internal/resilience"
)

type resilientEmbedProvider struct {
	next    IEmbedProvider
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// WithResilience wraps an embed provider with retries and a circuit breaker.
// The local provider never fails remotely and is returned unchanged.
func WithResilience(p IEmbedProvider, cfg resilience.RetryConfig) IEmbedProvider {
	if _, ok := p.(*localEmbedProvider); ok {
		return p
	}
	cfg.RetryIf = Retryable
	return &resilientEmbedProvider{
		next:  p,
		retry: cfg,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name:         "embed-" + p.Name(),
			IsSuccessful: callerSide,
		}),
	}
}

func (r *resilientEmbedProvider) Name() string {
	return r.next.Name()
}

func (r *resilientEmbedProvider) Embed(ctx context.Context, model string, texts []string, taskType string, dimension int) ([][]float32, error) {
	return resilience.RetryWithResult(ctx, "embed", r.retry, func(ctx context.Context) ([][]float32, error) {
		res, err := r.breaker.Execute(func() (interface{}, error) {
			return r.next.Embed(ctx, model, texts, taskType, dimension)
		})
		if err != nil {
			return nil, err
		}
		return res.([][]float32), nil
	})
}

type resilientProvider struct {
	next    IAIProvider
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

func WithProviderResilience(p IAIProvider, cfg resilience.RetryConfig) IAIProvider {
	cfg.RetryIf = Retryable
	return &resilientProvider{
		next:  p,
		retry: cfg,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name:         "chat-" + p.Name(),
			IsSuccessful: callerSide,
		}),
	}
}

func (r *resilientProvider) Name() string {
	return r.next.Name()
}

func (r *resilientProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	return resilience.RetryWithResult(ctx, "generate", r.retry, func(ctx context.Context) (string, error) {
		res, err := r.breaker.Execute(func() (interface{}, error) {
			return r.next.Generate(ctx, model, prompt)
		})
		if err != nil {
			return "", err
		}
		return res.(string), nil
	})
}

// Retryable reports whether a provider error may succeed on another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if callerSide(err) || resilience.IsOpen(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if code, ok := statusCode(err); ok {
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return true
}

// callerSide errors are not the remote side's fault and do not trip the breaker.
func callerSide(err error) bool {
	return err == nil ||
		errors.Is(err, appErr.ErrUnavailable) ||
		errors.Is(err, appErr.ErrDimensionMismatch)
}

func statusCode(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return genaiErr.Code, true
	}
	return 0, false
}

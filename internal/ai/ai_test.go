package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/docrag/internal/pkg/errors"
	"github.com/xxxsen/docrag/internal/resilience"
)

type fakeEmbedProvider struct {
	mu      sync.Mutex
	batches [][]string
	dim     int
	err     error
	fails   int
}

func (f *fakeEmbedProvider) Name() string { return "fake" }

func (f *fakeEmbedProvider) Embed(ctx context.Context, model string, texts []string, taskType string, dimension int) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, texts)
	if f.fails > 0 {
		f.fails--
		return nil, f.err
	}
	dim := dimension
	if f.dim > 0 {
		dim = f.dim
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec := make([]float32, dim)
		fmt.Sscanf(text, "t%f", &vec[0])
		out = append(out, vec)
	}
	return out, nil
}

type fakeProvider struct {
	resp  string
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	f.calls++
	return f.resp, f.err
}

func norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (norm(a) * norm(b))
}

func TestHashEmbedding(t *testing.T) {
	a := HashEmbedding("Orders are routed to the nearest store", 384)
	b := HashEmbedding("Orders are routed to the nearest store", 384)
	require.Len(t, a, 384)
	require.Equal(t, a, b)
	require.InDelta(t, 1.0, norm(a), 1e-5)

	near := HashEmbedding("orders routed to nearest store", 384)
	far := HashEmbedding("kubernetes pod autoscaling metrics", 384)
	require.Greater(t, cosine(a, near), cosine(a, far))

	empty := HashEmbedding("  ", 384)
	require.InDelta(t, 1.0, norm(empty), 1e-5)
}

func TestLocalProviderRegistered(t *testing.T) {
	p, err := NewEmbedProvider("LOCAL", nil)
	require.NoError(t, err)
	e := NewEmbedder(p, EmbedderConfig{Dimension: 384})
	vec, err := e.Embed(context.Background(), "hello", TaskRetrievalQuery)
	require.NoError(t, err)
	require.Len(t, vec, 384)
	require.Equal(t, 384, e.Dimension())
	require.Equal(t, "local", e.ModelName())
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider("nope", nil)
	require.Error(t, err)
	_, err = NewEmbedProvider("", nil)
	require.Error(t, err)
}

func TestEmbedder_BatchesKeepOrder(t *testing.T) {
	p := &fakeEmbedProvider{}
	e := NewEmbedder(p, EmbedderConfig{Model: "m", Dimension: 4, BatchSize: 3, Concurrency: 2})
	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}
	vecs, err := e.EmbedAll(context.Background(), texts, TaskRetrievalDocument)
	require.NoError(t, err)
	require.Len(t, vecs, 10)
	for i, vec := range vecs {
		require.Equal(t, float32(i), vec[0])
	}
	require.Len(t, p.batches, 4)
	require.Equal(t, "fake:m", e.ModelName())
}

func TestEmbedder_DimensionMismatch(t *testing.T) {
	p := &fakeEmbedProvider{dim: 3}
	e := NewEmbedder(p, EmbedderConfig{Dimension: 4})
	_, err := e.Embed(context.Background(), "t1", TaskRetrievalQuery)
	require.ErrorIs(t, err, appErr.ErrDimensionMismatch)
}

func TestEmbedder_Empty(t *testing.T) {
	e := NewEmbedder(&fakeEmbedProvider{}, EmbedderConfig{Dimension: 4})
	vecs, err := e.EmbedAll(context.Background(), nil, TaskRetrievalDocument)
	require.NoError(t, err)
	require.Empty(t, vecs)
}

func TestGenerator_WrapsErrors(t *testing.T) {
	ctx := context.Background()

	g := NewGenerator(&fakeProvider{resp: "  an answer \n"}, GeneratorConfig{Model: "m"})
	res, err := g.Generate(ctx, "q")
	require.NoError(t, err)
	require.Equal(t, "an answer", res)

	g = NewGenerator(&fakeProvider{err: errors.New("boom")}, GeneratorConfig{})
	_, err = g.Generate(ctx, "q")
	require.True(t, appErr.IsGeneration(err))

	g = NewGenerator(&fakeProvider{resp: "   "}, GeneratorConfig{})
	_, err = g.Generate(ctx, "q")
	require.True(t, appErr.IsGeneration(err))

	g = NewGenerator(&fakeProvider{err: &appErr.MissingCredentialError{Name: "X"}}, GeneratorConfig{})
	_, err = g.Generate(ctx, "q")
	require.True(t, appErr.IsMissingCredential(err))
	require.False(t, appErr.IsGeneration(err))
}

func TestMissingCredentialBeforeNetwork(t *testing.T) {
	ctx := context.Background()
	gp, err := NewProvider("gemini", map[string]interface{}{"api_key": ""})
	require.NoError(t, err)
	_, err = gp.Generate(ctx, "gemini-2.0-flash", "hi")
	var missing *appErr.MissingCredentialError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "GOOGLE_AI_GEMINI_API_KEY", missing.Name)
	require.ErrorIs(t, err, appErr.ErrUnavailable)

	op, err := NewProvider("openrouter", nil)
	require.NoError(t, err)
	_, err = op.Generate(ctx, "m", "hi")
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "OPENROUTER_API_KEY", missing.Name)

	ep, err := NewEmbedProvider("openai", map[string]interface{}{})
	require.NoError(t, err)
	_, err = ep.Embed(ctx, "m", []string{"a"}, TaskRetrievalQuery, 8)
	require.ErrorAs(t, err, &missing)
}

func TestGroupGenerator_FallsBack(t *testing.T) {
	first := &fakeProvider{err: errors.New("down")}
	second := &fakeProvider{resp: "ok"}
	g := NewGroupGenerator([]GeneratorEntry{
		{Name: "a", Generator: NewGenerator(first, GeneratorConfig{})},
		{Name: "b", Generator: NewGenerator(second, GeneratorConfig{})},
	})
	res, err := g.Generate(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, "ok", res)
	require.Equal(t, 1, first.calls)
	require.Equal(t, 1, second.calls)
	require.Nil(t, NewGroupGenerator(nil))
}

func TestRetryable(t *testing.T) {
	require.False(t, Retryable(nil))
	require.False(t, Retryable(&appErr.MissingCredentialError{Name: "X"}))
	require.False(t, Retryable(context.Canceled))
	require.False(t, Retryable(&openai.APIError{HTTPStatusCode: 400}))
	require.True(t, Retryable(&openai.APIError{HTTPStatusCode: 429}))
	require.True(t, Retryable(&openai.APIError{HTTPStatusCode: 503}))
	require.True(t, Retryable(errors.New("connection reset")))
}

func TestResilientProvider_RetriesTransient(t *testing.T) {
	p := &fakeEmbedProvider{fails: 2, err: &openai.APIError{HTTPStatusCode: 503}}
	r := WithResilience(p, resilience.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
	vecs, err := r.Embed(context.Background(), "m", []string{"t1"}, TaskRetrievalDocument, 2)
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Len(t, p.batches, 3)
}

func TestResilientProvider_NoRetryOnMissingKey(t *testing.T) {
	p := &fakeProvider{err: &appErr.MissingCredentialError{Name: "X"}}
	r := WithProviderResilience(p, resilience.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond})
	_, err := r.Generate(context.Background(), "m", "q")
	require.True(t, appErr.IsMissingCredential(err))
	require.Equal(t, 1, p.calls)
}

func TestWithResilience_LocalUnwrapped(t *testing.T) {
	p, err := NewEmbedProvider("local", nil)
	require.NoError(t, err)
	require.Same(t, p, WithResilience(p, resilience.DefaultRetryConfig()))
}

func TestGroupGenerator_AllFail(t *testing.T) {
	g := NewGroupGenerator([]GeneratorEntry{
		{Name: "gemini", Generator: NewGenerator(&fakeProvider{err: &appErr.MissingCredentialError{Name: "GOOGLE_AI_GEMINI_API_KEY"}}, GeneratorConfig{})},
		{Name: "openai", Generator: NewGenerator(&fakeProvider{err: errors.New("quota")}, GeneratorConfig{})},
	})
	_, err := g.Generate(context.Background(), "q")
	require.True(t, appErr.IsMissingCredential(err))
	require.True(t, appErr.IsGeneration(err))
	require.Contains(t, err.Error(), "openai")
}

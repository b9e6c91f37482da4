package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	appErr "github.com/xxxsen/docrag/internal/pkg/errors"
)

const (
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

type openAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

// openAIProvider talks to any OpenAI compatible endpoint. OpenRouter is the
// same provider with a different base url and key.
type openAIProvider struct {
	name   string
	keyEnv string
	apiKey string
	client *openai.Client
}

func newOpenAIProvider(name, keyEnv, baseURL string, args interface{}) (*openAIProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	url := strings.TrimSpace(cfg.BaseURL)
	if url == "" {
		url = baseURL
	}
	p := &openAIProvider{
		name:   name,
		keyEnv: keyEnv,
		apiKey: strings.TrimSpace(cfg.APIKey),
	}
	clientCfg := openai.DefaultConfig(p.apiKey)
	clientCfg.BaseURL = strings.TrimRight(url, "/")
	p.client = openai.NewClientWithConfig(clientCfg)
	return p, nil
}

func (p *openAIProvider) Name() string {
	return p.name
}

func (p *openAIProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	if p.apiKey == "" {
		return "", &appErr.MissingCredentialError{Name: p.keyEnv}
	}
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s response has no choices", p.name)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *openAIProvider) Embed(ctx context.Context, model string, texts []string, taskType string, dimension int) ([][]float32, error) {
	if p.apiKey == "" {
		return nil, &appErr.MissingCredentialError{Name: p.keyEnv}
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      openai.EmbeddingModel(model),
		Dimensions: dimension,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d texts", p.name, len(resp.Data), len(texts))
	}
	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, 0, len(data))
	for _, item := range data {
		out = append(out, item.Embedding)
	}
	return out, nil
}

func init() {
	Register("openai", func(args interface{}) (IAIProvider, error) {
		return newOpenAIProvider("openai", "OPENAI_API_KEY", defaultOpenAIBaseURL, args)
	})
	RegisterEmbed("openai", func(args interface{}) (IEmbedProvider, error) {
		return newOpenAIProvider("openai", "OPENAI_API_KEY", defaultOpenAIBaseURL, args)
	})
	Register("openrouter", func(args interface{}) (IAIProvider, error) {
		return newOpenAIProvider("openrouter", "OPENROUTER_API_KEY", defaultOpenRouterBaseURL, args)
	})
}

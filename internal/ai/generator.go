package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	appErr "github.com/xxxsen/docrag/internal/pkg/errors"
)

type GeneratorConfig struct {
	Model   string
	Timeout time.Duration
}

type generator struct {
	provider IAIProvider
	cfg      GeneratorConfig
}

// NewGenerator binds a provider to a model. Provider failures come back as
// *errors.GenerationError, except a missing credential which is returned as is.
func NewGenerator(p IAIProvider, cfg GeneratorConfig) IGenerator {
	return &generator{provider: p, cfg: cfg}
}

func (g *generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	resp, err := g.provider.Generate(ctx, g.cfg.Model, prompt)
	if err != nil {
		var missing *appErr.MissingCredentialError
		if errors.As(err, &missing) {
			return "", err
		}
		return "", &appErr.GenerationError{Provider: g.provider.Name(), Err: err}
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", &appErr.GenerationError{Provider: g.provider.Name(), Err: fmt.Errorf("empty ai response")}
	}
	return text, nil
}

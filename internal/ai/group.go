package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

type groupGenerator struct {
	items []GeneratorEntry
}

// NewGroupGenerator tries each generator in order and returns the first
// answer. Used to fall back from the primary chat provider.
func NewGroupGenerator(items []GeneratorEntry) IGenerator {
	if len(items) == 0 {
		return nil
	}
	if len(items) == 1 {
		return items[0].Generator
	}
	return &groupGenerator{items: items}
}

// Generate returns the first answer. When every generator fails the
// errors are joined, so callers can still match a missing credential.
func (g *groupGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	logger := logutil.GetLogger(ctx)
	errs := make([]error, 0, len(g.items))
	for i, item := range g.items {
		res, err := item.Generator.Generate(ctx, prompt)
		if err == nil {
			if i > 0 {
				logger.Info("answered by fallback chat provider", zap.String("name", item.Name))
			}
			return res, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", item.Name, err))
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(g.items) {
			logger.Warn("chat provider failed, trying next", zap.String("name", item.Name), zap.Error(err))
		}
	}
	return "", errors.Join(errs...)
}

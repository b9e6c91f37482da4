package ai

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	appErr "github.com/xxxsen/docrag/internal/pkg/errors"
)

type EmbedderConfig struct {
	Model       string
	Dimension   int
	BatchSize   int
	Concurrency int
}

type embedder struct {
	provider IEmbedProvider
	cfg      EmbedderConfig
}

func NewEmbedder(p IEmbedProvider, cfg EmbedderConfig) IEmbedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &embedder{provider: p, cfg: cfg}
}

func (e *embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	res, err := e.EmbedAll(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// EmbedAll splits texts into batches and embeds at most Concurrency batches at
// a time. The result keeps the input order.
func (e *embedder) EmbedAll(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end
		g.Go(func() error {
			vecs, err := e.provider.Embed(gctx, e.cfg.Model, texts[start:end], taskType, e.cfg.Dimension)
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("%s returned %d embeddings for %d texts", e.provider.Name(), len(vecs), end-start)
			}
			for i, vec := range vecs {
				if len(vec) != e.cfg.Dimension {
					return fmt.Errorf("%w: %s returned %d, want %d", appErr.ErrDimensionMismatch, e.provider.Name(), len(vec), e.cfg.Dimension)
				}
				out[start+i] = vec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *embedder) Dimension() int {
	return e.cfg.Dimension
}

func (e *embedder) ModelName() string {
	if e.cfg.Model == "" {
		return e.provider.Name()
	}
	return e.provider.Name() + ":" + e.cfg.Model
}

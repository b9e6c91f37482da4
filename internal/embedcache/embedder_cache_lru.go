package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrag/internal/ai"
)

func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	res, err := l.EmbedAll(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (l *lruEmbedder) EmbedAll(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		keys[i], _, _ = buildCacheKey(l.next.ModelName(), l.next.Dimension(), taskType, text)
		if cached, ok := l.cache.Get(keys[i]); ok {
			out[i] = cloneEmbedding(cached)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	logutil.GetLogger(ctx).Debug("embedding cache lookup (lru)",
		zap.String("task_type", taskType),
		zap.Int("hit", len(texts)-len(missIdx)),
		zap.Int("miss", len(missIdx)),
	)
	if len(missIdx) == 0 {
		return out, nil
	}
	res, err := l.next.EmbedAll(ctx, missTexts, taskType)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = res[j]
		l.cache.Add(keys[idx], cloneEmbedding(res[j]))
	}
	return out, nil
}

func (l *lruEmbedder) Dimension() int {
	return l.next.Dimension()
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}

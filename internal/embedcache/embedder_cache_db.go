package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrag/internal/ai"
	"github.com/xxxsen/docrag/internal/model"
)

// ICacheStore persists embeddings across runs.
type ICacheStore interface {
	GetMany(ctx context.Context, modelName, taskType string, dimension int, hashes []string) (map[string][]float32, error)
	SaveAll(ctx context.Context, items []*model.EmbeddingCache) error
}

func WrapDBCacheToEmbedder(e ai.IEmbedder, store ICacheStore) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store ICacheStore
}

func (d *dbEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	res, err := d.EmbedAll(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (d *dbEmbedder) EmbedAll(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	logger := logutil.GetLogger(ctx).With(zap.String("task_type", taskType))
	dim := d.next.Dimension()
	hashes := make([]string, len(texts))
	var modelName string
	for i, text := range texts {
		_, hashes[i], modelName = buildCacheKey(d.next.ModelName(), dim, taskType, text)
	}
	cached, err := d.store.GetMany(ctx, modelName, taskType, dim, uniqueStrings(hashes))
	if err != nil {
		// the cache is an optimization; fall through to the embedder
		logger.Warn("failed to read embedding cache", zap.Error(err))
		cached = nil
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if values, ok := cached[hashes[i]]; ok && len(values) == dim {
			out[i] = values
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	logger.Debug("embedding cache lookup (db)", zap.Int("hit", len(texts)-len(missIdx)), zap.Int("miss", len(missIdx)))
	if len(missIdx) == 0 {
		return out, nil
	}
	res, err := d.next.EmbedAll(ctx, missTexts, taskType)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	items := make([]*model.EmbeddingCache, 0, len(missIdx))
	for j, idx := range missIdx {
		out[idx] = res[j]
		items = append(items, &model.EmbeddingCache{
			ModelName:   modelName,
			TaskType:    taskType,
			ContentHash: hashes[idx],
			Dimension:   dim,
			Embedding:   res[j],
			Ctime:       now,
		})
	}
	if err := d.store.SaveAll(ctx, items); err != nil {
		logger.Warn("failed to cache embedding", zap.Error(err))
	}
	return out, nil
}

func (d *dbEmbedder) Dimension() int {
	return d.next.Dimension()
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}

func buildCacheKey(modelName string, dimension int, taskType, text string) (string, string, string) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	contentHash := ContentHash(text)
	return "embed:" + modelName + ":" + strconv.Itoa(dimension) + ":" + taskType + ":" + contentHash, contentHash, modelName
}

// ContentHash is the hex sha256 of text.
func ContentHash(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}

func uniqueStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

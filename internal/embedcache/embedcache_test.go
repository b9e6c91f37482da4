package embedcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docrag/internal/model"
)

type countingEmbedder struct {
	calls [][]string
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	res, err := c.EmbedAll(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (c *countingEmbedder) EmbedAll(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	c.calls = append(c.calls, texts)
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, []float32{float32(len(text)), 1})
	}
	return out, nil
}

func (c *countingEmbedder) Dimension() int    { return 2 }
func (c *countingEmbedder) ModelName() string { return "counting" }

type memStore struct {
	items   map[string][]float32
	saved   int
	readErr error
}

func (m *memStore) GetMany(ctx context.Context, modelName, taskType string, dimension int, hashes []string) (map[string][]float32, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := map[string][]float32{}
	for _, h := range hashes {
		if v, ok := m.items[modelName+taskType+h]; ok {
			out[h] = v
		}
	}
	return out, nil
}

func (m *memStore) SaveAll(ctx context.Context, items []*model.EmbeddingCache) error {
	for _, item := range items {
		m.items[item.ModelName+item.TaskType+item.ContentHash] = item.Embedding
		m.saved++
	}
	return nil
}

func TestLruEmbedder_CachesPerText(t *testing.T) {
	ctx := context.Background()
	next := &countingEmbedder{}
	e := WrapLruCacheToEmbedder(next, 16, time.Minute)

	res, err := e.EmbedAll(ctx, []string{"a", "bb"}, "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 1}, {2, 1}}, res)

	res, err = e.EmbedAll(ctx, []string{"bb", "ccc", "a"}, "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, [][]float32{{2, 1}, {3, 1}, {1, 1}}, res)
	require.Len(t, next.calls, 2)
	require.Equal(t, []string{"ccc"}, next.calls[1])

	// task type is part of the key
	_, err = e.Embed(ctx, "a", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Len(t, next.calls, 3)
	require.Equal(t, 2, e.Dimension())
	require.Equal(t, "counting", e.ModelName())
}

func TestLruEmbedder_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	e := WrapLruCacheToEmbedder(&countingEmbedder{}, 16, time.Minute)
	first, err := e.Embed(ctx, "a", "q")
	require.NoError(t, err)
	first[0] = 99
	second, err := e.Embed(ctx, "a", "q")
	require.NoError(t, err)
	require.Equal(t, float32(1), second[0])
}

func TestLruEmbedder_Disabled(t *testing.T) {
	next := &countingEmbedder{}
	require.Same(t, next, WrapLruCacheToEmbedder(next, 0, time.Minute))
}

func TestDBEmbedder(t *testing.T) {
	ctx := context.Background()
	next := &countingEmbedder{}
	store := &memStore{items: map[string][]float32{}}
	e := WrapDBCacheToEmbedder(next, store)

	_, err := e.EmbedAll(ctx, []string{"a", "bb", "a"}, "d")
	require.NoError(t, err)
	require.Len(t, next.calls, 1)
	require.Equal(t, 3, store.saved)

	res, err := e.EmbedAll(ctx, []string{"bb", "a"}, "d")
	require.NoError(t, err)
	require.Equal(t, [][]float32{{2, 1}, {1, 1}}, res)
	require.Len(t, next.calls, 1)
}

func TestDBEmbedder_ReadFailureFallsThrough(t *testing.T) {
	next := &countingEmbedder{}
	store := &memStore{items: map[string][]float32{}, readErr: errors.New("db down")}
	e := WrapDBCacheToEmbedder(next, store)
	res, err := e.Embed(context.Background(), "abc", "d")
	require.NoError(t, err)
	require.Equal(t, []float32{3, 1}, res)
}

func TestContentHash(t *testing.T) {
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentHash(""))
	require.Len(t, ContentHash("hello"), 64)
}

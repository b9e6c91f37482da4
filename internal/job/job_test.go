package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docrag/internal/model"
)

type fakeCleaner struct {
	cutoff int64
}

func (f *fakeCleaner) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	f.cutoff = cutoff
	return 3, nil
}

func TestEmbeddingCacheCleanupJob(t *testing.T) {
	now := time.Unix(100*24*3600, 0)
	cleaner := &fakeCleaner{}
	j := NewEmbeddingCacheCleanupJob(cleaner, 10)
	j.now = func() time.Time { return now }
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, int64(90*24*3600), cleaner.cutoff)

	j = NewEmbeddingCacheCleanupJob(cleaner, 0)
	j.now = func() time.Time { return now }
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, int64(70*24*3600), cleaner.cutoff)
}

type fakeIngester struct {
	calls []string
	prune []bool
	fail  map[string]error
}

func (f *fakeIngester) Ingest(ctx context.Context, root string, prune bool) (*model.IngestReport, error) {
	f.calls = append(f.calls, root)
	f.prune = append(f.prune, prune)
	return &model.IngestReport{Path: root}, f.fail[root]
}

func TestReingestJob_ContinuesAndJoinsErrors(t *testing.T) {
	ing := &fakeIngester{fail: map[string]error{"a": errors.New("boom")}}
	err := NewReingestJob(ing, []string{"a", "b"}).Run(context.Background())
	require.ErrorContains(t, err, "boom")
	require.Equal(t, []string{"a", "b"}, ing.calls)
	require.Equal(t, []bool{true, true}, ing.prune)
}

func TestReingestJob_StopsOnCancel(t *testing.T) {
	ing := &fakeIngester{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewReingestJob(ing, []string{"a"}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, ing.calls)
}

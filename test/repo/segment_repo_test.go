package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docrag/internal/ai"
	"github.com/xxxsen/docrag/internal/db"
	"github.com/xxxsen/docrag/internal/embedcache"
	"github.com/xxxsen/docrag/internal/model"
	appErr "github.com/xxxsen/docrag/internal/pkg/errors"
	"github.com/xxxsen/docrag/internal/repo"
	"github.com/xxxsen/docrag/internal/service"
	"github.com/xxxsen/docrag/test/testutil"
)

func newRecord(source string, index int, text string) *model.Record {
	hash := embedcache.ContentHash(text)
	return &model.Record{
		ID:          service.RecordID(source, index, hash),
		Source:      source,
		ChunkIndex:  index,
		Content:     text,
		ContentHash: hash,
		Embedding:   ai.HashEmbedding(text, testutil.TestDimension),
		Ctime:       1,
	}
}

func TestSegmentRepo_Postgres(t *testing.T) {
	conn, schema, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	require.NoError(t, db.VerifyDimension(ctx, conn, schema))

	r := repo.NewSegmentRepo(conn, schema.Table, schema.Dimension)
	records := []*model.Record{
		newRecord("docs/a.md", 0, "order routing rules"),
		newRecord("docs/a.md", 1, "brokering runs nightly"),
		newRecord("docs/b.md", 0, "inventory sync"),
	}
	inserted, err := r.AddAll(ctx, records)
	require.NoError(t, err)
	require.Equal(t, 3, inserted)

	inserted, err = r.AddAll(ctx, records)
	require.NoError(t, err)
	require.Zero(t, inserted)

	matches, err := r.FindRelevant(ctx, records[0].Embedding, 5, 0.99)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	require.Equal(t, records[0].ID, matches[0].Record.ID)
	require.InDelta(t, 1.0, matches[0].Score, 1e-4)

	bad := newRecord("docs/c.md", 0, "x")
	bad.Embedding = []float32{1}
	_, err = r.AddAll(ctx, []*model.Record{bad})
	require.ErrorIs(t, err, appErr.ErrDimensionMismatch)

	pruned, err := r.PruneSource(ctx, "docs/a.md", []string{records[0].ID})
	require.NoError(t, err)
	require.Equal(t, 1, pruned)

	deleted, err := r.DeleteSources(ctx, []string{"docs/b.md"})
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Total)

	require.NoError(t, r.Clear(ctx))
	count, err := r.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestVerifyDimension_Mismatch(t *testing.T) {
	conn, schema, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	schema.Dimension = testutil.TestDimension + 1
	err := db.VerifyDimension(context.Background(), conn, schema)
	require.ErrorIs(t, err, appErr.ErrDimensionMismatch)
}

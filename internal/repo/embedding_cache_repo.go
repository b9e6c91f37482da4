package repo

import (
	"context"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docrag/internal/model"
	"github.com/xxxsen/docrag/internal/pkg/dbutil"
)

type EmbeddingCacheRepo struct {
	db *sqlx.DB
}

func NewEmbeddingCacheRepo(db *sqlx.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

func (r *EmbeddingCacheRepo) GetMany(ctx context.Context, modelName, taskType string, dimension int, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	where := map[string]interface{}{
		"model_name":      modelName,
		"task_type":       taskType,
		"dimension":       dimension,
		"content_hash in": hashes,
	}
	sqlStr, args, err := builder.BuildSelect("embedding_cache", where, []string{"content_hash", "embedding"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var hash string
		var embedding pgvector.Vector
		if err := rows.Scan(&hash, &embedding); err != nil {
			return nil, err
		}
		out[hash] = embedding.Slice()
	}
	return out, rows.Err()
}

func (r *EmbeddingCacheRepo) SaveAll(ctx context.Context, items []*model.EmbeddingCache) error {
	if len(items) == 0 {
		return nil
	}
	const query = `
		INSERT INTO embedding_cache (model_name, task_type, content_hash, dimension, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (model_name, task_type, content_hash, dimension) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, query,
			item.ModelName,
			item.TaskType,
			item.ContentHash,
			item.Dimension,
			pgvector.NewVector(item.Embedding),
			item.Ctime,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `DELETE FROM embedding_cache WHERE ctime < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

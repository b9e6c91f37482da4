package repo

import (
	"context"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docrag/internal/model"
	"github.com/xxxsen/docrag/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docrag/internal/pkg/errors"
)

const insertBatchSize = 200

// SegmentRepo is the pgvector backed vector store. The table name is
// validated by config before it reaches any query.
type SegmentRepo struct {
	db        *sqlx.DB
	table     string
	dimension int
}

func NewSegmentRepo(db *sqlx.DB, table string, dimension int) *SegmentRepo {
	return &SegmentRepo{db: db, table: table, dimension: dimension}
}

// storeErr marks connection failures so callers can retry them or abort.
// Statements the server rejected, such as a row with a NUL byte, stay plain
// errors and only fail the file being stored.
func storeErr(op string, err error) error {
	if dbutil.IsConnectionError(err) {
		return &appErr.StoreConnectionError{Op: op, Err: err}
	}
	return fmt.Errorf("vector store %s: %w", op, err)
}

func (r *SegmentRepo) Table() string {
	return r.table
}

// AddAll stores records in one transaction. Records whose id already exists
// are left untouched; the number of newly inserted rows is returned.
func (r *SegmentRepo) AddAll(ctx context.Context, records []*model.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	for _, rec := range records {
		if len(rec.Embedding) != r.dimension {
			return 0, fmt.Errorf("%w: record %s has %d, want %d", appErr.ErrDimensionMismatch, rec.ID, len(rec.Embedding), r.dimension)
		}
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, storeErr("begin", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	inserted := 0
	for start := 0; start < len(records); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(records) {
			end = len(records)
		}
		rows := make([]map[string]interface{}, 0, end-start)
		for _, rec := range records[start:end] {
			rows = append(rows, map[string]interface{}{
				"id":           rec.ID,
				"source":       rec.Source,
				"chunk_index":  rec.ChunkIndex,
				"start_offset": rec.StartOffset,
				"content":      rec.Content,
				"content_hash": rec.ContentHash,
				"embedding":    pgvector.NewVector(rec.Embedding),
				"ctime":        rec.Ctime,
			})
		}
		sqlStr, args, err := builder.BuildInsert(r.table, rows)
		if err != nil {
			return 0, err
		}
		sqlStr, args = dbutil.Finalize(sqlStr+" ON CONFLICT (id) DO NOTHING", args)
		res, err := tx.ExecContext(ctx, sqlStr, args...)
		if err != nil {
			return 0, storeErr("insert", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(affected)
	}
	if err := tx.Commit(); err != nil {
		return 0, storeErr("commit", err)
	}
	return inserted, nil
}

type matchRow struct {
	model.Record
	Score float64 `db:"score"`
}

// FindRelevant returns at most maxResults records whose relevance to
// embedding is at least minScore, best first. Relevance is (1 + cosine) / 2.
func (r *SegmentRepo) FindRelevant(ctx context.Context, embedding []float32, maxResults int, minScore float64) ([]*model.Match, error) {
	if maxResults <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT id, source, chunk_index, start_offset, content, content_hash, ctime,
			(2 - (embedding <=> ?)) / 2 AS score
		FROM %s
		WHERE (2 - (embedding <=> ?)) / 2 >= ?
		ORDER BY embedding <=> ?
		LIMIT ?
	`, r.table)
	vec := pgvector.NewVector(embedding)
	sqlStr, args := dbutil.Finalize(query, []interface{}{vec, vec, minScore, vec, maxResults})
	var rows []matchRow
	if err := r.db.SelectContext(ctx, &rows, sqlStr, args...); err != nil {
		return nil, storeErr("search", err)
	}
	matches := make([]*model.Match, 0, len(rows))
	for i := range rows {
		rec := rows[i].Record
		matches = append(matches, &model.Match{Record: &rec, Score: rows[i].Score})
	}
	return matches, nil
}

func (r *SegmentRepo) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "TRUNCATE TABLE "+r.table); err != nil {
		return storeErr("truncate", err)
	}
	return nil
}

func (r *SegmentRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+r.table); err != nil {
		return 0, storeErr("count", err)
	}
	return count, nil
}

// Sources lists every stored source with its record count, ordered by source.
func (r *SegmentRepo) Sources(ctx context.Context) ([]model.SourceCount, error) {
	sqlStr := "SELECT source, COUNT(*) AS cnt FROM " + r.table + " GROUP BY source ORDER BY source"
	var items []model.SourceCount
	if err := r.db.SelectContext(ctx, &items, sqlStr); err != nil {
		return nil, storeErr("list sources", err)
	}
	return items, nil
}

func (r *SegmentRepo) Stats(ctx context.Context) (*model.Stats, error) {
	sources, err := r.Sources(ctx)
	if err != nil {
		return nil, err
	}
	stats := &model.Stats{Table: r.table, Sources: sources}
	for _, s := range sources {
		stats.Total += s.Count
	}
	return stats, nil
}

// DeleteSources removes every record of the given sources.
func (r *SegmentRepo) DeleteSources(ctx context.Context, sources []string) (int, error) {
	if len(sources) == 0 {
		return 0, nil
	}
	where := map[string]interface{}{"source in": sources}
	sqlStr, args, err := builder.BuildDelete(r.table, where)
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, storeErr("delete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// PruneSource removes the records of source whose id is not in keepIDs.
func (r *SegmentRepo) PruneSource(ctx context.Context, source string, keepIDs []string) (int, error) {
	where := map[string]interface{}{"source": source}
	if len(keepIDs) > 0 {
		where["id not in"] = keepIDs
	}
	sqlStr, args, err := builder.BuildDelete(r.table, where)
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, storeErr("prune", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrag/internal/ai"
	"github.com/xxxsen/docrag/internal/embedcache"
	"github.com/xxxsen/docrag/internal/loader"
	"github.com/xxxsen/docrag/internal/model"
	appErr "github.com/xxxsen/docrag/internal/pkg/errors"
	"github.com/xxxsen/docrag/internal/resilience"
)

const FallbackAnswer = "I don't have enough information to answer that based on the documentation."

const promptTemplate = `You are a helpful assistant for %s.
Answer the user's question based strictly on the context provided below.
If the answer is not in the context, say 'I don't know'.

Context:
%s

Question: %s`

// recordNamespace seeds the content addressed record ids.
var recordNamespace = uuid.MustParse("6f1c7a52-4c1e-5b8e-9d0a-3b7f2e4a9c10")

type IDocumentLoader interface {
	Open(ctx context.Context, root string) (iter.Seq2[*model.Document, error], error)
}

type ISegmenter interface {
	Split(ctx context.Context, doc *model.Document) []model.Segment
}

type IVectorStore interface {
	AddAll(ctx context.Context, records []*model.Record) (int, error)
	FindRelevant(ctx context.Context, embedding []float32, maxResults int, minScore float64) ([]*model.Match, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*model.Stats, error)
	PruneSource(ctx context.Context, source string, keepIDs []string) (int, error)
	DeleteSources(ctx context.Context, sources []string) (int, error)
}

type RAGConfig struct {
	Subject    string
	MaxResults int
	MinScore   float64
	Retry      resilience.RetryConfig
}

type ChatResult struct {
	Answer   string         `json:"answer"`
	Sources  []*model.Match `json:"sources"`
	Fallback bool           `json:"fallback"`
}

type RAGService struct {
	loader    IDocumentLoader
	segmenter ISegmenter
	embedder  ai.IEmbedder
	generator ai.IGenerator
	store     IVectorStore
	cfg       RAGConfig
}

func NewRAGService(docLoader IDocumentLoader, segmenter ISegmenter, embedder ai.IEmbedder, generator ai.IGenerator, store IVectorStore, cfg RAGConfig) *RAGService {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	cfg.Retry.RetryIf = appErr.IsStoreConnection
	return &RAGService{
		loader:    docLoader,
		segmenter: segmenter,
		embedder:  embedder,
		generator: generator,
		store:     store,
		cfg:       cfg,
	}
}

// Ingest loads every document under root, splits, embeds and stores it.
// Re-ingesting unchanged files is a no-op. With prune, records of edited
// files and of files no longer present under root are removed; the latter
// only when every file under root could be listed and read.
func (s *RAGService) Ingest(ctx context.Context, root string, prune bool) (*model.IngestReport, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("path", root))
	report := &model.IngestReport{Path: root}
	docs, err := s.loader.Open(ctx, root)
	if err != nil {
		report.Error = err.Error()
		return report, err
	}
	seen := map[string]struct{}{}
	var walkErr error
	loadFailed := false
	for doc, err := range docs {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				walkErr = ctxErr
				break
			}
			loadFailed = true
			report.Failed++
			logger.Error("failed to load file", zap.Error(err))
			continue
		}
		report.Files++
		seen[doc.Source] = struct{}{}
		if err := s.ingestDocument(ctx, doc, prune, report); err != nil {
			if isFatal(err) || ctx.Err() != nil {
				walkErr = err
				break
			}
			report.Failed++
			logger.Error("failed to ingest file", zap.String("source", doc.Source), zap.Error(err))
		}
	}
	// An unreadable directory or listing page hides files that still exist,
	// so nothing is removed for being unseen after a load error.
	if walkErr == nil && prune && loadFailed {
		logger.Warn("skip pruning removed files after load errors", zap.Int("failed", report.Failed))
	}
	if walkErr == nil && prune && !loadFailed {
		if err := s.pruneMissing(ctx, root, seen, report); err != nil {
			walkErr = err
		}
	}
	if walkErr != nil {
		report.Error = walkErr.Error()
	}
	logger.Info("ingest finished",
		zap.Int("files", report.Files),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("segments", report.Segments),
		zap.Int("inserted", report.Inserted),
		zap.Int("existing", report.Existing),
		zap.Int("pruned", report.Pruned),
	)
	return report, walkErr
}

func (s *RAGService) ingestDocument(ctx context.Context, doc *model.Document, prune bool, report *model.IngestReport) error {
	segments := s.segmenter.Split(ctx, doc)
	if len(segments) == 0 {
		report.Skipped++
		return nil
	}
	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		texts = append(texts, seg.Text)
	}
	vectors, err := s.embedder.EmbedAll(ctx, texts, ai.TaskRetrievalDocument)
	if err != nil {
		return fmt.Errorf("embed %s: %w", doc.Source, err)
	}
	now := time.Now().Unix()
	records := make([]*model.Record, 0, len(segments))
	ids := make([]string, 0, len(segments))
	for i, seg := range segments {
		hash := embedcache.ContentHash(seg.Text)
		rec := &model.Record{
			ID:          RecordID(doc.Source, seg.Index, hash),
			Source:      doc.Source,
			ChunkIndex:  seg.Index,
			StartOffset: seg.Start,
			Content:     seg.Text,
			ContentHash: hash,
			Embedding:   vectors[i],
			Ctime:       now,
		}
		records = append(records, rec)
		ids = append(ids, rec.ID)
	}
	inserted, err := resilience.RetryWithResult(ctx, "store.add", s.cfg.Retry, func(ctx context.Context) (int, error) {
		return s.store.AddAll(ctx, records)
	})
	if err != nil {
		return err
	}
	report.Segments += len(records)
	report.Inserted += inserted
	report.Existing += len(records) - inserted
	if prune {
		pruned, err := s.store.PruneSource(ctx, doc.Source, ids)
		if err != nil {
			return err
		}
		report.Pruned += pruned
	}
	return nil
}

func (s *RAGService) pruneMissing(ctx context.Context, root string, seen map[string]struct{}, report *model.IngestReport) error {
	prefix := root
	if !strings.HasPrefix(root, "s3://") {
		abs, err := filepath.Abs(root)
		if err != nil {
			return err
		}
		prefix = abs
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return err
	}
	var gone []string
	for _, item := range stats.Sources {
		if _, ok := seen[item.Source]; ok {
			continue
		}
		if underRoot(item.Source, prefix) {
			gone = append(gone, item.Source)
		}
	}
	if len(gone) == 0 {
		return nil
	}
	deleted, err := s.store.DeleteSources(ctx, gone)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("pruned removed files", zap.Strings("sources", gone), zap.Int("records", deleted))
	report.Pruned += deleted
	return nil
}

func underRoot(source, root string) bool {
	if source == root {
		return true
	}
	if strings.HasPrefix(root, "s3://") {
		return loader.UnderS3Root(source, root)
	}
	return strings.HasPrefix(source, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator))
}

// isFatal errors abort the whole ingest instead of failing one file.
func isFatal(err error) bool {
	return appErr.IsMissingCredential(err) ||
		appErr.IsStoreConnection(err) ||
		errors.Is(err, appErr.ErrDimensionMismatch) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Search returns the stored segments most relevant to query.
func (s *RAGService) Search(ctx context.Context, query string, limit int, minScore float64) ([]*model.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", appErr.ErrInvalid)
	}
	if limit <= 0 {
		limit = s.cfg.MaxResults
	}
	if minScore < 0 || minScore > 1 {
		return nil, fmt.Errorf("%w: min score must be 0-1, got %v", appErr.ErrInvalid, minScore)
	}
	vec, err := s.embedder.Embed(ctx, query, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return resilience.RetryWithResult(ctx, "store.find", s.cfg.Retry, func(ctx context.Context) ([]*model.Match, error) {
		return s.store.FindRelevant(ctx, vec, limit, minScore)
	})
}

// Chat answers question from the stored segments. When nothing relevant is
// stored the fixed fallback answer is returned and no model is called.
func (s *RAGService) Chat(ctx context.Context, question string) (*ChatResult, error) {
	logger := logutil.GetLogger(ctx)
	matches, err := s.Search(ctx, question, s.cfg.MaxResults, s.cfg.MinScore)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		logger.Info("no relevant segments, answer with fallback")
		return &ChatResult{Answer: FallbackAnswer, Sources: []*model.Match{}, Fallback: true}, nil
	}
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Record.Content)
	}
	prompt := BuildPrompt(s.cfg.Subject, strings.Join(texts, "\n\n"), question)
	logger.Debug("generate answer", zap.Int("matches", len(matches)), zap.Int("prompt_len", len(prompt)))
	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &ChatResult{Answer: answer, Sources: matches}, nil
}

// Reset removes every stored record. Confirmation is the caller's job.
func (s *RAGService) Reset(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("vector store cleared")
	return nil
}

func (s *RAGService) Stats(ctx context.Context) (*model.Stats, error) {
	return resilience.RetryWithResult(ctx, "store.stats", s.cfg.Retry, func(ctx context.Context) (*model.Stats, error) {
		return s.store.Stats(ctx)
	})
}

func BuildPrompt(subject, contextText, question string) string {
	if strings.TrimSpace(subject) == "" {
		subject = "the documentation"
	}
	return fmt.Sprintf(promptTemplate, subject, contextText, question)
}

// RecordID is stable for a given source, segment index and content, so
// re-ingesting an unchanged file produces the same ids.
func RecordID(source string, index int, contentHash string) string {
	key := source + "\x00" + strconv.Itoa(index) + "\x00" + contentHash
	return uuid.NewSHA1(recordNamespace, []byte(key)).String()
}

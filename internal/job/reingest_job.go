package job

import (
	"context"
	"errors"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrag/internal/model"
)

type IIngester interface {
	Ingest(ctx context.Context, root string, prune bool) (*model.IngestReport, error)
}

// ReingestJob keeps the store in sync with the configured roots. Records of
// edited and deleted files are pruned.
type ReingestJob struct {
	ingester IIngester
	paths    []string
}

func NewReingestJob(ingester IIngester, paths []string) *ReingestJob {
	return &ReingestJob{ingester: ingester, paths: paths}
}

func (j *ReingestJob) Name() string {
	return "reingest"
}

func (j *ReingestJob) Run(ctx context.Context) error {
	var errs []error
	for _, path := range j.paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		report, err := j.ingester.Ingest(ctx, path, true)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		logutil.GetLogger(ctx).Info("reingest finished",
			zap.String("path", path),
			zap.Int("inserted", report.Inserted),
			zap.Int("pruned", report.Pruned),
		)
	}
	return errors.Join(errs...)
}

package loader

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrag/internal/model"
	appErr "github.com/xxxsen/docrag/internal/pkg/errors"
)

type localSource struct{}

func init() {
	Register("local", func(args interface{}) (Source, error) {
		return &localSource{}, nil
	})
}

func (s *localSource) Type() string {
	return "local"
}

func (s *localSource) Open(ctx context.Context, root string, match func(name string) bool) (iter.Seq2[*model.Document, error], error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &appErr.InvalidPathError{Path: root, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &appErr.InvalidPathError{Path: root}
		}
		return nil, &appErr.InvalidPathError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return s.single(ctx, abs, info, match), nil
	}
	return func(yield func(*model.Document, error) bool) {
		_ = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield(nil, ctxErr)
				return filepath.SkipAll
			}
			if err != nil {
				if !yield(nil, &appErr.FileReadError{Path: path, Err: err}) {
					return filepath.SkipAll
				}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() || !match(d.Name()) {
				return nil
			}
			doc, err := readLocal(ctx, path)
			if err != nil {
				if !yield(nil, err) {
					return filepath.SkipAll
				}
				return nil
			}
			if doc == nil {
				return nil
			}
			if !yield(doc, nil) {
				return filepath.SkipAll
			}
			return nil
		})
	}, nil
}

// single applies the same filters as the walk: a root naming a fifo, a
// device or a file with another extension yields nothing.
func (s *localSource) single(ctx context.Context, path string, info fs.FileInfo, match func(name string) bool) iter.Seq2[*model.Document, error] {
	return func(yield func(*model.Document, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		if !info.Mode().IsRegular() || !match(filepath.Base(path)) {
			logutil.GetLogger(ctx).Debug("skip unsupported file", zap.String("path", path))
			return
		}
		doc, err := readLocal(ctx, path)
		if err != nil {
			yield(nil, err)
			return
		}
		if doc != nil {
			yield(doc, nil)
		}
	}
}

// readLocal returns nil for a blank file.
func readLocal(ctx context.Context, path string) (*model.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &appErr.FileReadError{Path: path, Err: err}
	}
	text := toText(content)
	if isBlank(text) {
		logutil.GetLogger(ctx).Debug("skip blank file", zap.String("path", path))
		return nil, nil
	}
	return &model.Document{
		Source:   path,
		Content:  text,
		Markdown: isMarkdown(path),
	}, nil
}

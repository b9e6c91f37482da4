package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"path"
	"strings"
	"sync"

	"github.com/xxxsen/docrag/internal/config"
	"github.com/xxxsen/docrag/internal/model"
)

// Source walks one kind of root (local directory, s3 bucket) and yields the
// text documents found under it.
type Source interface {
	Type() string
	Open(ctx context.Context, root string, match func(name string) bool) (iter.Seq2[*model.Document, error], error)
}

type Factory func(args interface{}) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func newSource(name string, args interface{}) (Source, error) {
	registryMu.RLock()
	factory := registry[name]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported loader source: %s", name)
	}
	return factory(args)
}

type Loader struct {
	cfg        config.LoaderConfig
	extensions map[string]struct{}

	mu      sync.Mutex
	sources map[string]Source
}

func New(cfg config.LoaderConfig) *Loader {
	exts := make(map[string]struct{}, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	return &Loader{cfg: cfg, extensions: exts, sources: map[string]Source{}}
}

// WithSource overrides the backend used for a scheme.
func (l *Loader) WithSource(scheme string, src Source) *Loader {
	l.mu.Lock()
	l.sources[scheme] = src
	l.mu.Unlock()
	return l
}

// Open validates root and returns an iterator over its documents. A root
// that does not exist fails here with *errors.InvalidPathError; per-file
// failures are yielded as *errors.FileReadError and the walk goes on.
func (l *Loader) Open(ctx context.Context, root string) (iter.Seq2[*model.Document, error], error) {
	scheme := "local"
	if strings.HasPrefix(root, "s3://") {
		scheme = "s3"
	}
	src, err := l.source(scheme)
	if err != nil {
		return nil, err
	}
	return src.Open(ctx, root, l.Match)
}

// Match reports whether name has a recognised extension.
func (l *Loader) Match(name string) bool {
	_, ok := l.extensions[strings.ToLower(path.Ext(name))]
	return ok
}

func (l *Loader) source(scheme string) (Source, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if src, ok := l.sources[scheme]; ok {
		return src, nil
	}
	var args interface{}
	if scheme == "s3" {
		args = l.cfg.S3
	}
	src, err := newSource(scheme, args)
	if err != nil {
		return nil, err
	}
	l.sources[scheme] = src
	return src, nil
}

func isMarkdown(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// toText drops NUL bytes, which postgres text columns reject.
func toText(content []byte) string {
	return strings.ReplaceAll(string(content), "\x00", "")
}

func isBlank(text string) bool {
	return len(strings.TrimSpace(text)) == 0
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode loader config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode loader config: %w", err)
	}
	return nil
}

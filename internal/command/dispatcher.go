package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrag/internal/model"
	appErr "github.com/xxxsen/docrag/internal/pkg/errors"
	"github.com/xxxsen/docrag/internal/service"
)

type IRAGService interface {
	Ingest(ctx context.Context, root string, prune bool) (*model.IngestReport, error)
	Search(ctx context.Context, query string, limit int, minScore float64) ([]*model.Match, error)
	Chat(ctx context.Context, question string) (*service.ChatResult, error)
	Reset(ctx context.Context) error
	Stats(ctx context.Context) (*model.Stats, error)
}

type ServeFunc func(ctx context.Context) error

type Dispatcher struct {
	rag   IRAGService
	out   io.Writer
	in    io.Reader
	table string
	serve ServeFunc
}

type Option func(d *Dispatcher)

func WithInput(in io.Reader) Option {
	return func(d *Dispatcher) { d.in = in }
}

func WithTable(table string) Option {
	return func(d *Dispatcher) { d.table = table }
}

func WithServe(fn ServeFunc) Option {
	return func(d *Dispatcher) { d.serve = fn }
}

func NewDispatcher(rag IRAGService, out io.Writer, opts ...Option) *Dispatcher {
	d := &Dispatcher{rag: rag, out: out, in: strings.NewReader(""), table: "documents"}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("%w: %s", appErr.ErrInvalid, err.Error())
	}
	logutil.GetLogger(ctx).Debug("dispatch command", zap.String("command", cmd.Name()))
	switch c := cmd.(type) {
	case IngestCommand:
		return d.ingest(ctx, c)
	case SearchCommand:
		return d.search(ctx, c)
	case ChatCommand:
		return d.chat(ctx, c)
	case ResetCommand:
		return d.reset(ctx, c)
	case StatsCommand:
		return d.stats(ctx, c)
	case ServeCommand:
		if d.serve == nil {
			return fmt.Errorf("%w: serve is not configured", appErr.ErrUnavailable)
		}
		return d.serve(ctx)
	}
	return fmt.Errorf("%w: unknown command %s", appErr.ErrInvalid, cmd.Name())
}

func (d *Dispatcher) ingest(ctx context.Context, c IngestCommand) error {
	d.printf("--- Ingest Mode ---\n")
	failed := 0
	for _, path := range c.Paths {
		d.printf("Ingesting from: %s\n", path)
		report, err := d.rag.Ingest(ctx, path, c.Prune)
		if report != nil && !appErr.IsInvalidPath(err) {
			d.printReport(report)
		}
		if err == nil {
			continue
		}
		if appErr.IsInvalidPath(err) {
			d.printf("Path does not exist: %s\n", path)
			failed++
			continue
		}
		return fmt.Errorf("ingest %s: %w", path, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d paths failed", failed, len(c.Paths))
	}
	return nil
}

func (d *Dispatcher) printReport(r *model.IngestReport) {
	d.printf("  files=%d skipped=%d failed=%d segments=%d inserted=%d existing=%d",
		r.Files, r.Skipped, r.Failed, r.Segments, r.Inserted, r.Existing)
	if r.Pruned > 0 {
		d.printf(" pruned=%d", r.Pruned)
	}
	d.printf("\n")
}

func (d *Dispatcher) search(ctx context.Context, c SearchCommand) error {
	matches, err := d.rag.Search(ctx, c.Query, c.Limit, c.MinScore)
	if err != nil {
		return err
	}
	if c.Format == FormatJSON {
		if matches == nil {
			matches = []*model.Match{}
		}
		return d.writeJSON(matches)
	}
	if len(matches) == 0 {
		d.printf("No matching segments.\n")
		return nil
	}
	for i, m := range matches {
		d.printf("[%d] score=%.4f source=%s#%d\n%s\n\n", i+1, m.Score, m.Record.Source, m.Record.ChunkIndex, m.Record.Content)
	}
	return nil
}

func (d *Dispatcher) chat(ctx context.Context, c ChatCommand) error {
	result, err := d.rag.Chat(ctx, c.Question)
	if err != nil {
		return err
	}
	if result.Fallback {
		d.printf("%s\n", result.Answer)
		return nil
	}
	d.printf("\nAnswer:\n%s\n", result.Answer)
	return nil
}

func (d *Dispatcher) reset(ctx context.Context, c ResetCommand) error {
	d.printf("--- Reset Mode ---\n")
	if !c.Force {
		d.printf("This deletes every record in table '%s'. Type 'yes' to continue: ", d.table)
		line, err := bufio.NewReader(d.in).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if strings.TrimSpace(line) != "yes" {
			d.printf("\nReset aborted.\n")
			return appErr.ErrResetAborted
		}
	}
	if err := d.rag.Reset(ctx); err != nil {
		return err
	}
	d.printf("Table '%s' cleared.\n", d.table)
	return nil
}

func (d *Dispatcher) stats(ctx context.Context, c StatsCommand) error {
	st, err := d.rag.Stats(ctx)
	if err != nil {
		return err
	}
	if c.Format == FormatJSON {
		return d.writeJSON(st)
	}
	d.printf("table %s: %d records in %d sources\n", st.Table, st.Total, len(st.Sources))
	for _, item := range st.Sources {
		d.printf("%8d  %s\n", item.Count, item.Source)
	}
	return nil
}

func (d *Dispatcher) writeJSON(v interface{}) error {
	enc := json.NewEncoder(d.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (d *Dispatcher) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(d.out, format, args...)
}

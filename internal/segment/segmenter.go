package segment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrag/internal/model"
)

const (
	DefaultMaxSize = 512
	DefaultOverlap = 100
)

// Segmenter splits text into segments of at most maxSize runes where each
// segment starts at most overlap runes before the end of the previous one.
type Segmenter struct {
	maxSize int
	overlap int
}

func New(maxSize, overlap int) (*Segmenter, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("segment max size must be positive, got %d", maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("segment overlap must be in [0, %d), got %d", maxSize, overlap)
	}
	return &Segmenter{maxSize: maxSize, overlap: overlap}, nil
}

func (s *Segmenter) MaxSize() int {
	return s.maxSize
}

func (s *Segmenter) Overlap() int {
	return s.overlap
}

func (s *Segmenter) Split(ctx context.Context, doc *model.Document) []model.Segment {
	if doc == nil || strings.TrimSpace(doc.Content) == "" {
		return nil
	}
	logger := logutil.GetLogger(ctx).With(zap.String("source", doc.Source))
	runes := []rune(doc.Content)
	var blocks []int
	if doc.Markdown {
		blocks = MarkdownBoundaries(doc.Content)
	}

	var segments []model.Segment
	start := 0
	for {
		end := len(runes)
		if end-start > s.maxSize {
			end = s.findCut(runes, start, blocks)
		}
		text := string(runes[start:end])
		logger.Debug("segment cut",
			zap.Int("index", len(segments)),
			zap.Int("start", start),
			zap.Int("end", end),
			zap.Int("tokens", EstimateTokens(text)),
		)
		segments = append(segments, model.Segment{
			Index: len(segments),
			Start: start,
			End:   end,
			Text:  text,
		})
		if end == len(runes) {
			break
		}
		start = s.nextStart(runes, end)
	}
	return segments
}

// findCut picks the end of the segment starting at start. Candidates must leave
// the next segment room to advance past the overlap and must fill at least half
// of the window.
func (s *Segmenter) findCut(runes []rune, start int, blocks []int) int {
	hi := start + s.maxSize
	lo := start + s.overlap + 1
	if half := start + s.maxSize/2; half > lo {
		lo = half
	}
	if lo > hi {
		lo = hi
	}
	if p, ok := lastBlockIn(blocks, lo, hi); ok {
		return p
	}
	for _, accept := range cutRules {
		for p := hi; p >= lo; p-- {
			if accept(runes, p) {
				return p
			}
		}
	}
	return hi
}

func (s *Segmenter) nextStart(runes []rune, end int) int {
	next := end - s.overlap
	if s.overlap == 0 || atWordStart(runes, next) {
		return next
	}
	for p := next + 1; p < end; p++ {
		if atWordStart(runes, p) {
			return p
		}
	}
	return next
}

type cutRule func(runes []rune, p int) bool

var cutRules = []cutRule{
	// paragraph
	func(r []rune, p int) bool { return p >= 2 && r[p-1] == '\n' && r[p-2] == '\n' },
	// sentence
	func(r []rune, p int) bool {
		return p >= 2 && unicode.IsSpace(r[p-1]) && strings.ContainsRune(".!?。！？", r[p-2])
	},
	// line
	func(r []rune, p int) bool { return p >= 1 && r[p-1] == '\n' },
	// word
	func(r []rune, p int) bool { return p >= 1 && unicode.IsSpace(r[p-1]) && !unicode.IsSpace(r[p]) },
}

func atWordStart(runes []rune, p int) bool {
	if p <= 0 || p >= len(runes) {
		return true
	}
	return unicode.IsSpace(runes[p-1]) && !unicode.IsSpace(runes[p])
}

func lastBlockIn(blocks []int, lo, hi int) (int, bool) {
	if len(blocks) == 0 {
		return 0, false
	}
	i := sort.SearchInts(blocks, hi+1) - 1
	if i >= 0 && blocks[i] >= lo {
		return blocks[i], true
	}
	return 0, false
}

// EstimateTokens is a rough token count: words for latin text, one per rune
// for CJK.
func EstimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}

package segment

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docrag/internal/model"
)

func mustNew(t *testing.T, maxSize, overlap int) *Segmenter {
	t.Helper()
	s, err := New(maxSize, overlap)
	require.NoError(t, err)
	return s
}

func reconstruct(segments []model.Segment) string {
	var sb strings.Builder
	prevEnd := 0
	for i, seg := range segments {
		runes := []rune(seg.Text)
		if i == 0 {
			sb.WriteString(seg.Text)
		} else {
			sb.WriteString(string(runes[prevEnd-seg.Start:]))
		}
		prevEnd = seg.End
	}
	return sb.String()
}

func requireInvariants(t *testing.T, s *Segmenter, text string, segments []model.Segment) {
	t.Helper()
	require.NotEmpty(t, segments)
	require.Equal(t, text, reconstruct(segments))
	runes := []rune(text)
	require.Equal(t, 0, segments[0].Start)
	require.Equal(t, len(runes), segments[len(segments)-1].End)
	for i, seg := range segments {
		require.Equal(t, i, seg.Index)
		require.LessOrEqual(t, utf8.RuneCountInString(seg.Text), s.MaxSize())
		require.Equal(t, string(runes[seg.Start:seg.End]), seg.Text)
		if i > 0 {
			prev := segments[i-1]
			require.Greater(t, seg.Start, prev.Start)
			require.LessOrEqual(t, seg.Start, prev.End)
			require.LessOrEqual(t, prev.End-seg.Start, s.Overlap())
		}
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(0, 0)
	require.Error(t, err)
	_, err = New(100, 100)
	require.Error(t, err)
	_, err = New(100, -1)
	require.Error(t, err)
	_, err = New(100, 0)
	require.NoError(t, err)
}

func TestSplit_EmptyInput(t *testing.T) {
	s := mustNew(t, DefaultMaxSize, DefaultOverlap)
	require.Empty(t, s.Split(context.Background(), &model.Document{Content: ""}))
	require.Empty(t, s.Split(context.Background(), &model.Document{Content: " \n\t "}))
	require.Empty(t, s.Split(context.Background(), nil))
}

func TestSplit_ShortTextIsOneSegment(t *testing.T) {
	s := mustNew(t, DefaultMaxSize, DefaultOverlap)
	segs := s.Split(context.Background(), &model.Document{Content: "hello world"})
	require.Len(t, segs, 1)
	require.Equal(t, "hello world", segs[0].Text)
	require.Equal(t, 0, segs[0].Start)
	require.Equal(t, 11, segs[0].End)
}

func TestSplit_HardCutThousandChars(t *testing.T) {
	s := mustNew(t, DefaultMaxSize, DefaultOverlap)
	text := strings.Repeat("abcdefghij", 100)
	segs := s.Split(context.Background(), &model.Document{Content: text})
	require.Len(t, segs, 3)
	require.Equal(t, [2]int{0, 512}, [2]int{segs[0].Start, segs[0].End})
	require.Equal(t, [2]int{412, 924}, [2]int{segs[1].Start, segs[1].End})
	require.Equal(t, [2]int{824, 1000}, [2]int{segs[2].Start, segs[2].End})
	requireInvariants(t, s, text, segs)
}

func TestSplit_ThousandCharsOfWords(t *testing.T) {
	s := mustNew(t, DefaultMaxSize, DefaultOverlap)
	text := strings.Repeat("lorem ipsum dolor sit amet consectetur adipiscing elit sed do ", 20)[:1000]
	segs := s.Split(context.Background(), &model.Document{Content: text})
	require.Len(t, segs, 3)
	requireInvariants(t, s, text, segs)
	for _, seg := range segs[:len(segs)-1] {
		// cut on a word boundary
		require.True(t, strings.HasSuffix(seg.Text, " "), "segment %d ends mid-word: %q", seg.Index, seg.Text)
	}
	for _, seg := range segs[1:] {
		require.False(t, strings.HasPrefix(seg.Text, " "))
	}
}

func TestSplit_PrefersParagraphs(t *testing.T) {
	s := mustNew(t, 100, 20)
	para1 := strings.Repeat("a", 60) + ". " + strings.Repeat("b", 10)
	para2 := strings.Repeat("c", 50)
	text := para1 + "\n\n" + para2 + " " + strings.Repeat("d", 40)
	segs := s.Split(context.Background(), &model.Document{Content: text})
	requireInvariants(t, s, text, segs)
	require.Equal(t, para1+"\n\n", segs[0].Text)
}

func TestSplit_PrefersSentences(t *testing.T) {
	s := mustNew(t, 100, 10)
	text := strings.Repeat("word ", 12) + "end. " + strings.Repeat("more ", 20)
	segs := s.Split(context.Background(), &model.Document{Content: text})
	requireInvariants(t, s, text, segs)
	require.True(t, strings.HasSuffix(segs[0].Text, "end. "))
}

func TestSplit_MultibyteRunes(t *testing.T) {
	s := mustNew(t, 50, 10)
	text := strings.Repeat("向量数据库检索增强生成。", 20)
	segs := s.Split(context.Background(), &model.Document{Content: text})
	requireInvariants(t, s, text, segs)
}

func TestSplit_ZeroOverlap(t *testing.T) {
	s := mustNew(t, 30, 0)
	text := strings.Repeat("one two three four five six ", 10)
	segs := s.Split(context.Background(), &model.Document{Content: text})
	requireInvariants(t, s, text, segs)
	for i := 1; i < len(segs); i++ {
		require.Equal(t, segs[i-1].End, segs[i].Start)
	}
}

func TestSplit_MarkdownBlocks(t *testing.T) {
	s := mustNew(t, 120, 20)
	text := "# Routing\n" + strings.Repeat("Orders are routed by rules ", 3) + "\n" +
		"## Brokering\n" + strings.Repeat("Brokering runs on a schedule ", 3) + "\n"
	segs := s.Split(context.Background(), &model.Document{Content: text, Markdown: true})
	requireInvariants(t, s, text, segs)
	// the first cut lands exactly on the second heading
	require.Equal(t, strings.Index(text, "## Brokering"), segs[0].End)
}

func TestMarkdownBoundaries(t *testing.T) {
	text := "# Title\nintro line\n\n- item one\n- item two\n\n```go\nfmt.Println(1)\n```\n\nlast paragraph\n"
	bounds := MarkdownBoundaries(text)
	runes := []rune(text)
	var starts []string
	for _, b := range bounds {
		end := b + 5
		if end > len(runes) {
			end = len(runes)
		}
		starts = append(starts, string(runes[b:end]))
	}
	require.Contains(t, starts, "intro")
	require.Contains(t, starts, "- ite")
	require.Contains(t, starts, "```go")
	require.Contains(t, starts, "last ")
	require.NotContains(t, bounds, 0)
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 2, EstimateTokens("hello world"))
	require.Equal(t, 1, EstimateTokens("   "))
	require.Equal(t, 3, EstimateTokens("中文"))
}

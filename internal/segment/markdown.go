package segment

import (
	"bytes"
	"sort"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownBoundaries returns the rune offsets at which top-level markdown
// blocks (headings, paragraphs, lists, fenced code...) begin, ascending and
// without offset 0.
func MarkdownBoundaries(markdown string) []int {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var offsets []int
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		off, ok := blockStart(node, source)
		if !ok || off <= 0 {
			continue
		}
		offsets = append(offsets, utf8.RuneCount(source[:off]))
	}
	sort.Ints(offsets)
	uniq := offsets[:0]
	for i, off := range offsets {
		if i > 0 && off == offsets[i-1] {
			continue
		}
		uniq = append(uniq, off)
	}
	return uniq
}

func blockStart(node ast.Node, source []byte) (int, bool) {
	if fenced, ok := node.(*ast.FencedCodeBlock); ok {
		// the fence line itself is not part of Lines()
		if fenced.Info != nil {
			return lineStart(source, fenced.Info.Segment.Start), true
		}
		if fenced.Lines().Len() > 0 {
			first := lineStart(source, fenced.Lines().At(0).Start)
			return lineStart(source, first-1), true
		}
		return 0, false
	}
	if node.Type() == ast.TypeBlock && node.Lines().Len() > 0 {
		return lineStart(source, node.Lines().At(0).Start), true
	}
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		if off, ok := blockStart(child, source); ok {
			return off, true
		}
	}
	return 0, false
}

func lineStart(source []byte, off int) int {
	if off <= 0 {
		return 0
	}
	if off > len(source) {
		off = len(source)
	}
	return bytes.LastIndexByte(source[:off], '\n') + 1
}

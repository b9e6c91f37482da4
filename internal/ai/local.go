package ai

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// localEmbedProvider is an offline feature hashing embedder. Lowercased word
// unigrams and bigrams are hashed into signed buckets, so texts sharing
// vocabulary end up close in cosine space. It needs no credentials.
type localEmbedProvider struct{}

func (p *localEmbedProvider) Name() string {
	return "local"
}

func (p *localEmbedProvider) Embed(ctx context.Context, model string, texts []string, taskType string, dimension int) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, HashEmbedding(text, dimension))
	}
	return out, nil
}

// HashEmbedding returns a unit length vector of the given dimension. Text
// without any word is hashed as a whole so the result is never zero.
func HashEmbedding(text string, dimension int) []float32 {
	vec := make([]float32, dimension)
	if dimension <= 0 {
		return vec
	}
	words := tokenize(text)
	add := func(feature string, weight float32) {
		h := xxhash.Sum64String(feature)
		idx := int(h % uint64(dimension))
		if h&(1<<63) != 0 {
			weight = -weight
		}
		vec[idx] += weight
	}
	if len(words) == 0 {
		add(strings.TrimSpace(text), 1)
	}
	for i, w := range words {
		add(w, 1)
		if i > 0 {
			add(words[i-1]+" "+w, 0.5)
		}
	}
	return Normalize(vec)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Normalize scales vec to unit length in place. The zero vector is returned
// unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func init() {
	RegisterEmbed("local", func(args interface{}) (IEmbedProvider, error) {
		return &localEmbedProvider{}, nil
	})
}

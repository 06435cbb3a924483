package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"tender-match-go/internal/model"
)

// HashingClient is a local, dependency-free embedding model: tokens are hashed into
// a fixed number of buckets (signed feature hashing) and the result is L2-normalised.
// Identical text always produces the identical vector. Text without any letter or digit
// has no features and is rejected rather than mapped to a shared placeholder vector.
type HashingClient struct {
	dimensions int
	maxTokens  int
	overflow   OverflowPolicy
}

// NewHashingClient creates a hashing client with the given output dimension.
func NewHashingClient(dimensions, maxTokens int, overflow OverflowPolicy) (*HashingClient, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("hashing embedder requires positive dimensions, got %d", dimensions)
	}
	if err := overflow.validate(); err != nil {
		return nil, err
	}
	return &HashingClient{dimensions: dimensions, maxTokens: maxTokens, overflow: overflow}, nil
}

func (c *HashingClient) Dimensions() int { return c.dimensions }

func (c *HashingClient) ModelVersion() string {
	return fmt.Sprintf("hashing-fnv1a-%d", c.dimensions)
}

func (c *HashingClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input, err := applyOverflow(text, c.maxTokens, c.overflow)
	if err != nil {
		return nil, err
	}
	tokens := tokenize(input)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: text has no letters or digits to embed", model.ErrInvalidArgument)
	}
	vec := make([]float64, c.dimensions)
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := int(sum % uint64(c.dimensions))
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		// 正负特征恰好相互抵消
		return nil, fmt.Errorf("%w: features of %d tokens cancel out", model.ErrInvalidArgument, len(tokens))
	}
	out := make([]float32, c.dimensions)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

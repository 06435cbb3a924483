package embedding

import (
	"fmt"
	"strings"

	"tender-match-go/internal/model"
)

// OverflowPolicy decides what happens when input exceeds the model's token limit.
// A client applies one policy to every call.
type OverflowPolicy string

const (
	// OverflowTruncate keeps the first maxTokens whitespace tokens.
	OverflowTruncate OverflowPolicy = "truncate"
	// OverflowReject fails with model.ErrInputTooLong.
	OverflowReject OverflowPolicy = "reject"
)

func (p OverflowPolicy) validate() error {
	switch p {
	case "", OverflowTruncate, OverflowReject:
		return nil
	default:
		return fmt.Errorf("%w: unknown overflow policy %q", model.ErrInvalidConfiguration, string(p))
	}
}

// applyOverflow returns the text that is actually sent to the model.
// maxTokens <= 0 disables the limit.
func applyOverflow(text string, maxTokens int, policy OverflowPolicy) (string, error) {
	if maxTokens <= 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) <= maxTokens {
		return text, nil
	}
	if policy == OverflowReject {
		return "", fmt.Errorf("%w: %d tokens exceeds limit %d", model.ErrInputTooLong, len(tokens), maxTokens)
	}
	return strings.Join(tokens[:maxTokens], " "), nil
}

package gateway

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Limits bounds inbound request fields. Zero values disable the
// corresponding bound.
type Limits struct {
	// MaxMessageChars bounds the message length in runes.
	MaxMessageChars int

	// MaxContextChars bounds the context length in runes.
	MaxContextChars int

	// MaxPromptTokens bounds the tokenized message+context size.
	MaxPromptTokens int
}

// validate rejects malformed requests before any cache or rate-limit
// work happens. Limits are re-read per request so config reloads apply.
func (g *Gateway) validate(req Request) error {
	limits := g.tunables().limits

	if req.Identity == "" {
		return &ValidationError{Reason: "identity is required"}
	}
	if strings.TrimSpace(req.Message) == "" {
		return &ValidationError{Reason: "message is required"}
	}
	if limits.MaxMessageChars > 0 && utf8.RuneCountInString(req.Message) > limits.MaxMessageChars {
		return &ValidationError{
			Reason: fmt.Sprintf("message exceeds %d characters", limits.MaxMessageChars),
		}
	}
	if limits.MaxContextChars > 0 && utf8.RuneCountInString(req.Context) > limits.MaxContextChars {
		return &ValidationError{
			Reason: fmt.Sprintf("context exceeds %d characters", limits.MaxContextChars),
		}
	}

	if limits.MaxPromptTokens > 0 {
		tokens, err := CountTokens(g.model, req.Message+req.Context)
		if err != nil {
			// Token accounting is best effort; length bounds above
			// still apply.
			g.logger.Debug().Err(err).Msg("Token counting unavailable")
			return nil
		}
		promptTokens.Observe(float64(tokens))
		if tokens > limits.MaxPromptTokens {
			return &ValidationError{
				Reason: fmt.Sprintf("prompt exceeds %d tokens", limits.MaxPromptTokens),
			}
		}
	}

	return nil
}

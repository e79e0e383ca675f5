// Package llm defines the language-model capability the conversation service
// depends on and an OpenAI-compatible implementation of it.
package llm

import (
	"context"

	"fundamentallm-backend/internal/history"

	"github.com/pkg/errors"
)

// ErrUnavailable is returned when the model could not produce a usable answer.
var ErrUnavailable = errors.New("language model unavailable")

// Usage reports token accounting for a single call.
type Usage struct {
	TotalTokens int
}

// Reply is the outcome of one conversational exchange.
type Reply struct {
	// Turns is the full history after the exchange: the prior history
	// followed by the new user turn and at least one assistant turn.
	Turns []history.Turn
	// Text is the assistant's reply as plain text.
	Text string
	// Usage is nil when the provider did not report it.
	Usage *Usage
}

// Capability is the pair of model operations the service uses.
type Capability interface {
	// Converse continues history with utterance and returns the new history.
	Converse(ctx context.Context, prior []history.Turn, utterance string) (*Reply, error)
	// SummarizeTitle produces a short title for a conversation starting with utterance.
	SummarizeTitle(ctx context.Context, utterance string) (string, error)
}

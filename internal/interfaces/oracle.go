package interfaces

import (
	"context"

	"github.com/ternarybob/compilot/internal/models"
)

// Message represents a single message in an oracle conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// Oracle defines the advisory LLM boundary. The oracle is consulted for
// README parsing and failure diagnosis; its output is always untrusted and
// validated before use. Implementations may use Anthropic Claude or Google
// Gemini.
type Oracle interface {
	// Chat generates a completion for the given conversation history.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - messages: Conversation history in chronological order
	//
	// Returns:
	//   - string: Generated assistant response
	//   - error: Error if the round trip fails
	Chat(ctx context.Context, messages []Message) (string, error)

	// Close releases resources and performs cleanup operations
	Close() error
}

// Diagnoser turns a failed attempt's output into a structured fix plan.
// A nil plan with a nil error means the oracle had nothing to offer.
type Diagnoser interface {
	Diagnose(ctx context.Context, project *models.ProjectInfo, history []models.BuildAttempt, constraints []string) (*models.FixPlan, error)
}

// HintParser extracts build hints from README-style free text
type HintParser interface {
	ParseBuildHints(ctx context.Context, projectName, readme string, files []string) (*models.BuildHints, error)
}

package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/compilot/internal/common"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		model    string
		fallback ProviderType
		expected ProviderType
	}{
		{"claude-sonnet-4-20250514", ProviderGemini, ProviderClaude},
		{"claude/claude-sonnet-4-20250514", ProviderGemini, ProviderClaude},
		{"anthropic/claude-sonnet-4-20250514", ProviderGemini, ProviderClaude},
		{"gemini-2.0-flash", ProviderClaude, ProviderGemini},
		{"gemini/gemini-2.0-flash", ProviderClaude, ProviderGemini},
		{"google/gemini-2.0-flash", ProviderClaude, ProviderGemini},
		{"", ProviderGemini, ProviderGemini},
		{"", ProviderClaude, ProviderClaude},
		{"some-unknown-model", ProviderGemini, ProviderGemini},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, detectProvider(tt.model, tt.fallback), "model: %q", tt.model)
	}
}

func TestNormalizeModel(t *testing.T) {
	assert.Equal(t, "claude-sonnet-4-20250514", normalizeModel("claude/claude-sonnet-4-20250514"))
	assert.Equal(t, "gemini-2.0-flash", normalizeModel("gemini/gemini-2.0-flash"))
	assert.Equal(t, "claude-sonnet-4-20250514", normalizeModel("claude-sonnet-4-20250514"))
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	config := &common.OracleConfig{Provider: "claude"}

	_, err := NewClient(config, time.Minute, time.Second, arbor.NewLogger())
	require.Error(t, err)
}

func TestNewClient_ResolvesDefaultModel(t *testing.T) {
	config := &common.OracleConfig{Provider: "claude", APIKey: "test-key"}

	client, err := NewClient(config, time.Minute, time.Second, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, ProviderClaude, client.Provider())
	assert.Equal(t, defaultClaudeModel, client.Model())

	config = &common.OracleConfig{Provider: "gemini", APIKey: "test-key"}
	client, err = NewClient(config, time.Minute, time.Second, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, client.Provider())
	assert.Equal(t, defaultGeminiModel, client.Model())
}

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, IsRateLimitError(errors.New("Error 429, Message: quota exceeded")))
	assert.True(t, IsRateLimitError(errors.New("Status: RESOURCE_EXHAUSTED")))
	assert.False(t, IsRateLimitError(errors.New("connection refused")))
	assert.False(t, IsRateLimitError(nil))
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429, Message: rate limited. Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED")
	delay := ExtractRetryDelay(err)
	assert.InDelta(t, 45.387, delay.Seconds(), 0.01)

	assert.Equal(t, time.Duration(0), ExtractRetryDelay(errors.New("no delay here")))
}

func TestCalculateBackoff(t *testing.T) {
	config := NewDefaultRetryConfig()

	// API-provided delay plus buffer wins over the initial backoff
	backoff := config.CalculateBackoff(0, 30*time.Second)
	assert.Equal(t, 35*time.Second, backoff)

	// Capped at max
	backoff = config.CalculateBackoff(10, 0)
	assert.Equal(t, config.MaxBackoff, backoff)
}

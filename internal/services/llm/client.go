// -----------------------------------------------------------------------
// Oracle client - Provider-agnostic LLM access for Claude and Gemini
// -----------------------------------------------------------------------

package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/ternarybob/compilot/internal/common"
	"github.com/ternarybob/compilot/internal/interfaces"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
)

// Default models per provider
const (
	defaultClaudeModel = "claude-sonnet-4-20250514"
	defaultGeminiModel = "gemini-2.0-flash"
)

// Client implements the oracle boundary against the configured provider.
// Provider clients are created lazily on first use; a shared rate limiter
// enforces the minimum interval between calls.
type Client struct {
	config  *common.OracleConfig
	logger  arbor.ILogger
	limiter *rate.Limiter
	timeout time.Duration

	provider ProviderType
	model    string

	claudeClient anthropic.Client
	claudeReady  bool
	geminiClient *genai.Client
}

// NewClient creates an oracle client from configuration. The provider comes
// from the config, overridden by an explicit model name prefix.
func NewClient(config *common.OracleConfig, timeout, rateLimit time.Duration, logger arbor.ILogger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("oracle API key is required (set COMPILOT_API_KEY or oracle.api_key in config)")
	}

	provider := detectProvider(config.Model, ProviderType(config.Provider))
	model := normalizeModel(config.Model)
	if model == "" {
		switch provider {
		case ProviderGemini:
			model = defaultGeminiModel
		default:
			model = defaultClaudeModel
		}
	}

	client := &Client{
		config:   config,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Every(rateLimit), 1),
		timeout:  timeout,
		provider: provider,
		model:    model,
	}

	logger.Debug().
		Str("provider", string(provider)).
		Str("model", model).
		Dur("timeout", timeout).
		Dur("rate_limit", rateLimit).
		Msg("Oracle client initialized")

	return client, nil
}

// detectProvider determines the provider from a model string, falling back
// to the configured default. Model strings can carry an explicit prefix
// ("claude/...", "gemini/...") or imply the provider by name.
func detectProvider(model string, fallback ProviderType) ProviderType {
	m := strings.ToLower(model)

	if strings.HasPrefix(m, "claude/") || strings.HasPrefix(m, "anthropic/") || strings.HasPrefix(m, "claude-") {
		return ProviderClaude
	}
	if strings.HasPrefix(m, "gemini/") || strings.HasPrefix(m, "google/") || strings.HasPrefix(m, "gemini-") {
		return ProviderGemini
	}
	if fallback == ProviderGemini {
		return ProviderGemini
	}
	return ProviderClaude
}

// normalizeModel removes a provider prefix from the model name if present
func normalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// Provider returns the active provider type
func (c *Client) Provider() ProviderType {
	return c.provider
}

// Model returns the resolved model name
func (c *Client) Model() string {
	return c.model
}

// Chat generates a completion for the given conversation history. Calls are
// rate limited and retried on provider throttling.
func (c *Client) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty for chat completion")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait cancelled: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	c.logger.Debug().
		Str("provider", string(c.provider)).
		Int("message_count", len(messages)).
		Msg("Starting oracle chat completion")

	var response string
	var err error
	switch c.provider {
	case ProviderGemini:
		response, err = c.chatWithGemini(timeoutCtx, messages)
	default:
		response, err = c.chatWithClaude(timeoutCtx, messages)
	}
	if err != nil {
		c.logger.Error().
			Str("provider", string(c.provider)).
			Err(err).
			Msg("Oracle chat completion failed")
		return "", err
	}

	c.logger.Debug().
		Int("response_length", len(response)).
		Dur("duration", time.Since(startTime)).
		Msg("Oracle chat completion completed")

	return response, nil
}

// Close releases provider clients
func (c *Client) Close() error {
	c.claudeClient = anthropic.Client{} // Reset to zero value
	c.claudeReady = false
	c.geminiClient = nil
	return nil
}

// getClaudeClient returns the Claude client, creating it if necessary
func (c *Client) getClaudeClient() anthropic.Client {
	if !c.claudeReady {
		opts := []option.RequestOption{option.WithAPIKey(c.config.APIKey)}
		if c.config.APIBase != "" {
			opts = append(opts, option.WithBaseURL(c.config.APIBase))
		}
		c.claudeClient = anthropic.NewClient(opts...)
		c.claudeReady = true
	}
	return c.claudeClient
}

// getGeminiClient returns the Gemini client, creating it if necessary
func (c *Client) getGeminiClient(ctx context.Context) (*genai.Client, error) {
	if c.geminiClient != nil {
		return c.geminiClient, nil
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  c.config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.config.APIBase != "" {
		clientConfig.HTTPOptions.BaseURL = c.config.APIBase
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c.geminiClient = client
	return client, nil
}

// chatWithClaude generates a completion using the Anthropic API
func (c *Client) chatWithClaude(ctx context.Context, messages []interfaces.Message) (string, error) {
	client := c.getClaudeClient()

	claudeMessages, systemText, err := convertMessagesToClaude(messages)
	if err != nil {
		return "", fmt.Errorf("failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.config.MaxTokens),
		Messages:  claudeMessages,
	}
	if c.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.config.Temperature))
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemText},
		}
	}

	var resp *anthropic.Message
	var apiErr error
	retryConfig := NewDefaultRetryConfig()

	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		resp, apiErr = client.Messages.New(ctx, params)
		if apiErr == nil {
			break
		}
		if attempt == retryConfig.MaxRetries {
			break
		}

		backoff := time.Duration(attempt+1) * 2 * time.Second
		if IsRateLimitError(apiErr) {
			backoff = retryConfig.CalculateBackoff(attempt, ExtractRetryDelay(apiErr))
		}

		c.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Claude API call")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	if apiErr != nil {
		return "", fmt.Errorf("Claude API call failed after %d retries: %w", retryConfig.MaxRetries, apiErr)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from Claude API")
	}
	return text.String(), nil
}

// chatWithGemini generates a completion using the Gemini API
func (c *Client) chatWithGemini(ctx context.Context, messages []interfaces.Message) (string, error) {
	client, err := c.getGeminiClient(ctx)
	if err != nil {
		return "", err
	}

	geminiContents, systemText, err := convertMessagesToGemini(messages)
	if err != nil {
		return "", fmt.Errorf("failed to convert messages: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.config.Temperature),
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	var resp *genai.GenerateContentResponse
	var apiErr error
	retryConfig := NewDefaultRetryConfig()

	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		resp, apiErr = client.Models.GenerateContent(ctx, c.model, geminiContents, config)
		if apiErr == nil {
			break
		}
		if attempt == retryConfig.MaxRetries {
			break
		}

		var backoff time.Duration
		if IsRateLimitError(apiErr) {
			backoff = retryConfig.CalculateBackoff(attempt, ExtractRetryDelay(apiErr))
		} else {
			backoff = time.Duration(attempt+1) * 2 * time.Second
		}

		c.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Gemini API call")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	if apiErr != nil {
		return "", fmt.Errorf("Gemini API call failed after %d retries: %w", retryConfig.MaxRetries, apiErr)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini API")
	}
	responseText := resp.Text()
	if responseText == "" {
		return "", fmt.Errorf("empty text in Gemini response")
	}
	return responseText, nil
}

// convertMessagesToClaude converts conversation messages to Claude format.
// System messages are extracted separately for the System parameter.
func convertMessagesToClaude(messages []interfaces.Message) ([]anthropic.MessageParam, string, error) {
	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == "user" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		switch msg.Role {
		case "assistant":
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	return claudeMessages, systemText, nil
}

// convertMessagesToGemini converts conversation messages to Gemini format.
// System messages are extracted separately for SystemInstruction.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string, error) {
	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == "user" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		geminiRole := genai.RoleUser
		if msg.Role == "assistant" {
			geminiRole = genai.RoleModel
		}

		contents = append(contents, &genai.Content{
			Role:  geminiRole,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}

	return contents, systemText, nil
}

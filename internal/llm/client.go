package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Role identifies the author of a chat message
type Role string

// Message roles
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of an ordered chat prompt
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions bounds a single completion call
type CompletionOptions struct {
	Tier        ModelTier
	Temperature float32
	MaxTokens   int32
	// JSON asks the provider for an application/json response
	JSON bool
}

// Client is an abstraction over text generation providers
type Client interface {
	// Complete sends an ordered list of messages and returns the raw response text
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
	// GetModel returns the underlying provider model for a tier
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config, apiKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", config.Provider)
	}
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// Complete generates a response for the given chat messages
func (c *GeminiClient) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	modelName := c.config.GetModel(opts.Tier)
	if modelName == "" {
		return "", fmt.Errorf("no model configured for tier %s", opts.Tier)
	}

	system, history, last, err := splitMessages(messages)
	if err != nil {
		return "", err
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(opts.Temperature)
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(opts.MaxTokens)
	}
	if opts.JSON {
		model.ResponseMIMEType = "application/json"
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	chat := model.StartChat()
	chat.History = history

	resp, err := chat.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", &APICallError{Message: "failed to generate content", Cause: err}
	}

	return extractTextFromResponse(resp)
}

// GetModel returns the model name for a tier
func (c *GeminiClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// splitMessages maps chat messages onto Gemini's shape: system messages become
// the system instruction, the final message is sent, the rest become history.
func splitMessages(messages []Message) (system string, history []*genai.Content, last string, err error) {
	var systemParts []string
	var turns []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			systemParts = append(systemParts, m.Content)
			continue
		}
		turns = append(turns, m)
	}

	if len(turns) == 0 {
		return "", nil, "", fmt.Errorf("at least one non-system message is required")
	}
	if turns[len(turns)-1].Role != RoleUser {
		return "", nil, "", fmt.Errorf("last message must have role %q", RoleUser)
	}

	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}

	return strings.Join(systemParts, "\n\n"), history, turns[len(turns)-1].Content, nil
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}

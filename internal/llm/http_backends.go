package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 5 * time.Minute

// postJSON sends a JSON request and returns the body of a 2xx response.
// Non-2xx responses become a classified *ProviderError.
func postJSON(ctx context.Context, hc *http.Client, provider Provider, url string, headers map[string]string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPError(provider, resp.StatusCode, resp.Header, string(body))
	}
	return body, nil
}

// OpenAIClient implements Client for the OpenAI chat completions API
type OpenAIClient struct {
	apiKey     string
	config     *Config
	httpClient *http.Client
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(config *Config, apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.BaseURL == "" {
		config = &Config{Provider: config.Provider, Models: config.Models, BaseURL: DefaultConfigFor(ProviderOpenAI).BaseURL}
	}
	return &OpenAIClient{
		apiKey:     apiKey,
		config:     config,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}, nil
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    float32               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// GenerateText generates text using chat completions
func (c *OpenAIClient) GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	opts = opts.withDefaults()
	model := c.config.GetModel(opts.Tier)
	if model == "" {
		return "", fmt.Errorf("no model configured for tier %s", opts.Tier)
	}

	messages := make([]openAIMessage, 0, 2)
	if opts.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: opts.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: prompt})

	reqBody := openAIRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	// json_object mode requires the word JSON somewhere in the prompt
	if opts.JSON && strings.Contains(strings.ToLower(prompt), "json") {
		reqBody.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	body, err := postJSON(ctx, c.httpClient, ProviderOpenAI, c.config.BaseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + c.apiKey}, reqBody)
	if err != nil {
		return "", err
	}

	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Provider returns ProviderOpenAI
func (c *OpenAIClient) Provider() Provider { return ProviderOpenAI }

// Model returns the standard-tier model name
func (c *OpenAIClient) Model() string { return c.config.GetModel(TierStandard) }

// Close is a no-op for HTTP clients
func (c *OpenAIClient) Close() error { return nil }

const anthropicVersion = "2023-06-01"

// AnthropicClient implements Client for the Anthropic messages API
type AnthropicClient struct {
	apiKey     string
	config     *Config
	httpClient *http.Client
}

// NewAnthropicClient creates a new Anthropic client
func NewAnthropicClient(config *Config, apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.BaseURL == "" {
		config = &Config{Provider: config.Provider, Models: config.Models, BaseURL: DefaultConfigFor(ProviderAnthropic).BaseURL}
	}
	return &AnthropicClient{
		apiKey:     apiKey,
		config:     config,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}, nil
}

type anthropicRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float32         `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// GenerateText generates text using the messages API
func (c *AnthropicClient) GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	opts = opts.withDefaults()
	model := c.config.GetModel(opts.Tier)
	if model == "" {
		return "", fmt.Errorf("no model configured for tier %s", opts.Tier)
	}

	reqBody := anthropicRequest{
		Model:       model,
		System:      opts.System,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	body, err := postJSON(ctx, c.httpClient, ProviderAnthropic, c.config.BaseURL+"/messages", map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}, reqBody)
	if err != nil {
		return "", err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text content in response")
	}
	return strings.TrimSpace(sb.String()), nil
}

// Provider returns ProviderAnthropic
func (c *AnthropicClient) Provider() Provider { return ProviderAnthropic }

// Model returns the standard-tier model name
func (c *AnthropicClient) Model() string { return c.config.GetModel(TierStandard) }

// Close is a no-op for HTTP clients
func (c *AnthropicClient) Close() error { return nil }

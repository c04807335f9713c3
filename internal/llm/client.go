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

	"github.com/MimeLyc/dualsub/internal/apperr"
)

// Client is an OpenAI-compatible chat completion client.
// Thread-safe for concurrent use.
type Client struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new LLM client with the given configuration
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindConfig, "invalid llm configuration")
	}

	return &Client{
		config:  config,
		baseURL: strings.TrimRight(config.APIURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}, nil
}

// Model returns the configured default model.
func (c *Client) Model() string {
	return c.config.Model
}

// ChatCompletion sends messages to /chat/completions.
func (c *Client) ChatCompletion(ctx context.Context, messages []Message, opts *ChatCompletionOptions) (*ChatResponse, error) {
	if opts == nil {
		opts = NewChatCompletionOptions()
	}

	if opts.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: opts.SystemPrompt}}, messages...)
	}

	request := ChatRequest{
		Model:       c.getModel(opts),
		Messages:    messages,
		MaxTokens:   c.getMaxTokens(opts),
		Temperature: c.getTemperature(opts),
	}

	return c.makeRequest(ctx, http.MethodPost, "/chat/completions", request)
}

// SimpleChat sends one user prompt and returns the first choice's content.
func (c *Client) SimpleChat(ctx context.Context, prompt string, opts *ChatCompletionOptions) (string, error) {
	response, err := c.ChatCompletion(ctx, []Message{{Role: "user", Content: prompt}}, opts)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", apperr.New(apperr.KindNetwork, "no choices in response")
	}
	return response.Choices[0].Message.Content, nil
}

// makeRequest performs the HTTP call. A 429 becomes KindRateLimited; every
// other transport or status failure becomes KindNetwork.
func (c *Client) makeRequest(ctx context.Context, method, path string, payload any) (*ChatResponse, error) {
	url := c.baseURL + path

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range c.config.GetHeaders() {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindNetwork, "llm request failed").WithContext("url", url)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindNetwork, "failed to read llm response")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperr.RateLimited("llm provider is throttling requests").
			WithContext("retry_after", resp.Header.Get("Retry-After"))
	}

	var chatResponse ChatResponse
	if err := json.Unmarshal(responseBody, &chatResponse); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, apperr.New(apperr.KindNetwork, fmt.Sprintf("llm request failed with status %d", resp.StatusCode)).
				WithContext("body", truncate(string(responseBody), 200))
		}
		return nil, apperr.Wrap(err, apperr.KindNetwork, "failed to parse llm response")
	}

	if chatResponse.Error != nil && chatResponse.Error.Message != "" {
		return &chatResponse, apperr.Wrap(chatResponse.Error, apperr.KindNetwork, "llm api error").
			WithContext("status", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &chatResponse, apperr.New(apperr.KindNetwork, fmt.Sprintf("llm request failed with status %d", resp.StatusCode))
	}

	return &chatResponse, nil
}

func (c *Client) getModel(opts *ChatCompletionOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.config.Model
}

func (c *Client) getMaxTokens(opts *ChatCompletionOptions) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return c.config.MaxTokens
}

func (c *Client) getTemperature(opts *ChatCompletionOptions) float64 {
	if opts.Temperature >= 0 && opts.Temperature <= 2 {
		return opts.Temperature
	}
	return c.config.Temperature
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) *Config {
	return &Config{
		APIKey:      "test-key",
		APIURL:      url,
		Model:       "test-model",
		MaxTokens:   256,
		Temperature: 0.2,
		Timeout:     5,
		AppName:     "dualsub",
	}
}

const okResponse = `{
	"id": "test-id",
	"object": "chat.completion",
	"created": 1234567890,
	"model": "test-model",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "你好"},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
}`

func TestNewClient(t *testing.T) {
	config := testConfig("https://api.example.com/v1/")

	client, err := NewClient(config)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1", client.baseURL)
	assert.Equal(t, "test-model", client.Model())

	_, err = NewClient(&Config{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfig))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing key", func(c *Config) { c.APIKey = "" }},
		{"missing url", func(c *Config) { c.APIURL = "" }},
		{"missing model", func(c *Config) { c.Model = "" }},
		{"zero tokens", func(c *Config) { c.MaxTokens = 0 }},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig("https://api.example.com")
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestGetHeaders(t *testing.T) {
	c := testConfig("https://api.example.com")
	c.SiteURL = "https://dualsub.local"

	headers := c.GetHeaders()
	assert.Equal(t, "Bearer test-key", headers["Authorization"])
	assert.Equal(t, "https://dualsub.local", headers["HTTP-Referer"])
	assert.Equal(t, "dualsub", headers["X-Title"])
}

func TestChatCompletion_SendsRequest(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okResponse))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	opts := NewChatCompletionOptions().WithSystemPrompt("translate").WithModel("other-model")
	response, err := client.ChatCompletion(context.Background(), []Message{{Role: "user", Content: "hello"}}, opts)
	require.NoError(t, err)
	assert.Equal(t, "你好", response.Choices[0].Message.Content)
	assert.Equal(t, 12, response.Usage.TotalTokens)

	assert.Equal(t, "other-model", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[1].Content)
}

func TestSimpleChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(okResponse))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	out, err := client.SimpleChat(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "你好", out)
}

func TestSimpleChat_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.SimpleChat(context.Background(), "hello", nil)
	assert.True(t, apperr.Is(err, apperr.KindNetwork))
}

func TestClientErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   apperr.Kind
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, apperr.KindRateLimited},
		{"api error body", http.StatusUnauthorized, `{"error":{"message":"Invalid API key","type":"authentication_error"}}`, apperr.KindNetwork},
		{"plain text failure", http.StatusBadGateway, `upstream down`, apperr.KindNetwork},
		{"empty failure", http.StatusInternalServerError, `{}`, apperr.KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "3")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewClient(testConfig(server.URL))
			require.NoError(t, err)

			_, err = client.SimpleChat(context.Background(), "hello", nil)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestClientUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewClient(testConfig(url))
	require.NoError(t, err)

	_, err = client.SimpleChat(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNetwork))
}

package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletionOptions_Chaining(t *testing.T) {
	opts := NewChatCompletionOptions()
	assert.Empty(t, opts.Model)
	assert.Empty(t, opts.SystemPrompt)
	assert.Zero(t, opts.MaxTokens)
	assert.Equal(t, -1.0, opts.Temperature, "unset temperature sentinel")

	opts = opts.
		WithModel("openai/gpt-4").
		WithSystemPrompt("You are a translator").
		WithMaxTokens(1000).
		WithTemperature(0.8)

	assert.Equal(t, "openai/gpt-4", opts.Model)
	assert.Equal(t, "You are a translator", opts.SystemPrompt)
	assert.Equal(t, 1000, opts.MaxTokens)
	assert.Equal(t, 0.8, opts.Temperature)
}

func TestMessage_WireFormat(t *testing.T) {
	raw, err := json.Marshal(Message{Role: "user", Content: "สวัสดีครับ"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"สวัสดีครับ"}`, string(raw))
}

func TestError_Implementation(t *testing.T) {
	err := &Error{
		Message: "test error",
		Type:    "invalid_request",
		Code:    "400",
	}
	assert.Equal(t, "LLM API Error: test error (type: invalid_request, code: 400)", err.Error())
	assert.Implements(t, (*error)(nil), err)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		APIKey:      "key",
		APIURL:      "https://api.example.com",
		Model:       "m",
		MaxTokens:   100,
		Temperature: 0.5,
		Timeout:     30,
	}
	require.NoError(t, valid.Validate())

	breakages := map[string]func(*Config){
		"missing key":      func(c *Config) { c.APIKey = "" },
		"missing url":      func(c *Config) { c.APIURL = "" },
		"missing model":    func(c *Config) { c.Model = "" },
		"zero max tokens":  func(c *Config) { c.MaxTokens = 0 },
		"temperature high": func(c *Config) { c.Temperature = 3 },
		"zero timeout":     func(c *Config) { c.Timeout = 0 },
	}
	for name, corrupt := range breakages {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			corrupt(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_GetHeaders(t *testing.T) {
	cfg := Config{APIKey: "k", SiteURL: "https://site", AppName: "segtrans"}
	headers := cfg.GetHeaders()

	assert.Equal(t, "Bearer k", headers["Authorization"])
	assert.Equal(t, "application/json", headers["Content-Type"])
	assert.Equal(t, "https://site", headers["HTTP-Referer"])
	assert.Equal(t, "segtrans", headers["X-Title"])

	bare := Config{APIKey: "k"}
	headers = bare.GetHeaders()
	assert.NotContains(t, headers, "HTTP-Referer")
	assert.NotContains(t, headers, "X-Title")
}

package llm

import (
	"fmt"
)

// Config holds the connection settings for an OpenAI-compatible chat
// completion endpoint (OpenRouter, OpenAI, a local proxy).
//
// Model is the default model; per-request options may override it, which
// is how tier routing selects between the cheap and expensive models on
// the same client.
type Config struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

func (c *Config) Validate() error {
	switch {
	case c.APIKey == "":
		return fmt.Errorf("api key is not set")
	case c.APIURL == "":
		return fmt.Errorf("api url is not set")
	case c.Model == "":
		return fmt.Errorf("model is not set")
	case c.MaxTokens < 1:
		return fmt.Errorf("max tokens must be positive")
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("temperature must be within [0, 2]")
	case c.Timeout < 1:
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// GetHeaders builds the request headers. HTTP-Referer and X-Title are
// OpenRouter attribution headers, ignored by other providers.
func (c *Config) GetHeaders() map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + c.APIKey,
		"Content-Type":  "application/json",
	}

	if c.SiteURL != "" {
		headers["HTTP-Referer"] = c.SiteURL
	}
	if c.AppName != "" {
		headers["X-Title"] = c.AppName
	}

	return headers
}

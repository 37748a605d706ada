// Package oracle talks to an OpenAI-compatible chat-completions endpoint
// that decides, per page, what the scraper should do next. Responses are
// returned as raw text; validation lives in the plan package.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the request payload for the completions endpoint.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	FinishReason string  `json:"finish_reason"`
	Index        int     `json:"index"`
	Message      Message `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// Config holds the oracle connection settings.
type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int

	// RetryBaseDelay is the first backoff step; each retry doubles it and
	// adds jitter.
	RetryBaseDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.Temperature <= 0 {
		c.Temperature = 0.1
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4000
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
}

// Client calls the decision oracle with rate limiting and retries.
type Client struct {
	client      *http.Client
	config      *Config
	rateLimiter *RateLimiter
}

// NewClient creates a Client from the given configuration.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("oracle configuration is required")
	}
	if config.Endpoint == "" {
		return nil, errors.New("oracle endpoint is required")
	}
	if config.Model == "" {
		return nil, errors.New("oracle model is required")
	}
	config.applyDefaults()

	return &Client{
		client:      &http.Client{Timeout: config.Timeout},
		config:      config,
		rateLimiter: NewRateLimiter(5, 12*time.Second),
	}, nil
}

// Propose asks the oracle for a navigation plan for the given page. The
// returned text is the model's raw answer, possibly fenced.
func (c *Client) Propose(ctx context.Context, pageHTML, pageURL string) (string, error) {
	return c.complete(ctx, navigationSystemPrompt, buildPageMessage(pageHTML, pageURL))
}

// ExtractRecord asks the oracle for a single entity record scoped to an
// entity page.
func (c *Client) ExtractRecord(ctx context.Context, pageHTML, pageURL string) (string, error) {
	return c.complete(ctx, entitySystemPrompt, buildPageMessage(pageHTML, pageURL))
}

func buildPageMessage(pageHTML, pageURL string) string {
	return fmt.Sprintf("Current URL: %s\n\nPage HTML:\n%s", pageURL, pageHTML)
}

// complete sends one chat request with rate limiting and exponential
// backoff, returning the first choice's content.
func (c *Client) complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		Stream:      false,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	var resp *http.Response
	for attempt := 0; ; attempt++ {
		if err := c.waitForToken(ctx); err != nil {
			return "", err
		}
		if attempt > 0 {
			log.Debug("Retrying oracle request", "attempt", attempt, "max_retries", c.config.MaxRetries)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		var reqErr error
		resp, reqErr = c.client.Do(req)
		if reqErr == nil && resp.StatusCode == http.StatusOK {
			break
		}

		if attempt >= c.config.MaxRetries {
			if reqErr != nil {
				return "", fmt.Errorf("oracle request failed after %d attempts: %w", attempt+1, reqErr)
			}
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return "", fmt.Errorf("oracle returned status %d after %d attempts: %s",
				resp.StatusCode, attempt+1, strings.TrimSpace(string(respBody)))
		}

		if reqErr == nil {
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			log.Error("Oracle returned non-OK status",
				"status", resp.StatusCode,
				"response", strings.TrimSpace(string(respBody)),
				"attempt", attempt)
		} else {
			log.Error("Failed to reach oracle", "error", reqErr, "attempt", attempt)
		}

		delay := c.config.RetryBaseDelay * time.Duration(1<<uint(attempt))
		delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
		log.Debug("Backing off before retry", "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode oracle response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("oracle returned empty choices array")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	log.Debug("Oracle response", "finish_reason", parsed.Choices[0].FinishReason, "length", len(content))
	return content, nil
}

// waitForToken blocks until the rate limiter yields a token or the context
// is cancelled.
func (c *Client) waitForToken(ctx context.Context) error {
	for !c.rateLimiter.GetToken() {
		log.Debug("Rate limit exceeded, waiting for token")
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

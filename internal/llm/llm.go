// Package llm elaborates alert and digest text through a pool of free
// OpenRouter models, tried in priority order until one answers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

const DefaultBaseURL = "https://openrouter.ai/api/v1/chat/completions"

var (
	ErrQuotaExhausted  = errors.New("llm: daily call quota exhausted")
	ErrAllModelsFailed = errors.New("llm: every pool model failed")
)

// Model is one pool entry. Lower Priority is tried first.
type Model struct {
	Name     string
	ID       string
	Priority int
}

// DefaultPool is the free-tier model cascade.
var DefaultPool = []Model{
	{Name: "Gemini 2.0 Flash", ID: "google/gemini-2.0-flash-exp:free", Priority: 1},
	{Name: "Nemotron 3 Nano", ID: "nvidia/nemotron-3-nano-30b-a3b:free", Priority: 2},
	{Name: "DeepSeek R1 Distill", ID: "deepseek/deepseek-r1-distill-qwen-14b:free", Priority: 3},
	{Name: "Gemini 2.5 Flash", ID: "google/gemini-2.5-flash-preview:free", Priority: 4},
	{Name: "LFM2.5 Thinking", ID: "liquid/lfm-2.5-1.2b-thinking:free", Priority: 5},
}

// Client calls OpenRouter with cascading fallback and a daily call budget.
// A nil or key-less client is valid: Elaborate then reports quota exhausted
// and callers fall back to template-only text.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
	Pool    []Model

	MaxCallsPerDay int

	mu       sync.Mutex
	calls    int
	quotaDay string
	now      func() time.Time
}

func NewClient(apiKey string, maxPerDay int) *Client {
	if maxPerDay <= 0 {
		maxPerDay = 1000
	}
	return &Client{
		HTTP:           &http.Client{Timeout: 60 * time.Second},
		BaseURL:        DefaultBaseURL,
		APIKey:         apiKey,
		Pool:           DefaultPool,
		MaxCallsPerDay: maxPerDay,
		now:            time.Now,
	}
}

// Enabled reports whether elaboration can be attempted at all.
func (c *Client) Enabled() bool { return c != nil && c.APIKey != "" }

// Remaining reports how many calls are left in today's budget.
func (c *Client) Remaining() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollQuotaLocked()
	return c.MaxCallsPerDay - c.calls
}

func (c *Client) rollQuotaLocked() {
	day := c.now().UTC().Format("2006-01-02")
	if day != c.quotaDay {
		c.quotaDay = day
		c.calls = 0
	}
}

// reserve consumes one call from today's budget, rolling it at UTC
// midnight. Failed model attempts within one Elaborate share the slot.
func (c *Client) reserve() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollQuotaLocked()
	if c.calls >= c.MaxCallsPerDay {
		return false
	}
	c.calls++
	return true
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Elaborate runs the prompt through the pool in priority order and returns
// the first non-empty answer with the name of the model that produced it.
func (c *Client) Elaborate(ctx context.Context, system, prompt string) (string, string, error) {
	if !c.Enabled() {
		return "", "", ErrQuotaExhausted
	}
	if !c.reserve() {
		log.Println("[WARN] llm daily quota exhausted")
		return "", "", ErrQuotaExhausted
	}

	msgs := make([]chatMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: prompt})

	for _, m := range c.Pool {
		text, err := c.callModel(ctx, m.ID, msgs)
		if err != nil {
			if ctx.Err() != nil {
				return "", "", ctx.Err()
			}
			log.Printf("[WARN] llm model %s failed: %v", m.Name, err)
			continue
		}
		if text != "" {
			return text, m.Name, nil
		}
	}
	return "", "", ErrAllModelsFailed
}

func (c *Client) callModel(ctx context.Context, modelID string, msgs []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       modelID,
		Messages:    msgs,
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("model %s rate limited", modelID)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("model %s: status %d: %s", modelID, resp.StatusCode, raw)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

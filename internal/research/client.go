// Package research asks an LLM why a coin moved. The client wraps the
// Anthropic Messages API directly; the model's answer is expected to be a
// single JSON object, optionally wrapped in a markdown code fence, and is
// retried once on a malformed response before giving up.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coinsentry/engine/internal/logger"
	"github.com/coinsentry/engine/internal/models"
)

const anthropicVersion = "2023-06-01"

// Config holds research client settings.
type Config struct {
	APIBaseURL  string
	APIKey      string
	Model       string
	MaxTokens   int
	MaxAttempts int
	Timeout     time.Duration
}

// Client calls the Messages API and parses structured move analyses.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a research client. MaxAttempts below 1 becomes 2.
func NewClient(cfg Config) *Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.anthropic.com"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Sentiment is the model's read of market mood around the move.
type Sentiment struct {
	Label     string  `json:"label"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// Analysis is the structured answer the model must produce.
type Analysis struct {
	Catalyst                string    `json:"catalyst"`
	CatalystConfidence      float64   `json:"catalyst_confidence"`
	Sentiment               Sentiment `json:"sentiment"`
	KeyFactors              []string  `json:"key_factors"`
	Risks                   []string  `json:"risks"`
	ContinuationProbability float64   `json:"continuation_probability"`
	Summary                 string    `json:"summary"`
	RecommendedAction       string    `json:"recommended_action"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze researches one mover event. Returns the parsed analysis, the raw
// model text, and the total token count. A response that fails JSON parsing
// is retried up to the attempt budget.
func (c *Client) Analyze(ctx context.Context, event models.MoverEvent) (*Analysis, string, int, error) {
	prompt := buildPrompt(event)
	tokensUsed := 0

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			logger.Debug("Retrying research for %s (attempt %d)", event.Symbol, attempt)
		}

		text, tokens, err := c.complete(ctx, prompt)
		tokensUsed += tokens
		if err != nil {
			return nil, "", tokensUsed, fmt.Errorf("research request for %s failed: %w", event.Symbol, err)
		}

		analysis, err := parseAnalysis(text)
		if err != nil {
			lastErr = err
			logger.Warn("Unparseable research response for %s: %v", event.Symbol, err)
			continue
		}
		return analysis, text, tokensUsed, nil
	}

	return nil, "", tokensUsed, fmt.Errorf("research for %s failed after %d attempts: %w",
		event.Symbol, c.cfg.MaxAttempts, lastErr)
}

func (c *Client) complete(ctx context.Context, prompt string) (string, int, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.APIBaseURL, "/")+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", 0, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", 0, fmt.Errorf("api error (%s): %s", parsed.Error.Type, parsed.Error.Message)
		}
		return "", 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", 0, fmt.Errorf("empty response body")
	}

	return text.String(), parsed.Usage.InputTokens + parsed.Usage.OutputTokens, nil
}

// parseAnalysis decodes the model output, tolerating a surrounding markdown
// code fence.
func parseAnalysis(text string) (*Analysis, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse analysis JSON: %w", err)
	}
	if analysis.Catalyst == "" && analysis.Summary == "" {
		return nil, fmt.Errorf("analysis missing catalyst and summary")
	}
	return &analysis, nil
}

func buildPrompt(event models.MoverEvent) string {
	direction := "pumped"
	if event.Magnitude < 0 {
		direction = "dumped"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) just %s %.1f%% in 24 hours.\n\n",
		event.Name, strings.ToUpper(event.Symbol), direction, event.Magnitude)
	fmt.Fprintf(&b, "Current price: $%g\n", event.Price)
	fmt.Fprintf(&b, "Market cap: $%.0f\n", event.MarketCap)
	fmt.Fprintf(&b, "24h volume: $%.0f\n", event.Volume24h)
	if event.BTCRelative != nil {
		fmt.Fprintf(&b, "Performance vs Bitcoin: %+.1f%%\n", *event.BTCRelative)
	}
	if event.Rank != nil {
		fmt.Fprintf(&b, "Market cap rank: #%d\n", *event.Rank)
	}

	b.WriteString(`
Analyze why this move likely happened and whether it will continue.
Respond with ONLY a JSON object in this exact shape:
{
  "catalyst": "the most likely cause of the move",
  "catalyst_confidence": 0.0,
  "sentiment": {"label": "bullish|bearish|neutral", "score": 0.0, "reasoning": "..."},
  "key_factors": ["..."],
  "risks": ["..."],
  "continuation_probability": 0.0,
  "summary": "2-3 sentence summary",
  "recommended_action": "watch|consider_entry|avoid|take_profit"
}
All probabilities and scores are between 0 and 1. No text outside the JSON object.`)

	return b.String()
}

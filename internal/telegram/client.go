// Package telegram provides a client for sending alerts via Telegram Bot API.
// It formats detected market movers and research reports into human-readable
// messages and handles delivery with retry logic for reliability.
//
// The client uses MarkdownV2 formatting and includes error handling for
// common Telegram API issues like rate limiting and network failures.
package telegram

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/coinsentry/engine/internal/detector"
	"github.com/coinsentry/engine/internal/models"
	"github.com/coinsentry/engine/internal/research"
)

// detailedAlertCount is how many top movers get a full per-coin alert; the
// rest are folded into one summary message.
const detailedAlertCount = 3

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	sendDelay      time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase, sendDelay time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	if sendDelay <= 0 {
		sendDelay = 500 * time.Millisecond
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		sendDelay:      sendDelay,
	}, nil
}

// SendMovers sends alerts for the detected movers: a detailed message for
// each of the top few, then one summary for the remainder. predictions maps
// mover event IDs to the prediction formed for them, where one exists.
func (c *Client) SendMovers(events []models.MoverEvent, predictions map[string]models.Prediction) error {
	if len(events) == 0 {
		return nil
	}

	detailed := events
	if len(detailed) > detailedAlertCount {
		detailed = detailed[:detailedAlertCount]
	}

	for i, event := range detailed {
		var p *models.Prediction
		if pred, ok := predictions[event.ID]; ok {
			p = &pred
		}
		if err := c.send(formatMoverAlert(event, p)); err != nil {
			return fmt.Errorf("failed to send alert for %s: %w", event.Symbol, err)
		}
		if i < len(detailed)-1 || len(events) > detailedAlertCount {
			time.Sleep(c.sendDelay)
		}
	}

	if len(events) > detailedAlertCount {
		if err := c.send(formatMoverSummary(events[detailedAlertCount:])); err != nil {
			return fmt.Errorf("failed to send mover summary: %w", err)
		}
	}
	return nil
}

// SendResearch sends a research report for a mover.
func (c *Client) SendResearch(event models.MoverEvent, analysis *research.Analysis) error {
	return c.send(formatResearch(event, analysis))
}

// SendError notifies the channel about persistent failures.
func (c *Client) SendError(message string) error {
	return c.send("âš ï¸ *CoinSentry Error*\n\n" + escapeMarkdownV2(message))
}

// SendRecovery notifies the channel that the system recovered.
func (c *Client) SendRecovery() error {
	return c.send("âœ… *CoinSentry Recovered*\n\nMarket data collection is working again\\.")
}

// send delivers one MarkdownV2 message with retry.
func (c *Client) send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatMoverAlert builds the detailed alert for one mover.
func formatMoverAlert(event models.MoverEvent, p *models.Prediction) string {
	var b strings.Builder

	emoji := severityEmoji(event.Magnitude)
	direction := "PUMP"
	if event.Magnitude < 0 {
		direction = "DUMP"
	}

	fmt.Fprintf(&b, "%s *%s %s* %s\n\n",
		emoji,
		escapeMarkdownV2(strings.ToUpper(event.Symbol)),
		direction,
		escapeMarkdownV2(fmt.Sprintf("%+.1f%%", event.Magnitude)))
	fmt.Fprintf(&b, "%s\n\n", escapeMarkdownV2(event.Name))

	fmt.Fprintf(&b, "ðŸ’µ Price: %s\n", escapeMarkdownV2(formatPrice(event.Price)))
	fmt.Fprintf(&b, "ðŸ¦ Market cap: %s\n", escapeMarkdownV2(formatUSD(event.MarketCap)))
	fmt.Fprintf(&b, "ðŸ“Š 24h volume: %s\n", escapeMarkdownV2(formatUSD(event.Volume24h)))
	if event.BTCRelative != nil && math.Abs(*event.BTCRelative) > 2 {
		fmt.Fprintf(&b, "â‚¿ vs BTC: %s\n", escapeMarkdownV2(fmt.Sprintf("%+.1f%%", *event.BTCRelative)))
	}
	if event.Rank != nil {
		fmt.Fprintf(&b, "ðŸ† Rank: \\#%d\n", *event.Rank)
	}

	if p != nil {
		arrow := "ðŸ“ˆ"
		if p.Direction == models.DirectionDown {
			arrow = "ðŸ“‰"
		}
		fmt.Fprintf(&b, "\n%s Prediction: *%s* \\(%s confidence\\)\n",
			arrow,
			escapeMarkdownV2(p.Direction),
			escapeMarkdownV2(fmt.Sprintf("%.0f%%", p.Confidence*100)))
	}

	fmt.Fprintf(&b, "\n[CoinGecko](https://www.coingecko.com/en/coins/%s) \\| [TradingView](https://www.tradingview.com/symbols/%sUSD/)",
		event.CoinID, strings.ToUpper(event.Symbol))

	return b.String()
}

// formatMoverSummary folds the remaining movers into one numbered list.
func formatMoverSummary(events []models.MoverEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ðŸ“‹ *%d more movers*\n\n", len(events))

	for i, event := range events {
		arrow := "ðŸ“ˆ"
		if event.Magnitude < 0 {
			arrow = "ðŸ“‰"
		}
		fmt.Fprintf(&b, "%d\\. %s %s %s \\(%s cap\\)\n",
			i+1,
			arrow,
			escapeMarkdownV2(strings.ToUpper(event.Symbol)),
			escapeMarkdownV2(fmt.Sprintf("%+.1f%%", event.Magnitude)),
			escapeMarkdownV2(formatUSD(event.MarketCap)))
	}
	return b.String()
}

// formatResearch builds the research report message.
func formatResearch(event models.MoverEvent, a *research.Analysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "ðŸ”¬ *Research: %s* %s\n\n",
		escapeMarkdownV2(strings.ToUpper(event.Symbol)),
		escapeMarkdownV2(fmt.Sprintf("%+.1f%%", event.Magnitude)))

	fmt.Fprintf(&b, "*Catalyst:* %s \\(%s\\)\n",
		escapeMarkdownV2(a.Catalyst),
		escapeMarkdownV2(fmt.Sprintf("%.0f%% sure", a.CatalystConfidence*100)))
	fmt.Fprintf(&b, "*Sentiment:* %s\n", escapeMarkdownV2(a.Sentiment.Label))
	fmt.Fprintf(&b, "*Continuation:* %s\n\n",
		escapeMarkdownV2(fmt.Sprintf("%.0f%%", a.ContinuationProbability*100)))

	fmt.Fprintf(&b, "%s\n", escapeMarkdownV2(a.Summary))

	if len(a.KeyFactors) > 0 {
		b.WriteString("\n*Key factors:*\n")
		for _, factor := range a.KeyFactors {
			fmt.Fprintf(&b, "â€¢ %s\n", escapeMarkdownV2(factor))
		}
	}
	if len(a.Risks) > 0 {
		b.WriteString("\n*Risks:*\n")
		for _, risk := range a.Risks {
			fmt.Fprintf(&b, "â€¢ %s\n", escapeMarkdownV2(risk))
		}
	}

	fmt.Fprintf(&b, "\nðŸŽ¯ Action: *%s*", escapeMarkdownV2(a.RecommendedAction))
	return b.String()
}

// severityEmoji picks the alert emoji for a magnitude.
func severityEmoji(magnitude float64) string {
	switch detector.Severity(magnitude) {
	case detector.SeverityExtreme:
		return "ðŸš¨ðŸš¨"
	case detector.SeverityMajor:
		return "ðŸš¨"
	case detector.SeveritySignificant:
		return "âš¡"
	default:
		return "ðŸ””"
	}
}

// formatPrice renders a USD price with precision appropriate to its size.
func formatPrice(price float64) string {
	switch {
	case price >= 1000:
		return fmt.Sprintf("$%.0f", price)
	case price >= 1:
		return fmt.Sprintf("$%.2f", price)
	case price >= 0.01:
		return fmt.Sprintf("$%.4f", price)
	default:
		return fmt.Sprintf("$%.8f", price)
	}
}

// formatUSD renders a large dollar amount compactly.
func formatUSD(v float64) string {
	switch {
	case v >= 1e12:
		return fmt.Sprintf("$%.2fT", v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.0fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

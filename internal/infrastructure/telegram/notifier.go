package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf16"

	"PatentReporter/internal/ports"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	// MaxMessageUnits is the Bot API limit for a single text message, counted in UTF-16 code units.
	MaxMessageUnits = 4096
)

// Notifier sends reports to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.ReportSink = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier. An empty apiBase targets the public Bot API.
func NewNotifier(botToken, chatID, apiBase string, client *http.Client) *Notifier {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  strings.TrimSuffix(apiBase, "/"),
		client:   client,
	}
}

// Name identifies the sink in logs.
func (n *Notifier) Name() string {
	return "telegram"
}

// Publish posts the report as plain text, split into as many messages as the size limit requires.
func (n *Notifier) Publish(ctx context.Context, runID, report string) error {
	if n.botToken == "" || n.chatID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	parts := splitMessage(report, MaxMessageUnits)
	for i, part := range parts {
		if err := n.send(ctx, part); err != nil {
			return fmt.Errorf("run %s message %d/%d: %w", runID, i+1, len(parts), err)
		}
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram error: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	return nil
}

// splitMessage cuts text into chunks of at most limit UTF-16 code units, preferring line boundaries
// in the upper half of a chunk.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if utf16Len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for start := 0; start < len(runes); {
		units, end, lineEnd := 0, start, -1
		for end < len(runes) {
			n := unitLen(runes[end])
			if units+n > limit {
				break
			}
			units += n
			end++
			if runes[end-1] == '\n' && units > limit/2 {
				lineEnd = end
			}
		}

		switch {
		case end == len(runes):
		case lineEnd > 0:
			end = lineEnd
		case end == start:
			end++
		}
		parts = append(parts, string(runes[start:end]))
		start = end
	}
	return parts
}

func utf16Len(runes []rune) int {
	total := 0
	for _, r := range runes {
		total += unitLen(r)
	}
	return total
}

// unitLen counts invalid runes as one unit, the size of their U+FFFD replacement.
func unitLen(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

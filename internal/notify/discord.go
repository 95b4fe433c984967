package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// discordMaxContent is the webhook limit on message content, in characters.
const discordMaxContent = 2000

type discordPayload struct {
	Username string `json:"username,omitempty"`
	Content  string `json:"content"`
}

// DiscordSender posts alerts to a Discord channel webhook.
type DiscordSender struct {
	url    string
	client *http.Client
}

func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{url: webhookURL, client: &http.Client{Timeout: 10 * time.Second}}
}

func (d *DiscordSender) Name() string { return "discord" }

// Send posts "**title**\nmessage", cut to the webhook limit.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	body, err := json.Marshal(discordPayload{
		Username: "arbdiscovery",
		Content:  clip("**"+title+"**\n"+message, discordMaxContent),
	})
	if err != nil {
		return fmt.Errorf("discord: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}

// clip shortens s to at most n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

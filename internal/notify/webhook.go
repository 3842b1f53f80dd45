package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ppiankov/rulesift/internal/feed"
)

// WebhookNotifier POSTs matched entries as JSON to one URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhook(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}
	return &WebhookNotifier{url: url, client: client}
}

type webhookPayload struct {
	Title       string   `json:"title"`
	Brief       string   `json:"brief,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Author      string   `json:"author,omitempty"`
	URL         string   `json:"url,omitempty"`
	Published   string   `json:"published"`
	MatchReason string   `json:"match_reason"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, post feed.Post, reason string) error {
	body, err := json.Marshal(webhookPayload{
		Title:       post.Title,
		Brief:       post.Brief,
		Tags:        post.Tags,
		Author:      post.Author,
		URL:         post.URL,
		Published:   post.Published.UTC().Format(time.RFC3339),
		MatchReason: reason,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

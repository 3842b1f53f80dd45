package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ppiankov/rulesift/internal/feed"
)

const slackAPIURL = "https://slack.com/api/chat.postMessage"

// SlackNotifier posts matched entries to one Slack channel.
type SlackNotifier struct {
	token   string
	channel string
	apiURL  string
	client  *http.Client
}

// NewSlack creates a Slack notifier. apiURL overrides the public API,
// for tests; pass "" for the default.
func NewSlack(token, channel, apiURL string, client *http.Client) *SlackNotifier {
	if apiURL == "" {
		apiURL = slackAPIURL
	}
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}
	return &SlackNotifier{token: token, channel: channel, apiURL: apiURL, client: client}
}

type slackMessage struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *SlackNotifier) Notify(ctx context.Context, post feed.Post, reason string) error {
	text := fmt.Sprintf("*%s*\nMatched: %s", post.Title, reason)
	if post.URL != "" {
		text += "\n" + post.URL
	}

	body, err := json.Marshal(slackMessage{Channel: s.channel, Text: text})
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	var sr slackResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return fmt.Errorf("decode slack response: %w", err)
	}
	if !sr.OK {
		return fmt.Errorf("slack error: %s", sr.Error)
	}

	return nil
}

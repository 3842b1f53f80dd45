package sift

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/rulesift/internal/config"
	"github.com/ppiankov/rulesift/internal/feed"
)

const llmTimeout = 30 * time.Second

// Error kinds for classifier failures. Callers use errors.Is to tell
// "service unreachable" from "service replied with garbage".
var (
	// ErrTransport covers network failures and non-2xx responses.
	ErrTransport = errors.New("classifier transport failure")
	// ErrDecode covers response bodies that are not valid JSON.
	ErrDecode = errors.New("classifier response not decodable")
	// ErrMalformed covers valid JSON missing the completion text.
	ErrMalformed = errors.New("classifier response missing completion")
)

// LLMSifter asks a chat-completions endpoint whether a post matches a
// fixed criterion. The prompt is bound at construction; one instance
// serves all posts of its rule.
type LLMSifter struct {
	prompt    string
	endpoint  string
	model     string
	apiKey    string
	maxTokens int
	client    *http.Client
}

// NewLLM creates an LLM-backed sifter for one rule prompt.
func NewLLM(prompt string, cc config.ClassifierConfig, client *http.Client) (*LLMSifter, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errNoPrompt
	}
	if client == nil {
		client = &http.Client{Timeout: llmTimeout}
	}
	return &LLMSifter{
		prompt:    prompt,
		endpoint:  cc.Endpoint,
		model:     cc.Model,
		apiKey:    cc.APIKey,
		maxTokens: cc.MaxTokens,
		client:    client,
	}, nil
}

func (l *LLMSifter) Match(ctx context.Context, post feed.Post) (bool, error) {
	content, err := l.complete(ctx, post)
	if err != nil {
		return false, err
	}
	return isYes(content), nil
}

func (l *LLMSifter) complete(ctx context.Context, post feed.Post) (string, error) {
	system := fmt.Sprintf(
		"Answer only 'yes' or 'no'. Evaluate whether the post matches this criterion: %s",
		l.prompt,
	)
	user := post.Title
	if post.Brief != "" {
		user += "\n\n" + post.Brief
	}

	reqBody := chatRequest{
		Model: l.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   l.maxTokens,
		Temperature: 0,
		N:           1,
		Stop:        []string{"\n"},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrMalformed)
	}

	return chatResp.Choices[0].Message.Content, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	N           int           `json:"n"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

// Package notify delivers matched posts to their destinations.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ppiankov/rulesift/internal/config"
	"github.com/ppiankov/rulesift/internal/feed"
)

const httpTimeout = 15 * time.Second

// Notifier delivers one matched post to one destination. Delivery is
// at-least-once per match per run; no dedup state survives the run.
type Notifier interface {
	Notify(ctx context.Context, post feed.Post, reason string) error
}

// Options carries the shared transport settings concrete notifiers need.
type Options struct {
	SlackToken string
	SlackAPI   string // override for tests; empty means the public API
	SMTPAddr   string
	SMTPFrom   string
	Client     *http.Client
}

// Build composes the fan-out notifier for one rule's targets. Each
// target contributes exactly one concrete notifier, chosen by its
// populated channel field.
func Build(targets []config.NotificationTarget, opts Options) (Notifier, error) {
	if len(targets) == 0 {
		return nil, errors.New("notify: at least one target is required")
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}

	sub := make([]Notifier, 0, len(targets))
	for i, target := range targets {
		if target.Slack == "" && target.Email == "" && target.Webhook == "" {
			return nil, fmt.Errorf("notify: target %d has no channel populated", i)
		}
		kind, value := target.Channel()
		switch kind {
		case config.ChannelSlack:
			sub = append(sub, NewSlack(opts.SlackToken, value, opts.SlackAPI, client))
		case config.ChannelEmail:
			sub = append(sub, NewEmail(opts.SMTPAddr, opts.SMTPFrom, value))
		case config.ChannelWebhook:
			sub = append(sub, NewWebhook(value, client))
		}
	}

	if len(sub) == 1 {
		return sub[0], nil
	}
	return Multi(sub), nil
}

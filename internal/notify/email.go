package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/ppiankov/rulesift/internal/feed"
)

// sendMailFunc is the function used to hand the message to an SMTP
// server. It defaults to smtp.SendMail but can be overridden in tests.
var sendMailFunc = smtp.SendMail

// EmailNotifier sends matched entries to one recipient via SMTP.
type EmailNotifier struct {
	addr string // SMTP host:port
	from string
	to   string
}

func NewEmail(addr, from, to string) *EmailNotifier {
	return &EmailNotifier{addr: addr, from: from, to: to}
}

func (n *EmailNotifier) Notify(ctx context.Context, post feed.Post, reason string) error {
	if n.addr == "" || n.from == "" {
		return errors.New("email: smtp addr and from address are required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.from)
	fmt.Fprintf(&msg, "To: %s\r\n", n.to)
	fmt.Fprintf(&msg, "Subject: [rulesift] %s\r\n", post.Title)
	msg.WriteString("\r\n")
	fmt.Fprintf(&msg, "Matched: %s\r\n\r\n", reason)
	if post.Brief != "" {
		msg.WriteString(post.Brief)
		msg.WriteString("\r\n\r\n")
	}
	if post.URL != "" {
		msg.WriteString(post.URL)
		msg.WriteString("\r\n")
	}

	if err := sendMailFunc(n.addr, nil, n.from, []string{n.to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail via %s: %w", n.addr, err)
	}
	return nil
}

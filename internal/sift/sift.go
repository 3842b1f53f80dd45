// Package sift decides whether a post satisfies a rule's criterion.
package sift

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ppiankov/rulesift/internal/config"
	"github.com/ppiankov/rulesift/internal/feed"
)

// Sifter answers a binary match query for one rule. A sifter is built
// once per rule and reused across posts; implementations hold no
// per-call mutable state.
type Sifter interface {
	Match(ctx context.Context, post feed.Post) (bool, error)
}

// New builds the sifter for a rule. Reserved and unrecognised sifter
// types are configuration errors that fail the whole run.
func New(rule config.Rule, cc config.ClassifierConfig, client *http.Client) (Sifter, error) {
	switch rule.Sifter {
	case config.SifterLLM:
		return NewLLM(rule.Prompt, cc, client)
	case config.SifterAll:
		return All{}, nil
	case config.SifterRegex, config.SifterTags:
		return nil, fmt.Errorf("sifter type %q is reserved and not implemented", rule.Sifter)
	default:
		return nil, fmt.Errorf("unknown sifter type %q", rule.Sifter)
	}
}

// All matches every post. Useful for smoke-testing a pipeline without
// remote calls.
type All struct{}

func (All) Match(_ context.Context, _ feed.Post) (bool, error) {
	return true, nil
}

// isYes reports whether completion text is an affirmative answer:
// trimmed, case-insensitive, begins with "yes". Anything else is a no.
func isYes(content string) bool {
	trimmed := strings.TrimSpace(content)
	return len(trimmed) >= 3 && strings.EqualFold(trimmed[:3], "yes")
}

var errNoPrompt = errors.New("sift: prompt is required")

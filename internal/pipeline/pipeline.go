// Package pipeline drives the feeds × rules × posts evaluation and
// aggregates one run's result.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/rulesift/internal/config"
	"github.com/ppiankov/rulesift/internal/feed"
	"github.com/ppiankov/rulesift/internal/notify"
	"github.com/ppiankov/rulesift/internal/sift"
)

const (
	defaultFeedWorkers = 4
	defaultSiftWorkers = 8
)

// SifterFactory builds the sifter for one rule.
type SifterFactory func(config.Rule) (sift.Sifter, error)

// NotifierFactory builds the fan-out notifier for one rule's targets.
type NotifierFactory func(config.Rule) (notify.Notifier, error)

// MatchedPost records one rule firing on one post. Never mutated after
// creation; a later notification failure does not retract it.
type MatchedPost struct {
	Post    feed.Post
	Reason  string // the matching rule's prompt
	Targets []config.NotificationTarget
}

// Result is the run's output contract. LastCreated is the maximum
// Published timestamp seen across all feeds, or nil when no posts were
// fetched; an external scheduler persists it as the next run's cursor.
type Result struct {
	TotalProcessed int
	LastCreated    *time.Time
	Matches        []MatchedPost
}

// Pipeline evaluates configured feeds against configured rules.
type Pipeline struct {
	Source    feed.Source
	Sifters   SifterFactory
	Notifiers NotifierFactory
	Logger    *zap.Logger

	// Worker pool bounds; zero means the package default.
	FeedWorkers int
	SiftWorkers int
}

type ruleRunner struct {
	rule     config.Rule
	sifter   sift.Sifter
	notifier notify.Notifier
}

// Process fetches posts newer than since from every configured feed and
// evaluates each against every rule. Matches come back in canonical
// order: feed order as configured, then rule order, then post order
// within the (feed, rule) pair, regardless of the concurrency used to
// compute them. Any feed fetch or classifier failure aborts the run;
// notification failures are logged and do not.
func (p *Pipeline) Process(ctx context.Context, cfg *config.Config, since time.Time) (*Result, error) {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	// Sifters and notifiers are built once per rule, before any feed is
	// fetched, so a misconfigured rule fails the run up front.
	runners := make([]ruleRunner, 0, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		sifter, err := p.Sifters(rule)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, rule.Prompt, err)
		}
		notifier, err := p.Notifiers(rule)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, rule.Prompt, err)
		}
		runners = append(runners, ruleRunner{rule: rule, sifter: sifter, notifier: notifier})
	}

	feedPosts, err := p.fetchAll(ctx, cfg.Feeds, since, log)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, posts := range feedPosts {
		result.TotalProcessed += len(posts)
		for _, post := range posts {
			if result.LastCreated == nil || post.Published.After(*result.LastCreated) {
				published := post.Published
				result.LastCreated = &published
			}
		}
	}

	for feedIdx, posts := range feedPosts {
		if len(posts) == 0 {
			continue
		}
		for _, runner := range runners {
			decisions, err := p.evaluate(ctx, runner.sifter, posts)
			if err != nil {
				return nil, fmt.Errorf("feed %s, rule %q: %w", cfg.Feeds[feedIdx], runner.rule.Prompt, err)
			}

			for postIdx, matched := range decisions {
				if !matched {
					continue
				}
				post := posts[postIdx]
				result.Matches = append(result.Matches, MatchedPost{
					Post:    post,
					Reason:  runner.rule.Prompt,
					Targets: runner.rule.Notify,
				})

				if err := runner.notifier.Notify(ctx, post, runner.rule.Prompt); err != nil {
					log.Warn("notification failed",
						zap.String("post", post.Title),
						zap.String("rule", runner.rule.Prompt),
						zap.Error(err))
				}
			}
		}
	}

	log.Info("run complete",
		zap.Int("total_processed", result.TotalProcessed),
		zap.Int("matches", len(result.Matches)))

	return result, nil
}

// fetchAll pulls every feed through a bounded worker pool. Results are
// kept indexed by feed position so downstream ordering stays canonical.
// The first failing feed aborts the run.
func (p *Pipeline) fetchAll(ctx context.Context, feeds []string, since time.Time, log *zap.Logger) ([][]feed.Post, error) {
	posts := make([][]feed.Post, len(feeds))
	errs := make([]error, len(feeds))

	workers := p.FeedWorkers
	if workers <= 0 {
		workers = defaultFeedWorkers
	}
	if workers > len(feeds) {
		workers = len(feeds)
	}

	jobs := make(chan int, len(feeds))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				posts[idx], errs[idx] = p.Source.Fetch(ctx, feeds[idx], since)
			}
		}()
	}
	for idx := range feeds {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	for idx, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("fetch feed %s: %w", feeds[idx], err)
		}
		log.Debug("feed fetched",
			zap.String("feed", feeds[idx]),
			zap.Int("posts", len(posts[idx])))
	}

	return posts, nil
}

// evaluate runs one rule's sifter over a feed's posts through a bounded
// worker pool and returns per-post decisions in post order. Match calls
// have no ordering dependency between them, so fan-out is safe; the
// indexed decisions slice re-sequences the outcome.
func (p *Pipeline) evaluate(ctx context.Context, sifter sift.Sifter, posts []feed.Post) ([]bool, error) {
	decisions := make([]bool, len(posts))
	errs := make([]error, len(posts))

	workers := p.SiftWorkers
	if workers <= 0 {
		workers = defaultSiftWorkers
	}
	if workers > len(posts) {
		workers = len(posts)
	}

	jobs := make(chan int, len(posts))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				decisions[idx], errs[idx] = sifter.Match(ctx, posts[idx])
			}
		}()
	}
	for idx := range posts {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return decisions, nil
}

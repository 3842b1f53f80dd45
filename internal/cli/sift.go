package cli

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/rulesift/internal/config"
	"github.com/ppiankov/rulesift/internal/feed"
	"github.com/ppiankov/rulesift/internal/notify"
	"github.com/ppiankov/rulesift/internal/pipeline"
	"github.com/ppiankov/rulesift/internal/report"
	"github.com/ppiankov/rulesift/internal/sift"
	"github.com/ppiankov/rulesift/internal/store"
)

var (
	siftFormat string
	useCursor  bool
	noColor    bool
)

var siftCmd = &cobra.Command{
	Use:   "sift [since] [feed-url]",
	Short: "Fetch posts newer than a timestamp and evaluate the rules",
	Long: `Fetches posts from the configured feeds, evaluates each against the
configured rules, notifies matches, and writes a JSON report to stdout.

Since is a mandatory ISO-8601 UTC timestamp (e.g. 2026-03-01T00:00:00Z)
unless --cursor resumes from the previous run. A positional feed URL
after the timestamp switches to legacy single-feed mode: every post
matches and is delivered to the default webhook from the environment.`,
	Args: cobra.RangeArgs(0, 2),
	RunE: siftAction,
}

func init() {
	siftCmd.Flags().StringVar(&siftFormat, "format", "json", "output format: json, terminal, markdown")
	siftCmd.Flags().BoolVar(&useCursor, "cursor", false, "resume from the stored cursor instead of a timestamp argument")
	siftCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
	rootCmd.AddCommand(siftCmd)
}

func siftAction(cmd *cobra.Command, args []string) error {
	cfg, err := siftConfig(args)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx := cmd.Context()

	since, err := resolveSince(cmd, args, db)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	p := &pipeline.Pipeline{
		Source: feed.NewRSS(nil),
		Sifters: func(rule config.Rule) (sift.Sifter, error) {
			return sift.New(rule, cfg.Classifier, client)
		},
		Notifiers: func(rule config.Rule) (notify.Notifier, error) {
			return notify.Build(rule.Notify, notify.Options{
				SlackToken: cfg.Notify.Slack.BotToken,
				SMTPAddr:   cfg.Notify.SMTP.Addr,
				SMTPFrom:   cfg.Notify.SMTP.From,
				Client:     client,
			})
		},
		Logger: logger,
	}

	started := time.Now()
	result, err := p.Process(ctx, cfg, since)
	if err != nil {
		return err
	}

	if _, err := db.RecordRun(ctx, store.RunInput{
		StartedAt:      started,
		FinishedAt:     time.Now(),
		TotalProcessed: result.TotalProcessed,
		Matches:        len(result.Matches),
		LastCreated:    result.LastCreated,
	}); err != nil {
		logger.Warn("record run", zap.Error(err))
	}

	var formatter report.Formatter
	switch siftFormat {
	case "json", "":
		formatter = report.NewJSON()
	case "terminal":
		formatter = report.NewTerminal(!noColor)
	case "markdown", "md":
		formatter = report.NewMarkdown()
	default:
		return fmt.Errorf("unknown format %q (want json, terminal, or markdown)", siftFormat)
	}
	return formatter.Format(os.Stdout, result)
}

// siftConfig loads the YAML config, or builds the legacy single-feed
// config when a feed URL argument is present.
func siftConfig(args []string) (*config.Config, error) {
	if len(args) == 2 {
		cfg, err := config.Legacy(args[1])
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func resolveSince(cmd *cobra.Command, args []string, db *store.Store) (time.Time, error) {
	if useCursor {
		if len(args) > 0 {
			return time.Time{}, errors.New("--cursor and a timestamp argument are mutually exclusive")
		}
		cursor, ok, err := db.Cursor(cmd.Context())
		if err != nil {
			return time.Time{}, fmt.Errorf("read cursor: %w", err)
		}
		if !ok {
			return time.Time{}, errors.New("no cursor stored yet; pass a timestamp for the first run")
		}
		return cursor, nil
	}

	if len(args) == 0 {
		return time.Time{}, errors.New("a since timestamp is required (ISO-8601 UTC, e.g. 2026-03-01T00:00:00Z)")
	}
	since, err := time.Parse(time.RFC3339, args[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse since timestamp %q: %w", args[0], err)
	}
	return since.UTC(), nil
}

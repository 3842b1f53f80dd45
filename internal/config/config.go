package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile  = "config.yaml"
	DefaultStoragePath = ".rulesift/rulesift.db"
	DefaultEndpoint    = "https://api.openai.com/v1/chat/completions"
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 4
	DefaultAPIKeyEnv   = "RULESIFT_API_KEY"
	DefaultWebhookEnv  = "RULESIFT_WEBHOOK_URL"
)

// SifterType selects the match strategy for a rule. Resolved once at
// load time; an unrecognised value fails the run when the rule's sifter
// is constructed, before any feed is fetched.
type SifterType string

const (
	SifterLLM   SifterType = "llm"
	SifterAll   SifterType = "all"
	SifterRegex SifterType = "regex" // reserved, not implemented
	SifterTags  SifterType = "tags"  // reserved, not implemented
)

// ChannelKind identifies the delivery mechanism of a notification target.
type ChannelKind string

const (
	ChannelSlack   ChannelKind = "Slack"
	ChannelEmail   ChannelKind = "Email"
	ChannelWebhook ChannelKind = "Webhook"
)

type Config struct {
	Feeds               []string         `yaml:"feeds"`
	PollIntervalMinutes int              `yaml:"poll_interval_minutes"` // informational, no scheduler here
	Rules               []Rule           `yaml:"rules"`
	Classifier          ClassifierConfig `yaml:"classifier"`
	Notify              NotifyConfig     `yaml:"notify"`
	Storage             StorageConfig    `yaml:"storage"`
}

type Rule struct {
	Prompt string               `yaml:"prompt"`
	Sifter SifterType           `yaml:"sifter"`
	Notify []NotificationTarget `yaml:"notify"`

	// Tags is parsed for forward compatibility but not applied as a
	// pre-filter.
	Tags []string `yaml:"tags"`
}

// NotificationTarget names one delivery destination. Exactly one of the
// channel fields is expected to be populated; validation rejects targets
// with none.
type NotificationTarget struct {
	Slack   string `yaml:"slack"`   // channel ID
	Email   string `yaml:"email"`   // recipient address
	Webhook string `yaml:"webhook"` // destination URL
}

// Channel resolves the target to its delivery kind and value. Resolution
// order matches field order; validation guarantees at least one is set.
func (t NotificationTarget) Channel() (ChannelKind, string) {
	switch {
	case t.Slack != "":
		return ChannelSlack, t.Slack
	case t.Email != "":
		return ChannelEmail, t.Email
	default:
		return ChannelWebhook, t.Webhook
	}
}

// Description returns a human-readable "<Kind>: <value>" label.
func (t NotificationTarget) Description() string {
	kind, value := t.Channel()
	return fmt.Sprintf("%s: %s", kind, value)
}

type ClassifierConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	MaxTokens int    `yaml:"max_tokens"`

	// Resolved from env var at load time.
	APIKey string `yaml:"-"`
}

type NotifyConfig struct {
	Slack SlackConfig `yaml:"slack"`
	SMTP  SMTPConfig  `yaml:"smtp"`

	// DefaultWebhookEnv names the env var holding a fallback webhook URL
	// for the legacy single-feed mode.
	DefaultWebhookEnv string `yaml:"default_webhook_env"`
	DefaultWebhook    string `yaml:"-"`
}

type SlackConfig struct {
	BotTokenEnv string `yaml:"bot_token_env"`
	BotToken    string `yaml:"-"`
}

type SMTPConfig struct {
	Addr string `yaml:"addr"` // host:port
	From string `yaml:"from"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

// Load reads a YAML config file, applies defaults, resolves env vars,
// and validates.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Classifier.Endpoint == "" {
		cfg.Classifier.Endpoint = DefaultEndpoint
	}
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = DefaultModel
	}
	if cfg.Classifier.MaxTokens == 0 {
		cfg.Classifier.MaxTokens = DefaultMaxTokens
	}
	if cfg.Classifier.APIKeyEnv == "" {
		cfg.Classifier.APIKeyEnv = DefaultAPIKeyEnv
	}
	if cfg.Notify.DefaultWebhookEnv == "" {
		cfg.Notify.DefaultWebhookEnv = DefaultWebhookEnv
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	for i := range cfg.Rules {
		if cfg.Rules[i].Sifter == "" {
			cfg.Rules[i].Sifter = SifterLLM
		}
	}
}

func resolveEnv(cfg *Config) {
	cfg.Classifier.APIKey = os.Getenv(cfg.Classifier.APIKeyEnv)
	cfg.Notify.DefaultWebhook = os.Getenv(cfg.Notify.DefaultWebhookEnv)
	if cfg.Notify.Slack.BotTokenEnv != "" {
		cfg.Notify.Slack.BotToken = os.Getenv(cfg.Notify.Slack.BotTokenEnv)
	}
}

// Legacy builds the single-feed configuration the original CLI mode
// accepts: one feed, one match-everything rule, delivery to the default
// webhook resolved from the environment.
func Legacy(feedURL string) (*Config, error) {
	cfg := &Config{Feeds: []string{feedURL}}
	applyDefaults(cfg)
	resolveEnv(cfg)

	if cfg.Notify.DefaultWebhook == "" {
		return nil, fmt.Errorf("legacy mode needs a default webhook (set %s)", cfg.Notify.DefaultWebhookEnv)
	}
	cfg.Rules = []Rule{{
		Prompt: "any post",
		Sifter: SifterAll,
		Notify: []NotificationTarget{{Webhook: cfg.Notify.DefaultWebhook}},
	}}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate legacy config: %w", err)
	}
	return cfg, nil
}

// Validate checks the structural invariants every consumer of the config
// is allowed to assume.
func Validate(cfg *Config) error {
	if len(cfg.Feeds) == 0 {
		return errors.New("feeds: at least one feed URL is required")
	}
	for _, f := range cfg.Feeds {
		if err := validateFeedURL(f); err != nil {
			return err
		}
	}

	if len(cfg.Rules) == 0 {
		return errors.New("rules: at least one rule is required")
	}
	for i, rule := range cfg.Rules {
		if strings.TrimSpace(rule.Prompt) == "" {
			return fmt.Errorf("rules[%d]: prompt is required", i)
		}
		if len(rule.Notify) == 0 {
			return fmt.Errorf("rules[%d]: at least one notify target is required", i)
		}
		for j, target := range rule.Notify {
			if target.Slack == "" && target.Email == "" && target.Webhook == "" {
				return fmt.Errorf("rules[%d].notify[%d]: no channel populated (want slack, email, or webhook)", i, j)
			}
		}
	}

	if needsClassifier(cfg) && cfg.Classifier.APIKey == "" {
		return fmt.Errorf("classifier: API key is required for llm rules (set %s)", cfg.Classifier.APIKeyEnv)
	}

	return nil
}

func validateFeedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("feeds: invalid URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("feeds: %q is not an absolute http(s) URL", raw)
	}
	return nil
}

func needsClassifier(cfg *Config) bool {
	for _, rule := range cfg.Rules {
		if rule.Sifter == SifterLLM {
			return true
		}
	}
	return false
}

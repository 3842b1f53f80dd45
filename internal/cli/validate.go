package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rulesift/internal/config"
	"github.com/ppiankov/rulesift/internal/store"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file, credentials, and storage",
	RunE:  validateAction,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateAction(_ *cobra.Command, _ []string) error {
	ok := true

	// Config file
	if _, err := os.Stat(configPath); err != nil {
		printCheck(false, "config file %s: %v", configPath, err)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "config file %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		printCheck(false, "config: %v", err)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "config (%d feeds, %d rules)", len(cfg.Feeds), len(cfg.Rules))

	// Classifier credentials
	if hasLLMRule(cfg) {
		if cfg.Classifier.APIKey == "" {
			printCheck(false, "classifier API key (set %s)", cfg.Classifier.APIKeyEnv)
			ok = false
		} else {
			printCheck(true, "classifier API key from %s", cfg.Classifier.APIKeyEnv)
		}
	}

	// Notification credentials per channel kind actually in use
	kinds := channelKinds(cfg)
	if kinds[config.ChannelSlack] {
		if cfg.Notify.Slack.BotToken == "" {
			printCheck(false, "slack bot token (set %s)", cfg.Notify.Slack.BotTokenEnv)
			ok = false
		} else {
			printCheck(true, "slack bot token from %s", cfg.Notify.Slack.BotTokenEnv)
		}
	}
	if kinds[config.ChannelEmail] {
		if cfg.Notify.SMTP.Addr == "" {
			printCheck(false, "smtp address (set notify.smtp.addr)")
			ok = false
		} else {
			printCheck(true, "smtp %s", cfg.Notify.SMTP.Addr)
		}
	}

	// Database
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		printCheck(false, "database: %v", err)
		ok = false
	} else {
		defer func() { _ = db.Close() }()
		printCheck(true, "database %s", cfg.Storage.Path)
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func hasLLMRule(cfg *config.Config) bool {
	for _, rule := range cfg.Rules {
		if rule.Sifter == config.SifterLLM {
			return true
		}
	}
	return false
}

func channelKinds(cfg *config.Config) map[config.ChannelKind]bool {
	kinds := make(map[config.ChannelKind]bool)
	for _, rule := range cfg.Rules {
		for _, target := range rule.Notify {
			kind, _ := target.Channel()
			kinds[kind] = true
		}
	}
	return kinds
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

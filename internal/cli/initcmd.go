package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example config file",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}
	if !wrote {
		fmt.Printf("Config %s already exists.\n", configPath)
		return nil
	}
	fmt.Printf("Initialized %s. Edit the feeds and rules, then run 'rulesift validate'.\n", configPath)
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

const exampleConfig = `# rulesift configuration

feeds:
  - "https://example.com/feed.xml"

poll_interval_minutes: 30

rules:
  - prompt: "the post announces a security vulnerability or CVE"
    sifter: llm
    notify:
      - slack: "#security"
  - prompt: "the post is about a production outage or postmortem"
    sifter: llm
    notify:
      - email: "oncall@example.com"
      - webhook: "https://hooks.example.com/outages"

classifier:
  endpoint: https://api.openai.com/v1/chat/completions
  model: gpt-4o-mini
  api_key_env: RULESIFT_API_KEY

notify:
  slack:
    bot_token_env: SLACK_BOT_TOKEN
  smtp:
    addr: "smtp.example.com:587"
    from: "rulesift@example.com"

storage:
  path: .rulesift/rulesift.db
`

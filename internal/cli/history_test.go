package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/rulesift/internal/store"
)

func TestHistoryActionEmpty(t *testing.T) {
	tmpDir := t.TempDir()

	restoreCLIState(t)
	configPath = writeHistoryConfig(t, tmpDir)

	cmd := newTestCommand()
	out, err := captureStdout(t, func() error {
		return historyAction(cmd, nil)
	})
	if err != nil {
		t.Fatalf("history action: %v", err)
	}
	if !strings.Contains(out, "No runs recorded yet") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestHistoryActionListsRunsAndCursor(t *testing.T) {
	tmpDir := t.TempDir()

	restoreCLIState(t)
	configPath = writeHistoryConfig(t, tmpDir)

	db, err := store.Open(filepath.Join(tmpDir, "rulesift.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	newest := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if _, err := db.RecordRun(context.Background(), store.RunInput{
		StartedAt:      time.Now().Add(-time.Minute),
		FinishedAt:     time.Now(),
		TotalProcessed: 14,
		Matches:        3,
		LastCreated:    &newest,
	}); err != nil {
		t.Fatalf("record run: %v", err)
	}
	_ = db.Close()

	cmd := newTestCommand()
	out, err := captureStdout(t, func() error {
		return historyAction(cmd, nil)
	})
	if err != nil {
		t.Fatalf("history action: %v", err)
	}
	if !strings.Contains(out, "14") || !strings.Contains(out, "3") {
		t.Errorf("missing run counts, got:\n%s", out)
	}
	if !strings.Contains(out, "cursor: 2026-03-02T12:00:00Z") {
		t.Errorf("missing cursor line, got:\n%s", out)
	}
}

func writeHistoryConfig(t *testing.T, dir string) string {
	t.Helper()

	dbPath := filepath.Join(dir, "rulesift.db")
	body := fmt.Sprintf(`feeds:
  - "https://example.com/feed.xml"
rules:
  - prompt: "anything"
    sifter: all
    notify:
      - webhook: "https://hooks.example.com/x"
storage:
  path: %q
`, dbPath)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/rulesift/internal/store"
)

const testFeedBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Security Feed</title>
<item><title>CVE-2026-1111 in libexample</title><description>Remote code execution</description><link>https://example.com/cve</link><pubDate>Mon, 02 Mar 2026 12:00:00 GMT</pubDate></item>
<item><title>Weekly roundup</title><description>Nothing urgent</description><link>https://example.com/roundup</link><pubDate>Sun, 01 Mar 2026 09:00:00 GMT</pubDate></item>
<item><title>Ancient news</title><description>Old</description><link>https://example.com/old</link><pubDate>Mon, 23 Feb 2026 00:00:00 GMT</pubDate></item>
</channel></rss>`

func TestSiftActionEndToEnd(t *testing.T) {
	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testFeedBody)
	}))
	defer feedSrv.Close()

	// Answers yes only for posts mentioning a CVE.
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		answer := "no"
		if strings.Contains(string(body), "CVE-") {
			answer = "yes"
		}
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, answer)
	}))
	defer llmSrv.Close()

	var mu sync.Mutex
	var deliveries []map[string]any
	hookSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode webhook payload: %v", err)
		}
		mu.Lock()
		deliveries = append(deliveries, payload)
		mu.Unlock()
	}))
	defer hookSrv.Close()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "rulesift.db")
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	cfgBody := fmt.Sprintf(`feeds:
  - %q
rules:
  - prompt: "the post announces a security vulnerability"
    sifter: llm
    notify:
      - webhook: %q
classifier:
  endpoint: %q
  api_key_env: TEST_SIFT_API_KEY
storage:
  path: %q
`, feedSrv.URL, hookSrv.URL, llmSrv.URL, dbPath)
	if err := os.WriteFile(cfgPath, []byte(cfgBody), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	t.Setenv("TEST_SIFT_API_KEY", "test-key")

	restoreCLIState(t)
	configPath = cfgPath
	siftFormat = "json"
	useCursor = false
	logger = zap.NewNop()

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	output, err := captureStdout(t, func() error {
		return siftAction(cmd, []string{"2026-03-01T00:00:00Z"})
	})
	if err != nil {
		t.Fatalf("sift action: %v", err)
	}

	var got struct {
		TotalProcessed int     `json:"TotalProcessed"`
		LastCreated    *string `json:"LastCreated"`
		MatchingPosts  []struct {
			Title               string   `json:"Title"`
			Url                 string   `json:"Url"`
			MatchReason         string   `json:"MatchReason"`
			NotificationTargets []string `json:"NotificationTargets"`
		} `json:"MatchingPosts"`
	}
	if err := json.Unmarshal([]byte(output), &got); err != nil {
		t.Fatalf("decode report: %v\n%s", err, output)
	}
	if got.TotalProcessed != 2 {
		t.Errorf("total_processed = %d, want 2", got.TotalProcessed)
	}
	if got.LastCreated == nil || !strings.HasPrefix(*got.LastCreated, "2026-03-02T12:00:00") {
		t.Errorf("last_created = %v, want 2026-03-02T12:00:00Z", got.LastCreated)
	}
	if len(got.MatchingPosts) != 1 {
		t.Fatalf("matching_posts = %d, want 1", len(got.MatchingPosts))
	}
	if got.MatchingPosts[0].Title != "CVE-2026-1111 in libexample" {
		t.Errorf("matched title = %q", got.MatchingPosts[0].Title)
	}
	if got.MatchingPosts[0].MatchReason != "the post announces a security vulnerability" {
		t.Errorf("match_reason = %q", got.MatchingPosts[0].MatchReason)
	}
	if len(got.MatchingPosts[0].NotificationTargets) != 1 ||
		!strings.HasPrefix(got.MatchingPosts[0].NotificationTargets[0], "Webhook: ") {
		t.Errorf("notification_targets = %v", got.MatchingPosts[0].NotificationTargets)
	}

	mu.Lock()
	delivered := len(deliveries)
	var first map[string]any
	if delivered > 0 {
		first = deliveries[0]
	}
	mu.Unlock()
	if delivered != 1 {
		t.Fatalf("webhook deliveries = %d, want 1", delivered)
	}
	if first["title"] != "CVE-2026-1111 in libexample" {
		t.Errorf("webhook title = %v", first["title"])
	}

	// The run and the advanced cursor are persisted.
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = db.Close() }()

	runs, err := db.RecentRuns(context.Background(), 5)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if runs[0].TotalProcessed != 2 || runs[0].Matches != 1 {
		t.Errorf("run = processed %d matches %d, want 2 and 1", runs[0].TotalProcessed, runs[0].Matches)
	}

	cursor, ok, err := db.Cursor(context.Background())
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if !ok {
		t.Fatal("cursor not stored")
	}
	want := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if !cursor.Equal(want) {
		t.Errorf("cursor = %v, want %v", cursor, want)
	}
}

func TestSiftActionLegacyMode(t *testing.T) {
	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testFeedBody)
	}))
	defer feedSrv.Close()

	var hits int
	var mu sync.Mutex
	hookSrv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
	}))
	defer hookSrv.Close()

	tmpDir := t.TempDir()
	t.Setenv("RULESIFT_WEBHOOK_URL", hookSrv.URL)

	restoreCLIState(t)
	configPath = filepath.Join(tmpDir, "does-not-exist.yaml")
	siftFormat = "json"
	useCursor = false
	logger = zap.NewNop()

	// Legacy mode keeps its state under the default storage path.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	output, err := captureStdout(t, func() error {
		return siftAction(cmd, []string{"2026-03-01T00:00:00Z", feedSrv.URL})
	})
	if err != nil {
		t.Fatalf("sift action: %v", err)
	}

	var got struct {
		TotalProcessed int `json:"TotalProcessed"`
		MatchingPosts  []struct {
			Title string `json:"Title"`
		} `json:"MatchingPosts"`
	}
	if err := json.Unmarshal([]byte(output), &got); err != nil {
		t.Fatalf("decode report: %v\n%s", err, output)
	}
	if got.TotalProcessed != 2 || len(got.MatchingPosts) != 2 {
		t.Fatalf("processed %d, matches %d, want 2 and 2", got.TotalProcessed, len(got.MatchingPosts))
	}

	mu.Lock()
	delivered := hits
	mu.Unlock()
	if delivered != 2 {
		t.Errorf("webhook deliveries = %d, want 2", delivered)
	}
}

func TestResolveSince(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := store.Open(filepath.Join(tmpDir, "rulesift.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = db.Close() }()

	restoreCLIState(t)
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	useCursor = false
	if _, err := resolveSince(cmd, nil, db); err == nil {
		t.Error("expected error without a timestamp")
	}
	if _, err := resolveSince(cmd, []string{"yesterday"}, db); err == nil {
		t.Error("expected error for a non-RFC3339 timestamp")
	}

	since, err := resolveSince(cmd, []string{"2026-03-01T00:00:00Z"}, db)
	if err != nil {
		t.Fatalf("resolve valid timestamp: %v", err)
	}
	if !since.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("since = %v", since)
	}

	useCursor = true
	if _, err := resolveSince(cmd, []string{"2026-03-01T00:00:00Z"}, db); err == nil {
		t.Error("expected error when --cursor is combined with a timestamp")
	}
	if _, err := resolveSince(cmd, nil, db); err == nil {
		t.Error("expected error when no cursor is stored")
	}

	stamp := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if _, err := db.RecordRun(context.Background(), store.RunInput{
		StartedAt:   time.Now(),
		FinishedAt:  time.Now(),
		LastCreated: &stamp,
	}); err != nil {
		t.Fatalf("record run: %v", err)
	}
	since, err = resolveSince(cmd, nil, db)
	if err != nil {
		t.Fatalf("resolve from cursor: %v", err)
	}
	if !since.Equal(stamp) {
		t.Errorf("since = %v, want %v", since, stamp)
	}
}

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

// restoreCLIState resets the package flag vars and logger after a test.
func restoreCLIState(t *testing.T) {
	t.Helper()

	oldConfigPath := configPath
	oldFormat := siftFormat
	oldCursor := useCursor
	oldNoColor := noColor
	oldLogger := logger
	t.Cleanup(func() {
		configPath = oldConfigPath
		siftFormat = oldFormat
		useCursor = oldCursor
		noColor = oldNoColor
		logger = oldLogger
	})
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out, readErr := io.ReadAll(reader)
	_ = reader.Close()
	if readErr != nil {
		t.Fatalf("read stdout pipe: %v", readErr)
	}
	return string(out), runErr
}

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestServiceSmokeWebhookToDispatch(t *testing.T) {
	port, err := freePort()
	if err != nil {
		t.Fatalf("free port: %v", err)
	}

	var mu sync.Mutex
	var bodies []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(raw))
		mu.Unlock()
	}))
	defer hook.Close()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	cfg := fmt.Sprintf(`
[service]
name = "prnotifier"
listen = "127.0.0.1:%d"
reload_enabled = false
dispatch_timeout_sec = 5
history_size = 50

[log.console]
enabled = true
level = "error"
format = "line"

[ingest.http]
enabled = true
webhook_path = "/webhook"
health_path = "/healthz"
ready_path = "/readyz"
metrics_path = "/metrics"
max_body_bytes = 1048576

[notification.merged-hook]
url = "%s"
method = "POST"
post_content = '{"pr":"${PULL_REQUEST_ID}","to":"${PULL_REQUEST_TO_BRANCH}"}'
triggers = ["MERGED"]

[button.replay]
title = "Replay"
`, port, hook.URL)

	if err := os.WriteFile(configPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	service := newServiceFromConfig(t, configPath)
	cancel, done := runService(t, service)
	defer cancel()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitReady(t, port)

	resp, err := http.Get(baseURL + "/healthz")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected health 200, got %d", resp.StatusCode)
	}

	eventJSON := []byte(`{"action":"MERGED","actor":{"name":"alice"},"pull_request":{"repo_id":"acme/widgets","id":42,"title":"Ship it","state":"MERGED","to_ref":{"branch":"main"}}}`)
	resp, err = http.Post(baseURL+"/webhook", "application/json", bytes.NewReader(eventJSON))
	if err != nil {
		t.Fatalf("webhook request: %v", err)
	}
	_, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected webhook 202, got %d", resp.StatusCode)
	}

	waitFor(t, 8*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) == 1
	})
	mu.Lock()
	if bodies[0] != `{"pr":"42","to":"main"}` {
		t.Fatalf("unexpected dispatched body %q", bodies[0])
	}
	mu.Unlock()

	resp, err = http.Get(baseURL + "/admin/outcomes")
	if err != nil {
		t.Fatalf("outcomes request: %v", err)
	}
	var outcomes []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&outcomes); err != nil {
		t.Fatalf("decode outcomes: %v", err)
	}
	_ = resp.Body.Close()
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	if outcomes[0]["notification"] != "merged-hook" {
		t.Fatalf("unexpected outcome notification %v", outcomes[0]["notification"])
	}

	// Buttons are hidden when no notification reacts to presses.
	resp, err = http.Get(baseURL + "/api/buttons?repository=acme/widgets&pull_request=42")
	if err != nil {
		t.Fatalf("buttons request: %v", err)
	}
	var views []map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		t.Fatalf("decode buttons: %v", err)
	}
	_ = resp.Body.Close()
	if len(views) != 0 {
		t.Fatalf("expected no visible buttons, got %d", len(views))
	}

	cancel()
	waitServiceStop(t, done)
}

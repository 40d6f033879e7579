package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/flowline-core/internal/infrastructure/config"
	"github.com/nerrad567/flowline-core/internal/infrastructure/database"
	"github.com/nerrad567/flowline-core/internal/infrastructure/logging"
)

const seedDefinition = `
automations:
  - id: daily-digest
    name: Daily digest
    owner_id: ops
    trigger:
      type: schedule
      cron_expression: "0 9 * * *"
    actions:
      - id: notify
        type: notify
        config:
          message: "Digest ready"
`

// writeConfig writes a config file using a database and definitions
// directory under dir. Returns the config path.
func writeConfig(t *testing.T, dir string, port int) string {
	t.Helper()

	defsDir := filepath.Join(dir, "automations")
	if err := os.MkdirAll(defsDir, 0o750); err != nil {
		t.Fatalf("creating definitions dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(defsDir, "digest.yaml"), []byte(seedDefinition), 0o600); err != nil {
		t.Fatalf("writing definition: %v", err)
	}

	body := fmt.Sprintf(`
database:
  path: %q
  wal_mode: true
  busy_timeout: 5
api:
  host: "127.0.0.1"
  port: %d
mqtt:
  enabled: false
influxdb:
  enabled: false
logging:
  level: error
  format: json
  output: stderr
scheduler:
  enabled: true
  cron_mode: exact
automations:
  definitions_dir: %q
`, filepath.Join(dir, "flowline.db"), port, defsDir)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port //nolint:forcetypeassert // tcp listener
}

func TestRunServe_InvalidConfigPath(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := runServe(ctx, &rootOptions{configPath: filepath.Join(t.TempDir(), "missing.yaml")})
	if err == nil {
		t.Fatal("runServe() with missing config should return error")
	}
}

func TestRunServe_StartAndShutdown(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	opts := &rootOptions{configPath: writeConfig(t, dir, port)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- runServe(ctx, opts) }()

	base := fmt.Sprintf("http://127.0.0.1:%d/api/v1", port)
	client := &http.Client{Timeout: time.Second}

	var healthy bool
	for deadline := time.Now().Add(5 * time.Second); time.Now().Before(deadline); {
		resp, err := client.Get(base + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				healthy = true
				break
			}
		}
		select {
		case err := <-errCh:
			t.Fatalf("runServe() exited early: %v", err)
		case <-time.After(50 * time.Millisecond):
		}
	}
	if !healthy {
		t.Fatal("server did not become healthy")
	}

	resp, err := client.Get(base + "/automations/daily-digest")
	if err != nil {
		t.Fatalf("GET automation: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET seeded automation status = %d, want 200", resp.StatusCode)
	}
	var got struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding automation: %v", err)
	}
	if got.ID != "daily-digest" || got.Status != "active" {
		t.Errorf("seeded automation = %+v, want daily-digest/active", got)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("runServe() on shutdown = %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runServe() did not return after cancel")
	}
}

func TestSeedDefinitions_SkipsExisting(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	cfg := config.Default()
	log := logging.NewWithWriter(io.Discard, cfg.Logging, "test")
	engine, err := buildEngine(cfg, db, nil, log)
	if err != nil {
		t.Fatalf("buildEngine() error = %v", err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "digest.yaml"), []byte(seedDefinition), 0o600); err != nil {
		t.Fatalf("writing definition: %v", err)
	}

	created, err := seedDefinitions(ctx, engine, dir)
	if err != nil || created != 1 {
		t.Fatalf("first seed = (%d, %v), want (1, nil)", created, err)
	}
	created, err = seedDefinitions(ctx, engine, dir)
	if err != nil || created != 0 {
		t.Fatalf("second seed = (%d, %v), want (0, nil)", created, err)
	}

	if created, err := seedDefinitions(ctx, engine, ""); err != nil || created != 0 {
		t.Errorf("seed with no dir = (%d, %v), want (0, nil)", created, err)
	}
}

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"menuboard/internal/config"
	"menuboard/internal/core"
)

const menuJSON = `{
  "categories": [
    {"categoryId": 1, "parentId": null, "description": "Drinks", "order": 0, "enabled": true},
    {"categoryId": 2, "parentId": 1, "description": "Beer", "order": 2, "enabled": false},
    {"categoryId": 3, "parentId": null, "description": "Desserts", "order": 1, "enabled": true}
  ],
  "products": [
    {"productId": 10, "categoryId": 1, "label": "Cola", "order": 0, "enabled": true},
    {"productId": 11, "categoryId": 1, "label": "Lemonade", "order": 1, "enabled": true},
    {"productId": 12, "categoryId": 2, "label": "Lager", "order": 0, "enabled": true}
  ]
}`

// isolate points every backend at a fresh temp dir and returns the -env flag
// for a dotenv file that does not exist.
func isolate(t *testing.T, driver string) []string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MENUBOARD_STORAGE_DRIVER", driver)
	t.Setenv("MENUBOARD_SQLITE_PATH", filepath.Join(dir, "menu.db"))
	t.Setenv("MENUBOARD_DELETE_POLICY", "")
	t.Setenv("MENUBOARD_BLOB_DRIVER", "memory")
	t.Setenv("MENUBOARD_LOG_LEVEL", "error")
	t.Setenv("MENUBOARD_METRICS", "false")
	return []string{"-env", filepath.Join(dir, "absent.env")}
}

func writeMenu(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "menu.json")
	if err := os.WriteFile(path, []byte(menuJSON), 0o600); err != nil {
		t.Fatalf("write menu: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLIUsage(t *testing.T) {
	env := isolate(t, "memory")
	if code, _, stderr := runCLI(t, env...); code != 2 || !strings.Contains(stderr, "usage: menuboard") {
		t.Fatalf("expected usage, got %d %q", code, stderr)
	}
	if code, _, stderr := runCLI(t, append(env, "bake")...); code != 2 || !strings.Contains(stderr, `unknown command "bake"`) {
		t.Fatalf("expected unknown command, got %d %q", code, stderr)
	}
	if code, _, _ := runCLI(t, append(env, "pictogram")...); code != 1 {
		t.Fatalf("expected missing flag failure, got %d", code)
	}
}

func TestTreeFromFile(t *testing.T) {
	env := isolate(t, "memory")
	code, stdout, stderr := runCLI(t, append(env, "tree", "-file", writeMenu(t))...)
	if code != 0 {
		t.Fatalf("tree failed: %d %s", code, stderr)
	}
	want := []string{
		"+ Drinks [category 1, order 0]",
		"  - Cola [product 10, order 0]",
		"  - Lemonade [product 11, order 1]",
		"  + Beer [category 2, order 2] (disabled)",
		"    - Lager [product 12, order 0]",
		"+ Desserts [category 3, order 1]",
	}
	got := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(got) != len(want) {
		t.Fatalf("unexpected tree:\n%s", stdout)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: want %q got %q", i, want[i], got[i])
		}
	}
}

func TestSyncPersistsAndExports(t *testing.T) {
	env := isolate(t, "sqlite")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/menu" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(menuJSON))
	}))
	t.Cleanup(srv.Close)

	code, stdout, stderr := runCLI(t, append(env, "sync", "-api", srv.URL)...)
	if code != 0 {
		t.Fatalf("sync failed: %d %s", code, stderr)
	}
	if strings.TrimSpace(stdout) != "synced 3 categories, 3 products" {
		t.Fatalf("unexpected sync output %q", stdout)
	}

	code, stdout, stderr = runCLI(t, append(env, "export", "-compact")...)
	if code != 0 {
		t.Fatalf("export failed: %d %s", code, stderr)
	}
	if !strings.Contains(stdout, `"label":"Lager"`) {
		t.Fatalf("snapshot missing persisted product: %s", stdout)
	}

	t.Setenv("MENUBOARD_BLOB_DRIVER", "memory")
	code, stdout, stderr = runCLI(t, append(env, "pictogram", "-product", "10", "-file", writeMenu(t), "-type", "image/png")...)
	if code != 0 {
		t.Fatalf("pictogram failed: %d %s", code, stderr)
	}
	if !strings.HasPrefix(strings.TrimSpace(stdout), "pictograms/10/") {
		t.Fatalf("unexpected pictogram url %q", stdout)
	}
}

func TestSyncReportsRemoteFailure(t *testing.T) {
	env := isolate(t, "memory")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("MENUBOARD_LOG_LEVEL", "info")

	code, _, stderr := runCLI(t, append(env, "sync", "-api", srv.URL)...)
	if code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
	if !strings.Contains(stderr, "status 500") {
		t.Fatalf("expected remote status in log, got %s", stderr)
	}
}

type closingStore struct {
	*core.MemoryStore
	closed int
}

func (s *closingStore) Close() error {
	s.closed++
	return nil
}

func TestOpenServiceClosesStoreWhenMetricsFail(t *testing.T) {
	registry := prometheus.NewRegistry()
	if _, err := core.NewPrometheusMetricsRecorder(registry); err != nil {
		t.Fatalf("register: %v", err)
	}
	store := &closingStore{MemoryStore: core.NewMemoryStore(nil)}
	a := &app{
		cfg:      &config.Config{Metrics: true},
		stdout:   io.Discard,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		registry: registry,
		openStore: func(context.Context, *core.RulesEngine) (core.PersistentStore, error) {
			return store, nil
		},
	}

	if _, _, err := a.openService(context.Background()); err == nil {
		t.Fatalf("expected duplicate metrics registration to fail")
	}
	if store.closed != 1 {
		t.Fatalf("expected store closed once, got %d", store.closed)
	}

	a.registry = nil
	svc, closeFn, err := a.openService(context.Background())
	if err != nil {
		t.Fatalf("open service: %v", err)
	}
	if svc == nil {
		t.Fatalf("expected service")
	}
	closeFn()
	if store.closed != 2 {
		t.Fatalf("expected close func to close the store, got %d", store.closed)
	}
}

package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/config"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/testutil"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

const usersTOML = `
[[users]]
username = "alice"
password = "alice-password"
`

const seedYAML = `
provider:
  key: acme
  name: Acme
services:
  - key: acme-orders
    name: Orders
    category_uri: urn:cat:orders
    input_uris: [urn:in:a, urn:in:b]
    output_uris: [urn:out:x]
  - key: acme-billing
    name: Billing
    category_uri: urn:cat:billing
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	users := filepath.Join(dir, "users.toml")
	require.NoError(t, os.WriteFile(users, []byte(usersTOML), 0o600))

	seedDir := filepath.Join(dir, "seed")
	require.NoError(t, os.MkdirAll(seedDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "acme.yaml"), []byte(seedYAML), 0o600))

	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.RateLimit.Enabled = false
	cfg.Identity.UsersFile = users
	cfg.Identity.BcryptCost = 4
	cfg.Seed.Dir = seedDir
	cfg.Index.SnapshotPath = filepath.Join(dir, "index.json.zst")
	return cfg
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		data, err := sonic.Marshal(body)
		require.NoError(t, err)
		buf.Write(data)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewServerRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Index.ScanWorkers = 0

	_, err := NewServer(cfg)
	testutil.AssertFault(t, err, fault.Configuration)
}

func TestNewServerMissingUsersFile(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Identity.UsersFile = filepath.Join(t.TempDir(), "absent.toml")

	_, err := NewServer(cfg)
	testutil.AssertFault(t, err, fault.Configuration)
}

func TestServerLifecycle(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Prepare(ctx))

	h := srv.Router()

	w := do(t, h, http.MethodGet, "/services/acme-orders", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/sessions", "", types.LoginRequest{Username: "alice", Password: "alice-password"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var login types.LoginResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &login))

	w = do(t, h, http.MethodPost, "/index/rfps", login.Token, types.RFPRequest{
		URI:               "urn:rfp:orders",
		CategoryURI:       "urn:cat:orders",
		RequiredInputURIs: []string{"urn:in:a"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"affected":["acme-orders"],"count":1}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "registry_index_operations_total")

	w = do(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	require.NoError(t, srv.Close())
	assert.FileExists(t, cfg.Index.SnapshotPath)

	// a second instance restores the index from the snapshot
	restarted, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, restarted.Prepare(ctx))
	defer restarted.Close()

	keys, err := restarted.Index().Query("urn:rfp:orders", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme-orders"}, keys)
	require.NoError(t, restarted.Index().CheckInvariant())
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	assert.NoError(t, <-done)
}

func TestNewServerScriptedMatchPolicy(t *testing.T) {
	cfg := testConfig(t)
	script := filepath.Join(t.TempDir(), "match.js")
	require.NoError(t, os.WriteFile(script, []byte(`function match(s, r) { return s.category_uri === r.category_uri; }`), 0o600))
	cfg.Index.MatchScript = script

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Prepare(context.Background()))
	defer srv.Close()

	affected, err := srv.Index().AddRFP(context.Background(), types.RFPProfile{
		URI:               "urn:rfp:loose",
		CategoryURI:       "urn:cat:orders",
		RequiredInputURIs: []string{"urn:in:unknown"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme-orders"}, affected)

	cfg.Index.MatchScript = filepath.Join(t.TempDir(), "missing.js")
	_, err = NewServer(cfg)
	testutil.AssertFault(t, err, fault.Configuration)
}

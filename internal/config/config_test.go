package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the Keychain interface.
type mockKeychain struct {
	values map[string]string
	setErr error
}

func newMockKeychain() *mockKeychain {
	return &mockKeychain{values: map[string]string{}}
}

func (m *mockKeychain) Get(service, account string) (string, error) {
	v, ok := m.values[service+"/"+account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[service+"/"+account] = value
	return nil
}

// writeTempConfig writes a JSON config file and returns a file backend over it.
func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	b := &fileBackend{path: path, data: make(map[string]any)}
	b.load()
	return b
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, `{}`), newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Backend.URL != "http://localhost:3000" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.BackendTimeout() != 30*time.Second {
		t.Errorf("BackendTimeout = %v, want 30s", cfg.BackendTimeout())
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Upload.MaxBytes != 5<<20 {
		t.Errorf("Upload.MaxBytes = %d, want 5MB", cfg.Upload.MaxBytes)
	}
	if cfg.Upload.Concurrency != 4 {
		t.Errorf("Upload.Concurrency = %d, want 4", cfg.Upload.Concurrency)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

// TestFileParsing verifies that fields are correctly read from the JSON file.
func TestFileParsing(t *testing.T) {
	clearEnv(t)

	b := writeTempConfig(t, `{
		"backend.url": "https://api.example.com",
		"backend.timeout": "10s",
		"assets.public_url": "https://cdn.example.com",
		"storage.data_dir": "/tmp/folio-test",
		"server.port": 5000,
		"upload.max_bytes": "1048576",
		"upload.concurrency": 2
	}`)
	cfg, err := loadWith(b, newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Backend.URL != "https://api.example.com" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.BackendTimeout() != 10*time.Second {
		t.Errorf("BackendTimeout = %v", cfg.BackendTimeout())
	}
	if cfg.Assets.PublicURL != "https://cdn.example.com" {
		t.Errorf("Assets.PublicURL = %q", cfg.Assets.PublicURL)
	}
	if cfg.Storage.DataDir != "/tmp/folio-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Upload.MaxBytes != 1<<20 {
		t.Errorf("Upload.MaxBytes = %d", cfg.Upload.MaxBytes)
	}
	if cfg.Upload.Concurrency != 2 {
		t.Errorf("Upload.Concurrency = %d", cfg.Upload.Concurrency)
	}
}

func TestInvalidInteger(t *testing.T) {
	clearEnv(t)

	_, err := loadWith(writeTempConfig(t, `{"server.port": 12.5}`), newMockKeychain())
	if err == nil {
		t.Fatal("expected error for fractional port")
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("FOLIO_BACKEND_URL", "https://env.example.com")
	t.Setenv("FOLIO_SERVER_PORT", "6000")
	t.Setenv("FOLIO_BACKEND_TIMEOUT", "not-a-duration")

	b := writeTempConfig(t, `{"backend.url": "https://file.example.com", "backend.timeout": "5s"}`)
	cfg, err := loadWith(b, newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Backend.URL != "https://env.example.com" {
		t.Errorf("Backend.URL = %q, want env value", cfg.Backend.URL)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Backend.Timeout != "5s" {
		t.Errorf("Backend.Timeout = %q, invalid env value should be ignored", cfg.Backend.Timeout)
	}
}

// TestTokenFromKeychain verifies the secret store is consulted when no token is in env.
func TestTokenFromKeychain(t *testing.T) {
	clearEnv(t)

	kc := newMockKeychain()
	kc.values["folio/backend_token"] = "keychain-secret"

	cfg, err := loadWith(writeTempConfig(t, `{}`), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.Token != "keychain-secret" {
		t.Errorf("Backend.Token = %q, want keychain value", cfg.Backend.Token)
	}

	t.Setenv("FOLIO_BACKEND_TOKEN", "env-secret")
	cfg, _ = loadWith(writeTempConfig(t, `{}`), kc)
	if cfg.Backend.Token != "env-secret" {
		t.Errorf("Backend.Token = %q, env should win", cfg.Backend.Token)
	}
}

// TestTokenIgnoredInConfigFile verifies secrets are never read from the plain config file.
func TestTokenIgnoredInConfigFile(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, `{"backend.token": "plain"}`), newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.Token != "" {
		t.Errorf("Backend.Token = %q, want empty", cfg.Backend.Token)
	}
}

func TestRequireBackend(t *testing.T) {
	cfg := defaults()
	err := cfg.RequireBackend()
	if err == nil || !strings.Contains(err.Error(), "missing required config") {
		t.Fatalf("error = %v, want missing required config", err)
	}
	cfg.Backend.Token = "t"
	if err := cfg.RequireBackend(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSetKey(t *testing.T) {
	b := writeTempConfig(t, `{}`)
	kc := newMockKeychain()

	if err := setKeyWith(b, kc, "server.port", "7000"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}
	if v, ok, _ := b.GetInt("server.port"); !ok || v != 7000 {
		t.Errorf("server.port = %d (ok=%v)", v, ok)
	}
	if err := setKeyWith(b, kc, "server.port", "abc"); err == nil {
		t.Error("non-integer port accepted")
	}
	if err := setKeyWith(b, kc, "backend.timeout", "forever"); err == nil {
		t.Error("invalid duration accepted")
	}
	if err := setKeyWith(b, kc, "nope", "x"); err == nil {
		t.Error("unknown key accepted")
	}

	if err := setKeyWith(b, kc, "backend.token", "s3cret"); err != nil {
		t.Fatalf("setting secret: %v", err)
	}
	if kc.values["folio/backend_token"] != "s3cret" {
		t.Error("secret not stored in keychain")
	}
	if _, ok, _ := b.GetString("backend.token"); ok {
		t.Error("secret written to plain config file")
	}

	// The file backend persists to disk.
	reloaded := &fileBackend{path: b.path, data: make(map[string]any)}
	reloaded.load()
	if v, ok, _ := reloaded.GetInt("server.port"); !ok || v != 7000 {
		t.Errorf("reloaded server.port = %d (ok=%v)", v, ok)
	}
}

func TestShowAll_MasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Backend.Token = "s3cret"

	for _, k := range ShowAll(cfg) {
		if strings.Contains(k.Value, "s3cret") {
			t.Errorf("secret leaked in %s", k.Key)
		}
		if k.Key == "backend.token" && k.Value != "(set)" {
			t.Errorf("backend.token = %q, want (set)", k.Value)
		}
	}
	if len(ValidKeys()) != len(specs) {
		t.Errorf("ValidKeys = %v", ValidKeys())
	}
}

func TestGetAPIToken(t *testing.T) {
	t.Setenv("FOLIO_API_TOKEN", "")
	kc := newMockKeychain()

	tok, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(tok) != 32 {
		t.Errorf("token length = %d, want 32", len(tok))
	}
	again, _ := GetAPIToken(kc)
	if again != tok {
		t.Error("token not reused")
	}

	t.Setenv("FOLIO_API_TOKEN", "from-env")
	if got, _ := GetAPIToken(kc); got != "from-env" {
		t.Errorf("token = %q, want env value", got)
	}

	t.Setenv("FOLIO_API_TOKEN", "")
	broken := newMockKeychain()
	broken.setErr = errors.New("locked")
	if _, err := GetAPIToken(broken); err == nil {
		t.Error("expected error when token cannot be stored")
	}
}

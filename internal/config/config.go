package config

import (
	"fmt"
	"time"
)

type Config struct {
	Backend BackendConfig
	Assets  AssetsConfig
	Storage StorageConfig
	Server  ServerConfig
	Log     LogConfig
	Upload  UploadConfig
}

type BackendConfig struct {
	URL     string
	Token   string
	Timeout string
}

type AssetsConfig struct {
	// PublicURL is prepended to object keys of direct-to-storage uploads.
	PublicURL string
}

type StorageConfig struct {
	DataDir string
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

type UploadConfig struct {
	MaxBytes    int
	Concurrency int
}

func defaults() Config {
	return Config{
		Backend: BackendConfig{
			URL:     "http://localhost:3000",
			Timeout: "30s",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Log: LogConfig{
			Level: "info",
		},
		Upload: UploadConfig{
			MaxBytes:    5 << 20,
			Concurrency: 4,
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: dev.folio.admin) and secrets
// live in the macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/folio/config.json
// and secrets are kept in $XDG_DATA_HOME/folio/secrets.json.
//
// Environment variables (FOLIO_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := applySecrets(&cfg, kc); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// RequireBackend reports a missing backend URL or token. Commands that talk
// to the portfolio backend call it before building a client.
func (c Config) RequireBackend() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("missing required config: backend URL. Set it with `folio config set backend.url <url>` or FOLIO_BACKEND_URL")
	}
	if c.Backend.Token == "" {
		return fmt.Errorf("missing required config: backend token. " +
			"Set it with `folio config set backend.token <token>` or FOLIO_BACKEND_TOKEN" + tokenHint())
	}
	return nil
}

// BackendTimeout parses backend.timeout, falling back to 30s.
func (c Config) BackendTimeout() time.Duration {
	d, err := time.ParseDuration(c.Backend.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

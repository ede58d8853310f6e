package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultAPIURL      = "http://localhost:8080/api/v1"
	defaultHTTPTimeout = 15 * time.Second
	defaultBiometry    = "none"
	defaultDataDirName = ".brokerline"
)

// ClientConfig configures the terminal client that hosts the PIN flow.
type ClientConfig struct {
	APIURL      string
	DataDir     string
	VaultKey    string
	DeviceName  string
	Biometry    string
	LogLevel    string
	HTTPTimeout time.Duration
}

// LoadClient reads client configuration from the environment.
func LoadClient() (ClientConfig, error) {
	cfg := ClientConfig{
		APIURL:     strings.TrimRight(getEnv("BROKERLINE_API_URL", defaultAPIURL), "/"),
		DataDir:    os.Getenv("BROKERLINE_DATA_DIR"),
		VaultKey:   os.Getenv("BROKERLINE_VAULT_KEY"),
		DeviceName: os.Getenv("BROKERLINE_DEVICE_NAME"),
		Biometry:   strings.ToLower(getEnv("BROKERLINE_BIOMETRY", defaultBiometry)),
		LogLevel:   strings.ToLower(getEnv("LOG_LEVEL", "warn")),
	}

	timeout, err := durationEnv("BROKERLINE_HTTP_TIMEOUT", defaultHTTPTimeout)
	if err != nil {
		return ClientConfig{}, err
	}
	cfg.HTTPTimeout = timeout

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ClientConfig{}, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, defaultDataDirName)
	}

	if cfg.DeviceName == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "terminal"
		}
		cfg.DeviceName = host
	}

	switch cfg.Biometry {
	case "none", "fingerprint", "face":
	default:
		return ClientConfig{}, fmt.Errorf("invalid BROKERLINE_BIOMETRY %q", cfg.Biometry)
	}

	return cfg, nil
}

// LocalStorePath is where the PIN and phone live.
func (c ClientConfig) LocalStorePath() string {
	return filepath.Join(c.DataDir, "local", "credentials.json")
}

// VaultPath is where the sealed session tokens and device secrets live.
func (c ClientConfig) VaultPath() string {
	return filepath.Join(c.DataDir, "vault", "vault.sealed")
}

// EnrollmentsPath is where biometric enrollment records live.
func (c ClientConfig) EnrollmentsPath() string {
	return filepath.Join(c.DataDir, "local", "biometrics.json")
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultClientConfigPath = "~/.config/tripmate/config.toml"
	defaultDataDir          = "~/.local/share/tripmate"
	defaultServerURL        = "http://localhost:8080"
	defaultRatesURL         = "https://open.er-api.com/v6/latest/GBP"
	defaultDebounce         = 800 * time.Millisecond
)

// Client is the device configuration. Command-line flags override it.
type Client struct {
	ServerURL string
	UserID    string
	DataDir   string
	Debounce  time.Duration
	RatesURL  string
}

// LoadClient reads the TOML file at path (DefaultClientConfigPath when
// empty). A missing file yields defaults; a malformed one is an error.
func LoadClient(path string) (Client, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Client{}, err
	}

	cfg := Client{
		ServerURL: defaultServerURL,
		DataDir:   mustExpand(defaultDataDir),
		Debounce:  defaultDebounce,
		RatesURL:  defaultRatesURL,
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Client{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		ServerURL  string `toml:"server_url"`
		UserID     string `toml:"user_id"`
		DataDir    string `toml:"data_dir"`
		DebounceMS int    `toml:"debounce_ms"`
		RatesURL   string `toml:"rates_url"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Client{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.ServerURL); v != "" {
		cfg.ServerURL = strings.TrimRight(v, "/")
	}
	cfg.UserID = strings.TrimSpace(raw.UserID)
	if v := strings.TrimSpace(raw.DataDir); v != "" {
		cfg.DataDir = mustExpand(v)
	}
	if raw.DebounceMS > 0 {
		cfg.Debounce = time.Duration(raw.DebounceMS) * time.Millisecond
	}
	if v := strings.TrimSpace(raw.RatesURL); v != "" {
		cfg.RatesURL = v
	}
	return cfg, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(DefaultClientConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// expandPath resolves a leading "~" and makes path absolute.
func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}

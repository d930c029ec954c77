// Package config resolves runtime configuration from .env.local, CALLKIT_*
// environment variables and an optional JSON settings file.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"callkit/audio"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
)

const (
	DefaultEnvFile      = ".env.local"
	DefaultSettingsPath = "./callkit.json"
)

// Config is the resolved configuration of a callkit process.
type Config struct {
	APIKey      string
	APIURL      string
	AgentID     string
	TestMode    bool
	RetryDelay  time.Duration
	MaxAttempts int
	LogLevel    string
	LogDir      string
	MonitorURL  string
	MetricsAddr string

	SettingsPath string
	Settings     Settings
}

// Settings is the JSON settings file. It carries what does not fit in an
// environment variable.
type Settings struct {
	AgentID     string                  `json:"agent_id,omitempty"`
	Metadata    string                  `json:"metadata,omitempty"`
	Config      map[string]any          `json:"config,omitempty"`
	Environment any                     `json:"environment,omitempty"`
	Audio       *audio.CaptureOverrides `json:"audio,omitempty"`
	LiveKit     *LiveKitSettings        `json:"livekit,omitempty"`
}

// LiveKitSettings allow joining a self-hosted room directly with a locally
// minted token, bypassing negotiation.
type LiveKitSettings struct {
	URL       string `json:"url"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	Room      string `json:"room"`
	Identity  string `json:"identity,omitempty"`
}

// Enabled reports whether the settings are complete enough to mint a token.
func (l *LiveKitSettings) Enabled() bool {
	return l != nil && l.URL != "" && l.APIKey != "" && l.APISecret != "" && l.Room != ""
}

// Load reads .env.local when present, then the environment, then the settings
// file. A missing env file or default settings file is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load %s: %w", DefaultEnvFile, err)
	}
	return FromEnv()
}

// FromEnv resolves configuration from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		APIKey:       envOrDefault("CALLKIT_API_KEY", ""),
		APIURL:       envOrDefault("CALLKIT_API_URL", ""),
		AgentID:      envOrDefault("CALLKIT_AGENT_ID", ""),
		TestMode:     envOrDefaultBool("CALLKIT_TEST_MODE", false),
		RetryDelay:   time.Duration(envOrDefaultInt("CALLKIT_RETRY_DELAY_MS", 1000)) * time.Millisecond,
		MaxAttempts:  envOrDefaultInt("CALLKIT_MAX_ATTEMPTS", 3),
		LogLevel:     envOrDefault("CALLKIT_LOG_LEVEL", "info"),
		LogDir:       envOrDefault("CALLKIT_LOG_DIR", ""),
		MonitorURL:   envOrDefault("CALLKIT_MONITOR_URL", ""),
		MetricsAddr:  envOrDefault("CALLKIT_METRICS_ADDR", ""),
		SettingsPath: envOrDefault("CALLKIT_SETTINGS_PATH", ""),
	}

	switch b64 := envOrDefault("CALLKIT_SETTINGS_B64", ""); {
	case b64 != "":
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return cfg, fmt.Errorf("config: decode CALLKIT_SETTINGS_B64: %w", err)
		}
		s, err := SettingsFromJSON(data)
		if err != nil {
			return cfg, err
		}
		cfg.Settings = s
	case cfg.SettingsPath != "":
		s, err := SettingsFromFile(cfg.SettingsPath)
		if err != nil {
			return cfg, err
		}
		cfg.Settings = s
	default:
		s, err := SettingsFromFile(DefaultSettingsPath)
		if err == nil {
			cfg.Settings = s
			cfg.SettingsPath = DefaultSettingsPath
		} else if !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
	}

	if cfg.AgentID == "" {
		cfg.AgentID = cfg.Settings.AgentID
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	return cfg, nil
}

// SettingsFromJSON parses a settings document.
func SettingsFromJSON(data []byte) (Settings, error) {
	var s Settings
	if err := sonic.ConfigStd.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("settings: %w", err)
	}
	return s, nil
}

// SettingsFromFile reads and parses a settings file.
func SettingsFromFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: read %q: %w", path, err)
	}
	return SettingsFromJSON(data)
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

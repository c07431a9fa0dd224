// Package config loads and manages cvchat configuration.
// Sources in priority order (highest first):
//  1. Command-line flags (applied by cmd)
//  2. Environment variables (ANTHROPIC_API_KEY, LLM_API_KEY, PASSWORD_HASH, CVCHAT_*, CVCHAT_OTEL_* ...)
//  3. The file given by --config
//  4. ~/.config/cvchat/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig holds per-provider settings.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// AuthConfig controls the password gate.
type AuthConfig struct {
	// PasswordHash is a bcrypt hash; overridden by the PASSWORD_HASH env var.
	PasswordHash string `yaml:"password_hash"`

	// AccessPassword is the plain fallback secret. Local use only.
	AccessPassword string `yaml:"access_password"`

	// SessionTimeout in seconds.
	SessionTimeout int `yaml:"session_timeout"`

	// TokenScheme: "random" (default) | "legacy".
	TokenScheme string `yaml:"token_scheme"`
}

// ChatConfig bounds each provider exchange.
type ChatConfig struct {
	MaxTokens     int `yaml:"max_tokens"`
	HistoryWindow int `yaml:"history_window"`
}

// KnowledgeConfig locates the resume text.
type KnowledgeConfig struct {
	File    string `yaml:"file"`
	Subject string `yaml:"subject"`
}

// ServerConfig configures `cvchat serve`.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	CookieSecret string `yaml:"cookie_secret"`
}

// TelemetryConfig selects where trace spans go.
type TelemetryConfig struct {
	// Exporter: "none" (default) | "stdout" | "otlp".
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Config is the complete cvchat configuration.
type Config struct {
	Provider    string                     `yaml:"provider"`
	Model       string                     `yaml:"model"`
	Providers   map[string]*ProviderConfig `yaml:"providers"`
	Auth        AuthConfig                 `yaml:"auth"`
	Chat        ChatConfig                 `yaml:"chat"`
	Knowledge   KnowledgeConfig            `yaml:"knowledge"`
	Server      ServerConfig               `yaml:"server"`
	Telemetry   TelemetryConfig            `yaml:"telemetry"`
	SecretsFile string                     `yaml:"secrets_file"`
	LogLevel    string                     `yaml:"log_level"`
}

const (
	DefaultSessionTimeout = 3600
	DefaultMaxTokens      = 1000
	DefaultHistoryWindow  = 10
	DefaultSubject        = "the candidate"
	DefaultKnowledgeFile  = "data/cv_data.txt"
	DefaultAddr           = ":8080"

	TokenSchemeRandom = "random"
	TokenSchemeLegacy = "legacy"

	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// KnownProviderBaseURLs maps OpenAI-compatible provider names to their base URLs.
var KnownProviderBaseURLs = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"deepseek": "https://api.deepseek.com",
	"groq":     "https://api.groq.com/openai/v1",
	"mistral":  "https://api.mistral.ai/v1",
}

// KnownProviderModels holds the default model per provider.
var KnownProviderModels = map[string]string{
	"anthropic": "claude-3-haiku-20240307",
	"openai":    "gpt-4o-mini",
	"deepseek":  "deepseek-chat",
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "anthropic",
		Providers: make(map[string]*ProviderConfig),
		Auth: AuthConfig{
			SessionTimeout: DefaultSessionTimeout,
			TokenScheme:    TokenSchemeRandom,
		},
		Chat: ChatConfig{
			MaxTokens:     DefaultMaxTokens,
			HistoryWindow: DefaultHistoryWindow,
		},
		Knowledge: KnowledgeConfig{
			File:    DefaultKnowledgeFile,
			Subject: DefaultSubject,
		},
		Server: ServerConfig{
			Addr: DefaultAddr,
		},
		Telemetry: TelemetryConfig{
			Exporter:    ExporterNone,
			SampleRatio: 1,
		},
		SecretsFile: defaultSecretsFile(),
		LogLevel:    "info",
	}
}

// Load reads the config file (falling back to defaults when absent) and
// applies environment overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		if dir := configDir(); dir != "" {
			configPath = filepath.Join(dir, "config.yaml")
		}
	}

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
			}
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	applyEnvOverrides(cfg, os.Getenv)
	cfg.normalize()
	return cfg, nil
}

// GetProviderConfig returns the named provider's config, or an empty one.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok && pc != nil {
		return pc
	}
	return &ProviderConfig{}
}

// SessionTimeout returns the auth timeout as a duration.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Auth.SessionTimeout) * time.Second
}

// normalize replaces out-of-range values with defaults.
func (c *Config) normalize() {
	if c.Auth.SessionTimeout <= 0 {
		c.Auth.SessionTimeout = DefaultSessionTimeout
	}
	switch c.Auth.TokenScheme {
	case TokenSchemeRandom, TokenSchemeLegacy:
	default:
		c.Auth.TokenScheme = TokenSchemeRandom
	}
	if c.Chat.MaxTokens <= 0 {
		c.Chat.MaxTokens = DefaultMaxTokens
	}
	if c.Chat.HistoryWindow <= 0 {
		c.Chat.HistoryWindow = DefaultHistoryWindow
	}
	if strings.TrimSpace(c.Knowledge.Subject) == "" {
		c.Knowledge.Subject = DefaultSubject
	}
	if c.Knowledge.File == "" {
		c.Knowledge.File = DefaultKnowledgeFile
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	c.Telemetry.Exporter = strings.ToLower(strings.TrimSpace(c.Telemetry.Exporter))
	switch c.Telemetry.Exporter {
	case ExporterStdout, ExporterOTLP:
	default:
		c.Telemetry.Exporter = ExporterNone
	}
	if c.Telemetry.SampleRatio <= 0 || c.Telemetry.SampleRatio > 1 {
		c.Telemetry.SampleRatio = 1
	}
}

func (c *Config) providerEntry(name string) *ProviderConfig {
	if c.Providers[name] == nil {
		c.Providers[name] = &ProviderConfig{}
	}
	return c.Providers[name]
}

// applyEnvOverrides copies environment variables onto cfg.
func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	// Provider selection first so LLM_* lands on the right entry.
	if v := getenv("CVCHAT_PROVIDER"); v != "" {
		cfg.Provider = v
	}

	if v := getenv("LLM_API_KEY"); v != "" {
		cfg.providerEntry(cfg.Provider).APIKey = v
	}
	if v := getenv("LLM_BASE_URL"); v != "" {
		cfg.providerEntry(cfg.Provider).BaseURL = v
	}
	if v := getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.providerEntry("anthropic").APIKey = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" {
		cfg.providerEntry("openai").APIKey = v
	}

	if v := getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := getenv("CVCHAT_MODEL"); v != "" {
		cfg.Model = v
	}

	if v := getenv("PASSWORD_HASH"); v != "" {
		cfg.Auth.PasswordHash = v
	}
	if v := getenv("ACCESS_PASSWORD"); v != "" {
		cfg.Auth.AccessPassword = v
	}
	if v := getenv("CVCHAT_TOKEN_SCHEME"); v != "" {
		cfg.Auth.TokenScheme = strings.ToLower(v)
	}
	setInt(getenv("CVCHAT_SESSION_TIMEOUT"), &cfg.Auth.SessionTimeout)
	setInt(getenv("CVCHAT_MAX_TOKENS"), &cfg.Chat.MaxTokens)
	setInt(getenv("CVCHAT_HISTORY_WINDOW"), &cfg.Chat.HistoryWindow)

	if v := getenv("CVCHAT_KNOWLEDGE_FILE"); v != "" {
		cfg.Knowledge.File = v
	}
	if v := getenv("CVCHAT_SUBJECT"); v != "" {
		cfg.Knowledge.Subject = v
	}
	if v := getenv("CVCHAT_SECRETS_FILE"); v != "" {
		cfg.SecretsFile = v
	}
	if v := getenv("CVCHAT_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := getenv("CVCHAT_COOKIE_SECRET"); v != "" {
		cfg.Server.CookieSecret = v
	}
	if v := getenv("CVCHAT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := getenv("CVCHAT_OTEL_EXPORTER"); v != "" {
		cfg.Telemetry.Exporter = v
	}
	if v := getenv("CVCHAT_OTEL_ENDPOINT"); v != "" {
		cfg.Telemetry.Endpoint = v
	}
	if v := getenv("CVCHAT_OTEL_INSECURE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Telemetry.Insecure = b
		}
	}
	if v := getenv("CVCHAT_OTEL_SAMPLE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.Telemetry.SampleRatio = f
		}
	}
}

// setInt parses v into dst, leaving dst untouched on empty or invalid input.
func setInt(v string, dst *int) {
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		*dst = n
	}
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cvchat")
}

func defaultSecretsFile() string {
	if dir := configDir(); dir != "" {
		return filepath.Join(dir, "secrets.yaml")
	}
	return ""
}

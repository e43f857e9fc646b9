// Package config loads daemon configuration from ~/.matlab-dojo, with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all daemon settings.
type Config struct {
	Daemon  DaemonConfig  `yaml:"daemon"`
	Content ContentConfig `yaml:"content"`
	Storage StorageConfig `yaml:"storage"`
	LLM     LLMConfig     `yaml:"llm"`
	Chat    ChatConfig    `yaml:"chat"`
	Exam    ExamConfig    `yaml:"exam"`
	Events  EventsConfig  `yaml:"events"`
}

// DaemonConfig holds HTTP server settings.
type DaemonConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`
}

// ContentConfig locates the challenge pack.
type ContentConfig struct {
	ModulesPath string `yaml:"modules_path"`
}

// StorageConfig selects and configures the progress backend.
type StorageConfig struct {
	// Backend is one of "local", "sqlite", "postgres".
	Backend     string `yaml:"backend"`
	LocalPath   string `yaml:"local_path"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresURL string `yaml:"postgres_url"`
}

// LLMConfig holds tutor backend settings.
type LLMConfig struct {
	DefaultProvider string                     `yaml:"default_provider"`
	Providers       map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds settings for a single AI backend. API keys come
// from the environment, never from the config file.
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	URL     string `yaml:"url,omitempty"`
	APIKey  string `yaml:"-"`
}

// ChatConfig tunes the tutor gateway.
type ChatConfig struct {
	RateLimitWindowSeconds int `yaml:"rate_limit_window_seconds"`
	RateLimitMaxRequests   int `yaml:"rate_limit_max_requests"`
}

// ExamConfig holds exam session settings.
type ExamConfig struct {
	DefaultMinutes   int   `yaml:"default_minutes"`
	MinutePresets    []int `yaml:"minute_presets"`
	DefaultQuestions int   `yaml:"default_questions"`
}

// EventsConfig configures the optional analytics publisher. An empty URL
// disables publishing.
type EventsConfig struct {
	RabbitMQURL string `yaml:"rabbitmq_url"`
}

// DojoDir returns the path to ~/.matlab-dojo.
func DojoDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".matlab-dojo"), nil
}

// EnsureDojoDir creates ~/.matlab-dojo and its subdirectories.
func EnsureDojoDir() (string, error) {
	dir, err := DojoDir()
	if err != nil {
		return "", err
	}
	for _, subdir := range []string{"", "data", "logs", "modules"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}
	return dir, nil
}

// Default returns the settings used when no config file exists.
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			Port:     7480,
			Bind:     "127.0.0.1",
			LogLevel: "info",
		},
		Content: ContentConfig{
			ModulesPath: "./content/modules",
		},
		Storage: StorageConfig{
			Backend:    "local",
			SQLitePath: "dojo.db",
		},
		LLM: LLMConfig{
			DefaultProvider: "claude",
			Providers: map[string]*ProviderConfig{
				"claude": {
					Enabled: true,
					Model:   "claude-sonnet-4-20250514",
				},
				"openai": {
					Enabled: false,
					Model:   "gpt-4o-mini",
				},
				"ollama": {
					Enabled: false,
					URL:     "http://localhost:11434",
					Model:   "llama3",
				},
			},
		},
		Chat: ChatConfig{
			RateLimitWindowSeconds: 60,
			RateLimitMaxRequests:   10,
		},
		Exam: ExamConfig{
			DefaultMinutes:   30,
			MinutePresets:    []int{15, 30, 60},
			DefaultQuestions: 10,
		},
	}
}

// Load reads config.yaml from dir (or ~/.matlab-dojo when dir is empty),
// falling back to defaults when the file is absent. A .env file in the
// working directory is honored as a courtesy, then API keys are pulled
// from the environment.
func Load(dir string) (*Config, error) {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	if dir == "" {
		var err error
		dir, err = DojoDir()
		if err != nil {
			return nil, err
		}
	}

	cfg := Default()
	configPath := filepath.Join(dir, "config.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if p, ok := cfg.LLM.Providers["claude"]; ok {
		p.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if p, ok := cfg.LLM.Providers["openai"]; ok {
		p.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if url := os.Getenv("DOJO_RABBITMQ_URL"); url != "" {
		cfg.Events.RabbitMQURL = url
	}
	if url := os.Getenv("DOJO_POSTGRES_URL"); url != "" {
		cfg.Storage.PostgresURL = url
	}
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "local", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "postgres" && c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres backend requires a connection URL")
	}
	if c.Chat.RateLimitWindowSeconds <= 0 || c.Chat.RateLimitMaxRequests <= 0 {
		return fmt.Errorf("chat rate limit window and max requests must be positive")
	}
	return nil
}

// Addr returns the daemon's listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Daemon.Bind, c.Daemon.Port)
}

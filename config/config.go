package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LogConfig controls optional rotating file logging.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

// AuthConfig configures the session gate and the IP blacklist.
type AuthConfig struct {
	Password         string `yaml:"password"`
	SessionSecret    string `yaml:"session_secret"`
	SessionLifetime  int    `yaml:"session_lifetime"` // seconds
	MaxLoginAttempts int    `yaml:"max_login_attempts"`
	SecurityFile     string `yaml:"security_file"`
}

// OpenAIConfig configures the OpenAI-compatible upstream.
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// GeminiConfig configures the Gemini-native upstream.
type GeminiConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// ChatConfig holds generation parameters shared by both upstream paths.
type ChatConfig struct {
	SystemPrompt    string  `yaml:"system_prompt"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	Temperature     float64 `yaml:"temperature"`
	MaxHistory      int     `yaml:"max_history"`
	TitleModel      string  `yaml:"title_model"`
	ImageModel      string  `yaml:"image_model"`
}

// CacheConfig controls the on-disk image cache and its eviction thresholds.
type CacheConfig struct {
	Dir       string `yaml:"dir"`
	MaxFiles  int    `yaml:"max_files"`
	KeepFiles int    `yaml:"keep_files"`
}

type Config struct {
	Bind      string       `yaml:"bind"`
	Listen    string       `yaml:"listen"`
	StaticDir string       `yaml:"static_dir"`
	Log       LogConfig    `yaml:"log"`
	Auth      AuthConfig   `yaml:"auth"`
	OpenAI    OpenAIConfig `yaml:"openai"`
	Gemini    GeminiConfig `yaml:"gemini"`
	Chat      ChatConfig   `yaml:"chat"`
	Cache     CacheConfig  `yaml:"cache"`
}

// Load reads the YAML config file, applies environment overrides for
// secrets (so they can live in .env instead of the config file), and
// fills in defaults for anything left unset. A missing config file is
// not an error; the environment and defaults carry the whole config.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SITE_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := os.Getenv("SYSTEM_PROMPT"); v != "" {
		cfg.Chat.SystemPrompt = v
	}
	if v := os.Getenv("MAX_OUTPUT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chat.MaxOutputTokens = n
		}
	}
	if v := os.Getenv("TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Chat.Temperature = f
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Bind == "" {
		cfg.Bind = "127.0.0.1"
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.StaticDir == "" {
		cfg.StaticDir = "static"
	}
	if cfg.Auth.SessionLifetime <= 0 {
		cfg.Auth.SessionLifetime = 3600 * 24 * 30
	}
	if cfg.Auth.MaxLoginAttempts <= 0 {
		cfg.Auth.MaxLoginAttempts = 3
	}
	if cfg.Auth.SecurityFile == "" {
		cfg.Auth.SecurityFile = "logs/security.json"
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Gemini.BaseURL == "" {
		cfg.Gemini.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Chat.SystemPrompt == "" {
		cfg.Chat.SystemPrompt = "You are a helpful and friendly family AI assistant."
	}
	if cfg.Chat.MaxOutputTokens <= 0 {
		cfg.Chat.MaxOutputTokens = 8192
	}
	if cfg.Chat.Temperature <= 0 {
		cfg.Chat.Temperature = 1.0
	}
	if cfg.Chat.MaxHistory <= 0 {
		cfg.Chat.MaxHistory = 20
	}
	if cfg.Chat.TitleModel == "" {
		cfg.Chat.TitleModel = "gemini-2.5-flash"
	}
	if cfg.Chat.ImageModel == "" {
		cfg.Chat.ImageModel = "gemini-3-pro-image-preview"
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "logs/cache_images"
	}
	if cfg.Cache.MaxFiles <= 0 {
		cfg.Cache.MaxFiles = 1000
	}
	if cfg.Cache.KeepFiles <= 0 {
		cfg.Cache.KeepFiles = 500
	}
}

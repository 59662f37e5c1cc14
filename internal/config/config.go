package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendDemo      = ""
	BackendMock      = "mock"
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendGrok      = "grok"
	BackendOpenAI    = "openai"
	BackendGemini    = "gemini"
)

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// Config holds application configuration
type Config struct {
	AgentName   string          `yaml:"agent_name"`
	Debug       bool            `yaml:"debug"`
	StepTimeout time.Duration   `yaml:"step_timeout"`
	Server      ServerConfig    `yaml:"server"`
	Backend     BackendConfig   `yaml:"backend"`
	Storage     StorageConfig   `yaml:"storage"`
	MCP         MCPConfig       `yaml:"mcp"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BackendConfig selects the LLM used by the AI, planning, marketing and
// content capabilities. An empty Name runs every capability in demo mode.
type BackendConfig struct {
	Name    string        `yaml:"name"`
	Model   string        `yaml:"model"` // e.g. "llama3:latest" for ollama
	Timeout time.Duration `yaml:"timeout"`
	Cache   bool          `yaml:"cache"`

	OllamaHost      string `yaml:"ollama_host"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	GrokAPIKey      string `yaml:"grok_api_key"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver"`
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// MCPConfig lists the MCP servers the tools capability dispatches to.
type MCPConfig struct {
	Enabled       bool     `yaml:"enabled"`
	LocalServers  []string `yaml:"local_servers"`  // paths to Python MCP servers
	RemoteServers []string `yaml:"remote_servers"` // http:// or ws:// URLs
}

type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogDir  string `yaml:"log_dir"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		AgentName:   "DWY Tool-Calling Agent",
		StepTimeout: 30 * time.Second,
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Backend: BackendConfig{
			Timeout:    60 * time.Second,
			Cache:      true,
			OllamaHost: "http://localhost:11434",
		},
		Storage: StorageConfig{
			Driver:      StorageMemory,
			SQLitePath:  "data/agent.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "dwy",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			LogDir:  "logs",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file and the
// environment, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	cfg.Backend.Name = cfg.ResolveBackend()
	if cfg.Backend.Model == "" {
		cfg.Backend.Model = DefaultModel(cfg.Backend.Name)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.AgentName = getEnv("DWY_AGENT_NAME", cfg.AgentName)
	cfg.Debug = getBoolEnv("DWY_DEBUG", cfg.Debug)

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("DWY_STEP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid DWY_STEP_TIMEOUT %q: %w", v, err)
		}
		cfg.StepTimeout = d
	}

	cfg.Backend.Name = getEnv("DWY_BACKEND", cfg.Backend.Name)
	cfg.Backend.Model = getEnv("DWY_MODEL", cfg.Backend.Model)
	cfg.Backend.Cache = getBoolEnv("DWY_CACHE", cfg.Backend.Cache)
	cfg.Backend.OllamaHost = getEnv("OLLAMA_HOST", cfg.Backend.OllamaHost)
	cfg.Backend.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.Backend.AnthropicAPIKey)
	cfg.Backend.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.Backend.OpenAIAPIKey)
	cfg.Backend.GrokAPIKey = getEnv("GROK_API_KEY", cfg.Backend.GrokAPIKey)
	cfg.Backend.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.Backend.GeminiAPIKey)

	cfg.Storage.Driver = getEnv("DWY_STORAGE", cfg.Storage.Driver)
	cfg.Storage.SQLitePath = getEnv("DWY_SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.RedisAddr = getEnv("DWY_REDIS_ADDR", cfg.Storage.RedisAddr)
	cfg.Storage.RedisPassword = getEnv("DWY_REDIS_PASSWORD", cfg.Storage.RedisPassword)

	cfg.MCP.Enabled = getBoolEnv("DWY_MCP_ENABLED", cfg.MCP.Enabled)
	if v := os.Getenv("DWY_MCP_LOCAL"); v != "" {
		cfg.MCP.LocalServers = SplitList(v)
	}
	if v := os.Getenv("DWY_MCP_REMOTE"); v != "" {
		cfg.MCP.RemoteServers = SplitList(v)
	}

	cfg.Telemetry.Enabled = getBoolEnv("DWY_TELEMETRY", cfg.Telemetry.Enabled)
	cfg.Telemetry.LogDir = getEnv("DWY_LOG_DIR", cfg.Telemetry.LogDir)
	return nil
}

// ResolveBackend returns the configured backend, or picks one from the
// credentials present when none was named. No credentials means demo mode.
func (c Config) ResolveBackend() string {
	if c.Backend.Name != "" {
		return strings.ToLower(c.Backend.Name)
	}
	switch {
	case c.Backend.AnthropicAPIKey != "":
		return BackendAnthropic
	case c.Backend.OpenAIAPIKey != "":
		return BackendOpenAI
	case c.Backend.GrokAPIKey != "":
		return BackendGrok
	case c.Backend.GeminiAPIKey != "":
		return BackendGemini
	case os.Getenv("OLLAMA_HOST") != "":
		return BackendOllama
	}
	return BackendDemo
}

// DefaultModel returns the model used for a backend when none is configured.
func DefaultModel(backend string) string {
	switch backend {
	case BackendOllama:
		return "llama3:latest"
	case BackendAnthropic:
		return "claude-sonnet-4-20250514"
	case BackendOpenAI:
		return "gpt-4o-mini"
	case BackendGrok:
		return "grok-3-mini"
	case BackendGemini:
		return "gemini-2.5-flash"
	}
	return ""
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Backend.Name {
	case BackendDemo, BackendMock, BackendOllama, BackendAnthropic, BackendGrok, BackendOpenAI, BackendGemini:
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend.Name)
	}

	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StorageRedis:
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Storage.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.StepTimeout <= 0 {
		return errors.New("step_timeout must be positive")
	}
	return nil
}

// DemoMode reports whether no LLM backend is configured.
func (c Config) DemoMode() bool {
	return c.Backend.Name == BackendDemo
}

// SplitList splits a comma-separated list, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

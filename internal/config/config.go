package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	LLM        LLMConfig
	Server     ServerConfig
	Mentor     MentorConfig
	Composing  ComposingConfig
	History    HistoryConfig
	Log        LogConfig
	MCPServers []MCPServerConfig `mapstructure:"mcp_servers"`
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	MaxTurns int    `mapstructure:"max_turns"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// MentorConfig describes the persona answering in the agent lane.
type MentorConfig struct {
	Label        string `mapstructure:"label"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// ComposingConfig bounds the wait on the response generator.
type ComposingConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	FallbackText string        `mapstructure:"fallback_text"`
}

// HistoryConfig controls transcript persistence and the slice sent to the model.
type HistoryConfig struct {
	DBPath string `mapstructure:"db_path"`
	Window int    `mapstructure:"window"`
}

// LogConfig controls the global slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ClientType selects the MCP transport.
type ClientType string

const (
	ClientTypeSSE            ClientType = "sse"
	ClientTypeStreamableHTTP ClientType = "streamable_http"
	ClientTypeStdio          ClientType = "stdio"
)

// MCPServerConfig describes one MCP server whose tools are offered to the model.
type MCPServerConfig struct {
	Name    string            `mapstructure:"name"`
	Type    ClientType        `mapstructure:"type"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

// Addr joins host and port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_turns", 5)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("mentor.label", "Design Mentor")
	v.SetDefault("mentor.system_prompt", "")
	v.SetDefault("composing.timeout", "60s")
	v.SetDefault("composing.fallback_text", "")
	v.SetDefault("history.db_path", "history.db")
	v.SetDefault("history.window", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads the configuration. path wins over CONFIG_PATH; with neither, config.yaml
// is looked up in the working directory and defaults apply when it is missing.
// MENTORCHAT_* environment variables override file values (MENTORCHAT_LLM_API_KEY, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MENTORCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config.History.Window < 1 {
		config.History.Window = 1
	}
	if config.LLM.MaxTurns < 1 {
		config.LLM.MaxTurns = 1
	}

	return &config, nil
}

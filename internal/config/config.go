package config

import (
	"fmt"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Auth    AuthConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type LLMConfig struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
}

type AuthConfig struct {
	JWTSecret       string
	TokenTTLMinutes int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    8000,
			MCPPort: 8001,
		},
		LLM: LLMConfig{
			BaseURL:    "https://api.groq.com/openai/v1",
			ChatModel:  "llama-3.3-70b-versatile",
			EmbedModel: "text-embedding-3-small",
		},
		Auth: AuthConfig{
			TokenTTLMinutes: 30,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/leaveflow/config.json, a .env file in the working
// directory, and LEAVEFLOW_* environment variables, in increasing order of
// precedence. Secrets (the JWT secret and the LLM API key) are accepted from
// the environment only.
func Load() (Config, error) {
	// A missing .env file is fine; values already in the environment win.
	_ = godotenv.Load()
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("missing required config: JWT secret. " +
			"Set it via environment variable LEAVEFLOW_JWT_SECRET or a .env file")
	}

	return cfg, nil
}

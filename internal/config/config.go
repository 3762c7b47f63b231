package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all static application configuration, loaded once at startup.
// Dynamic, user-editable settings (active model, system prompt) live in the
// settings table and are managed by the settings service instead.
type Config struct {
	AppPort             int    `mapstructure:"APP_PORT"`
	DatabasePath        string `mapstructure:"DATABASE_PATH"`
	OllamaURL           string `mapstructure:"OLLAMA_URL"`
	InitialSystemPrompt string `mapstructure:"INITIAL_SYSTEM_PROMPT"`
	LogLevel            string `mapstructure:"LOG_LEVEL"`

	// ReasoningOpenTag and ReasoningCloseTag delimit the reasoning segment
	// embedded in the model's token stream. Text between them is routed to a
	// message's Thinking field; everything else is the answer.
	ReasoningOpenTag  string `mapstructure:"REASONING_OPEN_TAG"`
	ReasoningCloseTag string `mapstructure:"REASONING_CLOSE_TAG"`

	// KeepAlive is passed to the inference endpoint on every generate call so
	// the model stays warm between requests. The model-switch flow overrides
	// it with 0 to force an immediate unload.
	KeepAlive string `mapstructure:"KEEP_ALIVE"`
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("APP_PORT", 8000)
	viper.SetDefault("DATABASE_PATH", "/data/ember.db")
	viper.SetDefault("OLLAMA_URL", "http://ollama:11434")
	viper.SetDefault("INITIAL_SYSTEM_PROMPT", "You are a helpful assistant.")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("REASONING_OPEN_TAG", "<think>")
	viper.SetDefault("REASONING_CLOSE_TAG", "</think>")
	viper.SetDefault("KEEP_ALIVE", "10m")

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./backend")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

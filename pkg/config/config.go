package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Provider     string         `mapstructure:"provider"` // ollama or langchain
	ShowThinking bool           `mapstructure:"show_thinking"`
	Ollama       OllamaConfig   `mapstructure:"ollama"`
	Assembly     AssemblyConfig `mapstructure:"assembly"`
	Store        StoreConfig    `mapstructure:"store"`
	Logging      LoggingConfig  `mapstructure:"logging"`
}

// OllamaConfig holds the model endpoint configuration used by both the
// native and langchain sources.
type OllamaConfig struct {
	URL          string `mapstructure:"url"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// AssemblyConfig tunes the streaming response assembler.
type AssemblyConfig struct {
	// ThrottleMS bounds how often coalesced delta writes reach the store,
	// per block.
	ThrottleMS int `mapstructure:"throttle_ms"`
}

// StoreConfig selects where conversations are persisted.
type StoreConfig struct {
	Directory string `mapstructure:"directory"`
	Ephemeral bool   `mapstructure:"ephemeral"`
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
}

// Load loads configuration from file and environment.
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome == "" {
			xdgConfigHome = filepath.Join(home, ".config")
		}
		viper.AddConfigPath("./.quill")
		viper.AddConfigPath(filepath.Join(xdgConfigHome, "quill"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings")
	}

	viper.SetEnvPrefix("QUILL")
	viper.AutomaticEnv()

	// Missing config files are fine; defaults and env cover everything.
	_ = viper.ReadInConfig()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("provider", "ollama")
	viper.SetDefault("show_thinking", true)

	viper.SetDefault("ollama.url", "http://localhost:11434")
	viper.SetDefault("ollama.model", "qwen3:latest")
	viper.SetDefault("ollama.system_prompt", "")

	viper.SetDefault("assembly.throttle_ms", 50)

	viper.SetDefault("store.directory", "./.quill/topics")
	viper.SetDefault("store.ephemeral", false)

	viper.SetDefault("logging.log_file", "./.quill/system.log")
	viper.SetDefault("logging.preserve", true)
	viper.SetDefault("logging.level", "info")
}

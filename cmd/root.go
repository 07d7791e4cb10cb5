package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quillchat/quill/pkg/config"
	"github.com/quillchat/quill/pkg/controllers"
	"github.com/quillchat/quill/pkg/headless"
	"github.com/quillchat/quill/pkg/logger"
	"github.com/quillchat/quill/pkg/store"
	"github.com/quillchat/quill/pkg/streaming"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Streaming chat client",
	Long:  `Quill is a chat client built around a streaming response assembler.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := logger.Init(logger.Options{
			Level:    logger.ParseLevel(cfg.Logging.Level),
			LogFile:  cfg.Logging.LogFile,
			Preserve: cfg.Logging.Preserve,
		}); err != nil {
			return err
		}
		defer logger.Close()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		source, err := buildSource(cfg)
		if err != nil {
			return err
		}

		throttler := streaming.NewThrottler(time.Duration(cfg.Assembly.ThrottleMS) * time.Millisecond)
		coordinator := controllers.NewCoordinator(
			st, source, cfg.Ollama.Model,
			controllers.WithSystemPrompt(cfg.Ollama.SystemPrompt),
			controllers.WithThrottler(throttler),
		)

		output := headless.NewOutput()
		runner := headless.NewRunner(coordinator, output, cfg.ShowThinking)
		coordinator.SetChunkObserver(runner.OnChunk)

		if prompt := viper.GetString("prompt"); prompt != "" {
			return runner.Run(prompt)
		}
		return runner.RunInteractive()
	},
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store.Ephemeral || cfg.Store.Directory == "" {
		return store.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(cfg.Store.Directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return store.OpenPebble(cfg.Store.Directory)
}

func buildSource(cfg *config.Config) (streaming.Source, error) {
	switch cfg.Provider {
	case "langchain":
		return streaming.NewLangChainSource(cfg.Ollama.URL, cfg.Ollama.Model)
	case "ollama", "":
		return streaming.NewOllamaSource(cfg.Ollama.URL), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is .quill/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().StringP("prompt", "p", "", "execute a single prompt and exit")
	viper.BindPFlag("prompt", rootCmd.PersistentFlags().Lookup("prompt"))

	rootCmd.PersistentFlags().Bool("ephemeral", false, "keep the conversation in memory only")
	viper.BindPFlag("store.ephemeral", rootCmd.PersistentFlags().Lookup("ephemeral"))

	rootCmd.PersistentFlags().String("model", "", "model to use for generation")
	viper.BindPFlag("ollama.model", rootCmd.PersistentFlags().Lookup("model"))
}

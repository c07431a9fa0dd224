package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cvchat/cvchat/internal/agent"
	"github.com/cvchat/cvchat/internal/auth"
	"github.com/cvchat/cvchat/internal/config"
	"github.com/cvchat/cvchat/internal/provider"
	"github.com/cvchat/cvchat/internal/secrets"
	"github.com/cvchat/cvchat/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

var (
	cfgFile      string
	modelFlag    string
	providerFlag string
	logLevelFlag string
	subjectFlag  string

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "cvchat",
		Short: "Password-gated resume Q&A assistant",
		Long: "cvchat answers questions about one person's professional background, " +
			"grounded strictly on their resume text, behind a shared password.",
		// Running cvchat with no subcommand starts chat mode.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/cvchat/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override model")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override provider")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&subjectFlag, "subject", "", "name of the person the resume belongs to")

	// Subcommands
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newHashPasswordCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override config values
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	if subjectFlag != "" {
		cfg.Knowledge.Subject = subjectFlag
	}

	return cfg
}

// newLogger builds the process logger. Terminal modes pass a floor so routine
// info lines do not interleave with the conversation.
func newLogger(level string, floor slog.Level) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	if lvl < floor {
		lvl = floor
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// buildProvider creates a Provider instance based on configuration.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	name := cfg.Provider
	pc := cfg.GetProviderConfig(name)

	apiKey := pc.APIKey
	if apiKey == "" {
		envHint := "LLM_API_KEY"
		if name == "anthropic" {
			envHint = "ANTHROPIC_API_KEY or LLM_API_KEY"
		}
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: %s",
			name, name, envHint,
		)
	}

	// Determine model: CLI flag > config file > provider default
	model := cfg.Model
	if pc.Model != "" && model == "" {
		model = pc.Model
	}
	if model == "" {
		model = config.KnownProviderModels[name]
	}

	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(apiKey, model), nil
	default:
		// All other providers use OpenAI-compatible API
		baseURL := pc.BaseURL
		if baseURL == "" {
			u, ok := config.KnownProviderBaseURLs[name]
			if !ok {
				return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
			}
			baseURL = u
		}
		return provider.NewOpenAIProvider(apiKey, baseURL, model), nil
	}
}

// app is the wiring shared by every mode: one verifier and session manager,
// one gateway with the system context computed once.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	manager  *auth.Manager
	gateway  *agent.Gateway
	shutdown telemetry.ShutdownFunc
}

func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	fileStore, err := secrets.LoadFile(cfg.SecretsFile)
	if err != nil {
		return nil, err
	}

	p, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.Setup(context.Background(), telemetry.Options{
		ServiceName: "cvchat",
		Version:     appVersion,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	if cfg.Telemetry.Exporter != config.ExporterNone {
		logger.Info("tracing enabled", "exporter", cfg.Telemetry.Exporter, "endpoint", cfg.Telemetry.Endpoint)
	}

	verifier := auth.NewVerifier(logger, auth.DefaultTiers(fileStore, cfg)...)
	manager := auth.NewManager(verifier, cfg.SessionTimeout(), auth.WithTokenScheme(cfg.Auth.TokenScheme))

	knowledge := config.LoadKnowledge(secrets.Chain{fileStore, secrets.NewEnvStore()}, cfg.Knowledge.File)
	if knowledge == config.KnowledgeNotFound || knowledge == config.KnowledgeNotConfigured {
		logger.Warn("resume text not configured; answers will say so", "file", cfg.Knowledge.File)
	}

	gw := agent.NewGateway(p, agent.BuildSystemContext(knowledge, cfg.Knowledge.Subject), agent.Options{
		Model:         cfg.Model,
		MaxTokens:     cfg.Chat.MaxTokens,
		HistoryWindow: cfg.Chat.HistoryWindow,
		Logger:        logger,
		Tracer:        otel.Tracer("github.com/cvchat/cvchat/internal/agent"),
	})
	logger.Debug("gateway ready",
		"provider", p.Name(),
		"model", gw.Model(),
		"history_window", cfg.Chat.HistoryWindow,
		"session_timeout", manager.Timeout())

	return &app{cfg: cfg, logger: logger, manager: manager, gateway: gw, shutdown: shutdown}, nil
}

// close flushes pending spans.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", "error", err)
	}
}

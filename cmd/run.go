package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cvchat/cvchat/internal/agent"
	"github.com/cvchat/cvchat/internal/tui"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		prompt   string
		password string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Answer a single question non-interactively",
		Example: `  CVCHAT_PASSWORD=s3cr3t cvchat run -P "What is her current role?"
  cvchat run --password s3cr3t --prompt "Which languages does he use?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt / -P is required")
			}
			if password == "" {
				password = os.Getenv("CVCHAT_PASSWORD")
			}
			return runOnce(password, prompt)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "P", "", "the question to ask")
	cmd.Flags().StringVar(&password, "password", "", "access password (default $CVCHAT_PASSWORD)")
	cmd.MarkFlagRequired("prompt")

	return cmd
}

// runOnce answers a single prompt and exits.
func runOnce(password, prompt string) error {
	cfg := initConfig()
	logger := newLogger(cfg.LogLevel, slog.LevelWarn)

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ui := tui.NewPlainIO()
	ag := agent.New(a.gateway, a.manager, ui, cfg.Knowledge.Subject)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	env, err := ag.RunOnce(ctx, password, prompt)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "[%s tokens]\n", tui.FormatTokens(env.TokensUsed.Total))
	return nil
}

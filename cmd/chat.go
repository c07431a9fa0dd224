package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cvchat/cvchat/internal/agent"
	"github.com/cvchat/cvchat/internal/tui"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
	}
}

// runChat starts the interactive chat (REPL) mode.
func runChat() error {
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

	err = ag.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

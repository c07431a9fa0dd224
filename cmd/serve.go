package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cvchat/cvchat/internal/httpapi"
	"github.com/cvchat/cvchat/internal/session"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		addr          string
		secureCookies bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat over HTTP",
		Example: `  cvchat serve --addr :8080
  open "http://localhost:8080/?token=s3cr3t"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, secureCookies)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&secureCookies, "secure-cookies", false, "mark the session cookie Secure (use behind HTTPS)")

	return cmd
}

func runServe(addr string, secureCookies bool) error {
	cfg := initConfig()
	if addr != "" {
		cfg.Server.Addr = addr
	}
	logger := newLogger(cfg.LogLevel, slog.LevelDebug-1)

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	if cfg.Server.CookieSecret == "" {
		logger.Warn("no cookie secret configured; sessions will not survive a restart")
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	store := session.NewMemoryStore()
	go session.RunSweeper(rootCtx, store, a.manager.IsValid, time.Minute, logger)

	srv := httpapi.NewServer(a.manager, store, a.gateway, httpapi.Options{
		CookieSecret:  cfg.Server.CookieSecret,
		SecureCookies: secureCookies,
		Subject:       cfg.Knowledge.Subject,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("cvchat listening",
			"addr", cfg.Server.Addr,
			"model", a.gateway.Model(),
			"version", appVersion,
			"commit", appCommit,
			"built", appDate)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown requested")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	cancelRoot()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return httpServer.Shutdown(ctxShutdown)
}

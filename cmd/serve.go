package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samsaffron/gemchat/internal/config"
	servechat "github.com/samsaffron/gemchat/internal/serve/chat"
	"github.com/spf13/cobra"
)

var (
	serveAddr  string
	serveToken string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat to browsers over HTTP and WebSocket",
	Long: `Serve one shared conversation to every connected browser tab.

Examples:
  gemchat serve                          # listens on serve.addr (default 127.0.0.1:8080)
  gemchat serve --addr :9000 --token s3cret

Endpoints:
  GET /            browser client
  GET /chat/ws     WebSocket event stream
  GET /chat/state  current conversation as JSON
  GET /healthz     liveness probe`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides serve.addr)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Require this bearer token (overrides serve.token)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyProviderOverrides(cfg, providerFlag)
	if serveAddr != "" {
		cfg.Serve.Addr = serveAddr
	}
	if serveToken != "" {
		cfg.Serve.Token = serveToken
	}
	token, err := config.ResolveValue(cfg.Serve.Token)
	if err != nil {
		return fmt.Errorf("resolve serve.token: %w", err)
	}

	core, err := newChatCore(cfg)
	if err != nil {
		return err
	}

	srv := servechat.NewServer(core.Store, servechat.Options{
		App:      config.AppName,
		Provider: core.Provider,
		Model:    core.Model,
		Token:    token,
	})
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           srv.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	slog.Info("serving chat", "addr", cfg.Serve.Addr, "provider", core.Provider, "model", core.Model, "auth", token != "")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", cfg.Serve.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Hijacked WebSocket connections are not tracked by Shutdown; srv.Close drops them.
	srv.Close()
	return httpServer.Shutdown(shutdownCtx)
}

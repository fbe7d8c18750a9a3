package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rojolang/voiceagent-sdk-go/pkg/authserver"
	"github.com/rojolang/voiceagent-sdk-go/pkg/voiceagent"
)

func authServerCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "authserver",
		Short: "Serve the token endpoint",
		Long:  "Serve POST {basePath}/api/authenticate, exchanging the API key for a short-lived token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := authserver.LoadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			strategy, err := authserver.NewStrategy(cfg)
			if err != nil {
				return err
			}

			logger := voiceagent.GetGlobalLogger()
			handler := authserver.NewHandler(strategy, cfg.BasePath, logger)
			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			logger.WithField("addr", cfg.Addr).
				WithField("strategy", cfg.Strategy).
				WithField("path", voiceagent.WithBasePath(cfg.BasePath, voiceagent.DefaultAuthPath)).
				Info("Auth server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default :3000)")
	return cmd
}

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sipico/admin-auth/internal/admin"
	"github.com/sipico/admin-auth/internal/apperr"
	"github.com/sipico/admin-auth/internal/metrics"
	"github.com/sipico/admin-auth/internal/sweeper"
	"github.com/sipico/admin-auth/internal/token"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops listener and the expired-token sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				return serve(cmd.Context(), a, prometheus.DefaultRegisterer)
			})
		},
	}
}

// serve blocks until ctx is cancelled or the listener fails.
func serve(ctx context.Context, a *app, reg prometheus.Registerer) error {
	if err := checkSalts(a); err != nil {
		return err
	}
	if err := metrics.Init(reg); err != nil {
		return err
	}

	state, err := a.bootstrap.GetState(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("admin-auth starting", "version", version, "addr", a.cfg.ListenAddr, "bootstrap_state", state.String())

	sw := sweeper.New(a.store, families, a.logger)
	if err := sw.Start(a.cfg.SweepSchedule); err != nil {
		return err
	}

	h := admin.NewHandler(a.store, a.level, a.logger, admin.WithAuthenticator(a.tokens[token.APIToken]))
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           h.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		sw.Stop(stopCtx)
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	sw.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// checkSalts fails when the api token salt is missing. The other families
// only log, since their commands fail on first use.
func checkSalts(a *app) error {
	for _, family := range families {
		err := a.tokens[family].CheckSalt()
		if err == nil {
			continue
		}
		if family == token.APIToken || !errors.Is(err, apperr.ErrConfig) {
			return err
		}
		a.logger.Warn("token family disabled", "family", family, "error", err)
	}
	return nil
}

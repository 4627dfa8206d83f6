package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/jordanhubbard/gauntlet/internal/metrics"
	"github.com/jordanhubbard/gauntlet/internal/temporal"
	"github.com/jordanhubbard/gauntlet/pkg/config"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Expose metrics, run the campaign worker and watch the config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	log := a.logger

	if a.cfg.Temporal.Enabled {
		mgr, err := temporal.NewManager(ctx, a.cfg.Temporal, a.engine, log)
		if err != nil {
			return err
		}
		defer mgr.Stop()
		if err := mgr.Start(); err != nil {
			return err
		}
	}

	if a.cfg.Knowledge.Watch {
		go func() {
			if err := config.Watch(ctx, configPath, log, a.reload); err != nil {
				log.Warn("config watch stopped", zap.Error(err))
			}
		}()
	}

	var srv *http.Server
	if a.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		var bus busStatus
		if a.bus != nil {
			bus = a.bus
		}
		mux.Handle("/healthz", healthHandler(bus))
		srv = &http.Server{
			Addr:              a.cfg.Metrics.ListenAddr,
			Handler:           otelhttp.NewHandler(mux, "gauntlet"),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("metrics server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	log.Info("gauntlet serving", zap.Bool("temporal", a.cfg.Temporal.Enabled), zap.Bool("nats", a.bus != nil))
	<-ctx.Done()
	log.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
	return nil
}

type busStatus interface {
	Health() error
	Stats() map[string]interface{}
}

// healthHandler reports ok, plus the message bus stats when NATS is on.
func healthHandler(bus busStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{"status": "ok"}
		code := http.StatusOK
		if bus != nil {
			if err := bus.Health(); err != nil {
				body["status"] = "unhealthy"
				body["error"] = err.Error()
				code = http.StatusServiceUnavailable
			}
			body["nats"] = bus.Stats()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = printJSON(w, body)
	}
}

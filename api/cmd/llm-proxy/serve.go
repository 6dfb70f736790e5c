package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"grader-proxy/api/internal/calllog"
	"grader-proxy/api/internal/config"
	"grader-proxy/api/internal/handle"
	"grader-proxy/api/internal/httpserver"
	"grader-proxy/api/internal/pipeline"
	"grader-proxy/api/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	disp := newDispatcher(cfg, log)

	reporter, closeDB, err := newReporter(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB()

	svc := pipeline.NewService(disp, reporter, log.Named("pipeline"))
	h := handle.New(svc, disp, handle.Options{
		Creds:            cfg.Credentials(),
		TranscribeModels: cfg.TranscribeModels,
		Timeout:          cfg.RequestTimeout,
	}, log.Named("handle"))

	srv := httpserver.New(log.Named("http"), "ok", h.Mount)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.HTTPAddress()) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newReporter: журнал всегда идёт в лог, в Postgres только при DATABASE_URL.
func newReporter(ctx context.Context, cfg config.Config, log *zap.Logger) (calllog.Reporter, func(), error) {
	if !cfg.CallLogEnabled {
		return calllog.Nop{}, func() {}, nil
	}
	sinks := calllog.Multi{calllog.ZapSink{Log: log.Named("calllog")}}
	closeDB := func() {}

	if cfg.DatabaseURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		db, err := store.Open(pingCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info("db connected", zap.String("dsn", store.SafeDSNSummary(cfg.DatabaseURL)))

		repo := store.NewCallLogRepo(db)
		if err := repo.Migrate(pingCtx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate ai_call_log: %w", err)
		}
		if cfg.CallLogRetention > 0 {
			n, err := repo.PurgeOlderThan(pingCtx, cfg.CallLogRetention)
			if err != nil {
				log.Warn("call log purge failed", zap.Error(err))
			} else {
				log.Info("call log purged", zap.Int64("rows", n), zap.Duration("retention", cfg.CallLogRetention))
			}
		}
		sinks = append(sinks, repo)
		closeDB = func() { _ = db.Close() }
	}
	return calllog.NewAsync(sinks, log.Named("calllog"), cfg.CallLogTimeout), closeDB, nil
}

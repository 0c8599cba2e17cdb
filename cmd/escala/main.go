// Command escala serves the volunteer scheduling API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"escala/internal/adapters/roster"
	"escala/internal/blob"
	"escala/internal/config"
	"escala/internal/core"
	"escala/internal/httpapi"
	"escala/internal/logging"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "escala:", err)
		exitFunc(1)
	}
}

func run(ctx context.Context) error {
	if err := config.LoadDotenv(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.NewProduction(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Zap()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close(log)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: app.api}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return app.worker.Stop(shutdownCtx)
	})
	return g.Wait()
}

type application struct {
	store  *core.SnapshotStore
	worker *roster.Worker
	api    *httpapi.API
}

func (a *application) close(log *zap.Logger) {
	a.api.Close()
	if err := a.store.Close(); err != nil {
		log.Warn("close storage", zap.Error(err))
	}
}

// build opens storage and wires the service, export worker and HTTP API.
func build(ctx context.Context, cfg config.Config, logger *logging.Logger) (*application, error) {
	log := logger.Zap()

	store, err := core.OpenPersistentStore(ctx, cfg.StorageConfig(), nil)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if store.Seeded() {
		log.Info("seeded default catalog and services", zap.String("driver", cfg.Storage.Driver))
	}
	blobs, err := blob.Open(ctx, cfg.BlobConfig())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	opts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{promMetrics, core.NewExpvarMetricsRecorder("")}),
		core.WithAuditRecorder(core.NewMemoryAuditLog(cfg.AuditLimit)),
		core.WithBlobStore(blobs),
		core.WithAdminPhone(cfg.AdminPhone),
	}
	if cfg.Trace {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(os.Stderr)))
	}
	svc := core.NewService(store, opts...)

	worker := roster.NewWorker(svc, blobs,
		roster.WithWorkerLogger(logger),
		roster.WithAuditLogger(exportAudit{log: log}))
	worker.Start()

	if cfg.SessionHashKey == "" {
		log.Warn("ESCALA_SESSION_HASH_KEY not set; sessions reset on restart")
	}
	api := httpapi.New(httpapi.Deps{
		Service:  svc,
		Exports:  worker,
		Slack:    roster.NewSlackNotifier(cfg.SlackWebhookURL, nil),
		Gatherer: reg,
		Logger:   log,
		Session: httpapi.SessionConfig{
			HashKey:  []byte(cfg.SessionHashKey),
			BlockKey: []byte(cfg.SessionBlockKey),
			MaxAge:   cfg.SessionMaxAge,
			Secure:   cfg.SecureCookies,
		},
		RateLimit: httpapi.RateLimitConfig{
			PerMinute: cfg.RegistrationRate,
			Burst:     cfg.RegistrationBurst,
		},
	})
	return &application{store: store, worker: worker, api: api}, nil
}

// exportAudit writes export lifecycle entries to the log.
type exportAudit struct {
	log *zap.Logger
}

func (a exportAudit) Record(_ context.Context, e roster.AuditEntry) {
	a.log.Info("roster export",
		zap.String("export_id", e.ExportID),
		zap.String("status", string(e.Status)),
		zap.String("actor", e.Actor),
		zap.String("service_id", e.ServiceID),
		zap.String("note", e.Note))
}

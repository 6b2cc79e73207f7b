package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/compliance-tracker/internal/async"
	"github.com/joseph-ayodele/compliance-tracker/internal/blob"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/crm"
	"github.com/joseph-ayodele/compliance-tracker/internal/entities"
	"github.com/joseph-ayodele/compliance-tracker/internal/export"
	"github.com/joseph-ayodele/compliance-tracker/internal/ingest"
	"github.com/joseph-ayodele/compliance-tracker/internal/joblock"
	"github.com/joseph-ayodele/compliance-tracker/internal/llm"
	"github.com/joseph-ayodele/compliance-tracker/internal/llm/openai"
	"github.com/joseph-ayodele/compliance-tracker/internal/metrics"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
	"github.com/joseph-ayodele/compliance-tracker/internal/notify"
	"github.com/joseph-ayodele/compliance-tracker/internal/notify/email"
	"github.com/joseph-ayodele/compliance-tracker/internal/ocr"
	"github.com/joseph-ayodele/compliance-tracker/internal/pipeline"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
	"github.com/joseph-ayodele/compliance-tracker/internal/requirement"
	"github.com/joseph-ayodele/compliance-tracker/internal/scheduler"
	"github.com/joseph-ayodele/compliance-tracker/internal/server"
	"github.com/joseph-ayodele/compliance-tracker/internal/workflow"
)

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	db, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}
	store := repository.NewStore(db, logger)

	niches, err := niche.NewStore(cfg.Niche.ConfigPath, cfg.Niche.DefaultNiche, logger)
	if err != nil {
		return fmt.Errorf("load niches: %w", err)
	}
	go niches.WatchSignals(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	blobs, err := blob.New(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("blob storage: %w", err)
	}
	ocrEngine, err := ocr.NewEngine(ocr.ConfigFrom(cfg.OCR), logger, ocr.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("ocr engine: %w", err)
	}
	extractor := llm.NewExtractor(openai.NewClient(openai.ConfigFrom(cfg.LLM), logger), logger)

	reqs := requirement.NewService(store, niches, logger)
	engine := workflow.NewEngine(store, reqs, niches, logger)
	reqs.SetEvents(engine)
	pipe := pipeline.NewService(store, niches, blobs, ocrEngine, extractor, engine, reqs, logger, pipeline.WithMetrics(m))

	sender, err := email.New(cfg.Email, logger)
	if err != nil {
		return fmt.Errorf("email sender: %w", err)
	}
	generator := notify.NewGenerator(store, niches, reqs, m, logger)
	dispatcher := notify.NewDispatcher(store, niches, sender, logger,
		notify.WithAppURL(cfg.Server.AppBaseURL),
		notify.WithMaxAttempts(cfg.Scheduler.NotifyMaxAttempts),
		notify.WithBatchSize(cfg.Scheduler.NotifyBatchSize),
		notify.WithMetrics(m),
	)

	box, err := crm.NewBox(cfg.CRM.SecretsKey)
	if err != nil {
		return fmt.Errorf("crm secrets: %w", err)
	}
	crmSvc := crm.NewService(store, crm.NewResolver(box, cfg.CRM, logger), box, logger, crm.WithMetrics(m))
	queue := async.NewPushQueue(crmSvc, logger,
		async.WithWorkers(cfg.CRM.PushWorkers),
		async.WithQueueSize(cfg.CRM.PushQueueSize),
		async.WithPushTimeout(2*cfg.CRM.Timeout),
	)

	locker, closeLocker, err := openLocker(ctx, cfg.Locks, logger)
	if err != nil {
		return err
	}
	defer closeLocker()
	sched := scheduler.New(locker, logger, scheduler.WithLockTTL(cfg.Locks.TTL), scheduler.WithMetrics(m))
	for _, job := range scheduler.StandardJobs(cfg.Scheduler, scheduler.Deps{
		Generator:  generator,
		Dispatcher: dispatcher,
		Refresher:  reqs,
		CRM:        crmSvc,
		Logger:     logger,
	}) {
		if err := sched.Register(job); err != nil {
			return err
		}
	}

	api := server.New(server.Deps{
		Store:          store,
		Pipeline:       pipe,
		Requirements:   reqs,
		Export:         export.NewService(store, logger),
		Entities:       entities.NewService(store, niches, engine, queue, logger),
		CRM:            crmSvc,
		Gatherer:       reg,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Logger:         logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	var grpcLis net.Listener
	if cfg.Server.GRPCAddr != "" {
		if grpcLis, err = net.Listen("tcp", cfg.Server.GRPCAddr); err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
		}
	}

	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	if grpcLis != nil {
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		g.Go(func() error {
			logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
			return grpcServer.Serve(grpcLis)
		})
	}
	if cfg.Ingest.Dir != "" {
		importer, target := inbox(cfg.Ingest, pipe, logger)
		g.Go(func() error {
			err := importer.WatchAndImport(gctx, target, ingest.WatchConfig{
				Roots:       []string{cfg.Ingest.Dir},
				InitialScan: true,
				Debounce:    cfg.Ingest.Debounce,
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		healthServer.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		<-sched.Stop().Done()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		queue.Shutdown(shutdownCtx)
		return err
	})
	return g.Wait()
}

// inbox builds the importer for the watched directory. Config validation guarantees the account id parses.
func inbox(cfg common.IngestConfig, pipe *pipeline.Service, logger *slog.Logger) (*ingest.Importer, ingest.Target) {
	var opts []ingest.Option
	if cfg.Process {
		opts = append(opts, ingest.WithProcessor(pipe))
	}
	target := ingest.Target{
		AccountID:        uuid.MustParse(cfg.AccountID),
		DocumentTypeCode: cfg.DocumentTypeCode,
	}
	return ingest.NewImporter(pipe, logger, opts...), target
}

// openLocker returns Redis locks when REDIS_URL is set and in-process locks otherwise.
func openLocker(ctx context.Context, cfg common.LockConfig, logger *slog.Logger) (joblock.Locker, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("job locks are in-process")
		return joblock.NewMemory(), func() {}, nil
	}
	r, err := joblock.Dial(ctx, cfg.RedisURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("redis locks: %w", err)
	}
	return r, func() {
		if err := r.Close(); err != nil {
			logger.Warn("redis close failed", "error", err)
		}
	}, nil
}

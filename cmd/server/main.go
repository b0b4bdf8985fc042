package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"civica/internal/audit"
	"civica/internal/entity"
	"civica/internal/entity/catalog"
	"civica/internal/platform/config"
	"civica/internal/platform/httpserver"
	"civica/internal/platform/logger"
	"civica/internal/platform/postgres"
	"civica/internal/platform/redis"
	"civica/internal/platform/token"
	workflowhandler "civica/internal/workflow/handler"
	workflowmetrics "civica/internal/workflow/metrics"
	workflowservice "civica/internal/workflow/service"
	workflowstore "civica/internal/workflow/store"
	txcontext "civica/pkg/platform/tx"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := redis.New(cfg.RedisAddr)
	if err != nil {
		log.Warn("redis unavailable, snapshot cache disabled", "error", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Entity layer: postgres when configured, memory otherwise, with the
	// redis read-through cache on top when available.
	var entityStore entity.Store
	if db != nil {
		entityStore = entity.NewPostgresStore(db)
	} else {
		entityStore = entity.NewMemoryStore()
	}
	if redisClient != nil {
		entityStore = entity.NewSnapshotCache(entityStore, redisClient.Client, cfg.SnapshotCacheTTL, log)
	}
	registry, err := catalog.New(entityStore, log)
	if err != nil {
		log.Error("entity catalog failed", "error", err)
		os.Exit(1)
	}

	var requestStore workflowstore.RequestStore
	var storeTx workflowservice.StoreTx
	if db != nil {
		requestStore = workflowstore.NewPostgres(db)
		storeTx = txcontext.NewRunner(db)
	} else {
		requestStore = workflowstore.NewMemoryStore()
	}

	// Audit trail: channel into a background worker, kafka fan-out when
	// brokers are configured.
	inbox := make(chan audit.Event, cfg.AuditBufferSize)
	emitter := audit.NewEmitter(inbox, log)
	auditStore := audit.NewInMemoryStore()
	var publishers []audit.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		if err != nil {
			log.Warn("kafka unavailable, audit events stay local", "error", err)
		} else {
			defer kafkaPub.Close()
			publishers = append(publishers, kafkaPub)
		}
	}
	worker := audit.NewWorker(auditStore, inbox, log, publishers...)

	wfMetrics := workflowmetrics.New()
	recorder := workflowservice.NewRecorder(requestStore, registry, emitter, wfMetrics, log)
	svcOpts := []workflowservice.Option{
		workflowservice.WithLogger(log),
		workflowservice.WithMetrics(wfMetrics),
	}
	if storeTx != nil {
		svcOpts = append(svcOpts, workflowservice.WithTx(storeTx))
	}
	requestService := workflowservice.New(requestStore, registry, recorder, svcOpts...)

	jwtService := token.NewService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.Handler())
	workflowhandler.New(requestService, log, jwtService).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting civica server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := worker.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

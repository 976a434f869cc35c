package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"custodia/internal/coordinator"
	deliverystore "custodia/internal/delivery"
	deliverysvc "custodia/internal/delivery/service"
	"custodia/internal/ledger"
	ledgersvc "custodia/internal/ledger/service"
	"custodia/internal/platform/config"
	"custodia/internal/platform/httpserver"
	"custodia/internal/platform/logger"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/middleware"
	platformredis "custodia/internal/platform/redis"
	"custodia/internal/profile"
	"custodia/internal/storage"
	httptransport "custodia/internal/transport/http"
	"custodia/pkg/domain"
)

// main wires dependencies and owns the server lifecycle. With DATABASE_URL
// set the stores run on PostgreSQL; without it everything lives in memory,
// which is enough for local development.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	m := metrics.New()

	var (
		ledgerStore   ledger.Store
		ledgerTx      ledger.TxRunner
		deliveryStore deliverystore.Store
		profileStore  profile.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := storage.Migrate(ctx, db); err != nil {
			cancel()
			log.Error("apply schema", "error", err)
			os.Exit(1)
		}
		cancel()

		ledgerStore = ledger.NewPostgres(db)
		ledgerTx = ledger.NewPostgresTxRunner(db)
		deliveryStore = deliverystore.NewPostgresStore(db)
		profileStore = profile.NewPostgresStore(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		mem := ledger.NewInMemory()
		ledgerStore = mem
		ledgerTx = mem
		deliveryStore = deliverystore.NewInMemoryStore()
		profileStore = profile.NewInMemoryStore()
	}

	cache, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if cache != nil {
		defer cache.Close()
	}

	ledgerService, err := ledgersvc.New(ledgerStore, ledgerTx,
		ledgersvc.WithLogger(log),
		ledgersvc.WithMetrics(m),
	)
	if err != nil {
		log.Error("build ledger service", "error", err)
		os.Exit(1)
	}

	deliveryService, err := deliverysvc.New(deliveryStore,
		deliverysvc.WithLogger(log),
		deliverysvc.WithMetrics(m),
	)
	if err != nil {
		log.Error("build delivery service", "error", err)
		os.Exit(1)
	}

	profileOpts := []profile.Option{
		profile.WithLogger(log),
		profile.WithMetrics(m),
	}
	if cache != nil {
		profileOpts = append(profileOpts, profile.WithCache(cache))
	}
	if cfg.BootstrapAdminID != "" {
		adminID, err := domain.ParseActorID(cfg.BootstrapAdminID)
		if err != nil {
			log.Error("invalid BOOTSTRAP_ADMIN_ID", "error", err)
			os.Exit(1)
		}
		profileOpts = append(profileOpts, profile.WithBootstrapAdmin(adminID))
	}
	profileService, err := profile.New(profileStore, profileOpts...)
	if err != nil {
		log.Error("build profile service", "error", err)
		os.Exit(1)
	}

	coord, err := coordinator.New(ledgerService, deliveryService, profileService, log)
	if err != nil {
		log.Error("build coordinator", "error", err)
		os.Exit(1)
	}

	handler := httptransport.NewHandler(coord, log, m, middleware.NewHMACValidator(cfg.JWTSigningKey))
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	go func() {
		log.Info("starting custodia", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicreport/internal/anchor"
	"civicreport/internal/audit"
	"civicreport/internal/auth"
	"civicreport/internal/config"
	"civicreport/internal/httpapi"
	"civicreport/internal/incident"
	"civicreport/internal/ledger"
	"civicreport/internal/notify"
	"civicreport/pkg/logger"
	"civicreport/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Domain wiring. The ledger client tolerates an empty endpoint: anchoring
	// degrades to a logged no-op until configured.
	incidentRepo := incident.NewPostgresRepo(db)
	ledgerClient := ledger.NewHTTPClient(cfg.Ledger, logger.Component(log, "ledger"))

	coordinator := anchor.NewCoordinator(incidentRepo, ledgerClient, logger.Component(log, "anchor"), anchor.Options{
		Timeout: cfg.Ledger.Timeout,
		Workers: cfg.Anchor.Workers,
	})
	sweep := anchor.NewSweep(incidentRepo, ledgerClient, logger.Component(log, "sweep"), anchor.Options{
		Timeout: cfg.Ledger.Timeout,
		Workers: cfg.Anchor.Workers,
	})

	hub := notify.NewHub(logger.Component(log, "notify"))
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	incidentSvc := incident.NewService(incidentRepo, coordinator, hub, auditSvc)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:        authManager,
		Incidents:   incidentSvc,
		Sweep:       sweep,
		Ledger:      ledgerClient,
		Audit:       auditSvc,
		RDB:         rdb,
		ReportLimit: cfg.RateLimit.ReportsPerMinute,
	}

	registerPublicRoutes(r, h)
	registerProtectedRoutes(r, auth.RequireAccessToken(authManager), h, hub)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	hub.Shutdown()

	// Let in-flight ledger submissions land before the process exits.
	coordinator.Wait()
}

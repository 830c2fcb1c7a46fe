package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	attendancerepo "attendance-verification-engine/internal/attendance/repository"
	"attendance-verification-engine/internal/audit"
	audithandler "attendance-verification-engine/internal/audit/handler"
	auditrepo "attendance-verification-engine/internal/audit/repository"
	"attendance-verification-engine/internal/biometric"
	"attendance-verification-engine/internal/config"
	"attendance-verification-engine/internal/db"
	devicekeyhandler "attendance-verification-engine/internal/devicekey/handler"
	devicekeyrepo "attendance-verification-engine/internal/devicekey/repository"
	lecturehandler "attendance-verification-engine/internal/lecture/handler"
	lecturerepo "attendance-verification-engine/internal/lecture/repository"
	"attendance-verification-engine/internal/policy/engine"
	policyrepo "attendance-verification-engine/internal/policy/repository"
	"attendance-verification-engine/internal/room"
	roomhandler "attendance-verification-engine/internal/room/handler"
	roomrepo "attendance-verification-engine/internal/room/repository"
	"attendance-verification-engine/internal/server"
	"attendance-verification-engine/internal/telemetry"
	telemetryotel "attendance-verification-engine/internal/telemetry/otel"
	"attendance-verification-engine/internal/telemetry/producer"
	"attendance-verification-engine/internal/token"
	tokenrepo "attendance-verification-engine/internal/token/repository"
	"attendance-verification-engine/internal/verification"
	verificationhandler "attendance-verification-engine/internal/verification/handler"
	"attendance-verification-engine/internal/verification/store"
)

const (
	tokenReapInterval    = time.Minute
	sessionSweepInterval = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "attendance-verification-engine", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	// Without DATABASE_URL everything runs in memory (dev mode).
	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		sqlDB, err = db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer sqlDB.Close()
	}

	var (
		roomRepo      roomrepo.Repository
		lectureRepo   lecturerepo.Repository
		tokenRepo     tokenrepo.Repository
		deviceKeyRepo devicekeyrepo.Repository
		recordRepo    attendancerepo.Repository
		auditRepo     auditrepo.Repository
		policyRepo    policyrepo.Repository
		sessionStore  store.Store
	)
	if sqlDB != nil {
		roomRepo = roomrepo.NewPostgresRepository(sqlDB)
		lectureRepo = lecturerepo.NewPostgresRepository(sqlDB)
		tokenRepo = tokenrepo.NewPostgresRepository(sqlDB)
		deviceKeyRepo = devicekeyrepo.NewPostgresRepository(sqlDB)
		recordRepo = attendancerepo.NewPostgresRepository(sqlDB)
		auditRepo = auditrepo.NewPostgresRepository(sqlDB)
		policyRepo = policyrepo.NewPostgresRepository(sqlDB)
		sessionStore = store.NewPostgresStore(sqlDB)
	} else {
		log.Println("DATABASE_URL not set, running with in-memory stores")
		lectureRepo = lecturerepo.NewMemoryRepository()
		deviceKeyRepo = devicekeyrepo.NewMemoryRepository()
		recordRepo = attendancerepo.NewMemoryRepository()
		auditRepo = auditrepo.NewMemoryRepository()
		sessionStore = store.NewMemoryStore()
	}

	registry := room.NewRegistry(roomRepo)
	if err := registry.LoadAll(ctx); err != nil {
		log.Fatalf("rooms: %v", err)
	}

	var emitter telemetry.EventEmitter
	if brokers := cfg.AuditKafkaBrokersList(); len(brokers) > 0 {
		kp, err := producer.NewKafkaProducer(brokers, cfg.AuditKafkaTopic)
		if err != nil {
			log.Fatalf("kafka: %v", err)
		}
		defer kp.Close()
		emitter = kp
	} else {
		emitter = telemetryotel.NewEventEmitter(providers.LoggerProvider)
	}

	auditLogger := audit.NewLogger(auditRepo, emitter, server.ClientIP)

	ledger := token.NewLedger(tokenRepo, cfg.TokenMinTTLDuration(), cfg.TokenMaxTTLDuration(), cfg.TokenRetentionDuration())
	ledger.StartReaper(ctx, tokenReapInterval)

	evaluator := engine.NewOPAEvaluator(policyRepo)

	orch := verification.NewOrchestrator(verification.Deps{
		Sessions:   sessionStore,
		Rooms:      registry,
		Lectures:   lectureRepo,
		Tokens:     ledger,
		Biometrics: biometric.NewVerifier(deviceKeyRepo),
		Overrides:  evaluator,
		Records:    recordRepo,
		Audit:      auditLogger,
		Tracer:     providers.TracerProvider.Tracer("attendance-verification-engine/verification"),
	}, verification.Config{
		LocationMaxTries:  cfg.LocationMaxTries,
		TokenMaxTries:     cfg.TokenMaxTries,
		BiometricMaxTries: cfg.BiometricMaxTries,
		SessionTimeout:    cfg.SessionTimeoutDuration(),
	})
	orch.StartSweeper(ctx, sessionSweepInterval)

	checks := map[string]server.HealthCheck{
		"policy": evaluator.HealthCheck,
	}
	if sqlDB != nil {
		checks["db"] = sqlDB.PingContext
	}

	router := server.NewRouter(cfg.Env, []server.Registrar{
		verificationhandler.NewHTTPHandler(orch),
		roomhandler.NewHTTPHandler(registry),
		lecturehandler.NewHTTPHandler(lectureRepo),
		devicekeyhandler.NewHTTPHandler(deviceKeyRepo),
		audithandler.NewHTTPHandler(auditRepo),
	}, checks)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	cancel()
	// Give in-flight audit emits a moment to drain.
	time.Sleep(telemetry.ShutdownDrainDuration)
	log.Println("HTTP server stopped")
}

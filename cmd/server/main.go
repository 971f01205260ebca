package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kriptoproyek/backend/internal/audit"
	auditrepo "kriptoproyek/backend/internal/audit/repository"
	"kriptoproyek/backend/internal/config"
	"kriptoproyek/backend/internal/db"
	"kriptoproyek/backend/internal/health"
	"kriptoproyek/backend/internal/identity/lockout"
	"kriptoproyek/backend/internal/identity/service"
	"kriptoproyek/backend/internal/logger"
	"kriptoproyek/backend/internal/policy/engine"
	"kriptoproyek/backend/internal/security"
	"kriptoproyek/backend/internal/server"
	"kriptoproyek/backend/internal/server/httpapi"
	"kriptoproyek/backend/internal/server/interceptors"
	sessionrepo "kriptoproyek/backend/internal/session/repository"
	sessionservice "kriptoproyek/backend/internal/session/service"
	"kriptoproyek/backend/internal/session/sweeper"
	"kriptoproyek/backend/internal/telemetry"
	telemetryotel "kriptoproyek/backend/internal/telemetry/otel"
	"kriptoproyek/backend/internal/telemetry/producer"
	userrepo "kriptoproyek/backend/internal/user/repository"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		Environment: cfg.Env,
	})
	if err != nil {
		zl.Fatal("otel providers", zap.Error(err))
	}
	providers.SetGlobal()

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		kp, err := producer.NewKafkaProducer(brokers, cfg.SessionEventsTopic)
		if err != nil {
			zl.Fatal("kafka producer", zap.Error(err))
		}
		defer func() { _ = kp.Close() }()
		emitters = append(emitters, kp)
		zl.Info("session events published to kafka", zap.Strings("brokers", brokers), zap.String("topic", cfg.SessionEventsTopic))
	}
	events := telemetry.Multi(emitters...)

	var conn *sql.DB
	if cfg.DatabaseURL != "" {
		conn, err = db.Open(cfg.DatabaseURL)
		if err != nil {
			zl.Fatal("database", zap.Error(err))
		}
		defer func() { _ = conn.Close() }()
	}

	sessions, closeSessions, err := sessionrepo.Open(cfg.SessionStore, conn, cfg.BoltPath)
	if err != nil {
		zl.Fatal("session store", zap.Error(err))
	}
	defer func() { _ = closeSessions() }()
	zl.Info("session store ready", zap.String("backend", cfg.SessionStore))

	var (
		users  service.UserRepo
		audits auditrepo.Repository
	)
	if conn != nil {
		users = userrepo.NewPostgresRepository(conn)
		audits = auditrepo.NewPostgresRepository(conn)
	} else {
		zl.Warn("DATABASE_URL not set; users and audit logs are kept in memory")
		users = userrepo.NewMemoryRepository()
		audits = auditrepo.NewMemoryRepository()
	}

	lockoutCfg := lockout.Config{MaxAttempts: cfg.LockoutMaxAttempts, Duration: cfg.LockoutWindow()}
	var limiter lockout.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		limiter, err = lockout.NewRedisLimiter(rdb, lockoutCfg)
	} else {
		limiter, err = lockout.NewMemoryLimiter(lockoutCfg, nil)
	}
	if err != nil {
		zl.Fatal("lockout", zap.Error(err))
	}

	tokens, err := security.NewTokenProvider([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTExpiry())
	if err != nil {
		zl.Fatal("token provider", zap.Error(err))
	}
	authority, err := sessionservice.NewAuthority(sessions, tokens.TTL(), sessionservice.Options{
		StoreTimeout: cfg.StoreCallTimeout(),
		Logger:       zl,
		Events:       events,
	})
	if err != nil {
		zl.Fatal("session authority", zap.Error(err))
	}

	authz, err := engine.NewRoleEvaluator(ctx, "")
	if err != nil {
		zl.Fatal("policy engine", zap.Error(err))
	}
	checker := &health.Checker{PolicyChecker: authz}
	if conn != nil {
		checker.Pinger = conn
	}

	auditLogger := audit.NewLogger(audits, interceptors.ClientIP, zl)
	authSvc := service.NewAuthService(users, authority, tokens, security.NewHasher(cfg.BcryptCost), limiter, auditLogger, zl)

	schedule, err := sweeper.ParseSchedule(cfg.SweepSchedule)
	if err != nil {
		zl.Fatal("sweep schedule", zap.String("spec", cfg.SweepSchedule), zap.Error(err))
	}
	sw := sweeper.New(sessions, sweeper.Config{
		Schedule:      schedule,
		RetryInterval: cfg.SweepRetry(),
		StoreTimeout:  cfg.StoreCallTimeout(),
		Logger:        zl,
		Events:        events,
	})
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		_ = sw.Run(ctx)
	}()

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Auth:     authSvc,
			Sessions: authority,
			Tokens:   tokens,
			Authz:    authz,
			Audit:    audits,
			Health:   checker,
			Events:   events,
			Logger:   zl,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zl.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("http serve", zap.Error(err))
			stop()
		}
	}()

	grpcSrv := server.NewGRPCServer(server.Deps{
		Sessions: authority,
		Tokens:   tokens,
		Health:   checker,
		Events:   events,
		Logger:   zl,
	})
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			zl.Fatal("listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
		}
		go func() {
			zl.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				zl.Error("grpc serve", zap.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	<-sweepDone

	// Let in-flight async event emits finish before the providers go away.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		zl.Warn("otel shutdown", zap.Error(err))
	}
	zl.Info("server stopped")
}

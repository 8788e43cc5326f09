package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"phiguard/internal/access"
	"phiguard/internal/audit"
	kafkapublisher "phiguard/internal/audit/publisher/kafka"
	auditmemory "phiguard/internal/audit/store/memory"
	auditpostgres "phiguard/internal/audit/store/postgres"
	"phiguard/internal/auth"
	"phiguard/internal/fieldcrypt"
	jwttoken "phiguard/internal/jwt_token"
	"phiguard/internal/platform/config"
	"phiguard/internal/platform/httpserver"
	"phiguard/internal/platform/logger"
	redisclient "phiguard/internal/platform/redis"
	"phiguard/internal/records"
	recordshandler "phiguard/internal/records/handler"
	"phiguard/internal/session"
	sessionmemory "phiguard/internal/session/store/memory"
	sessionredis "phiguard/internal/session/store/redis"
	httptransport "phiguard/internal/transport/http"
	"phiguard/pkg/domain"
)

// main wires the security core, its stores and sinks, and runs the HTTP server
// until SIGINT or SIGTERM.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	engine, err := fieldcrypt.NewEngine(fieldcrypt.Config{
		MasterSecret: cfg.Crypto.MasterSecret,
		Production:   cfg.Env.IsProduction(),
	}, log)
	if err != nil {
		log.Error("refusing to start", "error", err)
		os.Exit(1)
	}

	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	sessionStore, redisHealth, err := buildSessionStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize session store", "error", err)
		os.Exit(1)
	}
	if redisHealth != nil {
		cleanups = append(cleanups, func() { _ = redisHealth.Close() })
	}

	sink, reader, closeSinks, err := buildAuditSinks(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize audit sinks", "error", err)
		os.Exit(1)
	}
	cleanups = append(cleanups, closeSinks)

	directory, err := buildDirectory(cfg, log)
	if err != nil {
		log.Error("failed to load user directory", "error", err)
		os.Exit(1)
	}

	evaluator := access.NewEvaluator(nil)
	monitor := session.NewMonitor(sessionStore, session.Config{
		IdleTimeout:    cfg.Session.IdleTimeout,
		WarningWindow:  cfg.Session.WarningWindow,
		ExemptPrefixes: cfg.Session.ExemptPrefixes,
	}, log)
	recorder := audit.NewRecorder(sink, audit.NewPolicy(cfg.Audit.PHIPrefixes, cfg.Audit.SensitiveFields), log,
		audit.WithDeadLetter(logger.NewDeadLetter(log)),
		audit.WithDiagnosticMode(cfg.Audit.DiagnosticMode),
	)
	clients := records.NewService(records.NewMemoryStore(), engine, evaluator, log)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Tokens:    jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience),
		Directory: directory,
		Sessions:  monitor,
		Recorder:  recorder,
		Evaluator: evaluator,
		AuditLog:  reader,
		Features: []httptransport.RouteRegistrar{
			recordshandler.New(clients, access.NewMiddleware(evaluator, log), log),
		},
		TokenTTL: cfg.JWT.TokenTTL,
		Health: func(ctx context.Context) error {
			if redisHealth == nil {
				return nil
			}
			return redisHealth.Health(ctx)
		},
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	go func() {
		log.Info("starting phiguard", "addr", cfg.Server.Addr, "env", string(cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", "error", err)
	}
}

func buildSessionStore(ctx context.Context, cfg config.Config, log *slog.Logger) (session.Store, *redisclient.Client, error) {
	client, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		if cfg.Env.IsProduction() {
			log.Warn("REDIS_URL not set; sessions are per-process and lost on restart")
		}
		return sessionmemory.New(), nil, nil
	}
	return sessionredis.New(client.Client, sessionredis.WithTTL(cfg.Session.IdleTimeout*4)), client, nil
}

// buildAuditSinks fans records out to the log stream plus whichever durable
// backends are configured. The Kafka publisher runs behind a queue so a slow
// broker never holds up a request.
func buildAuditSinks(ctx context.Context, cfg config.Config, log *slog.Logger) (audit.Sink, httptransport.AuditReader, func(), error) {
	sinks := []audit.Sink{audit.NewLogSink(log)}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var reader httptransport.AuditReader
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, closeAll, err
		}
		closers = append(closers, func() { _ = db.Close() })
		store := auditpostgres.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		sinks = append(sinks, store)
		reader = store
	} else {
		store := auditmemory.New()
		sinks = append(sinks, store)
		reader = store
	}

	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := kafkapublisher.New(kafkapublisher.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.AuditTopic,
			ClientID: "phiguard",
		})
		if err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		if cfg.Kafka.CreateTopic {
			if err := pub.EnsureTopic(ctx, 1, 1); err != nil {
				pub.Close()
				closeAll()
				return nil, nil, func() {}, err
			}
		}

		workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		worker := audit.NewWorker(pub, cfg.Audit.QueueSize, logger.NewDeadLetter(log))
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = worker.Run(workerCtx)
		}()
		closers = append(closers, pub.Close, func() {
			cancel()
			<-done
		})
		sinks = append(sinks, worker)
	}

	return audit.NewFanoutSink(sinks...), reader, closeAll, nil
}

// buildDirectory loads login accounts. Outside production, an unset users file
// seeds one demo account per role.
func buildDirectory(cfg config.Config, log *slog.Logger) (*auth.Directory, error) {
	dir := auth.NewDirectory()
	if cfg.Auth.UsersFile != "" {
		return dir, dir.LoadFile(cfg.Auth.UsersFile)
	}
	if cfg.Env.IsProduction() {
		log.Warn("PHIGUARD_USERS_FILE not set; login is disabled")
		return dir, nil
	}

	log.Warn("seeding demo accounts; set PHIGUARD_USERS_FILE to replace them")
	demo := []struct {
		username  string
		principal domain.Principal
	}{
		{"admin", domain.Principal{ID: "admin-1", Role: domain.RoleAdministrator}},
		{"manager", domain.Principal{ID: "om-1", Role: domain.RoleOfficeManager}},
		{"scheduler", domain.Principal{ID: "sch-1", Role: domain.RoleScheduler}},
		{"caregiver", domain.Principal{ID: "cg-1", Role: domain.RoleCaregiver}},
		{"client", domain.Principal{ID: "client-1", Role: domain.RoleClient}},
		{"family", domain.Principal{ID: "fam-1", Role: domain.RoleFamilyMember, AuthorizedRelationIDs: []string{"client-1"}}},
	}
	for _, d := range demo {
		if err := dir.Add(d.username, d.username+"-password", d.principal); err != nil {
			return nil, err
		}
	}
	return dir, nil
}

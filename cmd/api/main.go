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
	"time"

	"voice-banking/internal/agent"
	"voice-banking/internal/audit"
	"voice-banking/internal/auth"
	"voice-banking/internal/bank"
	"voice-banking/internal/calls"
	"voice-banking/internal/config"
	"voice-banking/internal/flows"
	"voice-banking/internal/metrics"
	"voice-banking/internal/providers/openai"
	"voice-banking/internal/rbac"
	"voice-banking/internal/records"
	"voice-banking/internal/reporting"
	"voice-banking/internal/routing"
	"voice-banking/internal/tools"
	"voice-banking/pkg/logger"
	"voice-banking/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const liveCallTTL = 2 * time.Hour

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(rootCtx, stop, cfg, log); err != nil {
		log.Error("api failed", "err", err)
		os.Exit(1)
	}
}

func run(rootCtx context.Context, stop context.CancelFunc, cfg config.Config, log *slog.Logger) error {
	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return err
	}
	accounts, err := auth.NewAccounts(cfg.Auth, rbac.RoleAdmin, rbac.RoleSupervisor)
	if err != nil {
		return err
	}
	if accounts.Empty() {
		log.Warn("no operator credentials configured; admin login disabled")
	}

	bankStore, bankDB, closeBank, err := openBank(rootCtx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBank()

	recordStore, err := records.Open(cfg.Records.Driver, cfg.Records.DSN)
	if err != nil {
		return err
	}
	defer recordStore.Close()

	auditRepo, err := audit.NewGormRepo(recordStore.DB())
	if err != nil {
		return err
	}
	auditSvc := audit.NewService(auditRepo)

	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	m := metrics.New("voicebank")

	toolRegistry, err := tools.NewRegistry(tools.Banking(tools.BankingDeps{
		Bank:    bankStore,
		Tickets: recordStore,
		Audit:   auditSvc,
		Log:     log,
	})...)
	if err != nil {
		return err
	}
	flowStore, err := flows.NewStore(cfg.Agent.FlowsFile, toolRegistry.Names())
	if err != nil {
		return err
	}
	log.Info("flows loaded", "path", cfg.Agent.FlowsFile, "flows", flowStore.Current().Keys())

	provider := openai.New(cfg.Agent.OpenAIAPIKey,
		openai.WithBaseURL(cfg.Agent.OpenAIBaseURL),
		openai.WithTimeout(cfg.Agent.ProviderTimeout),
		openai.WithChatModel(cfg.Agent.LLMModel, cfg.Agent.LLMTemperature),
		openai.WithTranscription(cfg.Agent.STTModel, cfg.Agent.STTLanguage, cfg.Agent.STTPrompt),
		openai.WithSpeech(cfg.Agent.TTSModel, cfg.Agent.TTSVoice, cfg.Agent.TTSFormat),
	)

	orchestrator := agent.New(agent.Deps{
		Catalogs:      flowStore,
		Router:        routing.New(flowStore, provider, log),
		LLM:           provider,
		Tools:         toolRegistry,
		Audit:         auditSvc,
		Metrics:       m,
		Log:           log,
		MaxToolRounds: cfg.Agent.MaxToolRounds,
		MaxIdleNudges: cfg.Calls.MaxIdleNudges,
		Greeting:      cfg.Agent.GreetingMessage,
	})

	regOpts := []calls.RegistryOption{calls.WithLogger(log)}
	var limiter calls.Limiter = calls.NewLocalLimiter(cfg.Calls.MaxConcurrent)
	if rdb != nil {
		regOpts = append(regOpts, calls.WithMirror(calls.NewRedisMirror(rdb, liveCallTTL)))
		limiter = calls.NewRedisLimiter(rdb, cfg.Calls.MaxConcurrent, liveCallTTL)
	}
	registry := calls.NewRegistry(regOpts...)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(m.Middleware())

	registerRoutes(r, routeDeps{
		cfg:          cfg,
		log:          log,
		base:         rootCtx,
		metrics:      m,
		engine:       orchestrator,
		speech:       provider,
		registry:     registry,
		limiter:      limiter,
		records:      recordStore,
		auth:         authManager,
		accounts:     accounts,
		bank:         bankStore,
		flows:        flowStore,
		reports:      reporting.NewService(recordStore),
		audit:        auditSvc,
		healthChecks: healthChecks(bankDB, rdb),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		// Read/Write timeouts are left unset: they would cut long-lived call sockets.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated", "active_calls", registry.Count())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Hijacked call sockets are not tracked by Shutdown; they end through the
	// cancelled root context and are drained here.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	waitForCalls(shutdownCtx, registry, log)

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
	return nil
}

// openBank selects the banking store and seeds it from CUSTOMERS_FILE. The
// returned *sql.DB is nil for the memory store.
func openBank(ctx context.Context, cfg config.Config, log *slog.Logger) (bank.Store, *sql.DB, func(), error) {
	var (
		store   bank.Store
		sqlDB   *sql.DB
		closeFn = func() {}
	)
	switch cfg.DB.Store {
	case "postgres":
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, nil, nil, err
		}
		pg := bank.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		store, sqlDB, closeFn = pg, db, func() { _ = db.Close() }
	default:
		store = bank.NewMemoryStore()
	}

	if cfg.Agent.CustomersFile != "" {
		seed, err := bank.LoadSeed(cfg.Agent.CustomersFile)
		if err != nil {
			closeFn()
			return nil, nil, nil, err
		}
		if err := bank.Seed(ctx, store, seed); err != nil {
			closeFn()
			return nil, nil, nil, err
		}
		log.Info("customers seeded", "path", cfg.Agent.CustomersFile, "count", len(seed.Customers))
	}
	log.Info("bank store ready", "store", cfg.DB.Store)
	return store, sqlDB, closeFn, nil
}

func waitForCalls(ctx context.Context, registry *calls.Registry, log *slog.Logger) {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for registry.Count() > 0 {
		select {
		case <-ctx.Done():
			log.Warn("calls still active at shutdown deadline", "count", registry.Count())
			return
		case <-t.C:
		}
	}
}

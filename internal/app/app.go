// Package app wires every domain package into a runnable process: the API
// server mode and the background worker mode share the same construction
// of stores, engines, and handlers, split only at the point where one
// drives HTTP routes and the other drives poll loops.
package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/neurotech-brt/agentium/internal/audit"
	"github.com/neurotech-brt/agentium/internal/config"
	"github.com/neurotech-brt/agentium/internal/httpserver"
	"github.com/neurotech-brt/agentium/internal/platform"
	"github.com/neurotech-brt/agentium/internal/seed"
	"github.com/neurotech-brt/agentium/internal/telemetry"
	"github.com/neurotech-brt/agentium/pkg/agent"
	"github.com/neurotech-brt/agentium/pkg/amendment"
	"github.com/neurotech-brt/agentium/pkg/critic"
	"github.com/neurotech-brt/agentium/pkg/ethos"
	"github.com/neurotech-brt/agentium/pkg/identity"
	"github.com/neurotech-brt/agentium/pkg/lifecycle"
	"github.com/neurotech-brt/agentium/pkg/modeladapter"
	"github.com/neurotech-brt/agentium/pkg/notify"
	"github.com/neurotech-brt/agentium/pkg/notify/slackchannel"
	"github.com/neurotech-brt/agentium/pkg/notify/webhookchannel"
	"github.com/neurotech-brt/agentium/pkg/notify/wschannel"
	"github.com/neurotech-brt/agentium/pkg/principal"
	"github.com/neurotech-brt/agentium/pkg/provider"
	"github.com/neurotech-brt/agentium/pkg/reincarnation"
	"github.com/neurotech-brt/agentium/pkg/task"
	"github.com/neurotech-brt/agentium/pkg/vectorstore"
)

// Run is the process entry point: it reads infrastructure handles once and
// dispatches to runAPI, runWorker or runSeed per cfg.Mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting agentium", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "agentium", "dev")
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	case "seed":
		return runSeed(ctx, cfg, logger, db, rdb)
	default:
		return fmt.Errorf("unknown mode %q (expected api, worker, or seed)", cfg.Mode)
	}
}

// runSeed bootstraps the mandatory HEAD agent, its two persistent COUNCIL
// members, and the initial constitution, on a fresh database. Idempotent —
// safe to run against an already-seeded database as a no-op verification
// step.
func runSeed(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	d, err := buildDeps(cfg, logger, db, rdb)
	if err != nil {
		return fmt.Errorf("building dependencies: %w", err)
	}
	d.auditWriter.Start(ctx)
	defer d.auditWriter.Close()

	return seed.Run(ctx, db, d.agents, d.ethosStore, d.registry, logger)
}

// deps bundles the domain-package constructions shared between runAPI and
// runWorker, so the worker's poll loops and the API's handlers are built
// from the same engines rather than two divergent wiring paths.
type deps struct {
	agents             *agent.Store
	registry           *identity.Registry
	ethosStore         *ethos.Store
	providerStore      *provider.Store
	providerMgr        *provider.Manager
	adapter            *modeladapter.Adapter
	taskStore          *task.Store
	taskPipeline       *task.Pipeline
	criticStore        *critic.Store
	criticEngine       *critic.Engine
	amendmentStore     *amendment.Store
	amendmentEng       *amendment.Engine
	amendmentTimer     *amendment.Timer
	lifecycleEng       *lifecycle.Engine
	optimizer          *lifecycle.Optimizer
	reincarnateEng     *reincarnation.Engine
	reincarnateSweeper *reincarnation.Sweeper
	hub                *notify.Hub
	wsChannel          *wschannel.Channel
	principalSvc       *principal.Service
	agentKeys          *principal.AgentKeyStore
	auditWriter        *audit.Writer
}

func buildDeps(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) (*deps, error) {
	auditWriter := audit.NewWriter(db, logger)

	registry := identity.NewRegistry(db, auditWriter)
	agents := agent.NewStore(db)
	ethosStore := ethos.NewStore(db)

	cipherKey, err := providerCipherKey(cfg, logger)
	if err != nil {
		return nil, err
	}
	cipher, err := provider.NewMaterialCipher(cipherKey)
	if err != nil {
		return nil, fmt.Errorf("constructing provider material cipher: %w", err)
	}

	principals := principal.NewStore(db)
	agentKeys := principal.NewAgentKeyStore(db)
	sessionMaxAge, err := time.ParseDuration(cfg.SessionMaxAge)
	if err != nil {
		return nil, fmt.Errorf("parsing AGENTIUM_SESSION_MAX_AGE: %w", err)
	}
	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		if !cfg.DevMode {
			return nil, errors.New("AGENTIUM_SESSION_SECRET is required outside dev mode")
		}
		sessionSecret, err = principal.GenerateDevSecret()
		if err != nil {
			return nil, err
		}
		logger.Warn("AGENTIUM_SESSION_SECRET not set, generated an ephemeral dev secret")
	}
	principalSvc, err := principal.NewService(principals, agentKeys, sessionSecret, sessionMaxAge, cfg.DevMode, auditWriter, logger)
	if err != nil {
		return nil, fmt.Errorf("constructing principal service: %w", err)
	}

	wsChan := wschannel.New(wsAuthorizer(principalSvc), logger)

	channels := []notify.Channel{wsChan}
	if cfg.SlackBotToken != "" {
		channels = append(channels, slackchannel.New(cfg.SlackBotToken, cfg.SlackAlertChannel))
	}
	if cfg.WebhookNotifyURL != "" {
		channels = append(channels, webhookchannel.New(cfg.WebhookNotifyURL))
	}
	hub := notify.NewHub(logger, channels...)

	providerStore := provider.NewStore(db)
	providerMgr := provider.NewManager(providerStore, cipher, rdb, hub, nil, logger, auditWriter)
	adapter := modeladapter.NewAdapter(providerMgr)
	providerMgr.SetProber(adapter)

	embedder := modeladapter.NewEmbedder(adapter, provider.KindOpenAI, "")
	vectors := vectorstore.NewPGStore(db)

	criticStore := critic.NewStore(db)
	criticEngine := critic.NewEngine(criticStore, agents, adapter, vectors, embedder, logger, auditWriter)

	taskStore := task.NewStore(db)
	taskPipeline := task.NewPipeline(taskStore, agents, ethosStore, criticEngine, adapter, registry, auditWriter, logger)

	amendmentStore := amendment.NewStore(db)
	amendmentEng := amendment.NewEngine(amendmentStore, agents, ethosStore, registry, vectors, embedder, hub, auditWriter, db, logger)
	amendmentTimer := amendment.NewTimer(amendmentEng, 5*time.Minute)

	lifecycleEng := lifecycle.NewEngine(agents, ethosStore, taskStore, registry, auditWriter, logger)
	optimizer := lifecycle.NewOptimizer(agents, providerStore, 15*time.Minute, logger)
	reincarnateEng := reincarnation.NewEngine(agents, ethosStore, registry, lifecycleEng, adapter, auditWriter, logger)
	reincarnateSweeper := reincarnation.NewSweeper(agents, reincarnateEng, 2*time.Minute, logger)

	return &deps{
		agents: agents, registry: registry, ethosStore: ethosStore,
		providerStore: providerStore, providerMgr: providerMgr, adapter: adapter,
		taskStore: taskStore, taskPipeline: taskPipeline,
		criticStore: criticStore, criticEngine: criticEngine,
		amendmentStore: amendmentStore, amendmentEng: amendmentEng, amendmentTimer: amendmentTimer,
		lifecycleEng: lifecycleEng, optimizer: optimizer, reincarnateEng: reincarnateEng, reincarnateSweeper: reincarnateSweeper,
		hub: hub, wsChannel: wsChan,
		principalSvc: principalSvc, agentKeys: agentKeys,
		auditWriter: auditWriter,
	}, nil
}

// providerCipherKey decodes the configured 64-char hex key, or — in dev mode
// only — falls back to a fixed, insecure built-in key (bytes 0..31). Unlike
// the random session-secret fallback, this key is the same on every start.
func providerCipherKey(cfg *config.Config, logger *slog.Logger) ([]byte, error) {
	if cfg.ProviderKeyEncryptionKey == "" {
		if !cfg.DevMode {
			return nil, errors.New("AGENTIUM_PROVIDER_KEY_ENCRYPTION_KEY is required outside dev mode")
		}
		key := make([]byte, 32)
		for i := range key {
			key[i] = byte(i)
		}
		logger.Warn("AGENTIUM_PROVIDER_KEY_ENCRYPTION_KEY not set, using an insecure fixed dev key")
		return key, nil
	}
	key, err := hex.DecodeString(cfg.ProviderKeyEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decoding AGENTIUM_PROVIDER_KEY_ENCRYPTION_KEY as hex: %w", err)
	}
	return key, nil
}

func wsAuthorizer(svc *principal.Service) wschannel.Authorize {
	return func(r *http.Request) error {
		token := r.URL.Query().Get("token")
		if token == "" {
			return errors.New("missing token query parameter")
		}
		_, _, err := svc.VerifyToken(token)
		return err
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	d, err := buildDeps(cfg, logger, db, rdb)
	if err != nil {
		return err
	}
	d.auditWriter.Start(ctx)
	defer d.auditWriter.Close()

	srv := httpserver.NewServer(
		httpserver.ServerConfig{CORSAllowedOrigins: cfg.CORSAllowedOrigins},
		logger, db, rdb, metricsReg, d.principalSvc,
	)

	authHandler := principal.NewHandler(d.principalSvc, logger)
	srv.Router.Mount("/auth", authHandler.Routes())
	srv.Router.Get("/sovereign/ws", d.wsChannel.ServeHTTP)

	agentHandler := agent.NewHandler(d.agents, d.registry, logger, d.auditWriter)
	srv.APIRouter.Mount("/agents", agentHandler.Routes())

	ethosHandler := ethos.NewHandler(d.ethosStore, logger, d.auditWriter)
	srv.APIRouter.Mount("/", ethosHandler.Routes())

	taskHandler := task.NewHandler(d.taskPipeline, d.taskStore, logger)
	srv.APIRouter.Mount("/tasks", taskHandler.Routes())

	criticHandler := critic.NewHandler(d.criticEngine, d.criticStore, logger)
	srv.APIRouter.Mount("/critic", criticHandler.Routes())

	providerHandler := provider.NewHandler(d.providerStore, d.providerMgr, logger)
	srv.APIRouter.Mount("/providers", providerHandler.Routes())

	amendmentHandler := amendment.NewHandler(d.amendmentEng, d.amendmentStore, logger)
	srv.APIRouter.Mount("/amendments", amendmentHandler.Routes())

	lifecycleHandler := lifecycle.NewHandler(d.lifecycleEng, logger)
	srv.APIRouter.Mount("/lifecycle", lifecycleHandler.Routes())

	reincarnationHandler := reincarnation.NewHandler(d.reincarnateEng, logger)
	srv.APIRouter.Mount("/reincarnation", reincarnationHandler.Routes())

	agentKeyHandler := principal.NewAgentKeyHandler(d.agentKeys, d.auditWriter, logger)
	srv.APIRouter.Mount("/agent-keys", agentKeyHandler.Routes())

	experimentHandler := modeladapter.NewHandler(d.adapter, logger)
	srv.APIRouter.Mount("/ab-testing", experimentHandler.Routes())

	go d.amendmentTimer.Run(ctx)
	go d.optimizer.Run(ctx)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker drives the background poll loops that have no HTTP surface:
// amendment window expiry, preference optimization, and the reincarnation
// token-budget sweep. It shares construction with runAPI via buildDeps so
// both modes observe the same stores.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	logger.Info("worker started")

	d, err := buildDeps(cfg, logger, db, rdb)
	if err != nil {
		return err
	}
	d.auditWriter.Start(ctx)
	defer d.auditWriter.Close()

	errCh := make(chan error, 3)
	go func() { errCh <- d.amendmentTimer.Run(ctx) }()
	go func() { errCh <- d.optimizer.Run(ctx) }()
	go func() { errCh <- d.reincarnateSweeper.Run(ctx) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

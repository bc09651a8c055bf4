// Package app assembles the HTTP application for one configuration profile.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"scholar/scholar/config"
	"scholar/scholar/controllers"
	"scholar/scholar/middlewares"
	"scholar/scholar/routes"
	"scholar/scholar/services/arxiv"
	"scholar/scholar/services/llm"
	"scholar/scholar/services/scheduler"
	"scholar/scholar/services/scraper"
	"scholar/scholar/sources/cache"
	"scholar/scholar/sources/db"
	"scholar/scholar/sources/db/dao"
	"scholar/scholar/sources/storage"
	httputils "scholar/scholar/utils/http"
	"scholar/scholar/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

const limiterIdle = 10 * time.Minute

type App struct {
	Config config.Config
	Paths  config.Paths
	Router chi.Router
	// DB is nil when the database handle could not be built.
	DB          *db.Database
	Migrator    *db.Migrator
	LogRotation *lumberjack.Logger
	Tokens      *middlewares.TokenManager
	Limiter     *middlewares.RateLimiter
	Metrics     *middlewares.Metrics
	Scheduler   *scheduler.Scheduler
	Cache       cache.Cache
}

// New builds the application for the named profile. An unknown profile is
// the only error; directory, logging and database problems are reported and
// startup continues.
func New(ctx context.Context, name string) (*App, error) {
	cfg, err := config.Load(name)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Paths: cfg.Paths()}
	var bootErrs []error

	if cfg.Name != config.ProfileProd && cfg.UsesSQLiteFile() {
		bootErrs = appendErr(bootErrs, ensureDir(a.Paths.Instance))
	}
	bootErrs = appendErr(bootErrs, ensureDir(a.Paths.Papers))
	bootErrs = appendErr(bootErrs, ensureDir(a.Paths.Logs))

	database, err := db.NewDatabase(cfg.DatabaseURI, cfg.Debug)
	if err != nil {
		err = fmt.Errorf("database unavailable: %w", err)
		fmt.Fprintln(os.Stderr, err)
		bootErrs = append(bootErrs, err)
	} else {
		a.DB = database
		a.Migrator = db.NewMigrator(database)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := database.Ping(pingCtx); err != nil {
			bootErrs = append(bootErrs, fmt.Errorf("database not reachable yet: %w", err))
		}
		cancel()
	}

	var revocations middlewares.RevocationStore
	if a.DB != nil {
		revocations = dao.NewTokenDAO(a.DB.DB)
	}
	a.Tokens = middlewares.NewTokenManager(cfg, revocations)
	a.Limiter = middlewares.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	a.Metrics = middlewares.NewMetrics()

	rotation, err := logging.InitLogger(a.Paths.Logs, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up file logging: %v\n", err)
	} else {
		a.LogRotation = rotation
		logging.AppLogger.Info("Application logging to file configured.",
			zap.String("profile", cfg.Name),
			zap.String("file", rotation.Filename),
		)
	}
	for _, e := range bootErrs {
		logging.ErrorLogger.Error("startup problem", zap.Error(e))
	}

	if a.DB != nil {
		if err := a.DB.CreateAll(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating database tables: %v\n", err)
			logging.ErrorLogger.Error("create tables failed", zap.Error(err))
		}
	}

	a.Cache = a.openCache()
	a.Router = a.routes(ctx)
	a.Scheduler = a.schedule()
	a.Scheduler.Start()
	return a, nil
}

func (a *App) openCache() cache.Cache {
	c, err := cache.New(a.Config.RedisURL)
	if err != nil {
		logging.ErrorLogger.Error("redis unavailable, caching in memory", zap.Error(err))
		return cache.NewMemoryCache()
	}
	return c
}

func (a *App) openStore(ctx context.Context) storage.Store {
	store, err := storage.New(ctx, a.Config.Storage, a.Paths.Papers)
	if err != nil {
		logging.ErrorLogger.Error("object storage unavailable, storing papers locally",
			zap.String("backend", a.Config.Storage.Backend), zap.Error(err))
		return storage.NewLocalStore(a.Paths.Papers)
	}
	return store
}

func (a *App) routes(ctx context.Context) chi.Router {
	cfg := a.Config
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.RealIP(cfg.TrustedProxies))
	r.Use(middlewares.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(a.Metrics.Instrument)
	r.Use(middlewares.CORS(cfg.AllowedOrigins))

	r.Mount("/health", routes.HealthRoutes(controllers.NewHealthController(cfg.Name)))
	r.Handle("/metrics", a.Metrics.Handler())

	if a.DB == nil {
		for _, prefix := range []string{"/api/auth", "/api/papers", "/api/rag"} {
			r.Mount(prefix, routes.UnavailableRoutes("database unavailable"))
		}
		return r
	}

	store := a.openStore(ctx)
	chatClient, embedder := llm.New(cfg.OpenAI)
	paperDAO := dao.NewPaperDAO(a.DB.DB)

	authCtrl := controllers.NewAuthController(dao.NewUserDAO(a.DB.DB), a.Tokens)
	papersCtrl := controllers.NewPapersController(
		paperDAO,
		store,
		arxiv.NewClient(cfg.ArxivBaseURL, httputils.DefaultClient),
		scraper.NewScraper(httputils.PublicClient),
		a.Cache,
		cfg.SearchCacheTTL,
		chatClient,
		httputils.PublicClient,
	)
	ragCtrl := controllers.NewRAGController(
		paperDAO,
		dao.NewChunkDAO(a.DB.DB),
		dao.NewChatDAO(a.DB.DB),
		store,
		papersCtrl,
		embedder,
		chatClient,
		cfg.RAG,
		cfg.OpenAI.MaxTokens,
	)

	r.Mount("/api/auth", routes.AuthRoutes(authCtrl, a.Tokens, a.Limiter))
	r.Mount("/api/papers", routes.PapersRoutes(papersCtrl, a.Tokens))
	r.Mount("/api/rag", routes.RAGRoutes(ragCtrl, a.Tokens, cfg.AllowedOrigins))
	return r
}

func (a *App) schedule() *scheduler.Scheduler {
	s := scheduler.New()
	spec := a.Config.PruneSchedule
	jobs := map[string]scheduler.Job{
		"prune_rate_limiters": func(ctx context.Context) error {
			if n := a.Limiter.Prune(limiterIdle); n > 0 {
				logging.AppLogger.Debug("pruned idle rate limiters", zap.Int("count", n))
			}
			return nil
		},
	}
	if a.DB != nil {
		tokens := dao.NewTokenDAO(a.DB.DB)
		jobs["prune_revoked_tokens"] = func(ctx context.Context) error {
			n, err := tokens.PruneExpired(ctx, time.Now())
			if err != nil {
				return err
			}
			logging.AppLogger.Info("pruned revoked tokens", zap.Int64("count", n))
			return nil
		}
	}
	if mem, ok := a.Cache.(*cache.MemoryCache); ok {
		jobs["prune_search_cache"] = func(ctx context.Context) error {
			mem.Prune()
			return nil
		}
	}
	for name, job := range jobs {
		if err := s.Add(spec, name, job); err != nil {
			logging.ErrorLogger.Error("maintenance job not scheduled", zap.Error(err))
		}
	}
	return s
}

// Handler is the root handler to serve.
func (a *App) Handler() http.Handler {
	return a.Router
}

// Close stops background work and releases connections.
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.LogRotation != nil {
		logging.CloseLogger(a.LogRotation)
	}
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		err = fmt.Errorf("create directory %s: %w", dir, err)
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}

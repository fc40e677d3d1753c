package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"task-calendar/backend/internal/cache"
	"task-calendar/backend/internal/config"
	"task-calendar/backend/internal/database"
	"task-calendar/backend/internal/handlers"
	"task-calendar/backend/internal/identity"
	"task-calendar/backend/internal/logger"
	"task-calendar/backend/internal/middleware"
	"task-calendar/backend/internal/monitoring"
	"task-calendar/backend/internal/repositories"
	"task-calendar/backend/internal/services"
	"task-calendar/backend/internal/storage"
	"task-calendar/backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// app holds the wired service and the resources shut down with it.
type app struct {
	cfg         *config.Config
	log         *logrus.Entry
	router      *gin.Engine
	db          *database.DatabasePool
	cache       cache.Cache
	redis       *redis.Client
	worker      *worker.Worker
	rateLimiter *middleware.RateLimiter
	closers     []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*app, error) {
	a := &app{cfg: cfg, log: log}

	pool, err := database.NewDatabasePool(database.PoolConfigFrom(cfg))
	if err != nil {
		return nil, err
	}
	a.db = pool
	a.closers = append(a.closers, pool.Close)

	if cfg.Database.AutoMigrate {
		if err := pool.Migrate(); err != nil {
			a.close()
			return nil, err
		}
	}

	var l2 cache.Cache
	if cfg.Redis.Enabled {
		cacheCfg := cache.CacheConfigFrom(cfg)
		a.redis = cache.NewRedisClient(cacheCfg)
		l2 = cache.NewRedisCacheFromClient(a.redis, cacheCfg.Namespace)
	} else {
		log.Info("redis disabled; using in-process cache and no background cleanup")
	}
	a.cache = cache.NewMultiLevelCache(l2, log)
	a.closers = append(a.closers, a.cache.Close)

	store, err := storage.New(ctx, cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}

	var verifier identity.TokenVerifier
	var identityClient handlers.IdentityClient
	switch cfg.Auth.Provider {
	case "firebase":
		fv, err := identity.NewFirebaseVerifier(ctx, cfg.Auth.FirebaseCredentialsPath)
		if err != nil {
			a.close()
			return nil, err
		}
		verifier = fv
	default:
		verifier = identity.NewJWTVerifier(cfg.Auth.JWTSecret, "authenticated")
		if cfg.Auth.SupabaseURL != "" {
			identityClient = identity.NewClient(cfg.Auth.SupabaseURL, cfg.Auth.SupabaseAnonKey)
		}
	}

	workspaceRepo := repositories.NewWorkspaceRepository(pool.DB)
	taskRepo := repositories.NewTaskRepository(pool.DB)
	attachmentRepo := repositories.NewAttachmentRepository(pool.DB)

	workspaceService := services.NewWorkspaceService(workspaceRepo, log)

	attachmentOpts := []services.AttachmentOption{
		services.WithMaxFileSize(cfg.Storage.MaxFileSize),
		services.WithCacheControl(cfg.Storage.CacheControl),
	}
	var jobQueue *worker.JobQueue
	if a.redis != nil {
		jobQueue = worker.NewJobQueue(a.redis, cfg.Worker.MaxTries)
		attachmentOpts = append(attachmentOpts, services.WithCleanupQueue(jobQueue))

		a.worker = worker.NewWorker(worker.WorkerConfig{
			RedisClient:  a.redis,
			PollInterval: cfg.Worker.PollInterval,
			Queues:       cfg.Worker.Queues,
			Logger:       log,
		})
		a.worker.RegisterHandler(worker.JobTypeBlobCleanup, worker.NewBlobCleanupHandler(store))
	}
	attachmentService := services.NewAttachmentService(attachmentRepo, taskRepo, store, log, attachmentOpts...)
	taskService := services.NewCachedTaskService(services.NewTaskService(taskRepo, attachmentService), a.cache, log)

	listeners := identity.NewListeners()
	listeners.Subscribe(func(event identity.Event, session *identity.Session) {
		if event != identity.EventSignedIn || session == nil {
			return
		}
		go warmWorkspace(workspaceService, taskService, session, log)
	})

	health := monitoring.NewHealthChecker(5 * time.Second)
	health.Register("database", true, pool.Health)
	health.Register("cache", false, a.cache.Health)
	health.RegisterStats("cache", taskService.GetCacheStats)
	health.RegisterStats("database", pool.Stats)
	if jobQueue != nil {
		health.Register("job_queue", false, func(ctx context.Context) error {
			_, err := jobQueue.Sizes(ctx)
			return err
		})
	}

	if cfg.RateLimit.Enabled {
		a.rateLimiter = middleware.NewRateLimiter(cfg.RateLimit)
	}

	a.router = handlers.SetupRouter(handlers.RouterDeps{
		Tasks:          taskService,
		Attachments:    attachmentService,
		Workspaces:     workspaceService,
		Verifier:       verifier,
		Identity:       identityClient,
		Listeners:      listeners,
		Health:         health,
		RateLimiter:    a.rateLimiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SiteURL:        cfg.Server.SiteURL,
		Cookies:        handlers.CookieOptions{Secure: cfg.IsProduction()},
		MaxFileSize:    cfg.Storage.MaxFileSize,
		Location:       cfg.Location(),
		Log:            log,
	})

	return a, nil
}

func warmWorkspace(workspaces services.WorkspaceService, tasks *services.CachedTaskService, session *identity.Session, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ws, err := workspaces.EnsureWorkspace(ctx, session.User)
	if err != nil {
		return
	}
	if err := tasks.Warm(ctx, services.Scope{WorkspaceID: ws.ID, UserID: session.User.ID}); err != nil {
		log.WithError(err).WithField("workspace_id", ws.ID.String()).Warn("cache warm-up failed")
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("error during shutdown")
		}
	}
	a.closers = nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("no .env file found, using environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	log := logger.Init(cfg.Log.Service, cfg.Log.Level)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to start")
	}
	defer a.close()

	if a.worker != nil {
		a.worker.Start(cfg.Worker.Concurrency)
		defer a.worker.Stop()
	}
	if a.rateLimiter != nil {
		go a.rateLimiter.Run(ctx)
	}

	srv := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      a.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":          srv.Addr,
			"environment":   cfg.Server.Environment,
			"auth_provider": cfg.Auth.Provider,
			"storage":       cfg.Storage.Backend,
		}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
}

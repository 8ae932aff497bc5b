package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"survey_marking_backend/internal/config"
	"survey_marking_backend/internal/controller"
	"survey_marking_backend/internal/repository"
	"survey_marking_backend/internal/service"
	"survey_marking_backend/pkg/configwatcher"
	"survey_marking_backend/pkg/database"
	"survey_marking_backend/pkg/logger"
	"survey_marking_backend/pkg/monitoring"
	"survey_marking_backend/pkg/security"
	"survey_marking_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	ConfigPath      string
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	limiter         *security.Limiter
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user        *repository.UserRepository
	assessment  *repository.AssessmentRepository
	session     *repository.SessionRepository
	marking     *repository.MarkingRepository
	batchStatus *repository.BatchStatusRepository
	jobs        *repository.MarkingJobQueue
}

type services struct {
	visibility *service.VisibilityService
	evaluator  *service.RuleEvaluator
	marking    *service.MarkingService
	batch      *service.BatchMarkingService
	session    *service.SessionService
	assessment *service.AssessmentService
	worker     *service.MarkingWorker
}

type controllers struct {
	session    *controller.SessionController
	visibility *controller.VisibilityController
	marking    *controller.MarkingController
	assessment *controller.AssessmentController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:        repository.NewUserRepository(db),
		assessment:  repository.NewAssessmentRepository(db),
		session:     repository.NewSessionRepository(db),
		marking:     repository.NewMarkingRepository(db),
		batchStatus: repository.NewBatchStatusRepository(rdb),
		jobs:        repository.NewMarkingJobQueue(rdb, logger.Named("jobs")),
	}
}

func batchOptions(cfg *config.Config) service.BatchOptions {
	return service.BatchOptions{
		Concurrency:   cfg.Marking.BatchConcurrency,
		ProgressEvery: cfg.Marking.ProgressEvery,
		StatusTTL:     cfg.Marking.BatchStatusTTL(),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	content := cfg.Marking.ContentAnalysis
	s.evaluator = service.NewRuleEvaluator(
		service.DefaultKeywordPolicy{},
		service.NewWeightedContentPolicy(content.WordCountWeight, content.KeywordWeight),
	)
	s.visibility = service.NewVisibilityService(repos.assessment, repos.session, repos.user)

	notifier := service.MultiNotifier{
		service.LogNotifier{Log: logger.Named("notify")},
		service.NewRedisNotifier(rdb),
	}
	s.marking = service.NewMarkingService(
		repos.session,
		repos.marking,
		s.visibility,
		s.evaluator,
		repos.marking,
		notifier,
		logger.Named("marking"),
	)
	s.batch = service.NewBatchMarkingService(s.marking, repos.jobs, repos.batchStatus, batchOptions(cfg), logger.Named("batch"))
	s.session = service.NewSessionService(repos.session, s.visibility, logger.Named("session"))
	s.assessment = service.NewAssessmentService(repository.NewAuthoringRepository(repos.assessment, repos.marking), logger.Named("authoring"))
	s.worker = service.NewMarkingWorker(repos.jobs, s.marking, repos.batchStatus, cfg.Marking.BatchStatusTTL(), logger.Named("worker"))

	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.batch.SetOptions(batchOptions(newCfg))
		s.worker.SetStatusTTL(newCfg.Marking.BatchStatusTTL())
		weights := newCfg.Marking.ContentAnalysis
		s.evaluator.SetContentPolicy(service.NewWeightedContentPolicy(weights.WordCountWeight, weights.KeywordWeight))
		logger.Log.Info("Marking tunables reloaded",
			zap.Int("batchConcurrency", newCfg.Marking.BatchConcurrency),
			zap.Int("progressEvery", newCfg.Marking.ProgressEvery),
		)
	})
	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		session:    controller.NewSessionController(s.session),
		visibility: controller.NewVisibilityController(s.visibility),
		marking:    controller.NewMarkingController(s.marking, s.batch),
		assessment: controller.NewAssessmentController(s.assessment),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	a.limiter = security.NewLimiter(cfg.RateLimit.MaxRequests, window)
	router.Use(security.RateLimiter(a.limiter))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// bootstrap opens logging, storage and tracing shared by server and worker.
func bootstrap(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode == "debug")
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if cfg.ForceMigrate || cfg.Server.Mode != "release" {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	app := &App{Config: cfg, ConfigPath: "configs/config.yaml", DB: db}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}
	app.Redis = rdb

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	repos := app.initRepositories(db, rdb)
	app.services = app.initServices(repos, cfg, rdb)
	return app
}

func NewApp(cfg *config.Config) *App {
	app := bootstrap(cfg)
	if cfg.MigrateOnly {
		return app
	}

	controllers := app.initControllers(app.services, app.DB, app.Redis)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers)
	return app
}

// NewWorker builds an App that only drains the marking job queue.
func NewWorker(cfg *config.Config) *App {
	return bootstrap(cfg)
}

// background starts the config watcher and, when set, the rate limiter sweep.
func (a *App) background(ctx context.Context) {
	go func() {
		if err := configwatcher.WatchConfig(ctx, a.ConfigPath, a.applyConfig); err != nil {
			logger.Log.Warn("Config watcher disabled", zap.Error(err))
		}
	}()
	if a.limiter != nil {
		go a.limiter.Run(ctx)
	}
}

func (a *App) shutdownTracer() {
	if a.tracer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
	}
}

func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.background(ctx)

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	a.shutdownTracer()

	log.Println("Server exiting")
}

// RunWorker consumes marking jobs until SIGINT/SIGTERM.
func (a *App) RunWorker() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.background(ctx)
	defer a.shutdownTracer()
	return a.services.worker.Run(ctx)
}

package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"safety_quiz_backend/internal/config"
	"safety_quiz_backend/internal/controller"
	"safety_quiz_backend/internal/repository"
	"safety_quiz_backend/internal/service"
	"safety_quiz_backend/pkg/logger"
	"safety_quiz_backend/pkg/monitoring"
	"safety_quiz_backend/pkg/security"
	"safety_quiz_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	services *services
}

type repositories struct {
	history  *repository.HistoryRepository
	wrong    *repository.WrongQuestionRepository
	session  *repository.SessionRepository
	aiConfig *repository.AIConfigRepository
}

type services struct {
	storage  service.StorageProvider
	document *service.DocumentService
	ai       *service.AIService
	quiz     *service.QuizService
}

type controllers struct {
	quiz     *controller.QuizController
	document *controller.DocumentController
	history  *controller.HistoryController
	wrong    *controller.WrongQuestionController
	aiConfig *controller.AIConfigController
	health   *controller.HealthController
}

func (a *App) initRepositories(cfg *config.Config) *repositories {
	return &repositories{
		history:  repository.NewHistoryRepository(cfg.Data.Dir),
		wrong:    repository.NewWrongQuestionRepository(cfg.Data.Dir),
		session:  repository.NewSessionRepository(cfg.Data.Dir),
		aiConfig: repository.NewAIConfigRepository(cfg.Data.Dir),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	storage, err := service.NewStorageProvider(&cfg.Storage)
	if err != nil {
		logger.Log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	document := service.NewDocumentService(storage)
	ai := service.NewAIService(cfg.AI, repos.aiConfig)
	quiz := service.NewQuizService(cfg, document, ai, repos.history, repos.wrong, repos.session)
	return &services{
		storage:  storage,
		document: document,
		ai:       ai,
		quiz:     quiz,
	}
}

func (a *App) initControllers(s *services, repos *repositories, cfg *config.Config) *controllers {
	return &controllers{
		quiz:     controller.NewQuizController(s.quiz),
		document: controller.NewDocumentController(s.document),
		history:  controller.NewHistoryController(repos.history),
		wrong:    controller.NewWrongQuestionController(repos.wrong, s.quiz),
		aiConfig: controller.NewAIConfigController(s.ai, repos.aiConfig),
		health:   controller.NewHealthController(cfg.Data.Dir),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}
	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg.Server.Mode)
	logger.Log.Info("Logger initialized successfully")

	app := &App{Config: cfg}

	repos := app.initRepositories(cfg)
	services := app.initServices(repos, cfg)
	app.services = services
	controllers := app.initControllers(services, repos, cfg)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("safety-quiz", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

// ApplyConfig 配置热更新：只替换支持运行期调整的部分（AI 默认值、生成参数）。
// 端口、存储等启动期配置需要重启才生效。
func (a *App) ApplyConfig(cfg *config.Config) {
	a.services.ai.UpdateDefaults(cfg.AI)
	a.services.quiz.UpdateGeneratorConfig(cfg.Generator)
	logger.Log.Info("配置已热更新",
		zap.Strings("numeric_units", cfg.Generator.NumericUnits))
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

// Package bootstrap wires configuration, infrastructure, services and routes
// into a runnable application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/mdscolour/clawfactory/internal/archive"
	httpHandler "github.com/mdscolour/clawfactory/internal/handler/http"
	wsHandler "github.com/mdscolour/clawfactory/internal/handler/websocket"
	"github.com/mdscolour/clawfactory/internal/hub"
	gormpersistence "github.com/mdscolour/clawfactory/internal/infra/persistence/gorm"
	"github.com/mdscolour/clawfactory/internal/infra/setup"
	"github.com/mdscolour/clawfactory/internal/middleware"
	"github.com/mdscolour/clawfactory/internal/service"
	"github.com/mdscolour/clawfactory/internal/tasks"
	"github.com/mdscolour/clawfactory/internal/worker"
)

// Config holds everything the process reads from the environment.
type Config struct {
	ServerPort      string
	LogLevel        string
	AppEnv          string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	DataDir         string
	RateLimitMax    int
	RateLimitWindow time.Duration
	CORSOrigin      string
}

// LoadConfig reads the environment, loading .env first when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:      os.Getenv("SERVER_PORT"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		AppEnv:          os.Getenv("APP_ENV"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		DataDir:         os.Getenv("DATA_DIR"),
		CORSOrigin:      os.Getenv("CORS_ALLOWED_ORIGIN"),
		RateLimitMax:    100,
		RateLimitWindow: 1 * time.Second,
	}

	redisHost := os.Getenv("REDIS_HOST")
	if redisHost == "" {
		redisHost = "127.0.0.1"
	}
	redisPort := os.Getenv("REDIS_PORT")
	if redisPort == "" {
		redisPort = "6379"
	}
	cfg.RedisAddr = redisHost + ":" + redisPort
	cfg.RedisDB, _ = strconv.Atoi(os.Getenv("REDIS_DB"))

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// App holds the assembled components for startup and shutdown.
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	WorkerSrv   *worker.Server
	Hub         *hub.Hub
	HttpServer  *http.Server

	scheduler      *asynq.Scheduler
	redisClientOpt asynq.RedisClientOpt
}

// NewApp builds the full application graph.
func NewApp() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	log := logrus.StandardLogger()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	log.Info("Configuration loaded")

	db, err := setup.InitDB()
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}

	redisClient, err := setup.InitRedis()
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)

	archiveStore, err := archive.NewStore(cfg.DataDir + "/archives")
	if err != nil {
		return nil, fmt.Errorf("failed to init archive store: %w", err)
	}

	userRepo := gormpersistence.NewGormUserRepository(db)
	copyRepo := gormpersistence.NewGormCopyRepository(db)
	socialRepo := gormpersistence.NewGormSocialRepository(db)

	hubInstance := hub.NewHub()

	authService := service.NewAuthService(userRepo, service.NewRedisLoginLimiter(redisClient))
	copyService := service.NewCopyService(copyRepo, socialRepo, archiveStore, redisClient)
	forkService := service.NewForkService(copyRepo)
	socialService := service.NewSocialService(copyRepo, socialRepo, hubInstance)

	authHandler := httpHandler.NewAuthHandler(authService)
	copyHandler := httpHandler.NewCopyHandler(copyService, forkService, socialService)
	socialHandler := httpHandler.NewSocialHandler(socialService)
	feedHandler := wsHandler.NewHandler(hubInstance)

	workerSrv := worker.NewServer(redisClientOpt, copyRepo, redisClient)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(corsMiddleware(cfg.CORSOrigin))
	router.Use(middleware.RateLimit(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow))

	router.GET("/health", httpHandler.Health)
	router.GET("/.well-known/ai-manifest.json", httpHandler.Manifest)
	router.GET("/ws", feedHandler.HandleConnection)

	api := router.Group("/api")
	api.Use(middleware.OptionalAuth(authService))
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/oauth", authHandler.OAuth)
			auth.GET("/me", middleware.RequireAuth(authService), authHandler.Me)
		}

		api.GET("/copies", copyHandler.List)
		api.POST("/copies", copyHandler.Upsert)
		api.GET("/copies/:id", copyHandler.Get)
		api.GET("/copies/:id/private", copyHandler.GetPrivate)
		api.GET("/copies/:id/archive", copyHandler.Archive)
		api.POST("/copies/:id/rate", socialHandler.Rate)
		api.POST("/copies/:id/comments", socialHandler.Comment)
		api.POST("/copies/:id/install", socialHandler.Install)
		api.POST("/copies/:id/star", socialHandler.Star)
		api.GET("/copies/:id/stars", socialHandler.Stars)
		api.POST("/copies/:id/fork", copyHandler.Fork)
		api.GET("/copies/:id/forks", copyHandler.ForksOf)
		api.GET("/copies/:id/versions", copyHandler.Versions)
		api.POST("/copies/:id/versions", copyHandler.AppendVersion)
		api.GET("/copies/:id/changes", copyHandler.Changes)

		api.GET("/search", copyHandler.Search)
		api.GET("/categories", copyHandler.Categories)
		api.GET("/featured", copyHandler.Featured)

		api.GET("/marketplace", copyHandler.Marketplace)
		api.POST("/marketplace/publish", copyHandler.Publish)
		api.POST("/marketplace/unpublish", copyHandler.Unpublish)
		api.GET("/marketplace/user/:id", copyHandler.MarketplaceUser)

		api.GET("/export", copyHandler.Export)
		api.POST("/import", copyHandler.Import)

		api.GET("/users/:id/copies", copyHandler.UserCopies)
		api.GET("/users/:id/stars", socialHandler.UserStars)
		api.GET("/users/:id/forks", copyHandler.UserForks)
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	return &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		AsynqClient:    asynqClient,
		WorkerSrv:      workerSrv,
		Hub:            hubInstance,
		HttpServer:     httpServer,
		redisClientOpt: redisClientOpt,
	}, nil
}

// Start launches the hub, worker, scheduler and HTTP server.
func (a *App) Start() {
	go a.Hub.Run()
	go a.WorkerSrv.Start()
	a.registerPeriodicTasks()

	go func() {
		a.Log.Infof("HTTP server listening on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()
}

func (a *App) registerPeriodicTasks() {
	a.scheduler = asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{})

	task := asynq.NewTask(tasks.TypeFeaturedRefresh, nil)
	schedule := "@every 5m"
	entryID, err := a.scheduler.Register(schedule, task, asynq.Queue("default"))
	if err != nil {
		a.Log.Errorf("Could not register featured refresh task: %v", err)
	} else {
		a.Log.Infof("Featured refresh task registered with schedule '%s' (EntryID: %s)", schedule, entryID)
	}

	go func() {
		if err := a.scheduler.Run(); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			a.Log.Errorf("Asynq scheduler Run() failed: %v", err)
		}
	}()
}

// Shutdown stops components in reverse dependency order.
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}
	if a.WorkerSrv != nil {
		a.WorkerSrv.Shutdown()
	}
	if a.Hub != nil {
		a.Hub.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	}

	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete")
}

func corsMiddleware(allowedOrigin string) gin.HandlerFunc {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware records one structured line per request.
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()
		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}

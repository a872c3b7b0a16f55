package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/keyforge/keyforge/handlers"
	"github.com/keyforge/keyforge/internal/billing"
	"github.com/keyforge/keyforge/internal/config"
	"github.com/keyforge/keyforge/internal/dashboard"
	"github.com/keyforge/keyforge/internal/database"
	"github.com/keyforge/keyforge/internal/licensing"
	"github.com/keyforge/keyforge/internal/links"
	"github.com/keyforge/keyforge/internal/payments"
	"github.com/keyforge/keyforge/internal/projects"
	"github.com/keyforge/keyforge/internal/push"
	"github.com/keyforge/keyforge/internal/sessions"
	"github.com/keyforge/keyforge/internal/storage"
	"github.com/keyforge/keyforge/internal/users"
	"github.com/keyforge/keyforge/pkg/logger"
	"github.com/keyforge/keyforge/pkg/metrics"
	"github.com/keyforge/keyforge/pkg/middleware"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: mongo=%v redis=%v tribopay=%v vapid=%v minio=%v",
		cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.TriboPay.APIToken != "",
		cfg.VAPID.PublicKey != "", cfg.MinIO.Endpoint != "")

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple — production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// Global middlewares: logging + recovery
	r.Use(gin.Logger(), gin.Recovery())

	// Connect to Redis early so session revocation and the rate-limiter can use it
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err == nil {
			sessions.SetRevocationClient(redisClient)
			logger.Infof("Connected to Redis for session revocation: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		} else {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		}
	}

	// Optional global rate limiter (per-user when authenticated, otherwise per-IP)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// Connect to MongoDB with retry/backoff to tolerate startup races
	ctx := context.Background()
	const maxAttempts = 5
	backoff := time.Second
	var client *mongo.Client
	var errConn error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		client, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if errConn == nil {
			break
		}
		logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
		if attempt < maxAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	if errConn != nil {
		logger.Fatalf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
	}
	defer func() { _ = client.Disconnect(ctx) }()
	db := client.Database(cfg.MongoDB.Database)

	// Repositories
	usersRepo := users.NewMongoRepository(db.Collection("users"))
	projectsRepo := projects.NewMongoRepository(db.Collection("projects"))
	linksRepo := links.NewMongoRepository(db.Collection("collection_links"))
	sessionsRepo := sessions.NewMongoRepository(db.Collection("sessions"))
	pushRepo := push.NewMongoRepository(db.Collection("push_subscriptions"))
	resetsStore := dashboard.NewMongoResetStore(db)

	// Services
	usersSvc := users.NewService(usersRepo)
	sessionsSvc := sessions.NewService(sessionsRepo)
	connector := licensing.NewMongoConnector(cfg.ExternalDB.Timeout)
	engine := licensing.NewEngine(projectsRepo, usersRepo, linksRepo, connector)
	projectsSvc := projects.NewService(projectsRepo, usersRepo, linksRepo, engine)
	payClient := payments.NewClient(cfg.TriboPay)
	billingSvc := billing.NewService(usersRepo, payClient)
	pushSvc := push.NewService(pushRepo, push.NewWebPushSender(cfg.VAPID), cfg.VAPID)
	dashSvc := dashboard.NewService(projectsRepo, usersRepo, linksRepo, engine, resetsStore)

	// Avatar object store is optional; profile images fall back to inline
	// storage on the user document when MinIO is not configured.
	var avatars *storage.AvatarStore
	if cfg.MinIO.Endpoint != "" {
		avatars, err = storage.NewAvatarStore(cfg.MinIO)
		if err != nil {
			logger.Warnf("avatar store unavailable: %v", err)
			avatars = nil
		}
	}

	// Basic health endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness endpoint — return 200 only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		deps["mongodb"] = client.Ping(c.Request.Context(), nil) == nil
		if !deps["mongodb"] {
			ready = false
		}

		// Redis readiness only matters when the limiter depends on it
		if cfg.Redis.Host != "" && cfg.RateLimit.UseRedis {
			deps["redis"] = redisClient != nil && redisClient.Ping(c.Request.Context()).Err() == nil
			if !deps["redis"] {
				ready = false
			}
		} else {
			deps["redis"] = true
		}

		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "not_ready"
		}
		c.JSON(status, gin.H{"status": state, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	// API routes
	authed := middleware.RequireUser(cfg.JWT.Secret, usersSvc)
	api := r.Group("/api")
	handlers.NewAuthHandler(cfg, usersSvc, sessionsSvc).Register(api, authed)
	handlers.NewSettingsHandler(cfg, usersSvc, sessionsSvc, avatars).Register(api, authed)
	handlers.NewProjectsHandler(projectsSvc).Register(api, authed)
	handlers.NewCollectionsHandler(engine, linksRepo).Register(api, authed)
	handlers.NewKeysHandler(engine).Register(api, authed)
	handlers.NewBillingHandler(billingSvc, pushSvc).Register(api, authed)
	handlers.NewPaymentsHandler(payClient).Register(api, authed)
	handlers.NewNotificationsHandler(pushSvc).Register(api, authed)
	handlers.NewDashboardHandler(dashSvc).Register(api, authed)

	handlers.RegisterSwagger(r)

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("Starting keyforge API on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}

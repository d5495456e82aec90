package main

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sudharshan-ks/dev-postmark-challenge/config"
	"github.com/sudharshan-ks/dev-postmark-challenge/controllers"
	"github.com/sudharshan-ks/dev-postmark-challenge/middleware"
	"github.com/sudharshan-ks/dev-postmark-challenge/models"
	"github.com/sudharshan-ks/dev-postmark-challenge/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.GetLogger().Fatalf("Failed to load configuration: %v", err)
	}
	config.ConfigureLogger(cfg)
	logger := config.GetLogger()
	logger.WithField("env", cfg.GoEnv).Info("Starting Northwind mail query server...")

	// Connect to database
	if err := config.ConnectDatabase(cfg); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create the Northwind tables if they are missing
	if err := models.Migrate(context.Background(), config.GetDB()); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	logger.Info("Database migration completed successfully")

	if err := initServices(cfg); err != nil {
		logger.Fatalf("Failed to initialize services: %v", err)
	}

	router := setupRouter(cfg)

	// Start server
	addr := ":" + cfg.Port
	logger.Infof("Server is running on http://localhost%s", addr)
	if err := router.Run(addr); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}

// initServices wires the email pipeline and the services behind the API
func initServices(cfg *config.Config) error {
	executor, err := services.InitExecutor(cfg)
	if err != nil {
		return err
	}
	archive, err := services.InitChartArchive(cfg)
	if err != nil {
		return err
	}
	dedup, err := services.NewDeduplicator(cfg)
	if err != nil {
		return err
	}

	services.InitOrchestrator(services.OrchestratorDeps{
		Translator:     services.InitTranslator(cfg),
		Executor:       executor,
		Visualizer:     services.InitVisualizer(),
		Messenger:      services.InitMessenger(cfg),
		Archive:        archive,
		Dedup:          dedup,
		AttachWorkbook: cfg.AttachWorkbook,
	})
	return nil
}

// setupRouter registers every route of the API
func setupRouter(cfg *config.Config) *gin.Engine {
	logger := config.GetLogger()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger))
	if corsConfig, ok := newCORSConfig(cfg); ok {
		router.Use(cors.New(corsConfig))
	}

	// Postmark posts inbound mail here; basic auth is optional
	var webhook []gin.HandlerFunc
	if cfg.WebhookUsername != "" {
		webhook = append(webhook, gin.BasicAuth(gin.Accounts{cfg.WebhookUsername: cfg.WebhookPassword}))
	}
	webhook = append(webhook, controllers.HandleInboundEmail)
	router.POST("/webhook", webhook...)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check endpoint
		v1.GET("/health", healthCheck)

		// Database status endpoint
		v1.GET("/database/status", databaseStatus)

		v1.POST("/webhook/inbound", webhook...)
		v1.GET("/charts/:filename", controllers.GetChart)

		switch {
		case cfg.AuthEnabled():
			authenticated := middleware.EnsureValidToken(cfg)
			v1.GET("/schema", authenticated, middleware.RequireScope(middleware.SchemaScope), controllers.GetSchema)
			v1.POST("/queries", authenticated, middleware.RequireScope(middleware.QueryScope), controllers.ExecuteQuery)
		case cfg.IsProduction():
			logger.Warn("AUTH0_DOMAIN and AUTH0_AUDIENCE are not set, query and schema APIs disabled")
		default:
			logger.Warn("AUTH0_DOMAIN and AUTH0_AUDIENCE are not set, query and schema APIs are unauthenticated")
			v1.GET("/schema", controllers.GetSchema)
			v1.POST("/queries", controllers.ExecuteQuery)
		}
	}

	return router
}

// newCORSConfig allows any origin outside production. In production only
// CORS_ALLOWED_ORIGINS are allowed, and without it no CORS headers are sent.
func newCORSConfig(cfg *config.Config) (cors.Config, bool) {
	corsConfig := cors.DefaultConfig()
	if cfg.IsProduction() {
		if len(cfg.CORSAllowedOrigins) == 0 {
			return corsConfig, false
		}
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowHeaders("Authorization")
	corsConfig.AddExposeHeaders("Content-Length", middleware.RequestIDHeader)
	return corsConfig, true
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Northwind mail query API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Database is not connected",
			},
		})
		return
	}

	// Get the underlying SQL database to check connection
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	// Ping the database to verify connection
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	// Get list of tables
	var tables []string
	if err := db.WithContext(c.Request.Context()).
		Raw("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name").
		Scan(&tables).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}

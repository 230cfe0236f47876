package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"incident-report-service/config"
	"incident-report-service/database"
	"incident-report-service/generation"
	"incident-report-service/handlers"
	"incident-report-service/llm"
	"incident-report-service/metrics"
	"incident-report-service/middleware"
	"incident-report-service/service"
	"incident-report-service/stubllm"
	"incident-report-service/transcribe"
	"incident-report-service/watson"
)

func main() {
	// Load configuration
	cfg := config.Load()

	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	log.Info("Starting the incident report service...")

	// Select the LLM backend
	var chatClient llm.ChatClient
	var generator llm.Generator
	var transcriber llm.Transcriber
	switch cfg.LLMProvider {
	case "stub":
		stub := stubllm.NewClient()
		chatClient, generator, transcriber = stub, stub, stub
	default:
		if cfg.WatsonAPIKey == "" {
			log.Fatal("WATSON_API_KEY environment variable is required")
		}
		if cfg.WatsonScoringURL == "" {
			log.Fatal("WATSON_SCORING_URL environment variable is required")
		}
		if cfg.GenerationURL == "" {
			log.Fatal("GENERATION_URL environment variable is required")
		}
		chatClient = watson.NewClient(cfg.WatsonAPIKey, cfg.WatsonTokenURL, cfg.WatsonScoringURL, cfg.WatsonModelID, cfg.WatsonMaxRetries)
		generator = generation.NewClient(cfg.GenerationURL, cfg.GenerationProject)
		transcriber = transcribe.NewClient(cfg.TranscribeURL)
	}

	// Initialize database
	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	metrics.Register()

	// Initialize service and handlers
	svc := service.NewService(cfg, db, chatClient, generator, transcriber)
	defer svc.Close()

	h := handlers.NewHandlers(svc, db)

	// Setup router
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", cfg.AllowedOrigins)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	api := router.Group("/api/v1")

	// Public endpoints (no auth required)
	api.GET("/health", h.HealthCheck)
	api.GET("/reports/:id/public", h.PublicReport)

	// Rate-limited LLM-backed endpoints
	rateLimited := api.Group("/")
	rateLimited.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute, time.Minute))
	{
		rateLimited.POST("/chat/session", h.StartChatSession)
		rateLimited.POST("/chat/session/:id/message", h.ChatMessage)
		rateLimited.POST("/chat/session/:id/save", h.SaveChatReport)
		rateLimited.POST("/reports/generate", h.GenerateReport)
		rateLimited.POST("/transcribe", h.Transcribe)
	}

	// Report and recording management (auth required)
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	{
		protected.GET("/reports", h.ListReports)
		protected.GET("/reports/:id", h.GetReport)
		protected.PATCH("/reports/:id", h.UpdateReport)
		protected.PUT("/reports/:id/visibility", h.SetReportVisibility)
		protected.DELETE("/reports/:id", h.DeleteReport)

		protected.GET("/recordings", h.ListRecordings)
		protected.POST("/recordings", h.CreateRecording)
		protected.PATCH("/recordings/:id", h.UpdateRecording)
		protected.DELETE("/recordings/:id", h.DeleteRecording)

		protected.POST("/logs/unlock", h.UnlockLogs)
		protected.GET("/logs", h.MyLogs)
	}

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start HTTP server in a goroutine
	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

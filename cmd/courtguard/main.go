package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/fastbreak-labs/courtguard/pkg/config"
	handlers "github.com/fastbreak-labs/courtguard/pkg/handlers/http"
	"github.com/fastbreak-labs/courtguard/pkg/infra/database"
	"github.com/fastbreak-labs/courtguard/pkg/infra/events"
	"github.com/fastbreak-labs/courtguard/pkg/infra/executor"
	"github.com/fastbreak-labs/courtguard/pkg/infra/httpx"
	infraLogger "github.com/fastbreak-labs/courtguard/pkg/infra/logger"
	"github.com/fastbreak-labs/courtguard/pkg/infra/repository"
	"github.com/fastbreak-labs/courtguard/pkg/middleware"
	"github.com/fastbreak-labs/courtguard/pkg/security/patterns"
	"github.com/fastbreak-labs/courtguard/pkg/security/pipeline"
	"github.com/fastbreak-labs/courtguard/pkg/security/ratelimit"
	"github.com/fastbreak-labs/courtguard/pkg/security/redactor"
	"github.com/fastbreak-labs/courtguard/pkg/security/sanitizer"
	"github.com/fastbreak-labs/courtguard/pkg/server"
)

func main() {
	serverType := getServerType()
	envFile := os.Getenv("ENV_FILE")

	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	logger := infraLogger.NewLogger(serverType)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config"
	}
	if err := config.Load(configPath); err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	cfg := config.GetConfig()

	limiter := initializeLimiter(cfg, logger)

	sink := initializeEventSink(cfg, logger)
	defer sink.Close()

	middlewareTransport := middleware.Transport{
		UserMiddleware:         middleware.NewUserMiddleware(logger),
		RequestIDMiddleware:    middleware.NewRequestIDMiddleware(),
		PanicRecoverMiddleware: middleware.NewPanicRecoverMiddleware(logger),
	}

	handlerTransport := handlers.HandlerTransport{
		UserSecurityStatusHandler: handlers.NewUserSecurityStatusHandler(logger, limiter),
		ResetUserHandler:          handlers.NewResetUserHandler(logger, limiter),
	}

	if serverType != "admin" {
		pipe := initializePipeline(cfg, logger, limiter, sink)
		handlerTransport.ProcessQueryHandler = handlers.NewProcessQueryHandler(logger, pipe)
	}

	queryServerDI := server.QueryServerDI{
		MiddlewareTransport: middlewareTransport,
		HandlerTransport:    handlerTransport,
		Config:              cfg,
		Logger:              logger,
	}

	adminServerDI := server.AdminServerDI{
		MiddlewareTransport: middlewareTransport,
		HandlerTransport:    handlerTransport,
		Config:              cfg,
		Logger:              logger,
	}

	srv := initializeServer(queryServerDI, adminServerDI)

	go func() {
		if err := srv.Run(); err != nil {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	fmt.Println("shutting down server...")
	if err := srv.Shutdown(); err != nil {
		fmt.Println("error shutting down server:", err)
		os.Exit(1)
	}
	fmt.Println("server gracefully stopped")
}

// initializeLimiter keeps per-user security state in Redis when a host is
// configured and in process memory otherwise. The in-memory limiter is for
// single-instance deployments; state does not survive a restart.
func initializeLimiter(cfg *config.Config, logger *logrus.Logger) ratelimit.Limiter {
	windows := make([]ratelimit.Window, 0, len(cfg.Security.Windows))
	for _, w := range cfg.Security.Windows {
		windows = append(windows, ratelimit.Window{Name: w.Name, Limit: w.Limit, Duration: w.Window})
	}

	escalation := ratelimit.Escalation{
		BlockThreshold:        cfg.Security.Escalation.BlockThreshold,
		BlockDuration:         cfg.Security.Escalation.BlockDuration,
		ExtendedThreshold:     cfg.Security.Escalation.ExtendedThreshold,
		ExtendedBlockDuration: cfg.Security.Escalation.ExtendedBlockDuration,
	}

	if cfg.Redis.Host == "" {
		logger.Info("no redis host configured, using in-memory rate limiter")
		return ratelimit.NewMemoryLimiter(windows, escalation)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatalf("failed to connect to redis: %v", err)
	}
	return ratelimit.NewRedisLimiter(client, windows, escalation, nil)
}

func initializeEventSink(cfg *config.Config, logger *logrus.Logger) events.Sink {
	var store events.Store
	if cfg.Events.Persist {
		db, err := database.NewDB(logger, &database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatalf("failed to initialize database: %v", err)
		}
		repo, err := repository.NewSecurityEventRepository(db.DB)
		if err != nil {
			logger.Fatalf("failed to initialize security event repository: %v", err)
		}
		store = repo
	}
	return events.NewAsyncSink(logger, store, cfg.Events.BufferSize)
}

func initializePipeline(
	cfg *config.Config,
	logger *logrus.Logger,
	limiter ratelimit.Limiter,
	sink events.Sink,
) *pipeline.Pipeline {
	matcher, err := patterns.NewMatcher(patterns.Config{
		InjectionPatterns:  cfg.Security.Patterns.InjectionPatterns,
		ExtractionPatterns: cfg.Security.Patterns.ExtractionPatterns,
		SQLPatterns:        cfg.Security.Patterns.SQLPatterns,
		ScriptPatterns:     cfg.Security.Patterns.ScriptPatterns,
	})
	if err != nil {
		logger.Fatalf("failed to compile threat patterns: %v", err)
	}

	rules := make([]redactor.Rule, 0, len(cfg.Security.Redaction.Rules))
	for _, r := range cfg.Security.Redaction.Rules {
		rules = append(rules, redactor.Rule{
			Name:        r.Name,
			Pattern:     r.Pattern,
			Placeholder: r.Placeholder,
			Reason:      r.Reason,
		})
	}
	red, err := redactor.New(redactor.Config{
		Rules:           rules,
		LeakPhrases:     cfg.Security.Redaction.LeakPhrases,
		FallbackMessage: cfg.Security.Redaction.FallbackMessage,
	})
	if err != nil {
		logger.Fatalf("failed to compile redaction rules: %v", err)
	}

	exec, err := executor.NewOpenAIExecutor(executor.Config{
		APIKey:       os.Getenv("OPENAI_API_KEY"),
		Model:        cfg.Executor.Model,
		SystemPrompt: cfg.Executor.SystemPrompt,
	})
	if err != nil {
		logger.Fatalf("failed to initialize query executor: %v", err)
	}

	san := sanitizer.New(sanitizer.Config{
		MaxLength:       cfg.Security.Sanitizer.MaxQueryLength,
		DisallowedChars: cfg.Security.Sanitizer.DisallowedChars,
	})

	return pipeline.New(pipeline.DI{
		Matcher:   matcher,
		Sanitizer: san,
		Redactor:  red,
		Limiter:   limiter,
		Executor:  exec,
		Breaker:   httpx.NewCircuitBreaker("executor", cfg.Executor.ResetTimeout, uint32(cfg.Executor.MaxFailures)),
		Sink:      sink,
		Logger:    logger,
		Timeout:   cfg.Executor.Timeout,
	})
}

func getServerType() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	return "query"
}

func initializeServer(
	queryServerDI server.QueryServerDI,
	adminServerDI server.AdminServerDI,
) server.Server {
	switch getServerType() {
	case "admin":
		return server.NewAdminServer(adminServerDI)
	default:
		return server.NewQueryServer(queryServerDI)
	}
}

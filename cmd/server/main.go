package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/aibanking/lending-assistant/internal/config"
	"github.com/aibanking/lending-assistant/internal/controller"
	"github.com/aibanking/lending-assistant/internal/router"
	"github.com/aibanking/lending-assistant/internal/service"
	"github.com/aibanking/lending-assistant/internal/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format)

	log.Info().Msg("Starting Digital Lending Assistant")

	// Redis backs the warning flags and the embedding cache; both degrade to
	// in-memory storage when it is unreachable.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to connect to Redis, continuing with in-memory fallbacks")
	} else {
		log.Info().Msg("Connected to Redis")
	}

	events := service.NewEventLog()

	// Eligibility configuration and data load once; failure is fatal and the
	// orchestrator never starts without them.
	registry := service.NewEligibilityRegistry()
	if err := registry.Load(&cfg.Eligibility); err != nil {
		log.Fatal().Err(err).Msg("Failed to load eligibility configuration")
	}
	go func() {
		reloadLog := utils.ComponentLogger("registry")
		for range registry.ReloadRequests() {
			reloadLog.Warn().Msg("Eligibility data reload requested; signal forwarded to the data refresher")
		}
	}()

	spaces := service.NewEmbeddingSpaceRegistry(&cfg.Providers)

	embedder, err := service.BuildEmbeddingProvider(&cfg.Providers, spaces)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build embedding provider")
	}
	generator, err := service.BuildGenerationProvider(&cfg.Providers)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build generation provider")
	}

	memory, err := service.NewConversationMemory(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open conversation store")
	}
	defer memory.Close()

	cache := service.NewEmbeddingCache(redisClient, cfg.Retrieval.CacheTTL)
	retrieval, err := service.NewRetrievalService(&cfg.Retrieval, spaces, embedder, cache, events)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open retrieval service")
	}
	defer retrieval.Close()

	evaluator := service.NewEligibilityEvaluator(registry, events)
	assembler := service.NewPayloadAssembler()
	composer := service.NewPromptComposer(&cfg.Retrieval)
	manager := service.NewConversationManager(memory, &cfg.Conversation, redisClient, events)
	summarizer := service.NewSummarizer(memory, generator, events)

	orchestrator := service.NewOrchestrator(
		cfg, service.NewIntentDetector(), evaluator, assembler,
		retrieval, composer, memory, summarizer, generator, events,
	)

	chatController := controller.NewChatController(orchestrator)
	conversationController := controller.NewConversationController(manager, memory)

	appRouter := router.NewRouter(chatController, conversationController, registry.Available)
	r := appRouter.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.Info().
			Str("address", server.Addr).
			Str("embedding_provider", cfg.Providers.EmbeddingProvider).
			Str("generation_provider", cfg.Providers.GenerationProvider).
			Msg("Digital Lending Assistant started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	huntapi "github.com/cryptichunt/go-services/hunt/api"
	"github.com/cryptichunt/go-services/hunt/hub"
	"github.com/cryptichunt/go-services/hunt/leaderboard"
	"github.com/cryptichunt/go-services/hunt/service"
	"github.com/cryptichunt/go-services/hunt/store"
	"github.com/cryptichunt/go-services/hunt/warmer"
	"github.com/cryptichunt/go-services/shared/api"
	"github.com/cryptichunt/go-services/shared/config"
	"github.com/cryptichunt/go-services/shared/mongodb"
	redisu "github.com/cryptichunt/go-services/shared/redis"
	"github.com/cryptichunt/go-services/shared/registry"
)

func main() {
	// --- 1. Load Configuration ---
	cfg, err := config.LoadHuntServiceConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("Configuration loaded for Hunt Service. Listening on: %s", cfg.ListenAddr)

	// --- 2. Connect to Redis Cluster ---
	redisClient, err := redisu.NewRedisClusterClient(cfg.RedisAddrs, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("Failed to connect to Redis Cluster: %v", err)
	}
	defer func() {
		if err = redisClient.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
		}
		log.Println("Redis Client closed.")
	}()
	log.Println("Connected to Redis Cluster.")

	// --- 3. Connect to MongoDB ---
	mongoClient, err := mongodb.NewClient(cfg.MongoDBConnStr, cfg.MongoDBDatabase)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			log.Printf("Error disconnecting MongoDB client: %v", err)
		}
		log.Println("MongoDB Client disconnected.")
	}()
	log.Println("Connected to MongoDB.")

	// --- 4. Initialize Data Stores ---
	teamStore := store.NewTeamStore(mongoClient.Collection(cfg.MongoDBTeamsCollection))
	progressStore := store.NewProgressStore(mongoClient.Collection(cfg.MongoDBProgressCollection), cfg.MongoDBTeamsCollection)
	questionStore := store.NewQuestionStore(mongoClient.Collection(cfg.MongoDBQuestionsCollection))
	disqualifyStore := store.NewDisqualifyStore(redisClient)
	snapshotCache := store.NewSnapshotCache(redisClient, cfg.SnapshotCacheTTL)

	// --- 5. Initialize Leaderboard Provider and Broadcast Hub ---
	provider := leaderboard.NewProvider(progressStore, snapshotCache, disqualifyStore)
	broadcastHub := hub.NewHub(provider, cfg.HubEventBuffer, cfg.HubSendBuffer)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go broadcastHub.Run(hubCtx)
	defer broadcastHub.Stop()

	// --- 6. Initialize Business Logic Service (passing stores) ---
	huntService := service.NewProgressionService(
		progressStore,
		questionStore,
		teamStore,
		disqualifyStore,
		broadcastHub,
		cfg.SubmitCooldown,
	)
	log.Println("Hunt Service business logic initialized.")

	// --- 7. Initialize API Handlers (passing business logic services) ---
	huntAPIHandlers := huntapi.NewHuntAPIHandlers(huntService, provider, broadcastHub)

	// --- 8. Initialize and Start Service Registrar ---
	// The Hunt Service registers itself with the service discovery system.
	registrar := registry.NewServiceRegistrar(redisClient, "hunt-service", &cfg.CommonConfig)
	go registrar.Start()
	defer registrar.Stop()
	log.Printf("Service registrar started for 'hunt-service' with Address: %s", cfg.ListenAddr)

	registryClient := registry.NewRegistryClient(redisClient, cfg.HeartbeatTTL)

	// --- 9. Start Leaderboard Warmer (cluster leader keeps the cache fresh) ---
	leaderboardWarmer := warmer.NewLeaderboardWarmer(cfg, provider, registryClient, registrar)
	go leaderboardWarmer.Start()
	defer leaderboardWarmer.Stop()

	// --- 10. Setup HTTP Server and Register Routes ---
	baseServer := api.NewBaseServer(cfg.ListenAddr, log.Default())
	huntAPIHandlers.RegisterRoutes(baseServer.Router)
	log.Println("HTTP routes registered.")

	// --- 11. Start HTTP Server ---
	go func() {
		log.Printf("HTTP server starting on %s...", cfg.ListenAddr)
		if err := baseServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed to start: %v", err)
		}
	}()

	// --- 12. Graceful Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down Hunt Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := baseServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP server graceful shutdown failed: %v", err)
	}
	log.Println("Hunt Service HTTP server gracefully stopped.")
	log.Println("Hunt Service gracefully shut down.")
}

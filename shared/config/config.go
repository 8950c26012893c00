// shared/config/config.go
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// CommonConfig holds configuration fields that are shared across services.
type CommonConfig struct {
	RedisAddrs              []string      // Redis server addresses (e.g., "redis-cluster:6379")
	RedisPassword           string        // Redis password for authentication
	HeartbeatInterval       time.Duration // How often to send a heartbeat to the registry (e.g., 5s)
	HeartbeatTTL            time.Duration // How long an instance is considered alive without a heartbeat (e.g., 15s)
	RegistryCleanupInterval time.Duration // How often the registry actively cleans stale entries (e.g., 30s)
	ServiceIP               string        // The IP address this service advertises for registration (Kubernetes Pod IP)
	ServicePort             int           // The port this service listens on, used for registration
}

// HuntServiceConfig holds configuration specific to the hunt-service.
type HuntServiceConfig struct {
	CommonConfig                             // Embed CommonConfig
	ListenAddr                 string        // Address for the HTTP server (e.g., ":8083")
	MongoDBConnStr             string        // MongoDB connection string
	MongoDBDatabase            string        // MongoDB database name (e.g., "hunt")
	MongoDBTeamsCollection     string        // MongoDB collection for teams
	MongoDBProgressCollection  string        // MongoDB collection for team progress records
	MongoDBQuestionsCollection string        // MongoDB collection for questions (levels)
	SubmitCooldown             time.Duration // Minimum interval between a team's submission attempts (e.g., 5s)
	SnapshotCacheTTL           time.Duration // TTL for the cached leaderboard snapshot in Redis (e.g., 30s)
	WarmInterval               time.Duration // How often the leaderboard warmer refreshes the cache (e.g., 15s)
	WarmTimeout                time.Duration // Timeout for one warm pass (e.g., 10s)
	HubEventBuffer             int           // Buffer size for the progress-change event channel
	HubSendBuffer              int           // Per-subscriber outbound message buffer
}

// LoadCommonConfig loads common configuration from environment variables.
func LoadCommonConfig() (CommonConfig, error) {
	cfg := CommonConfig{}
	var err error

	// Redis Addresses
	redisAddrsStr := os.Getenv("REDIS_ADDRS")
	if redisAddrsStr == "" {
		cfg.RedisAddrs = []string{"redis-cluster-headless.hunt-cluster.svc.cluster.local:6379"} // Default for K8s Service
	} else {
		for _, addr := range strings.Split(redisAddrsStr, ",") {
			cfg.RedisAddrs = append(cfg.RedisAddrs, strings.TrimSpace(addr))
		}
	}

	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	cfg.HeartbeatInterval, err = getDuration("SERVICE_HEARTBEAT_INTERVAL", 5*time.Second)
	if err != nil {
		return cfg, err
	}
	cfg.HeartbeatTTL, err = getDuration("SERVICE_HEARTBEAT_TTL", 15*time.Second)
	if err != nil {
		return cfg, err
	}
	cfg.RegistryCleanupInterval, err = getDuration("SERVICE_REGISTRY_CLEANUP_INTERVAL", 30*time.Second)
	if err != nil {
		return cfg, err
	}

	// Service IP (for registration, from Kubernetes Pod IP)
	cfg.ServiceIP = os.Getenv("POD_IP") // Injected by Kubernetes
	if cfg.ServiceIP == "" {
		// Fallback for local development outside K8s or if not injected
		cfg.ServiceIP = "0.0.0.0"
		fmt.Printf("WARNING: POD_IP not set, defaulting ServiceIP to %s\n", cfg.ServiceIP)
	}

	return cfg, nil
}

// Helper function to parse duration from environment variable
func getDuration(envKey string, defaultVal time.Duration) (time.Duration, error) {
	valStr := os.Getenv(envKey)
	if valStr == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format for %s: %w", envKey, err)
	}
	return d, nil
}

// Helper function to parse int from environment variable
func getInt(envKey string, defaultVal int) (int, error) {
	valStr := os.Getenv(envKey)
	if valStr == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer format for %s: %w", envKey, err)
	}
	return i, nil
}

// extractPort extracts the numeric port from a listen address (e.g., ":8083" -> 8083, "0.0.0.0:8083" -> 8083)
func extractPort(listenAddr string) (int, error) {
	_, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		// If SplitHostPort fails, check if ListenAddr is just a port (e.g., ":8083")
		if strings.HasPrefix(listenAddr, ":") {
			portStr = strings.TrimPrefix(listenAddr, ":")
		} else {
			return 0, fmt.Errorf("invalid ListenAddr format for port extraction: %w", err)
		}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port number '%s': %w", portStr, err)
	}
	return port, nil
}

// LoadHuntServiceConfig loads configuration for the hunt-service.
func LoadHuntServiceConfig() (*HuntServiceConfig, error) {
	common, err := LoadCommonConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load common config for hunt-service: %w", err)
	}

	cfg := &HuntServiceConfig{
		CommonConfig:               common,
		ListenAddr:                 os.Getenv("HUNT_SERVICE_LISTEN_ADDR"),
		MongoDBConnStr:             os.Getenv("MONGODB_CONN_STR"),
		MongoDBDatabase:            os.Getenv("MONGODB_DATABASE"),
		MongoDBTeamsCollection:     os.Getenv("MONGODB_TEAMS_COLLECTION"),
		MongoDBProgressCollection:  os.Getenv("MONGODB_PROGRESS_COLLECTION"),
		MongoDBQuestionsCollection: os.Getenv("MONGODB_QUESTIONS_COLLECTION"),
	}

	// Apply defaults for specific fields if not set
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8083"
	}
	if cfg.MongoDBConnStr == "" {
		cfg.MongoDBConnStr = "mongodb://mongodb-service:27017" // Default for K8s internal DNS
	}
	if cfg.MongoDBDatabase == "" {
		cfg.MongoDBDatabase = "hunt"
	}
	if cfg.MongoDBTeamsCollection == "" {
		cfg.MongoDBTeamsCollection = "teams"
	}
	if cfg.MongoDBProgressCollection == "" {
		cfg.MongoDBProgressCollection = "team_progress"
	}
	if cfg.MongoDBQuestionsCollection == "" {
		cfg.MongoDBQuestionsCollection = "questions"
	}

	// Extract ServicePort from ListenAddr
	cfg.ServicePort, err = extractPort(cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to extract port from HUNT_SERVICE_LISTEN_ADDR '%s': %w", cfg.ListenAddr, err)
	}

	// Durations
	cfg.SubmitCooldown, err = getDuration("HUNT_SUBMIT_COOLDOWN", 5*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.SnapshotCacheTTL, err = getDuration("HUNT_SNAPSHOT_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.WarmInterval, err = getDuration("HUNT_WARM_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.WarmTimeout, err = getDuration("HUNT_WARM_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.HubEventBuffer, err = getInt("HUNT_HUB_EVENT_BUFFER", 256)
	if err != nil {
		return nil, err
	}
	cfg.HubSendBuffer, err = getInt("HUNT_HUB_SEND_BUFFER", 16)
	if err != nil {
		return nil, err
	}
	if cfg.HubEventBuffer <= 0 || cfg.HubSendBuffer <= 0 {
		return nil, fmt.Errorf("hub buffer sizes must be positive (event=%d, send=%d)", cfg.HubEventBuffer, cfg.HubSendBuffer)
	}

	return cfg, nil
}

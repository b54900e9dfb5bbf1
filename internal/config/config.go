package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL      string
	HTTPPort         string
	PollIntervalMS   int // milliseconds between status polls
	ShutdownTimeout  int // seconds
	AutoSyncSchedule string

	ProviderBaseURL      string
	ProviderAPIKey       string
	ProviderClientID     string
	ProviderClientSecret string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	providerBaseURL := os.Getenv("SYNC_PROVIDER_BASE_URL")
	if providerBaseURL == "" {
		return nil, fmt.Errorf("SYNC_PROVIDER_BASE_URL is required")
	}

	providerAPIKey := os.Getenv("SYNC_PROVIDER_API_KEY")
	if providerAPIKey == "" {
		fmt.Println("Warning: SYNC_PROVIDER_API_KEY not set, provider calls will be rejected")
	}

	clientID := os.Getenv("SYNC_PROVIDER_CLIENT_ID")
	clientSecret := os.Getenv("SYNC_PROVIDER_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		fmt.Println("Warning: SYNC_PROVIDER_CLIENT_ID or SYNC_PROVIDER_CLIENT_SECRET not set, grant token refresh will not work")
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	schedule := os.Getenv("AUTO_SYNC_SCHEDULE")
	if schedule == "" {
		schedule = "@every 15m"
	}

	return &Config{
		DatabaseURL:          dbURL,
		HTTPPort:             port,
		PollIntervalMS:       envInt("POLL_INTERVAL_MS", 2000),
		ShutdownTimeout:      envInt("SHUTDOWN_TIMEOUT_SECONDS", 30),
		AutoSyncSchedule:     schedule,
		ProviderBaseURL:      providerBaseURL,
		ProviderAPIKey:       providerAPIKey,
		ProviderClientID:     clientID,
		ProviderClientSecret: clientSecret,
	}, nil
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

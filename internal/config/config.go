package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Telegram
	BotToken    string
	BotUsername string

	// TON Vote
	APIBaseURL string
	AppURL     string

	// Database
	DBPath string

	// Scheduling
	PollInterval   time.Duration
	DigestInterval time.Duration

	// Health server
	HealthPort int
}

func Load() *Config {
	return &Config{
		// Telegram
		BotToken:    getEnv("BOT_TOKEN", ""),
		BotUsername: getEnv("BOT_USERNAME", "tonvotebot"),

		// TON Vote
		APIBaseURL: strings.TrimSuffix(getEnv("TON_VOTE_API_URL", "https://api.ton.vote"), "/"),
		AppURL:     strings.TrimSuffix(getEnv("TON_VOTE_APP_URL", "https://ton.vote"), "/"),

		// Database
		DBPath: getEnv("DB_PATH", "./votebot.db"),

		// Scheduling
		PollInterval:   getEnvDuration("POLL_INTERVAL", time.Minute),
		DigestInterval: getEnvDuration("DIGEST_INTERVAL", 24*time.Hour),

		// Health server
		HealthPort: getEnvInt("HEALTH_PORT", 8080),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

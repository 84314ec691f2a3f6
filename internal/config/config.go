package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config keeps runtime settings for both front ends.
type Config struct {
	DatabaseURL    string
	BotToken       string
	SecretKey      string
	Addr           string
	ReportInterval time.Duration
}

// Load reads configuration from environment variables with sane defaults.
// A .env file is honored when present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[info] .env file not found, using environment variables")
	}

	cfg := Config{
		DatabaseURL:    getEnv("DATABASE_URL", "sqlite:///site.db"),
		BotToken:       strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		SecretKey:      getEnv("SECRET_KEY", "dev_key_123"),
		Addr:           ":" + getEnv("PORT", "8000"),
		ReportInterval: time.Duration(getEnvAsInt("REPORT_INTERVAL_HOURS", 0)) * time.Hour,
	}

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL must not be empty")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		log.Printf("[warn] invalid value for %s, using default %d", key, defaultVal)
		return defaultVal
	}
	return i
}

package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL    string
	JWTSecret      string
	Port           string
	CORSOrigin     string
	Store          string // postgres or memory
	ContentFile    string // overrides the embedded content pack
	RateLimitRPS   float64
	RateLimitBurst int
	LogLevel       string
}

func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		Port:           os.Getenv("PORT"),
		CORSOrigin:     os.Getenv("CORS_ORIGIN"),
		Store:          os.Getenv("STORE"),
		ContentFile:    os.Getenv("CONTENT_FILE"),
		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 10),
		LogLevel:       os.Getenv("LOG_LEVEL"),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Store == "" {
		cfg.Store = "postgres"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	if cfg.Store != "postgres" && cfg.Store != "memory" {
		log.Fatalf("STORE must be postgres or memory, got %q", cfg.Store)
	}
	if cfg.Store == "postgres" && cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	return cfg
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("%s must be an integer, got %q", key, v)
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("%s must be a number, got %q", key, v)
	}
	return f
}

package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	// APIBaseURL is the REST backend (history, chat list, services).
	APIBaseURL string
	// SocketURL is the realtime endpoint.
	SocketURL string

	// Dev server settings.
	ServerPort string
	JWTSecret  string

	Development bool
}

func Load() *Config {
	// Optional; env vars win when no .env is present.
	_ = godotenv.Load()

	return &Config{
		APIBaseURL:  getEnv("CHAT_API_URL", "http://localhost:3000"),
		SocketURL:   getEnv("CHAT_SOCKET_URL", "ws://localhost:3000/ws"),
		ServerPort:  getEnv("SERVER_PORT", "3000"),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret-change-me"),
		Development: getEnv("APP_ENV", "dev") == "dev",
	}
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

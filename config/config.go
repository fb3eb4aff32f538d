package config

import "os"

// Config holds the application configuration.
type Config struct {
	PostgresConn  string
	ServerAddress string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		PostgresConn:  getEnv("POSTGRES_CONN", "postgres://localhost/jobmarket?sslmode=disable"),
		ServerAddress: getEnv("SERVER_ADDRESS", "0.0.0.0:8080"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

package config

import (
	"time"

	"wavelink-backend/pkg/env"
)

// Config holds the signaling service configuration, loaded from the
// environment (Docker secrets supported via *_FILE variants).
type Config struct {
	Env  string
	Port int

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisHost     string
	RedisPort     int
	RedisPassword string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	JWTSecret string

	RelayRateLimit  int
	RelayRateWindow time.Duration

	MaxWSConnections int
}

// Load reads the service configuration from the environment
func Load() *Config {
	return &Config{
		Env:  env.GetString("ENV", "development"),
		Port: env.GetInt("PORT", 8084),

		DBHost:     env.GetString("DB_HOST", "localhost"),
		DBPort:     env.GetInt("DB_PORT", 26257),
		DBUser:     env.GetString("DB_USER", "root"),
		DBPassword: env.GetStringFromFile("DB_PASSWORD", ""),
		DBName:     env.GetString("DB_NAME", "wavelink"),
		DBSSLMode:  env.GetString("DB_SSLMODE", "disable"),

		RedisHost:     env.GetString("REDIS_HOST", "localhost"),
		RedisPort:     env.GetInt("REDIS_PORT", 6379),
		RedisPassword: env.GetStringFromFile("REDIS_PASSWORD", ""),

		MinIOEndpoint:  env.GetString("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", "minioadmin"),
		MinIOBucket:    env.GetString("MINIO_BUCKET", "avatars"),
		MinIOUseSSL:    env.GetBool("MINIO_USE_SSL", false),

		JWTSecret: env.GetStringFromFile("JWT_SECRET", ""),

		RelayRateLimit:  env.GetInt("RELAY_RATE_LIMIT", 120),
		RelayRateWindow: env.GetDuration("RELAY_RATE_WINDOW", time.Minute),

		MaxWSConnections: env.GetInt("WS_MAX_CONNECTIONS", 1000),
	}
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

package config

import (
	"time"

	"sif-backend/pkg/constants"
	"sif-backend/pkg/env"
)

// Config holds every environment-derived setting for the sync service
type Config struct {
	Env  string
	Port int

	// Firestore
	FirebaseProjectID       string
	FirebaseCredentialsPath string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	RedisTimeout  time.Duration

	// Push transport: mock, fcm or apns
	PushProvider string

	// Auth
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment
func Load() *Config {
	return &Config{
		Env:  env.GetString("ENV", "development"),
		Port: env.GetInt("PORT", 8080),

		FirebaseProjectID:       env.GetString("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsPath: env.GetString("FIREBASE_CREDENTIALS_PATH", ""),

		RedisHost:     env.GetString("REDIS_HOST", "localhost"),
		RedisPort:     env.GetInt("REDIS_PORT", 6379),
		RedisPassword: env.GetStringFromFile("REDIS_PASSWORD", ""),
		RedisDB:       env.GetInt("REDIS_DB", 0),
		RedisPoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
		RedisTimeout:  env.GetDuration("REDIS_TIMEOUT", 3*time.Second),

		PushProvider: env.GetString("PUSH_PROVIDER", "mock"),

		JWTSecret:          env.GetStringFromFile("JWT_SECRET", "secret"),
		AccessTokenExpiry:  env.GetDuration("ACCESS_TOKEN_EXPIRY", constants.AccessTokenExpiry),
		RefreshTokenExpiry: env.GetDuration("REFRESH_TOKEN_EXPIRY", constants.RefreshTokenExpiry),

		LogLevel:  env.GetString("LOG_LEVEL", "info"),
		LogFormat: env.GetString("LOG_FORMAT", "json"),
	}
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

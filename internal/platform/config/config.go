package config

import (
	"os"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr             string
	DatabaseURL      string
	Redis            RedisConfig
	JWTSigningKey    string
	BootstrapAdminID string
}

// RedisConfig holds connection settings for the profile snapshot cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ProfileCacheTTL bounds how long a profile snapshot may be served from
// cache before falling back to the store.
var ProfileCacheTTL = 5 * time.Minute

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("CUSTODIA_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:        addr,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		JWTSigningKey:    jwtSigningKey,
		BootstrapAdminID: os.Getenv("BOOTSTRAP_ADMIN_ID"),
	}
}

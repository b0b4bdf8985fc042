// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; production deploys
// override through the environment.
package config

import (
	"os"
	"strings"
	"time"
)

// Config captures everything the server process needs at startup.
type Config struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	PostgresDSN string

	RedisAddr        string
	SnapshotCacheTTL time.Duration

	KafkaBrokers    []string
	KafkaAuditTopic string

	AuditBufferSize int
}

// FromEnv reads the CIVICA_* environment.
func FromEnv() Config {
	cfg := Config{
		Addr:             envOr("CIVICA_ADDR", ":8080"),
		JWTSigningKey:    envOr("CIVICA_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:        envOr("CIVICA_JWT_ISSUER", "civica"),
		JWTAudience:      envOr("CIVICA_JWT_AUDIENCE", "civica-api"),
		PostgresDSN:      os.Getenv("CIVICA_POSTGRES_DSN"),
		RedisAddr:        os.Getenv("CIVICA_REDIS_ADDR"),
		SnapshotCacheTTL: durationOr("CIVICA_SNAPSHOT_CACHE_TTL", 5*time.Minute),
		KafkaAuditTopic:  envOr("CIVICA_KAFKA_AUDIT_TOPIC", "civica.audit"),
		AuditBufferSize:  1024,
	}
	if brokers := os.Getenv("CIVICA_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

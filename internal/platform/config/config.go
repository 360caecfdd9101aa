// Package config builds process configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs at startup.
type Config struct {
	Addr          string
	AdminToken    string
	JWTSigningKey string

	// DatabaseURL selects the postgres stores; empty means in-memory.
	DatabaseURL string
	// RedisURL enables the distributed per-activity registration lease;
	// empty means in-process locking only.
	RedisURL string
	// KafkaBrokers enables the lifecycle event sink; empty keeps events
	// in the local store only.
	KafkaBrokers []string
	KafkaTopic   string

	// Timezone is the calendar zone for same-day conflict checks and
	// reminder trigger dates.
	Timezone string

	// Registration lifecycle windows.
	UndoWindow   time.Duration
	Cooldown     time.Duration
	CancelCutoff time.Duration

	// SweepInterval drives the optional periodic finalize sweeper.
	// Zero disables it; lazy finalize still runs on every touchpoint.
	SweepInterval time.Duration
}

// FromEnv reads configuration from environment variables, applying the
// defaults the registration lifecycle is specified with (5 minute undo,
// 1 hour cooldown, 1 day cancellation cutoff).
func FromEnv() Config {
	cfg := Config{
		Addr:          envOr("VOLUNTEERHUB_ADDR", ":8080"),
		AdminToken:    os.Getenv("ADMIN_TOKEN"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		KafkaTopic:    envOr("KAFKA_TOPIC", "volunteerhub.lifecycle"),
		Timezone:      envOr("VOLUNTEERHUB_TZ", "Asia/Bangkok"),
		UndoWindow:    envDuration("REGISTRATION_UNDO_WINDOW", 5*time.Minute),
		Cooldown:      envDuration("REGISTRATION_COOLDOWN", time.Hour),
		CancelCutoff:  envDuration("REGISTRATION_CANCEL_CUTOFF", 24*time.Hour),
		SweepInterval: envDuration("REGISTRATION_SWEEP_INTERVAL", time.Minute),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare integers are treated as seconds.
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// Package config builds runtime configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	id "dplay/pkg/domain"
	pstrings "dplay/pkg/platform/strings"
)

// DefaultRegistrationFee is charged per listing registration, in the
// smallest payment unit.
const DefaultRegistrationFee = 1_000_000_000_000_000

// Config captures everything the server needs at startup.
type Config struct {
	Addr string

	// Administrator is the identity allowed to verify listings and
	// withdraw retained fees. Fixed for the process lifetime.
	Administrator   id.Identity
	RegistrationFee int64

	// AdminTokenHash is the bcrypt hash guarding admin HTTP routes.
	AdminTokenHash string

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	// PostgresDSN selects the PostgreSQL stores; empty runs in-memory.
	PostgresDSN string

	// RedisURL enables the listing read cache; empty disables it.
	RedisURL        string
	ListingCacheTTL time.Duration

	// KafkaBrokers enables event forwarding; empty keeps events local.
	KafkaBrokers []string
	KafkaTopic   string
}

// FromEnv reads configuration from environment variables, applying
// development defaults where safe.
func FromEnv() Config {
	cfg := Config{
		Addr:            envOr("DPLAY_ADDR", ":8080"),
		Administrator:   id.Identity(envOr("DPLAY_ADMINISTRATOR", "dplay:admin")),
		RegistrationFee: envInt64("DPLAY_REGISTRATION_FEE", DefaultRegistrationFee),
		AdminTokenHash:  os.Getenv("DPLAY_ADMIN_TOKEN_HASH"),
		JWTSigningKey:   envOr("DPLAY_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:       envOr("DPLAY_JWT_ISSUER", "dplay"),
		JWTAudience:     envOr("DPLAY_JWT_AUDIENCE", "dplay-registry"),
		PostgresDSN:     os.Getenv("DPLAY_POSTGRES_DSN"),
		RedisURL:        os.Getenv("DPLAY_REDIS_URL"),
		ListingCacheTTL: envDuration("DPLAY_LISTING_CACHE_TTL", 30*time.Second),
		KafkaTopic:      os.Getenv("DPLAY_KAFKA_TOPIC"),
	}
	if brokers := os.Getenv("DPLAY_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = pstrings.DedupeAndTrim(strings.Split(brokers, ","))
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

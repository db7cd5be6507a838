package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration. Stores and sinks are selected
// by which URLs are present: empty means the in-memory variant.
type Config struct {
	Addr string

	// DatabaseURL enables the Postgres-backed settings and event stores.
	DatabaseURL string

	// Redis backs the shared payment ledger when configured.
	Redis RedisConfig

	// KafkaBrokers/KafkaTopic enable the kafka event sink.
	KafkaBrokers []string
	KafkaTopic   string

	// JWTSigningKey protects publisher-mutating routes when set.
	JWTSigningKey string

	// PublisherWallet receives payments referenced in challenges.
	PublisherWallet string

	// VerifierMode selects the payment verifier: "mock" or "onchain".
	VerifierMode   string
	FacilitatorURL string
}

// RedisConfig mirrors the connection knobs the redis client accepts.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:            getenv("TOLLGATE_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("TOLLGATE_DATABASE_URL"),
		KafkaTopic:      getenv("TOLLGATE_KAFKA_TOPIC", "tollgate.request-events"),
		JWTSigningKey:   os.Getenv("TOLLGATE_JWT_SIGNING_KEY"),
		PublisherWallet: getenv("TOLLGATE_PUBLISHER_WALLET", "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"),
		VerifierMode:    getenv("TOLLGATE_VERIFIER", "mock"),
		FacilitatorURL:  os.Getenv("TOLLGATE_FACILITATOR_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("TOLLGATE_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
	if brokers := os.Getenv("TOLLGATE_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

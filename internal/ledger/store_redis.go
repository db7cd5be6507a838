package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var isVerifiedDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "tollgate_ledger_lookup_duration_ms",
	Help:    "Latency of payment ledger lookups in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

// Redis key prefix for verified payment proofs.
const verifiedProofKeyPrefix = "ledger:proof:"

// RedisStore shares the verified-token set across instances. Keys carry no
// TTL; the ledger is append-only and verified state never reverts.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed ledger store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) MarkVerified(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	// Store "1" as a simple marker; the key existence is what matters.
	return s.client.Set(ctx, verifiedProofKeyPrefix+token, "1", 0).Err()
}

func (s *RedisStore) IsVerified(ctx context.Context, token string) (bool, error) {
	start := time.Now()
	defer func() {
		isVerifiedDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	if token == "" {
		return false, nil
	}

	err := s.client.Get(ctx, verifiedProofKeyPrefix+token).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

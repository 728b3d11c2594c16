package artifacts

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerStore decorates a Store with a circuit breaker. When the backing
// store fails repeatedly the breaker opens and fetches fail fast instead of
// hanging each optimization cycle on a dead remote share.
type BreakerStore struct {
	inner   Store
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps inner with a circuit breaker. The breaker opens
// after five consecutive failures and allows a trial request after 30 seconds.
func NewBreakerStore(inner Store, logger zerolog.Logger) *BreakerStore {
	blog := logger.With().Str("component", "artifact-breaker").Logger()
	settings := gobreaker.Settings{
		Name:    "artifact-store",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			blog.Warn().Str("from", from.String()).Str("to", to.String()).
				Msg("artifact store breaker state changed")
		},
	}
	return &BreakerStore{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// GetModel fetches a network through the breaker.
func (s *BreakerStore) GetModel(ctx context.Context, path string) (*Network, error) {
	v, err := s.breaker.Execute(func() (any, error) {
		return s.inner.GetModel(ctx, path)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Network), nil
}

// GetScaler fetches a scaler bundle through the breaker.
func (s *BreakerStore) GetScaler(ctx context.Context, path string) (ScalerBundle, error) {
	v, err := s.breaker.Execute(func() (any, error) {
		return s.inner.GetScaler(ctx, path)
	})
	if err != nil {
		return nil, err
	}
	return v.(ScalerBundle), nil
}

// GetMetadata fetches metadata through the breaker.
func (s *BreakerStore) GetMetadata(ctx context.Context, path string) (*Metadata, error) {
	v, err := s.breaker.Execute(func() (any, error) {
		return s.inner.GetMetadata(ctx, path)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Metadata), nil
}

// Invalidate forwards the invalidation to the backing store.
func (s *BreakerStore) Invalidate(path string) { s.inner.Invalidate(path) }

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storefront-gateway/internal/metrics"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker in front of the store.
type BreakerConfig struct {
	// Name identifies this breaker in metrics and logs.
	Name string

	// MaxRequests is the number of probe calls allowed while half-open.
	MaxRequests uint32

	// Interval clears the closed-state counts. 0 never clears them.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	// FailureRatio trips the breaker once MinRequests calls have been seen.
	FailureRatio float64
	MinRequests  uint32
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     30 * time.Second,
		Timeout:      5 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// BreakerStore fails fast with ErrUnavailable while the wrapped store is failing.
type BreakerStore struct {
	next    Store
	breaker *gobreaker.CircuitBreaker[any]
}

func NewBreakerStore(next Store, cfg BreakerConfig, log *slog.Logger, m *metrics.Security) *BreakerStore {
	if log == nil {
		log = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// Only outages count against the breaker, not caller bugs such as a bad TTL.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("kvstore breaker state change",
				slog.String("component", "kvstore"),
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			m.SetBreakerState(name, stateToFloat(to))
		},
	}
	m.SetBreakerState(cfg.Name, 0)

	return &BreakerStore{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// State returns the current breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.breaker.State()
}

func (b *BreakerStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.next.Set(ctx, key, value, ttl)
	})
	return b.mapErr(err)
}

func (b *BreakerStore) Exists(ctx context.Context, key string) (bool, error) {
	v, err := b.breaker.Execute(func() (any, error) {
		return b.next.Exists(ctx, key)
	})
	if err != nil {
		return false, b.mapErr(err)
	}
	return v.(bool), nil
}

func (b *BreakerStore) Hit(ctx context.Context, key string, window time.Duration) (Counter, error) {
	v, err := b.breaker.Execute(func() (any, error) {
		return b.next.Hit(ctx, key, window)
	})
	if err != nil {
		return Counter{}, b.mapErr(err)
	}
	return v.(Counter), nil
}

func (b *BreakerStore) Undo(ctx context.Context, key string) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.next.Undo(ctx, key)
	})
	return b.mapErr(err)
}

func (b *BreakerStore) mapErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

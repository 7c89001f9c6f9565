package similarity

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type BreakerSettings struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

type breakerOracle struct {
	next Oracle
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker guards next with a circuit breaker. Once open, calls fail fast
// with gobreaker.ErrOpenState until the timeout elapses.
func WithBreaker(next Oracle, settings BreakerSettings, logger *zap.Logger) Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("similarity breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &breakerOracle{next: next, cb: cb}
}

func (b *breakerOracle) call(fn func() (Pair, error)) (Pair, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return Pair{}, err
	}
	return res.(Pair), nil
}

func (b *breakerOracle) MostSimilarFromContent(ctx context.Context, content string) (Pair, error) {
	return b.call(func() (Pair, error) { return b.next.MostSimilarFromContent(ctx, content) })
}

func (b *breakerOracle) MostSimilarToExisting(ctx context.Context, postID string) (Pair, error) {
	return b.call(func() (Pair, error) { return b.next.MostSimilarToExisting(ctx, postID) })
}

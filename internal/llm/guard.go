package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"examrag/internal/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrUnavailable is returned while the backend's circuit is open.
var ErrUnavailable = errors.New("llm: backend unavailable")

// Guard wraps a Completer with a request-rate limiter, a circuit breaker,
// a per-call timeout and panic recovery.
type Guard struct {
	inner   Completer
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewGuard limits inner to rpm requests per minute (unlimited when rpm <= 0).
func NewGuard(name string, inner Completer, rpm int, timeout time.Duration) *Guard {
	limit := rate.Inf
	burst := 1
	if rpm > 0 {
		limit = rate.Limit(float64(rpm) / 60.0)
		burst = max(rpm/10, 1)
	}
	return &Guard{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "llm-" + name,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
		timeout: timeout,
	}
}

func (g *Guard) Complete(ctx context.Context, req Request) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.call(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", err
	}
	text, _ := res.(string)
	return text, nil
}

func (g *Guard) call(ctx context.Context, req Request) (text string, err error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("llm backend panic: %v", rec)
		}
	}()
	return g.inner.Complete(ctx, req)
}

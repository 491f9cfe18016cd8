package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"examrag/internal/logger"

	"github.com/sony/gobreaker"
)

// guard wraps a provider in its own circuit breaker so a failing remote
// OCR service is skipped quickly instead of costing a timeout per image.
func guard(p Provider) Provider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ocr-" + p.Name,
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	try := p.Try
	return Provider{
		Name: p.Name,
		Try: func(ctx context.Context, image []byte) (string, error) {
			res, err := cb.Execute(func() (interface{}, error) {
				return try(ctx, image)
			})
			if err != nil {
				if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
					return "", fmt.Errorf("%w: %s circuit open", ErrProviderUnavailable, p.Name)
				}
				return "", err
			}
			text, _ := res.(string)
			return text, nil
		},
	}
}

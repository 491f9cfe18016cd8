package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"examrag/internal/logger"
	"examrag/internal/outcome"
)

// ErrProviderUnavailable is returned by providers that are down or unconfigured.
var ErrProviderUnavailable = errors.New("ocr provider unavailable")

// Provider is one OCR capability in a cascade.
type Provider struct {
	Name string
	Try  func(ctx context.Context, image []byte) (string, error)
}

// Recognition is the routed OCR result for one image.
type Recognition struct {
	Text      string
	MathHeavy bool
	Provider  string
}

// Router cascades OCR providers per image. Each tier is an ordered list
// tried until one provider returns non-empty text.
type Router struct {
	General []Provider
	Math    []Provider
	Local   []Provider
	Timeout time.Duration
}

// NewRouter builds a Router with every provider wrapped in a circuit
// breaker and the per-call timeout.
func NewRouter(general, math, local []Provider, timeout time.Duration) *Router {
	wrap := func(ps []Provider) []Provider {
		out := make([]Provider, 0, len(ps))
		for _, p := range ps {
			out = append(out, guard(p))
		}
		return out
	}
	return &Router{
		General: wrap(general),
		Math:    wrap(math),
		Local:   wrap(local),
		Timeout: timeout,
	}
}

// Available reports whether any provider is configured at all.
func (r *Router) Available() bool {
	if r == nil {
		return false
	}
	return len(r.General)+len(r.Math)+len(r.Local) > 0
}

// Route runs the cascade for one image. It never fails; in the worst case
// the outcome is Empty with an empty, non-math recognition.
func (r *Router) Route(ctx context.Context, image []byte) outcome.Outcome[Recognition] {
	general, gName := r.first(ctx, "general", r.General, image)
	if general != "" {
		heavy := IsMathHeavy(general)
		if !heavy || len(r.Math) == 0 {
			return outcome.Ok(Recognition{Text: general, MathHeavy: heavy, Provider: gName})
		}
		math, mName := r.first(ctx, "math", r.Math, image)
		if math != "" {
			logger.Debug("Using math OCR for math-heavy content", "provider", mName)
			return outcome.Ok(Recognition{Text: math, MathHeavy: true, Provider: mName})
		}
		logger.Warn("Math OCR returned nothing, keeping general result", "provider", gName)
		return outcome.Degrade(Recognition{Text: general, MathHeavy: heavy, Provider: gName}, "math provider returned no text")
	}

	local, lName := r.first(ctx, "local", r.Local, image)
	if local != "" {
		return outcome.Degrade(Recognition{Text: local, MathHeavy: IsMathHeavy(local), Provider: lName}, "general provider returned no text")
	}

	logger.Warn("All OCR methods failed")
	return outcome.None[Recognition]("all ocr providers failed")
}

func (r *Router) first(ctx context.Context, tier string, providers []Provider, image []byte) (string, string) {
	for _, p := range providers {
		text, err := r.call(ctx, p, image)
		if err != nil {
			logger.Warn("OCR provider failed", "tier", tier, "provider", p.Name, "err", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, p.Name
		}
	}
	return "", ""
}

func (r *Router) call(ctx context.Context, p Provider, image []byte) (text string, err error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s panicked: %v", p.Name, rec)
		}
	}()
	return p.Try(ctx, image)
}

package ocr

import (
	"context"

	"examrag/internal/config"
	"examrag/internal/logger"
)

// NewFromConfig assembles the provider tiers from whatever is configured.
// Missing credentials leave a tier empty rather than failing.
func NewFromConfig(ctx context.Context, cfg *config.Config) *Router {
	var general, math, local []Provider

	if cfg.VisionKey != "" {
		vc, err := NewVisionClient(ctx, cfg.VisionKey)
		if err != nil {
			logger.Warn("Google Vision unavailable", "err", err)
		} else {
			general = append(general, vc.Provider())
		}
	}
	if cfg.MathpixEnabled() {
		math = append(math, NewMathpixClient(cfg.MathpixAppID, cfg.MathpixAppKey).Provider())
	}
	if t := DetectTesseract(); t != nil {
		local = append(local, t.Provider())
	}

	logger.Info("OCR router configured", "general", len(general), "math", len(math), "local", len(local))
	return NewRouter(general, math, local, cfg.CallTimeout)
}

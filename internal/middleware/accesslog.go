package middleware

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/numbers-window/internal/handlers"
	"go.uber.org/zap"
)

// AccessLog logs one line per request once the handler has written its response.
func AccessLog(logger *zap.Logger) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()

		next(ctx)

		u := ctx.URL()
		meta := handlers.RequestMetaFromContext(ctx.Context())

		logger.Info("request",
			zap.String("method", ctx.Method()),
			zap.String("path", u.Path),
			zap.Int("status", ctx.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", meta.RequestID),
			zap.String("client_ip", meta.ClientIP),
		)
	}
}

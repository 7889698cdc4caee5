package app

import (
	httpMW "github.com/yungbote/rollup-backend/internal/http/middleware"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	auth := httpMW.NewAuthMiddleware(log, cfg.JWTSecret)
	if !auth.Enabled() {
		log.Warn("ROLLUP_JWT_SECRET not set; API routes are unauthenticated")
	}
	return Middleware{Auth: auth}
}

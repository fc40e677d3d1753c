package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func CORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", HeaderRequestID},
		ExposeHeaders:    []string{HeaderRequestID, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	switch {
	case len(allowedOrigins) == 0:
		// Same-origin requests only.
		cfg.AllowOriginFunc = func(origin string) bool { return false }
	case len(allowedOrigins) == 1 && allowedOrigins[0] == "*":
		// Development only; config rejects the wildcard in production.
		// Credentials need a concrete origin, so echo the caller's back.
		cfg.AllowOriginFunc = func(origin string) bool { return true }
	default:
		cfg.AllowOrigins = allowedOrigins
	}

	return cors.New(cfg)
}

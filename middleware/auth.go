package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/habitcore/utils"
)

const (
	// ContextCallerKey stores the authenticated scheduler identity in Gin context.
	ContextCallerKey = "caller"
	// SecretHeader carries the shared scheduler secret.
	SecretHeader = "X-Scheduler-Secret"
)

// SchedulerAuthConfig selects the accepted credentials. With both fields empty
// the middleware lets every request through.
type SchedulerAuthConfig struct {
	JWTSecret  string
	SecretHash string
}

func (c SchedulerAuthConfig) enabled() bool {
	return c.JWTSecret != "" || c.SecretHash != ""
}

// SchedulerAuth guards batch endpoints. It accepts either the shared secret in
// X-Scheduler-Secret (checked against a bcrypt hash) or a scoped HS256 bearer token.
func SchedulerAuth(cfg SchedulerAuthConfig) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !cfg.enabled() {
			ctx.Set(ContextCallerKey, "anonymous")
			ctx.Next()
			return
		}

		if secret := ctx.GetHeader(SecretHeader); secret != "" {
			if cfg.SecretHash == "" || !utils.CheckSecret(cfg.SecretHash, secret) {
				utils.Abort(ctx, http.StatusUnauthorized, 40102, "invalid scheduler secret")
				return
			}
			ctx.Set(ContextCallerKey, "shared-secret")
			ctx.Next()
			return
		}

		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			utils.Abort(ctx, http.StatusUnauthorized, utils.CodeUnauthorized, "authorization header missing")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.Abort(ctx, http.StatusUnauthorized, 40103, "invalid authorization header format")
			return
		}
		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			utils.Abort(ctx, http.StatusUnauthorized, 40104, "empty bearer token")
			return
		}

		claims, err := utils.ParseSchedulerToken(cfg.JWTSecret, tokenString)
		if err != nil {
			utils.Abort(ctx, http.StatusUnauthorized, 40105, "invalid token")
			return
		}
		ctx.Set(ContextCallerKey, claims.Subject)
		ctx.Next()
	}
}

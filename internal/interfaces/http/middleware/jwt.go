package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pricecycle/backend/internal/infrastructure/auth"
	"github.com/pricecycle/backend/internal/infrastructure/logger"
	"github.com/pricecycle/backend/internal/interfaces/http/dto"
)

// Gin context keys set by BearerAuth
const (
	SubjectKey = "subject"
	ClaimsKey  = "auth_claims"
)

// BearerAuthConfig configures BearerAuth
type BearerAuthConfig struct {
	Tokens *auth.TokenService
	// SkipPaths are path prefixes served without a token
	SkipPaths []string
	Logger    *zap.Logger
}

// BearerAuth requires a valid operator token on every request outside
// SkipPaths. Tokens may also arrive in the access_token query parameter for
// EventSource clients, which cannot set headers.
func BearerAuth(cfg BearerAuthConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if strings.HasPrefix(path, skip) {
				c.Next()
				return
			}
		}

		token := extractToken(c)
		if token == "" {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Authorization token is required")
			return
		}

		claims, err := cfg.Tokens.Validate(token)
		if err != nil {
			logger.Enrich(c.Request.Context(), log).Debug("Rejected bearer token", zap.Error(err))
			if errors.Is(err, auth.ErrExpiredToken) {
				abortUnauthorized(c, dto.ErrCodeTokenExpired, "Token has expired")
				return
			}
			abortUnauthorized(c, dto.ErrCodeTokenInvalid, "Invalid token")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(SubjectKey, claims.Subject)
		ctx, _ := logger.WithSubject(c.Request.Context(), logger.Enrich(c.Request.Context(), log), claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return c.Query("access_token")
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.Header("WWW-Authenticate", `Bearer realm="pricecycle"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}

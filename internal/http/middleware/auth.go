package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/rollup-backend/internal/http/response"
	"github.com/yungbote/rollup-backend/internal/pkg/ctxutil"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

const (
	ScopeRun  = "rollup:run"
	ScopeRead = "rollup:read"
)

// ServiceClaims are the claims of an HS256 service token.
type ServiceClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

func (c ServiceClaims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// AuthMiddleware verifies service tokens. With an empty secret every request
// passes as an anonymous caller holding all scopes.
type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
}

func NewAuthMiddleware(log *logger.Logger, secret string) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("Middleware", "AuthMiddleware"), secret: []byte(strings.TrimSpace(secret))}
}

func (am *AuthMiddleware) Enabled() bool { return am != nil && len(am.secret) > 0 }

// RequireScope authenticates the request and checks the caller holds scope.
func (am *AuthMiddleware) RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !am.Enabled() {
			ctx := ctxutil.WithCaller(c.Request.Context(), &ctxutil.Caller{Subject: "anonymous", Scopes: []string{"*"}})
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}
		tokenString := bearerToken(c)
		if tokenString == "" {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing or invalid token"))
			return
		}
		caller, err := am.Verify(tokenString)
		if err != nil {
			am.log.Debug("token rejected", "error", err)
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", err)
			return
		}
		if !caller.HasScope(scope) {
			response.RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("token lacks scope %s", scope))
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithCaller(c.Request.Context(), caller))
		c.Next()
	}
}

// Verify parses and validates tokenString.
func (am *AuthMiddleware) Verify(tokenString string) (*ctxutil.Caller, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(token *jwt.Token) (interface{}, error) {
		return am.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*ServiceClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return &ctxutil.Caller{Subject: claims.Subject, Scopes: claims.Scopes()}, nil
}

// IssueToken signs a service token for subject with the given scopes.
func (am *AuthMiddleware) IssueToken(subject string, scopes []string, ttl time.Duration) (string, error) {
	if !am.Enabled() {
		return "", fmt.Errorf("no signing secret configured")
	}
	now := time.Now()
	claims := ServiceClaims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(am.secret)
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

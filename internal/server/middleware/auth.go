package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenRevoked = errors.New("token has been revoked")

// AppClaims defines our custom JWT claims structure.
type AppClaims struct {
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates a raw bearer token and returns its claims.
type TokenVerifier func(token string) (*AppClaims, error)

// NewAuthMiddleware requires a bearer token. A missing, expired or revoked
// token is answered with 401; one that does not parse or verify with 422.
func NewAuthMiddleware(logger *slog.Logger, verify TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

			// couldn't extract metadata from request so something went wrong with previous middlewares
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				WriteError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}

			tokenString, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			tokenString = strings.TrimSpace(tokenString)
			if !found || tokenString == "" {
				logger.Warn("Bearer token missing in request", slog.String("ip", reqMeta.IP))
				WriteError(w, http.StatusUnauthorized, "Missing authorization token")
				return
			}

			claims, err := verify(tokenString)
			switch {
			case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, ErrTokenRevoked):
				logger.Info("Stale token presented", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				WriteError(w, http.StatusUnauthorized, "Token is no longer valid")
				return
			case err != nil:
				logger.Warn("Invalid JWT token presented", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				WriteError(w, http.StatusUnprocessableEntity, "Token validation failed")
				return
			case claims.Subject == "":
				logger.Warn("Valid token missing 'sub' claim", slog.String("ip", reqMeta.IP))
				WriteError(w, http.StatusUnprocessableEntity, "Token validation failed")
				return
			}

			reqMeta.UserID = claims.Subject
			reqMeta.Role = claims.Role
			reqMeta.TokenID = claims.ID
			if claims.ExpiresAt != nil {
				reqMeta.ExpiresAt = claims.ExpiresAt.Time
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "volunteerhub/pkg/domain"
	"volunteerhub/pkg/requestcontext"
)

// JWTValidator validates bearer tokens minted by the external auth service.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims are the claims this engine consumes from a validated token.
type JWTClaims struct {
	UserID    id.UserID
	Moderator bool
}

// HMACValidator validates HS256 tokens signed with a shared key. Session
// management itself lives with the external auth collaborator; this only
// establishes the caller's identity.
type HMACValidator struct {
	key []byte
}

func NewHMACValidator(signingKey string) *HMACValidator {
	return &HMACValidator{key: []byte(signingKey)}
}

func (v *HMACValidator) ValidateToken(tokenString string) (*JWTClaims, error) {
	type claims struct {
		jwt.RegisteredClaims
		Moderator bool `json:"moderator,omitempty"`
	}

	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return v.key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}

	userID, err := id.ParseUserID(c.Subject)
	if err != nil {
		return nil, err
	}
	return &JWTClaims{UserID: userID, Moderator: c.Moderator}, nil
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller identity in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(tokenString)
			if err != nil {
				logger.WarnContext(r.Context(), "bearer token rejected", "error", err.Error())
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			ctx := requestcontext.WithUserID(r.Context(), claims.UserID)
			if claims.Moderator {
				ctx = requestcontext.WithModerator(ctx, true)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

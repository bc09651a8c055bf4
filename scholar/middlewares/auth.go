package middlewares

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"scholar/scholar/config"
	httputils "scholar/scholar/utils/http"
	"scholar/scholar/utils/logging"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	ClaimsKey contextKey = "claims"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
	TokenReset   = "reset"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrRevokedToken = errors.New("token has been revoked")
)

type Claims struct {
	UserID int    `json:"user_id"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// RevocationStore records logged-out token ids until they expire.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// TokenManager issues and verifies the HS256 tokens used by the API.
type TokenManager struct {
	secret  []byte
	ttl     map[string]time.Duration
	revoked RevocationStore
	now     func() time.Time
}

// NewTokenManager builds a manager from the config. revoked may be nil, in
// which case logout cannot be enforced.
func NewTokenManager(cfg config.Config, revoked RevocationStore) *TokenManager {
	return &TokenManager{
		secret: []byte(cfg.JWTSecret),
		ttl: map[string]time.Duration{
			TokenAccess:  cfg.AccessTokenTTL,
			TokenRefresh: cfg.RefreshTokenTTL,
			TokenReset:   cfg.ResetTokenTTL,
		},
		revoked: revoked,
		now:     time.Now,
	}
}

func (m *TokenManager) Issue(userID int, typ string) (string, error) {
	ttl, ok := m.ttl[typ]
	if !ok {
		return "", fmt.Errorf("unknown token type %q", typ)
	}
	now := m.now()
	claims := Claims{
		UserID: userID,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse verifies signature, expiry, type and revocation.
func (m *TokenManager) Parse(ctx context.Context, tokenStr, typ string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != typ || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	if m.revoked != nil && claims.ID != "" {
		revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, ErrRevokedToken
		}
	}
	return claims, nil
}

func (m *TokenManager) Revoke(ctx context.Context, claims *Claims) error {
	if m.revoked == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	return m.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

func BearerToken(r *http.Request) string {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// RequireAuth rejects requests without a valid access token and stores the
// user id and claims in the request context.
func (m *TokenManager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := BearerToken(r)
		if tokenStr == "" {
			httputils.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := m.Parse(r.Context(), tokenStr, TokenAccess)
		if err != nil {
			if !errors.Is(err, ErrInvalidToken) && !errors.Is(err, ErrRevokedToken) {
				logging.ErrorLogger.Error("token verification failed", zap.Error(err))
				httputils.WriteError(w, http.StatusServiceUnavailable, "authentication unavailable")
				return
			}
			httputils.WriteError(w, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
		ctx = context.WithValue(ctx, ClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(UserIDKey).(int)
	return id, ok
}

func ClaimsFrom(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ClaimsKey).(*Claims)
	return claims
}

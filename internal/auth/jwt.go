package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/reelworks/vod-pipeline/internal/metrics"
)

const (
	// MinSecretLength guards against trivially brute-forceable HMAC keys.
	MinSecretLength = 16

	APITokenTTL = 24 * time.Hour
	issuer      = "vod-pipeline"
)

// Claims carries the organization the caller is authorized for. How the
// caller obtained the token is outside this system; the claim is consumed as
// an opaque "authorized for organization X" fact.
type Claims struct {
	OrganizationID string `json:"organizationId"`
	jwt.RegisteredClaims
}

// JWTService issues and validates API tokens.
type JWTService struct {
	secret []byte
}

// NewJWTService creates a JWTService with the given signing secret.
func NewJWTService(secret []byte) (*JWTService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	return &JWTService{secret: secret}, nil
}

// GenerateToken creates a token scoped to one organization.
func (s *JWTService) GenerateToken(organizationID string) (string, error) {
	if organizationID == "" {
		return "", errors.New("organizationId is required")
	}

	now := time.Now()
	claims := &Claims{
		OrganizationID: organizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(APITokenTTL)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and verifies a token, returning its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}
	if claims.OrganizationID == "" {
		return nil, errors.New("token missing organization claim")
	}
	return claims, nil
}

type contextKey string

const organizationContextKey contextKey = "organizationID"

// OrganizationFromContext returns the organization id the middleware stored.
func OrganizationFromContext(ctx context.Context) string {
	org, _ := ctx.Value(organizationContextKey).(string)
	return org
}

// ContextWithOrganization stores an organization id on the context. Exposed
// for handler tests.
func ContextWithOrganization(ctx context.Context, organizationID string) context.Context {
	return context.WithValue(ctx, organizationContextKey, organizationID)
}

// Middleware validates the Authorization header and stores the caller's
// organization on the request context.
func (s *JWTService) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			metrics.AuthFailures.WithLabelValues("missing_header").Inc()
			http.Error(w, "Authorization header missing", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			metrics.AuthFailures.WithLabelValues("malformed_header").Inc()
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}

		claims, err := s.ValidateToken(parts[1])
		if err != nil {
			metrics.AuthFailures.WithLabelValues("invalid_token").Inc()
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := ContextWithOrganization(r.Context(), claims.OrganizationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

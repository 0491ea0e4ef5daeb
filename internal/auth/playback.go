package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/reelworks/vod-pipeline/pkg/models"
)

// PlaybackClaims binds a token to exactly one video+organization pair.
// Tokens are stateless and cannot be revoked before expiry.
type PlaybackClaims struct {
	VideoID        string `json:"videoId"`
	OrganizationID string `json:"organizationId"`
	jwt.RegisteredClaims
}

// PlaybackToken is an issued token with its lifetime.
type PlaybackToken struct {
	Token     string
	ExpiresAt time.Time
}

// PlaybackTokenService issues and verifies short-lived signed streaming tokens.
type PlaybackTokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewPlaybackTokenService creates a token service with the given secret and TTL.
func NewPlaybackTokenService(secret []byte, ttl time.Duration) (*PlaybackTokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("playback token secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("playback token ttl must be positive")
	}
	return &PlaybackTokenService{secret: secret, ttl: ttl}, nil
}

// TTL returns the configured token lifetime.
func (s *PlaybackTokenService) TTL() time.Duration {
	return s.ttl
}

// Issue creates a token for one video+organization pair.
func (s *PlaybackTokenService) Issue(videoID, organizationID string) (*PlaybackToken, error) {
	if videoID == "" {
		return nil, models.ErrMissingVideoID
	}
	if organizationID == "" {
		return nil, models.ErrMissingOrganizationID
	}

	now := time.Now()
	expiresAt := now.Add(s.ttl)
	claims := &PlaybackClaims{
		VideoID:        videoID,
		OrganizationID: organizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign playback token: %w", err)
	}

	return &PlaybackToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks signature and expiry and returns the embedded claims.
func (s *PlaybackTokenService) Verify(tokenString string) (*PlaybackClaims, error) {
	claims := &PlaybackClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, models.ErrTokenInvalid
	}
	return claims, nil
}

// VerifyFor verifies a token and enforces that it was issued for the
// requested video. Mismatched tokens are rejected for every resource kind,
// thumbnails included.
func (s *PlaybackTokenService) VerifyFor(tokenString, videoID string) (*PlaybackClaims, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.VideoID != videoID {
		return nil, models.ErrTokenMismatch
	}
	return claims, nil
}

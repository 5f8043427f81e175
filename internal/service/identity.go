package service

import (
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const guestPrefix = "guest_"

// Claims is the signed session payload. Subject is the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IdentityResolver turns request credentials into a Principal
type IdentityResolver struct {
	secret []byte
	ttl    time.Duration
}

func NewIdentityResolver(secret string, ttl time.Duration) *IdentityResolver {
	return &IdentityResolver{secret: []byte(secret), ttl: ttl}
}

// Resolve prefers a bearer token. Without one it falls back to the guest id,
// minting a new one when the given id is missing or malformed; issued reports
// that the caller must hand the new id back to the client.
func (r *IdentityResolver) Resolve(authorization, guestID string) (models.Principal, bool, error) {
	if token, ok := bearerToken(authorization); ok {
		claims, err := r.Verify(token)
		if err != nil {
			return models.Principal{}, false, err
		}
		return models.UserPrincipal(claims.Subject, claims.Email), false, nil
	}

	if ValidGuestID(guestID) {
		return models.GuestPrincipal(guestID), false, nil
	}
	return models.GuestPrincipal(NewGuestID()), true, nil
}

// IssueToken signs a token for user
func (r *IdentityResolver) IssueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry
func (r *IdentityResolver) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrUnauthorized)
	}
	return claims, nil
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// NewGuestID returns a fresh random guest identifier
func NewGuestID() string {
	return guestPrefix + uuid.New().String()
}

func ValidGuestID(id string) bool {
	if !strings.HasPrefix(id, guestPrefix) {
		return false
	}
	_, err := uuid.Parse(strings.TrimPrefix(id, guestPrefix))
	return err == nil
}

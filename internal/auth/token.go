package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/marketguard/internal/clock"
	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "marketguard"

// TokenManager signs and validates admin session tokens. The token's jti is
// the session id, so revoking the session revokes the token.
type TokenManager struct {
	secret []byte
	clock  clock.Clock
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, c clock.Clock) *TokenManager {
	if c == nil {
		c = clock.Real{}
	}
	return &TokenManager{
		secret: []byte(secret),
		clock:  c,
	}
}

// Issue signs a token for session, expiring with it.
func (tm *TokenManager) Issue(user *models.AdminUser, session *models.AdminSession) (string, error) {
	claims := &models.TokenClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			NotBefore: jwt.NewNumericDate(session.CreatedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature, expiry and issuer and returns the claims.
func (tm *TokenManager) Validate(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	},
		jwt.WithTimeFunc(tm.clock.Now),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, models.ErrUnauthorized
	}
	if claims.ID == "" || claims.UserID == "" {
		return nil, errors.Join(models.ErrUnauthorized, errors.New("token missing session or user id"))
	}

	return claims, nil
}

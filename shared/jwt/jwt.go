package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cliniq-dev/cliniq/shared/domain"
	internal_errors "github.com/cliniq-dev/cliniq/shared/errors"
	"github.com/cliniq-dev/cliniq/shared/logger"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type Claims struct {
	UserId    domain.UserId `json:"uid"`
	Email     domain.Email  `json:"email"`
	Role      domain.Role   `json:"role"`
	TokenType string        `json:"token_type"`
	jwt.RegisteredClaims
}

type JwtService interface {
	NewPair(user domain.User) (domain.TokenPair, error)
	DecodeAccess(jwtStr string) (*Claims, error)
	DecodeRefresh(jwtStr string) (*Claims, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

type Jwt struct {
	secretKey  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(secretKey string, accessTTL, refreshTTL time.Duration) *Jwt {
	return &Jwt{secretKey, accessTTL, refreshTTL}
}

func (j *Jwt) AccessTTL() time.Duration  { return j.accessTTL }
func (j *Jwt) RefreshTTL() time.Duration { return j.refreshTTL }

// NewPair mints a fresh access/refresh token pair for the user. Each token
// carries its own jti so two pairs minted in the same second still differ.
func (j *Jwt) NewPair(user domain.User) (domain.TokenPair, error) {
	access, err := j.newToken(user, TokenTypeAccess, j.accessTTL)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := j.newToken(user, TokenTypeRefresh, j.refreshTTL)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (j *Jwt) newToken(user domain.User, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserId:    user.Id,
		Email:     user.Email,
		Role:      user.Role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(j.secretKey))
	if err != nil {
		logger.Log.Error("failed to sign token", "type", tokenType, "error", err)
		return "", fmt.Errorf("can't create %s token: %w", tokenType, err)
	}
	return tokenString, nil
}

// DecodeAccess verifies signature and expiry of an access token.
func (j *Jwt) DecodeAccess(jwtStr string) (*Claims, error) {
	claims, err := j.decode(jwtStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, internal_errors.Unauthorized("Invalid access token")
	}
	return claims, nil
}

// DecodeRefresh verifies signature and expiry of a refresh token. Any failure
// collapses into the same opaque rejection so callers can't distinguish
// "expired" from "forged" from "wrong type".
func (j *Jwt) DecodeRefresh(jwtStr string) (*Claims, error) {
	claims, err := j.decode(jwtStr)
	if err != nil || claims.TokenType != TokenTypeRefresh {
		return nil, internal_errors.InvalidRefreshToken()
	}
	return claims, nil
}

func (j *Jwt) decode(jwtStr string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(jwtStr, &claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing algorithm
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(j.secretKey), nil
	})
	if err != nil {
		logger.Log.Debug("token decode failed", "error", err)
		return nil, internal_errors.Unauthorized("Invalid token signature")
	}
	if !token.Valid {
		return nil, internal_errors.Unauthorized("Invalid token")
	}
	return &claims, nil
}

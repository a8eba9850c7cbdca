package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cliniq-dev/cliniq/shared/domain"
	internal_jwt "github.com/cliniq-dev/cliniq/shared/jwt"
	"github.com/cliniq-dev/cliniq/shared/logger"
	"github.com/cliniq-dev/cliniq/shared/utils"
)

// TokenBlacklist answers whether an access token (or all of a user's
// outstanding tokens) has been revoked. Checked only after the cheap
// local signature/expiry verification passes.
type TokenBlacklist interface {
	IsTokenBlacklisted(ctx context.Context, token string) (bool, error)
	IsUserBlacklisted(ctx context.Context, userId domain.UserId) (bool, error)
}

// Keys to store auth data in the request context
type key int

const (
	claimsKey key = iota
	rawTokenKey
)

// Auth holds dependencies for authentication middleware
type Auth struct {
	jwtService    internal_jwt.JwtService
	blacklist     TokenBlacklist
	secureCookies bool
}

func NewAuth(jwtService internal_jwt.JwtService, blacklist TokenBlacklist, secureCookies bool) *Auth {
	return &Auth{
		jwtService:    jwtService,
		blacklist:     blacklist,
		secureCookies: secureCookies,
	}
}

// NeedAuth returns middleware that requires a valid, non-revoked access token
func (a *Auth) NeedAuth() func(http.Handler) http.Handler {
	return a.auth(false)
}

// AdminOnly returns middleware that additionally requires the admin role
func (a *Auth) AdminOnly() func(http.Handler) http.Handler {
	return a.auth(true)
}

// Sentinel errors for extractClaims
var (
	errNoToken     = errorString("no token")
	errRevoked     = errorString("revoked")
	errUnavailable = errorString("blacklist unavailable")
)

type errorString string

func (e errorString) Error() string { return string(e) }

// extractClaims pulls the access token from cookie or Authorization header,
// verifies it locally, then consults the blacklist. Order matters: the
// signature check is free, the blacklist check is a network call.
func (a *Auth) extractClaims(r *http.Request) (*internal_jwt.Claims, string, error) {
	var tokenString string
	accessCookie, err := r.Cookie("accessToken")
	if err == nil {
		tokenString = accessCookie.Value
	} else if token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); found {
		tokenString = token
	}

	if tokenString == "" {
		return nil, "", errNoToken
	}

	claims, err := a.jwtService.DecodeAccess(tokenString)
	if err != nil {
		return nil, "", err
	}

	if a.blacklist != nil {
		ctx := r.Context()
		hit, err := a.blacklist.IsTokenBlacklisted(ctx, tokenString)
		if err != nil {
			logger.Log.Error("token blacklist check failed", "error", err)
			return nil, "", errUnavailable
		}
		if !hit {
			hit, err = a.blacklist.IsUserBlacklisted(ctx, claims.UserId)
			if err != nil {
				logger.Log.Error("user blacklist check failed", "user_id", claims.UserId, "error", err)
				return nil, "", errUnavailable
			}
		}
		if hit {
			return nil, "", errRevoked
		}
	}

	return claims, tokenString, nil
}

func (a *Auth) auth(adminOnly bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, rawToken, err := a.extractClaims(r)
			if err != nil {
				switch err {
				case errNoToken:
					http.Error(w, "Please sign-in", http.StatusUnauthorized)
				case errRevoked:
					// Clear the cookie to force re-login
					cookie := &http.Cookie{
						Path:     "/",
						Name:     "accessToken",
						Value:    "",
						MaxAge:   -1,
						HttpOnly: true,
						Secure:   a.secureCookies,
						SameSite: http.SameSiteLaxMode,
					}
					http.SetCookie(w, cookie)
					http.Error(w, "Session revoked", http.StatusUnauthorized)
				case errUnavailable:
					http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
				default:
					utils.WriteErrorAndStatusCode(w, err)
				}
				return
			}

			if adminOnly && claims.Role != domain.RoleAdmin {
				http.Error(w, "Access denied. Only for admin", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = context.WithValue(ctx, rawTokenKey, rawToken)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaimsFromContext retrieves the verified claims from the request context
func GetClaimsFromContext(r *http.Request) *internal_jwt.Claims {
	claims, ok := r.Context().Value(claimsKey).(*internal_jwt.Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetTokenFromContext retrieves the raw access token the claims were decoded
// from. Logout needs it to blacklist the exact token value.
func GetTokenFromContext(r *http.Request) string {
	token, _ := r.Context().Value(rawTokenKey).(string)
	return token
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cliniq-dev/cliniq/shared/domain"
	internal_jwt "github.com/cliniq-dev/cliniq/shared/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBlacklist struct {
	IsTokenBlacklistedFunc func(ctx context.Context, token string) (bool, error)
	IsUserBlacklistedFunc  func(ctx context.Context, userId domain.UserId) (bool, error)
}

func (m *mockBlacklist) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	if m.IsTokenBlacklistedFunc != nil {
		return m.IsTokenBlacklistedFunc(ctx, token)
	}
	return false, nil
}

func (m *mockBlacklist) IsUserBlacklisted(ctx context.Context, userId domain.UserId) (bool, error) {
	if m.IsUserBlacklistedFunc != nil {
		return m.IsUserBlacklistedFunc(ctx, userId)
	}
	return false, nil
}

func testJwt() internal_jwt.JwtService {
	return internal_jwt.New("test-secret", time.Hour, 24*time.Hour)
}

func okHandler(t *testing.T, wantUserId domain.UserId) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaimsFromContext(r)
		require.NotNil(t, claims)
		assert.Equal(t, wantUserId, claims.UserId)
		assert.NotEmpty(t, GetTokenFromContext(r))
		w.WriteHeader(http.StatusOK)
	})
}

func TestNeedAuth(t *testing.T) {
	jwtSvc := testJwt()
	user := domain.User{Id: 7, Email: "nurse@clinic.test", Role: domain.RoleNurse}
	pair, err := jwtSvc.NewPair(user)
	require.NoError(t, err)

	t.Run("valid bearer token", func(t *testing.T) {
		mw := NewAuth(jwtSvc, &mockBlacklist{}, false)
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		w := httptest.NewRecorder()

		mw.NeedAuth()(okHandler(t, 7)).ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("valid cookie token", func(t *testing.T) {
		mw := NewAuth(jwtSvc, &mockBlacklist{}, false)
		r := httptest.NewRequest("GET", "/", nil)
		r.AddCookie(&http.Cookie{Name: "accessToken", Value: pair.AccessToken})
		w := httptest.NewRecorder()

		mw.NeedAuth()(okHandler(t, 7)).ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		mw := NewAuth(jwtSvc, &mockBlacklist{}, false)
		r := httptest.NewRequest("GET", "/", nil)
		w := httptest.NewRecorder()

		mw.NeedAuth()(okHandler(t, 7)).ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		mw := NewAuth(jwtSvc, &mockBlacklist{}, false)
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
		w := httptest.NewRecorder()

		mw.NeedAuth()(okHandler(t, 7)).ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("blacklisted token rejected and cookie cleared", func(t *testing.T) {
		bl := &mockBlacklist{IsTokenBlacklistedFunc: func(ctx context.Context, token string) (bool, error) {
			return token == pair.AccessToken, nil
		}}
		mw := NewAuth(jwtSvc, bl, false)
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		w := httptest.NewRecorder()

		mw.NeedAuth()(okHandler(t, 7)).ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "accessToken", cookies[0].Name)
		assert.Equal(t, -1, cookies[0].MaxAge)
	})

	t.Run("user-level blacklist marker rejected", func(t *testing.T) {
		bl := &mockBlacklist{IsUserBlacklistedFunc: func(ctx context.Context, userId domain.UserId) (bool, error) {
			return userId == 7, nil
		}}
		mw := NewAuth(jwtSvc, bl, false)
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		w := httptest.NewRecorder()

		mw.NeedAuth()(okHandler(t, 7)).ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("blacklist outage is 503 not silent allow", func(t *testing.T) {
		bl := &mockBlacklist{IsTokenBlacklistedFunc: func(ctx context.Context, token string) (bool, error) {
			return false, errors.New("redis down")
		}}
		mw := NewAuth(jwtSvc, bl, false)
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		w := httptest.NewRecorder()

		mw.NeedAuth()(okHandler(t, 7)).ServeHTTP(w, r)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestAdminOnly(t *testing.T) {
	jwtSvc := testJwt()

	adminPair, err := jwtSvc.NewPair(domain.User{Id: 1, Email: "admin@clinic.test", Role: domain.RoleAdmin})
	require.NoError(t, err)
	patientPair, err := jwtSvc.NewPair(domain.User{Id: 2, Email: "pat@clinic.test", Role: domain.RolePatient})
	require.NoError(t, err)

	mw := NewAuth(jwtSvc, &mockBlacklist{}, false)
	handler := mw.AdminOnly()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("admin passes", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer "+adminPair.AccessToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("patient forbidden", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer "+patientPair.AccessToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

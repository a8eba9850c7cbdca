package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cliniq-dev/cliniq/shared/config"
	"github.com/cliniq-dev/cliniq/shared/domain"
	"github.com/cliniq-dev/cliniq/shared/errors"
	internal_jwt "github.com/cliniq-dev/cliniq/shared/jwt"
	"github.com/cliniq-dev/cliniq/shared/logger"
	"github.com/cliniq-dev/cliniq/shared/utils"
)

type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (domain.UserSummary, error)
	AdminCreateUser(ctx context.Context, req RegisterRequest, createdBy domain.UserId) (domain.UserSummary, error)
	Login(ctx context.Context, creds domain.Credentials, otp string) (LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (LoginResult, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	VerifyEmail(ctx context.Context, token string) error
	ForgotPassword(ctx context.Context, email domain.Email) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type RegisterRequest struct {
	Email          domain.Email
	Password       domain.Password
	Role           domain.Role
	FirstName      string
	LastName       string
	Phone          string
	LicenseNumber  string
	Specialization string
	TwoFactor      bool
}

// LoginResult is the terminal payload of a login or refresh call. When
// RequiresOTP is set, only UserId is populated and the caller must come
// back with the emailed code.
type LoginResult struct {
	RequiresOTP bool
	UserId      domain.UserId
	User        domain.UserSummary
	Tokens      domain.TokenPair
	Permissions []string
	ExpiresIn   int64 // seconds until the access token expires
}

type AuthStorage interface {
	SaveUser(user domain.User) (domain.UserId, error)
	UserByEmail(email domain.Email) (domain.User, error)
	UserById(id domain.UserId) (domain.User, error)
	UserByVerificationHash(tokenHash string) (domain.User, error)
	UserByResetHash(tokenHash string) (domain.User, error)
	UpdateLoginState(id domain.UserId, failedCount int, lockUntil, lastLogin *time.Time) error
	SetVerificationToken(id domain.UserId, tokenHash string, expires time.Time) error
	MarkEmailVerified(id domain.UserId) error
	SetResetToken(id domain.UserId, tokenHash string, expires time.Time) error
	UpdatePassword(id domain.UserId, passHash string, changedAt time.Time) error
}

// SessionCache is the TTL store for everything short-lived: pending OTPs,
// the single refresh slot per user, and revocation markers.
type SessionCache interface {
	SaveOTP(ctx context.Context, userId domain.UserId, code string, ttl time.Duration) error
	OTP(ctx context.Context, userId domain.UserId) (string, error)
	DeleteOTP(ctx context.Context, userId domain.UserId) error
	SaveRefreshToken(ctx context.Context, userId domain.UserId, token string, ttl time.Duration) error
	RefreshToken(ctx context.Context, userId domain.UserId) (string, error)
	DeleteRefreshToken(ctx context.Context, userId domain.UserId) error
	BlacklistToken(ctx context.Context, token string, ttl time.Duration) error
	BlacklistUser(ctx context.Context, userId domain.UserId, ttl time.Duration) error
	DeleteProfile(ctx context.Context, userId domain.UserId) error
}

type Email interface {
	Send(recipientEmail, subject, body string) error
	IsCorrect(email domain.Email) error
}

type Jwt interface {
	NewPair(user domain.User) (domain.TokenPair, error)
	DecodeAccess(jwtStr string) (*internal_jwt.Claims, error)
	DecodeRefresh(jwtStr string) (*internal_jwt.Claims, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

type Auth struct {
	storage AuthStorage
	cache   SessionCache
	email   Email
	jwt     Jwt
	cfg     *config.Config
}

func NewAuth(storage AuthStorage, cache SessionCache, email Email, jwt Jwt, cfg *config.Config) *Auth {
	return &Auth{
		storage: storage,
		cache:   cache,
		email:   email,
		jwt:     jwt,
		cfg:     cfg,
	}
}

// Register creates an unverified account and emails a verification link.
// Any existing row with the same normalized email is a conflict, verified or
// not. For an unverified row the verification token is re-issued to the
// stored address before the rejection, so a lost email isn't a dead end —
// but the caller learns nothing beyond the 409.
func (a *Auth) Register(ctx context.Context, req RegisterRequest) (domain.UserSummary, error) {
	if err := a.validateRegistration(&req); err != nil {
		return domain.UserSummary{}, err
	}

	existing, err := a.storage.UserByEmail(req.Email)
	if err == nil {
		if !existing.EmailVerified {
			if err := a.issueVerification(existing.Id, existing.Email); err != nil {
				logger.Log.Error("failed to re-issue verification token", "user_id", existing.Id, "error", err)
			}
		}
		return domain.UserSummary{}, errors.Conflict("User with this email already exists")
	}
	if !errors.IsNotFound(err) {
		return domain.UserSummary{}, err
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Log.Error("failed to hash password", "error", err)
		return domain.UserSummary{}, err
	}

	rawToken := utils.GenerateToken()
	expires := time.Now().UTC().Add(a.cfg.VerificationTTL())

	id, err := a.storage.SaveUser(domain.User{
		Email:                 req.Email,
		PassHash:              string(passHash),
		Role:                  req.Role,
		FirstName:             req.FirstName,
		LastName:              req.LastName,
		Phone:                 req.Phone,
		LicenseNumber:         req.LicenseNumber,
		Specialization:        req.Specialization,
		TwoFactorEnabled:      req.TwoFactor,
		EmailVerified:         false,
		IsActive:              true,
		VerificationTokenHash: utils.HashToken(rawToken),
		VerificationExpires:   &expires,
	})
	if err != nil {
		return domain.UserSummary{}, err
	}

	if err := a.sendVerificationEmail(req.Email, rawToken); err != nil {
		return domain.UserSummary{}, err
	}

	return domain.UserSummary{Id: id, Email: req.Email, Role: req.Role, FirstName: req.FirstName, LastName: req.LastName}, nil
}

// issueVerification overwrites any pending verification token and resends
// the email. The previous link stops working immediately.
func (a *Auth) issueVerification(id domain.UserId, email domain.Email) error {
	rawToken := utils.GenerateToken()
	expires := time.Now().UTC().Add(a.cfg.VerificationTTL())
	if err := a.storage.SetVerificationToken(id, utils.HashToken(rawToken), expires); err != nil {
		return err
	}
	return a.sendVerificationEmail(email, rawToken)
}

func (a *Auth) sendVerificationEmail(email domain.Email, rawToken string) error {
	body := fmt.Sprintf(`
		Hello,

		Please confirm your email address with the token below:

		%s

		It expires in %.0f hours. If you did not create this account, please ignore this email.
	`, rawToken, a.cfg.VerificationTTL().Hours())

	return a.email.Send(email, "Please confirm your email address", body)
}

// AdminCreateUser provisions an account on behalf of an admin. The email is
// considered verified up front and the acting admin is recorded.
func (a *Auth) AdminCreateUser(ctx context.Context, req RegisterRequest, createdBy domain.UserId) (domain.UserSummary, error) {
	if err := a.validateRegistration(&req); err != nil {
		return domain.UserSummary{}, err
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Log.Error("failed to hash password", "error", err)
		return domain.UserSummary{}, err
	}

	id, err := a.storage.SaveUser(domain.User{
		Email:            req.Email,
		PassHash:         string(passHash),
		Role:             req.Role,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Phone:            req.Phone,
		LicenseNumber:    req.LicenseNumber,
		Specialization:   req.Specialization,
		TwoFactorEnabled: req.TwoFactor,
		EmailVerified:    true,
		IsActive:         true,
		CreatedBy:        &createdBy,
	})
	if err != nil {
		return domain.UserSummary{}, err
	}

	logger.Log.Info("user provisioned by admin", "user_id", id, "created_by", createdBy, "role", req.Role)
	return domain.UserSummary{Id: id, Email: req.Email, Role: req.Role, FirstName: req.FirstName, LastName: req.LastName, EmailVerified: true}, nil
}

// Login runs the lockout state machine and, when a second factor is enabled,
// the OTP round-trip. The decision itself is pure (decideLogin); this method
// only applies its side effects.
func (a *Auth) Login(ctx context.Context, creds domain.Credentials, otp string) (LoginResult, error) {
	email := strings.ToLower(creds.Email)

	if err := a.email.IsCorrect(email); err != nil {
		return LoginResult{}, err
	}

	user, err := a.storage.UserByEmail(email)
	if err != nil {
		if errors.IsNotFound(err) {
			// same error shape as a wrong password, no user enumeration
			return LoginResult{}, errors.InvalidCredentials()
		}
		return LoginResult{}, err
	}

	now := time.Now().UTC()

	// The hash comparison only matters for active, unlocked accounts;
	// skipping it elsewhere keeps lock/deactivation responses fast and
	// uniform.
	passwordOK := false
	if user.IsActive && !user.Locked(now) {
		passwordOK = bcrypt.CompareHashAndPassword([]byte(user.PassHash), []byte(creds.Password)) == nil
	}

	d := decideLogin(user, passwordOK, otp != "", now, a.cfg.Public.MaxLoginFailures, a.cfg.LockWindow())

	switch d.Outcome {
	case outcomeDeactivated:
		return LoginResult{}, errors.AccountDeactivated()

	case outcomeLocked:
		return LoginResult{}, errors.AccountLocked(int(d.RetryAfter.Seconds()) + 1)

	case outcomeInvalidCredentials:
		if err := a.storage.UpdateLoginState(user.Id, d.FailedCount, d.LockUntil, nil); err != nil {
			return LoginResult{}, err
		}
		if d.LockUntil != nil {
			logger.Log.Warn("account locked after repeated failures", "user_id", user.Id, "failed_count", d.FailedCount)
		}
		return LoginResult{}, errors.InvalidCredentials()

	case outcomeOtpRequired:
		if err := a.storage.UpdateLoginState(user.Id, 0, nil, nil); err != nil {
			return LoginResult{}, err
		}
		if err := a.startOtpChallenge(ctx, user); err != nil {
			return LoginResult{}, err
		}
		return LoginResult{RequiresOTP: true, UserId: user.Id}, nil

	case outcomeSuccess:
		if user.TwoFactorEnabled {
			if err := a.checkOtp(ctx, user.Id, otp); err != nil {
				return LoginResult{}, err
			}
		}
		if err := a.storage.UpdateLoginState(user.Id, 0, nil, &now); err != nil {
			return LoginResult{}, err
		}
		return a.issueTokens(ctx, user)
	}

	return LoginResult{}, fmt.Errorf("unreachable login outcome %d", d.Outcome)
}

// startOtpChallenge stores a fresh code (overwriting any pending one) and
// dispatches it out-of-band.
func (a *Auth) startOtpChallenge(ctx context.Context, user domain.User) error {
	code := utils.GenerateOTP(a.cfg.Public.OtpLength)
	if err := a.cache.SaveOTP(ctx, user.Id, code, a.cfg.OtpTTL()); err != nil {
		return err
	}

	body := fmt.Sprintf(`
		Hello,

		Your one-time sign-in code is

		%s

		It expires in %.0f minutes. If you did not try to sign in, please change your password.
	`, code, a.cfg.OtpTTL().Minutes())

	return a.email.Send(user.Email, "Your sign-in code", body)
}

// checkOtp consumes the pending code. The cache entry is deleted on success
// only, so a mistyped code can be retried until the TTL runs out.
func (a *Auth) checkOtp(ctx context.Context, userId domain.UserId, otp string) error {
	cached, err := a.cache.OTP(ctx, userId)
	if err != nil {
		if errors.IsNotFound(err) {
			return errors.InvalidOTP()
		}
		return err
	}
	if !utils.ConstantTimeEquals(cached, otp) {
		return errors.InvalidOTP()
	}
	// single use
	if err := a.cache.DeleteOTP(ctx, userId); err != nil {
		return err
	}
	return nil
}

// issueTokens mints a pair and overwrites the user's refresh slot. The
// overwrite invalidates whatever refresh token was live before: last login
// wins, one session per user.
func (a *Auth) issueTokens(ctx context.Context, user domain.User) (LoginResult, error) {
	pair, err := a.jwt.NewPair(user)
	if err != nil {
		logger.Log.Error("failed to create token pair", "user_id", user.Id, "error", err)
		return LoginResult{}, err
	}

	if err := a.cache.SaveRefreshToken(ctx, user.Id, pair.RefreshToken, a.jwt.RefreshTTL()); err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		UserId:      user.Id,
		User:        user.Summary(),
		Tokens:      pair,
		Permissions: PermissionsForRole(user.Role),
		ExpiresIn:   int64(a.jwt.AccessTTL().Seconds()),
	}, nil
}

// Refresh rotates the token pair. The presented token must match the cached
// slot exactly; an already-rotated token and a never-issued one get the same
// opaque rejection.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	claims, err := a.jwt.DecodeRefresh(refreshToken)
	if err != nil {
		return LoginResult{}, errors.InvalidRefreshToken()
	}

	cached, err := a.cache.RefreshToken(ctx, claims.UserId)
	if err != nil {
		if errors.IsNotFound(err) {
			return LoginResult{}, errors.InvalidRefreshToken()
		}
		return LoginResult{}, err
	}
	if !utils.ConstantTimeEquals(cached, refreshToken) {
		return LoginResult{}, errors.InvalidRefreshToken()
	}

	user, err := a.storage.UserById(claims.UserId)
	if err != nil {
		if errors.IsNotFound(err) {
			return LoginResult{}, errors.NotFound("User not found")
		}
		return LoginResult{}, err
	}
	if !user.IsActive {
		return LoginResult{}, errors.NotFound("User not found")
	}

	return a.issueTokens(ctx, user)
}

// Logout revokes the access token for its remaining lifetime, clears the
// refresh slot when a refresh token was supplied, and drops cached profile
// data. Calling it twice is fine.
func (a *Auth) Logout(ctx context.Context, accessToken, refreshToken string) error {
	claims, err := a.jwt.DecodeAccess(accessToken)
	if err != nil {
		return err
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if err := a.cache.BlacklistToken(ctx, accessToken, remaining); err != nil {
		return err
	}

	if refreshToken != "" {
		if err := a.cache.DeleteRefreshToken(ctx, claims.UserId); err != nil {
			return err
		}
	}

	return a.cache.DeleteProfile(ctx, claims.UserId)
}

// VerifyEmail completes the verification flow with the raw emailed token.
func (a *Auth) VerifyEmail(ctx context.Context, token string) error {
	tokenHash := utils.HashToken(token)

	user, err := a.storage.UserByVerificationHash(tokenHash)
	if err != nil {
		if errors.IsNotFound(err) {
			return errors.InvalidOrExpiredToken()
		}
		return err
	}
	if user.VerificationExpires == nil || user.VerificationExpires.Before(time.Now()) {
		return errors.InvalidOrExpiredToken()
	}
	// The DB lookup already matched the hash; re-compare in constant time
	// so the final verdict never depends on string-compare timing.
	if !utils.ConstantTimeEquals(user.VerificationTokenHash, tokenHash) {
		return errors.InvalidOrExpiredToken()
	}

	return a.storage.MarkEmailVerified(user.Id)
}

// ForgotPassword issues a reset token. Returns 404 for unknown emails; that
// binary leak is an accepted property of this endpoint.
func (a *Auth) ForgotPassword(ctx context.Context, email domain.Email) error {
	email = strings.ToLower(email)
	if err := a.email.IsCorrect(email); err != nil {
		return err
	}

	user, err := a.storage.UserByEmail(email)
	if err != nil {
		return err
	}

	rawToken := utils.GenerateToken()
	expires := time.Now().UTC().Add(a.cfg.ResetTTL())
	if err := a.storage.SetResetToken(user.Id, utils.HashToken(rawToken), expires); err != nil {
		return err
	}

	body := fmt.Sprintf(`
		Hello,

		Someone requested a password reset for your account. Use the token below to set a new password:

		%s

		It expires in %.0f minutes. If this wasn't you, you can safely ignore this email.
	`, rawToken, a.cfg.ResetTTL().Minutes())

	return a.email.Send(email, "Password reset", body)
}

// ResetPassword replaces the password and revokes every outstanding session:
// a user-level blacklist marker covers access tokens still in flight, and
// the refresh slot is dropped.
func (a *Auth) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	tokenHash := utils.HashToken(token)

	user, err := a.storage.UserByResetHash(tokenHash)
	if err != nil {
		if errors.IsNotFound(err) {
			return errors.InvalidOrExpiredToken()
		}
		return err
	}
	if user.ResetExpires == nil || user.ResetExpires.Before(time.Now()) {
		return errors.InvalidOrExpiredToken()
	}
	if !utils.ConstantTimeEquals(user.ResetTokenHash, tokenHash) {
		return errors.InvalidOrExpiredToken()
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		logger.Log.Error("failed to hash password", "error", err)
		return err
	}

	now := time.Now().UTC()
	if err := a.storage.UpdatePassword(user.Id, string(passHash), now); err != nil {
		return err
	}

	// TTL must cover the longest-lived access token still outstanding.
	if err := a.cache.BlacklistUser(ctx, user.Id, a.jwt.AccessTTL()); err != nil {
		return err
	}
	if err := a.cache.DeleteRefreshToken(ctx, user.Id); err != nil {
		return err
	}

	logger.Log.Info("password reset completed", "user_id", user.Id)
	return nil
}

// --- validation ---

func (a *Auth) validateRegistration(req *RegisterRequest) error {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := a.email.IsCorrect(req.Email); err != nil {
		return err
	}
	if err := validatePassword(req.Password); err != nil {
		return err
	}
	if !req.Role.Valid() {
		return errors.Validationf("Unknown role %q", req.Role)
	}
	if req.Role == domain.RoleDoctor && (req.LicenseNumber == "" || req.Specialization == "") {
		return errors.Validation("Doctor registration requires license number and specialization")
	}
	return nil
}

func validatePassword(password domain.Password) error {
	if len(password) < 8 {
		return errors.Validation("Password must be at least 8 characters")
	}
	if len(password) > 72 { // bcrypt input limit
		return errors.Validation("Password too long")
	}
	return nil
}

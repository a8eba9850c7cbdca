package handler

import (
	"net/http"

	"github.com/cliniq-dev/cliniq/backend/internal/service"
	"github.com/cliniq-dev/cliniq/shared/domain"
	"github.com/cliniq-dev/cliniq/shared/errors"
	"github.com/cliniq-dev/cliniq/shared/middleware"
	"github.com/cliniq-dev/cliniq/shared/middleware/metrics"
	"github.com/cliniq-dev/cliniq/shared/utils"
)

type registerRequest struct {
	Email          string `validate:"required" json:"email"`
	Password       string `validate:"required" json:"password"`
	Role           string `validate:"required" json:"role"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Phone          string `json:"phone"`
	LicenseNumber  string `json:"license_number"`
	Specialization string `json:"specialization"`
	TwoFactor      bool   `json:"two_factor"`
}

func (r registerRequest) toService() service.RegisterRequest {
	return service.RegisterRequest{
		Email:          r.Email,
		Password:       r.Password,
		Role:           domain.Role(r.Role),
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		Phone:          r.Phone,
		LicenseNumber:  r.LicenseNumber,
		Specialization: r.Specialization,
		TwoFactor:      r.TwoFactor,
	}
}

type loginRequest struct {
	Email    string `validate:"required" json:"email"`
	Password string `validate:"required" json:"password"`
	Otp      string `json:"otp"`
}

type loginResponse struct {
	User         domain.UserSummary `json:"user"`
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	Permissions  []string           `json:"permissions"`
	ExpiresIn    int64              `json:"expires_in"`
}

type otpChallengeResponse struct {
	RequiresOTP bool          `json:"requires_otp"`
	UserId      domain.UserId `json:"user_id"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := utils.DecodeValidate(r.Body, &req); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	summary, err := h.auth.Register(r.Context(), req.toService())
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, summary)
}

// AdminCreateUser provisions an account on behalf of the authenticated admin.
func (h *Handler) AdminCreateUser(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r)
	if claims == nil {
		utils.WriteErrorAndStatusCode(w, errors.Unauthorized("Missing token"))
		return
	}

	var req registerRequest
	if err := utils.DecodeValidate(r.Body, &req); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	summary, err := h.auth.AdminCreateUser(r.Context(), req.toService(), claims.UserId)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, summary)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := utils.DecodeValidate(r.Body, &req); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), domain.Credentials{Email: req.Email, Password: req.Password}, req.Otp)
	if err != nil {
		metrics.ObserveLogin("failure")
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if res.RequiresOTP {
		metrics.ObserveLogin("otp_challenge")
		writeJSON(w, http.StatusOK, otpChallengeResponse{RequiresOTP: true, UserId: res.UserId})
		return
	}

	metrics.ObserveLogin("success")
	h.setAccessCookie(w, res.Tokens.AccessToken, int(h.cfg.AccessTTL().Seconds()))
	writeJSON(w, http.StatusOK, loginResponse{
		User:         res.User,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		Permissions:  res.Permissions,
		ExpiresIn:    res.ExpiresIn,
	})
}

type refreshRequest struct {
	RefreshToken string `validate:"required" json:"refresh_token"`
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := utils.DecodeValidate(r.Body, &req); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	res, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	h.setAccessCookie(w, res.Tokens.AccessToken, int(h.cfg.AccessTTL().Seconds()))
	writeJSON(w, http.StatusOK, loginResponse{
		User:         res.User,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		Permissions:  res.Permissions,
		ExpiresIn:    res.ExpiresIn,
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout revokes the current access token and, when the body carries the
// refresh token, the session slot too. The cookie is cleared either way.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	accessToken := middleware.GetTokenFromContext(r)
	if accessToken == "" {
		utils.WriteErrorAndStatusCode(w, errors.Unauthorized("Missing token"))
		return
	}

	var req logoutRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := utils.Decode(r.Body, &req); err != nil {
			utils.WriteErrorAndStatusCode(w, err)
			return
		}
	}

	if err := h.auth.Logout(r.Context(), accessToken, req.RefreshToken); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	h.setAccessCookie(w, "", -1)
	w.WriteHeader(http.StatusOK)
}

type verifyEmailRequest struct {
	Token string `validate:"required" json:"token"`
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := utils.DecodeValidate(r.Body, &req); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if err := h.auth.VerifyEmail(r.Context(), req.Token); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Email verified. You can login now"))
}

type forgotPasswordRequest struct {
	Email string `validate:"required" json:"email"`
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := utils.DecodeValidate(r.Body, &req); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Reset instructions sent"))
}

type resetPasswordRequest struct {
	Token       string `validate:"required" json:"token"`
	NewPassword string `validate:"required" json:"new_password"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := utils.DecodeValidate(r.Body, &req); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Password updated. Please login again"))
}

type meResponse struct {
	UserId      domain.UserId `json:"user_id"`
	Email       domain.Email  `json:"email"`
	Role        domain.Role   `json:"role"`
	Permissions []string      `json:"permissions"`
}

// Me reports the authenticated identity straight from the verified claims.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r)
	if claims == nil {
		utils.WriteErrorAndStatusCode(w, errors.Unauthorized("Missing token"))
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		UserId:      claims.UserId,
		Email:       claims.Email,
		Role:        claims.Role,
		Permissions: service.PermissionsForRole(claims.Role),
	})
}

func (h *Handler) setAccessCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     "accessToken",
		Value:    value,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.Public.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

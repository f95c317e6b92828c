package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arvense/authtrail/internal/apperr"
	"github.com/arvense/authtrail/internal/middleware"
	"github.com/arvense/authtrail/internal/service"
)

// AuthHandler handles authentication HTTP requests.
type AuthHandler struct {
	authService service.AuthService
}

// NewAuthHandler creates a new AuthHandler instance.
func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// SignupRequest represents the signup request payload.
type SignupRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// SigninRequest represents the signin request payload.
type SigninRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// GoogleSigninRequest carries a Google-issued identity token.
type GoogleSigninRequest struct {
	Token string `json:"token" binding:"required"`
}

// ForgotPasswordRequest represents the forgot-password payload.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest represents the reset-password payload.
type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// RefreshRequest represents the token refresh payload.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ChangePasswordRequest represents the change-password payload.
// CurrentPassword is optional: Google-only accounts set their first
// password without one.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// UpdateProfileRequest represents the profile update payload.
type UpdateProfileRequest struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatar_url"`
}

// Signup godoc
// @Summary Register a new account
// @Description Create a user, send a verification email, and return a token pair
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SignupRequest true "Signup payload"
// @Success 201 {object} service.AuthResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /auth/signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindingError(c, err)
		return
	}

	middleware.MarkAuditHandled(c)
	resp, err := h.authService.Signup(c.Request.Context(), req.Name, req.Email, req.Password, middleware.MetaWithStatus(c, http.StatusCreated))
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Signin godoc
// @Summary Sign in with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SigninRequest true "Credentials"
// @Success 200 {object} service.AuthResponse
// @Failure 401 {object} map[string]interface{}
// @Failure 423 {object} map[string]interface{}
// @Router /auth/signin [post]
func (h *AuthHandler) Signin(c *gin.Context) {
	var req SigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindingError(c, err)
		return
	}

	middleware.MarkAuditHandled(c)
	resp, err := h.authService.SignIn(c.Request.Context(), req.Email, req.Password, middleware.Meta(c))
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GoogleSignin godoc
// @Summary Sign in with a Google identity token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body GoogleSigninRequest true "Identity token"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /auth/identity [post]
func (h *AuthHandler) GoogleSignin(c *gin.Context) {
	var req GoogleSigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindingError(c, err)
		return
	}

	middleware.MarkAuditHandled(c)
	resp, isNew, err := h.authService.GoogleSignIn(c.Request.Context(), req.Token, middleware.Meta(c))
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":          resp.User,
		"access_token":  resp.AccessToken,
		"refresh_token": resp.RefreshToken,
		"expires_in":    resp.ExpiresIn,
		"is_new_user":   isNew,
	})
}

// ForgotPassword godoc
// @Summary Request a password reset
// @Description Always responds with the same generic message so account existence cannot be probed
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ForgotPasswordRequest true "Email"
// @Success 200 {object} map[string]string
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindingError(c, err)
		return
	}

	middleware.MarkAuditHandled(c)
	message, err := h.authService.ForgotPassword(c.Request.Context(), req.Email, middleware.Meta(c))
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}

// ResetPassword godoc
// @Summary Complete a password reset
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ResetPasswordRequest true "Reset token and new password"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]interface{}
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindingError(c, err)
		return
	}

	middleware.MarkAuditHandled(c)
	if err := h.authService.ResetPassword(c.Request.Context(), req.Token, req.Password, middleware.Meta(c)); err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password has been reset"})
}

// Refresh godoc
// @Summary Exchange a refresh token for a new token pair
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh token"
// @Success 200 {object} service.AuthResponse
// @Failure 401 {object} map[string]interface{}
// @Router /auth/refresh-token [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindingError(c, err)
		return
	}

	middleware.MarkAuditHandled(c)
	resp, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Me godoc
// @Summary Current user's profile
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.User
// @Failure 401 {object} map[string]interface{}
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authService.GetProfile(c.Request.Context(), c.GetString(middleware.ContextUserID))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateProfile godoc
// @Summary Update name/avatar of the current user
// @Description Role, email and account flags are not reachable from this path
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body UpdateProfileRequest true "Fields to update"
// @Success 200 {object} models.User
// @Failure 400 {object} map[string]interface{}
// @Router /auth/profile [put]
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindingError(c, err)
		return
	}
	if req.Name == nil && req.AvatarURL == nil {
		RespondError(c, apperr.Validation("nothing to update", nil))
		return
	}

	middleware.MarkAuditHandled(c)
	user, err := h.authService.UpdateProfile(c.Request.Context(), c.GetString(middleware.ContextUserID), req.Name, req.AvatarURL, middleware.Meta(c))
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// ChangePassword godoc
// @Summary Change the current user's password
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body ChangePasswordRequest true "Passwords"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]interface{}
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindingError(c, err)
		return
	}

	middleware.MarkAuditHandled(c)
	err := h.authService.ChangePassword(c.Request.Context(), c.GetString(middleware.ContextUserID), req.CurrentPassword, req.NewPassword, middleware.Meta(c))
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

// Logout godoc
// @Summary Log out
// @Description Tokens are stateless; logout is a client-side token discard
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	middleware.MarkAuditHandled(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/infinity-finance/backend/internal/model"
	"github.com/infinity-finance/backend/internal/service"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Login godoc
// @Summary Login
// @Description Accepts an OAuth2 password form or a JSON body. scope is a space separated list.
// @Tags auth
// @Accept x-www-form-urlencoded,json
// @Produce json
// @Param request body model.LoginRequest true "Username and password"
// @Success 200 {object} model.TokenResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	pair, err := h.svc.Login(c.Request.Context(), req.Username, req.Password, service.ParseScopes(req.Scope))
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    service.TokenTypeBearer,
		ExpiresIn:    int64(h.svc.AccessTTL().Seconds()),
	})
}

// Refresh godoc
// @Summary Refresh access token
// @Description The refresh token is read from the JSON body, or from the Authorization header when the body has none.
// @Tags auth
// @Accept json
// @Produce json
// @Param Authorization header string false "Bearer <refresh_token>"
// @Param request body model.RefreshRequest false "Refresh token"
// @Success 200 {object} model.TokenResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	// An empty body is allowed; clients may send the token as a Bearer header.
	var req model.RefreshRequest
	_ = c.ShouldBindJSON(&req)
	refreshToken := req.RefreshToken
	if refreshToken == "" {
		refreshToken = bearerToken(c)
	}

	pair, err := h.svc.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    service.TokenTypeBearer,
		ExpiresIn:    int64(h.svc.AccessTTL().Seconds()),
	})
}

// Logout godoc
// @Summary Logout
// @Description Revokes the refresh token and the access token used for the call.
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.LogoutRequest true "Refresh token"
// @Success 200 {object} model.DetailResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req model.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	if err := h.svc.LogoutSession(c.Request.Context(), req.RefreshToken, bearerToken(c)); err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.DetailResponse{Detail: "Successfully logged out"})
}

// RequestPasswordReset godoc
// @Summary Request a password reset
// @Description Sends a single-use reset link to the account email.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.PasswordResetRequest true "Account email"
// @Success 202 {object} model.DetailResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/auth/password-reset [post]
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req model.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	if err := h.svc.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, model.DetailResponse{Detail: "Password reset email sent"})
}

// ResetPassword godoc
// @Summary Reset password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.PasswordResetConfirmRequest true "Reset token and new password"
// @Success 200 {object} model.DetailResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/auth/password-reset/confirm [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req model.PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	if err := h.svc.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.DetailResponse{Detail: "Password has been reset"})
}

func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, model.ErrorResponse{Error: "User not found."})
	case errors.Is(err, service.ErrWrongPassword):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Incorrect password."})
	case errors.Is(err, service.ErrCredentialsInvalid):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Could not validate credentials."})
	case errors.Is(err, service.ErrInvalidRefreshToken):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Invalid or expired refresh token."})
	case errors.Is(err, service.ErrResetTokenInvalid):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Reset token is invalid or expired."})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, model.ErrorResponse{Error: err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "internal error"})
	}
}

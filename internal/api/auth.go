package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campusgate/portal/internal/auth"
)

// AuthHandler exposes the registration and login endpoints.
type AuthHandler struct {
	registration *auth.RegistrationService
	login        *auth.LoginService
	logger       *zap.Logger
}

func NewAuthHandler(registration *auth.RegistrationService, login *auth.LoginService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{registration: registration, login: login, logger: logger}
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (h *AuthHandler) RegisterStep1(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid email required"})
		return
	}
	if err := h.registration.Start(c.Request.Context(), req.Email); err != nil {
		h.writeRegistrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verification code sent"})
}

func (h *AuthHandler) RegisterVerify(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and code required"})
		return
	}
	if err := h.registration.Verify(c.Request.Context(), req.Email, req.Code); err != nil {
		h.writeRegistrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "email verified"})
}

func (h *AuthHandler) RegisterResend(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid email required"})
		return
	}
	if err := h.registration.Resend(c.Request.Context(), req.Email); err != nil {
		h.writeRegistrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verification code sent"})
}

func (h *AuthHandler) RegisterStep3(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Username string `json:"username" binding:"required,min=3"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, username and password required"})
		return
	}
	if err := h.registration.SetCredentials(c.Request.Context(), req.Email, req.Username, req.Password); err != nil {
		h.writeRegistrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "credentials saved"})
}

func (h *AuthHandler) RegisterStep4(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		auth.PersonalData
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid email required"})
		return
	}
	if err := h.registration.SetPersonalData(c.Request.Context(), req.Email, req.PersonalData); err != nil {
		h.writeRegistrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "personal data saved"})
}

func (h *AuthHandler) RegisterComplete(c *gin.Context) {
	var req struct {
		Email string   `json:"email" binding:"required,email"`
		Roles []string `json:"roles"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid email required"})
		return
	}
	user, err := h.registration.Complete(c.Request.Context(), req.Email, req.Roles)
	if err != nil {
		h.writeRegistrationError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":       user.ID,
		"email":    user.Email,
		"username": user.Username,
		"roles":    user.Roles,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Login    string `json:"login" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login and password required"})
		return
	}
	user, pair, err := h.login.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong login or password"})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_in":    pair.ExpiresIn,
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"roles":    user.Roles,
		},
	})
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, err := h.login.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) || errors.Is(err, auth.ErrWrongTokenUse) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}
		h.logger.Error("refresh failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *AuthHandler) writeRegistrationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, auth.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "username already registered"})
	case errors.Is(err, auth.ErrCodeInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "verification code invalid or expired"})
	case errors.Is(err, auth.ErrEmailNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": "email not verified"})
	case errors.Is(err, auth.ErrStageIncomplete):
		c.JSON(http.StatusBadRequest, gin.H{"error": "previous registration step missing"})
	case errors.Is(err, auth.ErrRoleNotAllowed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "role cannot be self-assigned"})
	default:
		h.logger.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

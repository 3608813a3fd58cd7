package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type otpRequest struct {
	Email string `json:"email" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

type resendRequest struct {
	Email   string `json:"email" binding:"required"`
	Purpose string `json:"purpose" binding:"required"`
}

// register creates an unverified admin and sends the confirmation code
func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.auth.Register(c.Request.Context(), req.Email, req.Password); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Registration started. Check your email for the verification code.",
	})
}

func (h *Handler) confirmRegistration(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.auth.ConfirmRegistration(c.Request.Context(), req.Email, req.OTP); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account verified. You can now log in."})
}

// login is the password step; it never returns a token
func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.auth.Login(c.Request.Context(), req.Email, req.Password); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "A login code has been sent to your email."})
}

func (h *Handler) verifyLogin(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.auth.VerifyLogin(c.Request.Context(), req.Email, req.OTP)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Login successful",
		"token":      result.Token,
		"expires_at": result.ExpiresAt,
		"admin":      result.Admin,
	})
}

func (h *Handler) resendOTP(c *gin.Context) {
	var req resendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.auth.ResendOTP(c.Request.Context(), req.Email, req.Purpose); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "If the account exists, a new code has been sent."})
}

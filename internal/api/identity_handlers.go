package api

import (
	"bookstore/internal/service"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
}

type passwordConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type blockRequest struct {
	Block *bool `json:"block" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req service.RegisterRequest
	if !h.bindJSON(c, &req) {
		return
	}

	user, err := h.svc.Auth.Register(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondCreated(c, user)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if !h.bindJSON(c, &req) {
		return
	}

	res, err := h.svc.Auth.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, res)
}

func (h *Handler) verifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.svc.Auth.VerifyEmail(c.Request.Context(), req.Email, req.Token); err != nil {
		h.respondError(c, err)
		return
	}
	respondMessage(c, "Email verified successfully")
}

func (h *Handler) resendVerification(c *gin.Context) {
	var req emailRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.svc.Auth.ResendVerification(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}
	respondMessage(c, "Verification email sent")
}

func (h *Handler) getProfile(c *gin.Context) {
	user, err := h.svc.Users.GetProfile(c.Request.Context(), principal(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, user)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req service.ProfileUpdate
	if !h.bindJSON(c, &req) {
		return
	}

	user, err := h.svc.Users.UpdateProfile(c.Request.Context(), principal(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, user)
}

func (h *Handler) requestPasswordChange(c *gin.Context) {
	var req passwordChangeRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.svc.Users.RequestPasswordChange(c.Request.Context(), principal(c), req.CurrentPassword); err != nil {
		h.respondError(c, err)
		return
	}
	respondMessage(c, "Verification code sent to your email")
}

func (h *Handler) confirmPasswordChange(c *gin.Context) {
	var req passwordConfirmRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.svc.Users.ConfirmPasswordChange(c.Request.Context(), principal(c), req.Token, req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}
	respondMessage(c, "Password changed successfully")
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.svc.Users.ListUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, users)
}

func (h *Handler) setUserBlocked(c *gin.Context) {
	userID, ok := h.pathID(c, "userId")
	if !ok {
		return
	}
	var req blockRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.svc.Users.SetBlocked(c.Request.Context(), userID, *req.Block); err != nil {
		h.respondError(c, err)
		return
	}
	if *req.Block {
		respondMessage(c, "User has been blocked")
		return
	}
	respondMessage(c, "User has been unblocked")
}

func (h *Handler) deleteUser(c *gin.Context) {
	userID, ok := h.pathID(c, "userId")
	if !ok {
		return
	}

	if err := h.svc.Users.DeleteUser(c.Request.Context(), userID); err != nil {
		h.respondError(c, err)
		return
	}
	respondMessage(c, "User deleted successfully")
}

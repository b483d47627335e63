package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carecrypt/carecrypt-server/internal/middleware"
	"github.com/carecrypt/carecrypt-server/internal/model"
	"github.com/carecrypt/carecrypt-server/internal/reqctx"
	"github.com/carecrypt/carecrypt-server/internal/service"
)

const (
	msgRegistered    = "Account created! Please log in."
	msgLoggedOut     = "You have been logged out."
	msgPasswordReset = "Password reset successfully! Please log in."
)

type AuthService interface {
	Login(ctx context.Context, identifier, password string) (*service.LoginResult, error)
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Logout(ctx context.Context, session *model.Session, user *model.User) error
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	CheckResetToken(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, token, password, confirm string) error
}

type AuthHandler struct {
	authService  AuthService
	isProduction bool
}

func NewAuthHandler(authService AuthService, isProduction bool) *AuthHandler {
	return &AuthHandler{authService: authService, isProduction: isProduction}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email}
}

// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Username
	}

	result, err := h.authService.Login(r.Context(), identifier, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	middleware.SetSessionCookie(w, result.Token, h.isProduction)
	writeJSON(w, http.StatusOK, map[string]any{
		"user": toUserResponse(result.User),
	})
}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.authService.Register(r.Context(), service.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": msgRegistered,
		"user":    toUserResponse(user),
	})
}

// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if session := reqctx.Session(ctx); session != nil {
		if err := h.authService.Logout(ctx, session, reqctx.User(ctx)); err != nil {
			writeError(w, err)
			return
		}
	}

	middleware.ClearSessionCookie(w, h.isProduction)
	writeMessage(w, http.StatusOK, msgLoggedOut)
}

// GET /me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := reqctx.User(r.Context())
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// POST /forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ack, err := h.authService.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, ack)
}

// GET /reset-password/{token}
func (h *AuthHandler) CheckResetToken(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.CheckResetToken(r.Context(), chi.URLParam(r, "token")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// POST /reset-password/{token}
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.authService.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password, req.ConfirmPassword)
	if err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, msgPasswordReset)
}

package handlers

import (
	"encoding/json"
	"net/http"

	"livechat/internal/core/domain"
	"livechat/internal/core/services"
	"livechat/pkg/logging"
)

type AuthHandler struct {
	userSvc  *services.UserService
	tokenSvc *services.TokenService
}

func NewAuthHandler(u *services.UserService, t *services.TokenService) *AuthHandler {
	return &AuthHandler{userSvc: u, tokenSvc: t}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	user, err := h.userSvc.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		status := http.StatusInternalServerError
		switch err {
		case domain.ErrInvalidCredentials:
			status = http.StatusBadRequest
		case domain.ErrUserAlreadyExists:
			status = http.StatusConflict
		}
		log.ErrorContext(r.Context(), "auth handler - register failed", "username", req.Username, logging.Err(err))
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"user_id":    user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	user, err := h.userSvc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		log.WarnContext(r.Context(), "auth handler - login failed", "username", req.Username)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	token, err := h.tokenSvc.GenerateToken(user.ID.String())
	if err != nil {
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"token":   token,
		"user_id": user.ID,
	})
	log.InfoContext(r.Context(), "auth handler - login success", logging.User(user.ID.String()))
}

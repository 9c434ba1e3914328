package handlers

import (
	"net/http"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/models"
	"chat-realtime/pkg/logger"
)

// AuthHandlers issues the bearer tokens sessions present on upgrade.
type AuthHandlers struct {
	authService *auth.Service
}

func NewAuthHandlers(authService *auth.Service) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, ok := decodeBody[models.RegisterRequest](w, r)
	if !ok {
		return
	}

	response, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		logger.Error("Registration error: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, response)
}

// Login never says whether the email or the password was wrong.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, ok := decodeBody[models.LoginRequest](w, r)
	if !ok {
		return
	}

	response, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		logger.Debug("Login rejected for %s: %v", req.Email, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

package api

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/kiroo/kiroo-sync-server/internal/auth"
	"github.com/kiroo/kiroo-sync-server/internal/db"
)

type AuthHandler struct {
	DB *db.DB
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Alive"))
}

// Login authenticates by email/password and returns a session token.
// Unknown emails are auto-registered.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		JSONError(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.DB.GetUserByEmail(r.Context(), req.Email)
	if err == sql.ErrNoRows {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			JSONError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		userID, err := h.DB.CreateUser(r.Context(), req.Email, hash, time.Now().UnixMilli())
		if err != nil {
			log.Printf("Login: failed to register %s: %v", req.Email, err)
			JSONError(w, "Failed to register user", http.StatusInternalServerError)
			return
		}
		h.respondWithToken(w, userID)
		return
	} else if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	match, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		JSONError(w, "Error verifying password", http.StatusInternalServerError)
		return
	}
	if !match {
		JSONError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	h.respondWithToken(w, user.ID)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, userID int64) {
	token, err := auth.GenerateToken(userID)
	if err != nil {
		JSONError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"token": token})
}

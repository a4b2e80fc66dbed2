package api

import (
	"net/http"

	"github.com/kiroo/kiroo-sync-server/internal/db"
)

type UserHandler struct {
	DB *db.DB
}

type UserResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.DB.GetUserByID(r.Context(), userID)
	if err != nil {
		JSONError(w, "User not found", http.StatusNotFound)
		return
	}

	writeJSON(w, UserResponse{ID: user.ID, Email: user.Email})
}

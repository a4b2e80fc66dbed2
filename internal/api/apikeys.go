package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/kiroo/kiroo-sync-server/internal/auth"
	"github.com/kiroo/kiroo-sync-server/internal/db"
	"github.com/kiroo/kiroo-sync-server/internal/model"
)

type APIKeyHandler struct {
	DB *db.DB
}

type CreateAPIKeyRequest struct {
	Name       string  `json:"name"`
	DeviceName *string `json:"deviceName,omitempty"`
}

type CreateAPIKeyResponse struct {
	model.APIKey
	Key string `json:"key"` // raw key, shown only here
}

func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		JSONError(w, "Name is required", http.StatusBadRequest)
		return
	}

	rawKey, keyHash, err := auth.GenerateAPIKey()
	if err != nil {
		JSONError(w, "Failed to generate key", http.StatusInternalServerError)
		return
	}

	key, err := h.DB.CreateAPIKey(r.Context(), userID, keyHash, req.Name, req.DeviceName, time.Now().UnixMilli())
	if err != nil {
		log.Printf("CreateAPIKey: user %d: %v", userID, err)
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateAPIKeyResponse{APIKey: *key, Key: rawKey})
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	keys, err := h.DB.ListAPIKeys(r.Context(), userID)
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	if keys == nil {
		keys = []model.APIKey{}
	}
	writeJSON(w, keys)
}

func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		JSONError(w, "Key id is required", http.StatusBadRequest)
		return
	}

	err := h.DB.DeleteAPIKey(r.Context(), userID, req.ID)
	if err == db.ErrNotFound {
		JSONError(w, "API key not found", http.StatusNotFound)
		return
	}
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

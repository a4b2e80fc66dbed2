package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kiroo/kiroo-sync-server/internal/db"
	"github.com/kiroo/kiroo-sync-server/internal/model"
	syncengine "github.com/kiroo/kiroo-sync-server/internal/sync"
)

type BackupHandler struct {
	DB     *db.DB
	Engine *syncengine.Engine
}

type CreateBackupRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// Create snapshots the current library into an immutable named backup.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateBackupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = fmt.Sprintf("Backup %s", time.Now().Format("2006-01-02 15:04"))
	}

	doc, mangaCount, chapterCount, err := h.Engine.Snapshot(r.Context(), userID)
	if err != nil {
		log.Printf("CreateBackup: user %d: %v", userID, err)
		JSONError(w, "Failed to snapshot library", http.StatusInternalServerError)
		return
	}

	data, err := json.Marshal(doc)
	if err != nil {
		JSONError(w, "Failed to serialize backup", http.StatusInternalServerError)
		return
	}

	b := &model.Backup{
		UserID:       userID,
		Name:         req.Name,
		Description:  req.Description,
		Data:         string(data),
		MangaCount:   mangaCount,
		ChapterCount: chapterCount,
		SizeBytes:    len(data),
		CreatedAt:    time.Now().UnixMilli(),
	}
	if err := h.DB.InsertBackup(r.Context(), b); err != nil {
		log.Printf("CreateBackup: user %d: %v", userID, err)
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(b)
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, offset := pagination(r, 50)
	backups, err := h.DB.ListBackups(r.Context(), userID, limit, offset)
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	writeJSON(w, backups)
}

func (h *BackupHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		JSONError(w, "Backup id is required", http.StatusBadRequest)
		return
	}

	b, err := h.DB.GetBackup(r.Context(), userID, id)
	if err == db.ErrNotFound {
		JSONError(w, "Backup not found", http.StatusNotFound)
		return
	}
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, b)
}

// Download streams the raw backup document as a file attachment.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		JSONError(w, "Backup id is required", http.StatusBadRequest)
		return
	}

	b, err := h.DB.GetBackup(r.Context(), userID, id)
	if err == db.ErrNotFound {
		JSONError(w, "Backup not found", http.StatusNotFound)
		return
	}
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("backup-%s.json", b.ID)))
	w.Write([]byte(b.Data))
}

func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		JSONError(w, "Backup id is required", http.StatusBadRequest)
		return
	}

	err := h.DB.DeleteBackup(r.Context(), userID, req.ID)
	if err == db.ErrNotFound {
		JSONError(w, "Backup not found", http.StatusNotFound)
		return
	}
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

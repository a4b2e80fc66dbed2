package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kiroo/kiroo-sync-server/internal/backup"
	"github.com/kiroo/kiroo-sync-server/internal/db"
	"github.com/kiroo/kiroo-sync-server/internal/model"
	syncengine "github.com/kiroo/kiroo-sync-server/internal/sync"
)

type SyncHandler struct {
	DB     *db.DB
	Engine *syncengine.Engine
}

type PushResponse struct {
	Success        bool     `json:"success"`
	MangaSynced    int      `json:"mangaSynced"`
	ChaptersSynced int      `json:"chaptersSynced"`
	FailedManga    []string `json:"failedManga,omitempty"`
}

// Push accepts an uploaded backup document and reconciles it into the
// library. A malformed body rejects the whole request; anything past
// decoding is the engine's problem.
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var doc backup.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		JSONError(w, "Invalid backup data", http.StatusBadRequest)
		return
	}

	report, err := h.Engine.Push(r.Context(), userID, GetDeviceName(r), &doc)
	if err != nil {
		log.Printf("Push: user %d: %v", userID, err)
		h.recordFailure(r, userID, model.SyncTypePush, err)
		JSONError(w, "Sync failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, PushResponse{
		Success:        true,
		MangaSynced:    report.MangaSynced,
		ChaptersSynced: report.ChaptersSynced,
		FailedManga:    report.FailedManga,
	})
}

// Pull returns the stored library as a backup document.
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	doc, err := h.Engine.Pull(r.Context(), userID, GetDeviceName(r))
	if err != nil {
		log.Printf("Pull: user %d: %v", userID, err)
		h.recordFailure(r, userID, model.SyncTypePull, err)
		JSONError(w, "Sync failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, doc)
}

// recordFailure leaves a failed audit row. Best-effort: the 500 is
// already on its way.
func (h *SyncHandler) recordFailure(r *http.Request, userID int64, syncType string, cause error) {
	msg := cause.Error()
	device := GetDeviceName(r)
	rec := &model.SyncRecord{
		UserID:       userID,
		SyncType:     syncType,
		Status:       model.SyncStatusFailed,
		ErrorMessage: &msg,
		CreatedAt:    time.Now().UnixMilli(),
	}
	if device != "" {
		rec.DeviceName = &device
	}
	if err := h.DB.InsertSyncRecord(r.Context(), rec); err != nil {
		log.Printf("recordFailure: user %d: %v", userID, err)
	}
}

type SyncStatusResponse struct {
	LastSync   *model.SyncRecord `json:"lastSync"`
	MangaCount int               `json:"mangaCount"`
}

// Status reports the most recent sync and the library size.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	last, err := h.DB.LatestSyncRecord(r.Context(), userID)
	if err != nil && err != db.ErrNotFound {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	count, err := h.DB.CountManga(r.Context(), userID)
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, SyncStatusResponse{LastSync: last, MangaCount: count})
}

// History lists audit rows, newest first.
func (h *SyncHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, offset := pagination(r, 50)
	records, err := h.DB.ListSyncRecords(r.Context(), userID, limit, offset)
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.SyncRecord{}
	}
	writeJSON(w, records)
}

func pagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

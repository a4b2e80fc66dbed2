package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/kiroo/kiroo-sync-server/internal/db"
	"github.com/kiroo/kiroo-sync-server/internal/model"
)

type MangaHandler struct {
	DB *db.DB
}

// MangaView is a manga row with custom overrides folded in for display.
type MangaView struct {
	ID             string   `json:"id"`
	Source         int64    `json:"source"`
	SourceName     *string  `json:"sourceName"`
	URL            string   `json:"url"`
	Title          string   `json:"title"`
	Artist         *string  `json:"artist"`
	Author         *string  `json:"author"`
	Description    *string  `json:"description"`
	Genres         []string `json:"genres"`
	Status         int      `json:"status"`
	ThumbnailURL   *string  `json:"thumbnailUrl"`
	Favorite       bool     `json:"favorite"`
	DateAdded      int64    `json:"dateAdded"`
	LastModifiedAt int64    `json:"lastModifiedAt"`
	Version        int      `json:"version"`
	TotalChapters  int      `json:"totalChapters"`
	ReadChapters   int      `json:"readChapters"`
}

func mangaView(m *model.Manga, total, read int) MangaView {
	v := MangaView{
		ID:             m.ID,
		Source:         m.Source,
		SourceName:     m.SourceName,
		URL:            m.URL,
		Title:          m.DisplayTitle(),
		Artist:         strOverride(m.CustomArtist, m.Artist),
		Author:         strOverride(m.CustomAuthor, m.Author),
		Description:    strOverride(m.CustomDescription, m.Description),
		Genres:         m.Genres,
		Status:         m.Status,
		ThumbnailURL:   strOverride(m.CustomThumbnailURL, m.ThumbnailURL),
		Favorite:       m.Favorite,
		DateAdded:      m.DateAdded,
		LastModifiedAt: m.LastModifiedAt,
		Version:        m.Version,
		TotalChapters:  total,
		ReadChapters:   read,
	}
	if m.CustomGenres != nil {
		v.Genres = m.CustomGenres
	}
	if m.CustomStatus != 0 {
		v.Status = m.CustomStatus
	}
	return v
}

func strOverride(custom, base *string) *string {
	if custom != nil && *custom != "" {
		return custom
	}
	return base
}

func (h *MangaHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	all, err := h.DB.ListManga(r.Context(), userID)
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	search := strings.ToLower(q.Get("search"))
	favoriteOnly := q.Get("favorite") == "true"
	limit, offset := pagination(r, 50)

	views := make([]MangaView, 0, limit)
	matched := 0
	for i := range all {
		m := &all[i]
		if favoriteOnly && !m.Favorite {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(m.DisplayTitle()), search) {
			continue
		}
		matched++
		if matched <= offset || len(views) >= limit {
			continue
		}
		total, read, err := h.DB.ChapterCounts(r.Context(), m.ID)
		if err != nil {
			JSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
		views = append(views, mangaView(m, total, read))
	}

	writeJSON(w, map[string]any{"manga": views, "total": matched})
}

type MangaDetail struct {
	MangaView
	Chapters []model.Chapter  `json:"chapters"`
	Tracking []model.Tracking `json:"tracking"`
	History  []model.History  `json:"history"`
}

func (h *MangaHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		JSONError(w, "Manga id is required", http.StatusBadRequest)
		return
	}

	m, err := h.DB.GetManga(r.Context(), userID, id)
	if err == db.ErrNotFound {
		JSONError(w, "Manga not found", http.StatusNotFound)
		return
	}
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	chapters, err := h.DB.ListChapters(r.Context(), m.ID)
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	tracking, err := h.DB.ListTracking(r.Context(), m.ID)
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	history, err := h.DB.ListHistory(r.Context(), m.ID)
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	read := 0
	for _, c := range chapters {
		if c.Read {
			read++
		}
	}
	if chapters == nil {
		chapters = []model.Chapter{}
	}
	if tracking == nil {
		tracking = []model.Tracking{}
	}
	if history == nil {
		history = []model.History{}
	}

	writeJSON(w, MangaDetail{
		MangaView: mangaView(m, len(chapters), read),
		Chapters:  chapters,
		Tracking:  tracking,
		History:   history,
	})
}

type MangaStats struct {
	Total     int `json:"total"`
	Favorites int `json:"favorites"`
	Read      int `json:"readChapters"`
	Chapters  int `json:"totalChapters"`
}

func (h *MangaHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	all, err := h.DB.ListManga(r.Context(), userID)
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	var stats MangaStats
	stats.Total = len(all)
	for i := range all {
		if all[i].Favorite {
			stats.Favorites++
		}
		total, read, err := h.DB.ChapterCounts(r.Context(), all[i].ID)
		if err != nil {
			JSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
		stats.Chapters += total
		stats.Read += read
	}

	writeJSON(w, stats)
}

func (h *MangaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		JSONError(w, "Manga id is required", http.StatusBadRequest)
		return
	}

	err := h.DB.DeleteManga(r.Context(), userID, req.ID)
	if err == db.ErrNotFound {
		JSONError(w, "Manga not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("DeleteManga: user %d manga %s: %v", userID, req.ID, err)
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

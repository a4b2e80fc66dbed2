package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/kiroo/kiroo-sync-server/internal/db"
	"github.com/kiroo/kiroo-sync-server/internal/model"
)

// DataHandler serves the auxiliary synced collections for the dashboard.
type DataHandler struct {
	DB *db.DB
}

func (h *DataHandler) Categories(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(userID int64) (any, error) {
		list, err := h.DB.ListCategories(r.Context(), userID)
		if list == nil {
			list = []model.Category{}
		}
		return list, err
	})
}

func (h *DataHandler) ExtensionRepos(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(userID int64) (any, error) {
		list, err := h.DB.ListExtensionRepos(r.Context(), userID)
		if list == nil {
			list = []model.ExtensionRepo{}
		}
		return list, err
	})
}

func (h *DataHandler) SavedSearches(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(userID int64) (any, error) {
		list, err := h.DB.ListSavedSearches(r.Context(), userID)
		if list == nil {
			list = []model.SavedSearch{}
		}
		return list, err
	})
}

func (h *DataHandler) Feeds(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(userID int64) (any, error) {
		list, err := h.DB.ListFeeds(r.Context(), userID)
		if list == nil {
			list = []model.Feed{}
		}
		return list, err
	})
}

func (h *DataHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(userID int64) (any, error) {
		list, err := h.DB.ListPreferences(r.Context(), userID)
		if list == nil {
			list = []model.Preference{}
		}
		return list, err
	})
}

func (h *DataHandler) SourcePreferences(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(userID int64) (any, error) {
		list, err := h.DB.ListSourcePreferences(r.Context(), userID)
		if list == nil {
			list = []model.SourcePreference{}
		}
		return list, err
	})
}

func (h *DataHandler) list(w http.ResponseWriter, r *http.Request, fetch func(int64) (any, error)) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	v, err := fetch(userID)
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, v)
}

type DataStats struct {
	Categories        int `json:"categories"`
	ExtensionRepos    int `json:"extensionRepos"`
	SavedSearches     int `json:"savedSearches"`
	Feeds             int `json:"feeds"`
	Preferences       int `json:"preferences"`
	SourcePreferences int `json:"sourcePreferences"`
}

func (h *DataHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var stats DataStats
	counts := []struct {
		table string
		dst   *int
	}{
		{"categories", &stats.Categories},
		{"extension_repos", &stats.ExtensionRepos},
		{"saved_searches", &stats.SavedSearches},
		{"feeds", &stats.Feeds},
		{"preferences", &stats.Preferences},
		{"source_preferences", &stats.SourcePreferences},
	}
	for _, c := range counts {
		err := h.DB.QueryRowContext(r.Context(),
			"SELECT COUNT(*) FROM "+c.table+" WHERE user_id = ?", userID).Scan(c.dst)
		if err != nil {
			JSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, stats)
}

func (h *DataHandler) DeleteExtensionRepo(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, h.DB.DeleteExtensionRepo, "Extension repo not found")
}

func (h *DataHandler) DeleteSavedSearch(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, h.DB.DeleteSavedSearch, "Saved search not found")
}

func (h *DataHandler) DeleteFeed(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, h.DB.DeleteFeed, "Feed not found")
}

func (h *DataHandler) deleteByID(w http.ResponseWriter, r *http.Request,
	del func(ctx context.Context, userID int64, id string) error, notFound string) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		JSONError(w, "Id is required", http.StatusBadRequest)
		return
	}

	err := del(r.Context(), userID, req.ID)
	if err == db.ErrNotFound {
		JSONError(w, notFound, http.StatusNotFound)
		return
	}
	if err != nil {
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

// ResetAllData wipes every synced collection for the user. API keys and
// the account survive.
func (h *DataHandler) ResetAllData(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.DB.ResetUserData(r.Context(), userID); err != nil {
		log.Printf("ResetAllData: user %d: %v", userID, err)
		JSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

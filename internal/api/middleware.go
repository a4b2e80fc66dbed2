package api

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kiroo/kiroo-sync-server/internal/auth"
	"github.com/kiroo/kiroo-sync-server/internal/db"
)

type contextKey string

const (
	UserIDKey     contextKey = "userID"
	DeviceNameKey contextKey = "deviceName"
)

type Middleware struct {
	DB *db.DB
}

// RequireSession validates a JWT bearer token issued at login. Used by
// the dashboard RPC surface.
func (m *Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			JSONError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			JSONError(w, "Invalid authorization header", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ValidateToken(parts[1])
		if err != nil {
			JSONError(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// Verify user exists in database
		// This handles cases where client has valid token but DB was wiped
		exists, err := m.DB.UserExists(r.Context(), claims.UserID)
		if err != nil {
			log.Printf("RequireSession: DB error checking user %d: %v", claims.UserID, err)
			JSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
		if !exists {
			JSONError(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAPIKey authenticates a sync client by its x-api-key header.
// The key's device name rides along in the context so sync records can
// name the device.
func (m *Middleware) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := r.Header.Get("x-api-key")
		if rawKey == "" {
			JSONError(w, "API key required", http.StatusUnauthorized)
			return
		}

		key, err := m.DB.GetAPIKeyByHash(r.Context(), auth.HashAPIKey(rawKey))
		if err == db.ErrNotFound {
			JSONError(w, "Invalid API key", http.StatusUnauthorized)
			return
		}
		if err != nil {
			log.Printf("RequireAPIKey: DB error: %v", err)
			JSONError(w, "Database error", http.StatusInternalServerError)
			return
		}

		// Usage stamp failures never block a sync.
		if err := m.DB.TouchAPIKey(r.Context(), key.ID, time.Now().UnixMilli()); err != nil {
			log.Printf("RequireAPIKey: failed to stamp key %s: %v", key.ID, err)
		}

		ctx := context.WithValue(r.Context(), UserIDKey, key.UserID)
		if key.DeviceName != nil {
			ctx = context.WithValue(ctx, DeviceNameKey, *key.DeviceName)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetUserID(r *http.Request) (int64, bool) {
	userID, ok := r.Context().Value(UserIDKey).(int64)
	return userID, ok
}

func GetDeviceName(r *http.Request) string {
	name, _ := r.Context().Value(DeviceNameKey).(string)
	return name
}

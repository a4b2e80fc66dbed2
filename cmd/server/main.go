package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/kiroo/kiroo-sync-server/internal/api"
	"github.com/kiroo/kiroo-sync-server/internal/auth"
	"github.com/kiroo/kiroo-sync-server/internal/db"
	syncengine "github.com/kiroo/kiroo-sync-server/internal/sync"
)

func main() {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	auth.Init(jwtSecret)

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "data/kiroo.db"
	}
	database, err := db.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	engine := &syncengine.Engine{DB: database}

	authHandler := &api.AuthHandler{DB: database}
	userHandler := &api.UserHandler{DB: database}
	syncHandler := &api.SyncHandler{DB: database, Engine: engine}
	apiKeyHandler := &api.APIKeyHandler{DB: database}
	mangaHandler := &api.MangaHandler{DB: database}
	backupHandler := &api.BackupHandler{DB: database, Engine: engine}
	dataHandler := &api.DataHandler{DB: database}
	mw := &api.Middleware{DB: database}

	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /", api.Health)
	mux.HandleFunc("POST /auth", authHandler.Login)

	// Session-protected account routes
	mux.Handle("GET /me", mw.RequireSession(http.HandlerFunc(userHandler.GetMe)))

	// Sync routes, API-key protected. Mounted twice because some client
	// builds prepend /api and some don't.
	for _, prefix := range []string{"/sync", "/api/sync"} {
		mux.Handle("POST "+prefix, mw.RequireAPIKey(http.HandlerFunc(syncHandler.Push)))
		mux.Handle("GET "+prefix, mw.RequireAPIKey(http.HandlerFunc(syncHandler.Pull)))
	}

	// RPC surface, one route per procedure
	mux.Handle("POST /rpc/sync.push", mw.RequireAPIKey(http.HandlerFunc(syncHandler.Push)))
	mux.Handle("GET /rpc/sync.pull", mw.RequireAPIKey(http.HandlerFunc(syncHandler.Pull)))
	mux.Handle("GET /rpc/sync.status", mw.RequireSession(http.HandlerFunc(syncHandler.Status)))
	mux.Handle("GET /rpc/sync.history", mw.RequireSession(http.HandlerFunc(syncHandler.History)))

	mux.Handle("GET /rpc/manga.list", mw.RequireSession(http.HandlerFunc(mangaHandler.List)))
	mux.Handle("GET /rpc/manga.get", mw.RequireSession(http.HandlerFunc(mangaHandler.Get)))
	mux.Handle("GET /rpc/manga.stats", mw.RequireSession(http.HandlerFunc(mangaHandler.Stats)))
	mux.Handle("POST /rpc/manga.delete", mw.RequireSession(http.HandlerFunc(mangaHandler.Delete)))

	mux.Handle("GET /rpc/apiKeys.list", mw.RequireSession(http.HandlerFunc(apiKeyHandler.List)))
	mux.Handle("POST /rpc/apiKeys.create", mw.RequireSession(http.HandlerFunc(apiKeyHandler.Create)))
	mux.Handle("POST /rpc/apiKeys.revoke", mw.RequireSession(http.HandlerFunc(apiKeyHandler.Revoke)))

	mux.Handle("GET /rpc/backup.list", mw.RequireSession(http.HandlerFunc(backupHandler.List)))
	mux.Handle("GET /rpc/backup.get", mw.RequireSession(http.HandlerFunc(backupHandler.Get)))
	mux.Handle("GET /rpc/backup.download", mw.RequireSession(http.HandlerFunc(backupHandler.Download)))
	mux.Handle("POST /rpc/backup.create", mw.RequireSession(http.HandlerFunc(backupHandler.Create)))
	mux.Handle("POST /rpc/backup.delete", mw.RequireSession(http.HandlerFunc(backupHandler.Delete)))

	mux.Handle("GET /rpc/data.categories", mw.RequireSession(http.HandlerFunc(dataHandler.Categories)))
	mux.Handle("GET /rpc/data.extensionRepos", mw.RequireSession(http.HandlerFunc(dataHandler.ExtensionRepos)))
	mux.Handle("GET /rpc/data.savedSearches", mw.RequireSession(http.HandlerFunc(dataHandler.SavedSearches)))
	mux.Handle("GET /rpc/data.feeds", mw.RequireSession(http.HandlerFunc(dataHandler.Feeds)))
	mux.Handle("GET /rpc/data.preferences", mw.RequireSession(http.HandlerFunc(dataHandler.Preferences)))
	mux.Handle("GET /rpc/data.sourcePreferences", mw.RequireSession(http.HandlerFunc(dataHandler.SourcePreferences)))
	mux.Handle("GET /rpc/data.stats", mw.RequireSession(http.HandlerFunc(dataHandler.Stats)))
	mux.Handle("POST /rpc/data.deleteExtensionRepo", mw.RequireSession(http.HandlerFunc(dataHandler.DeleteExtensionRepo)))
	mux.Handle("POST /rpc/data.deleteSavedSearch", mw.RequireSession(http.HandlerFunc(dataHandler.DeleteSavedSearch)))
	mux.Handle("POST /rpc/data.deleteFeed", mw.RequireSession(http.HandlerFunc(dataHandler.DeleteFeed)))
	mux.Handle("POST /rpc/data.resetAllData", mw.RequireSession(http.HandlerFunc(dataHandler.ResetAllData)))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Server starting on port %s...", port)
	if err := http.ListenAndServe(":"+port, api.LoggingMiddleware(mux)); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
